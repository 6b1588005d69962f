package fountain

// codedBlock is a coded block as tracked by the peeling decoder: its
// current (possibly reduced) index set and payload.
type codedBlock struct {
	indices map[int]struct{}
	payload [SourceBlockSize]byte
}

// peelingDecode attempts to recover all K source blocks from the given
// coded blocks (each already carrying its regenerated index set). It
// returns the decoded source blocks and whether decoding is complete.
func peelingDecode(k int, coded []*codedBlock) ([][SourceBlockSize]byte, bool) {
	decoded := make([][SourceBlockSize]byte, k)
	known := make([]bool, k)
	knownCount := 0

	// Work on copies so re-running peelingDecode as more blocks arrive is
	// side-effect free on the caller's stored state.
	work := make([]*codedBlock, len(coded))
	for i, c := range coded {
		idxCopy := make(map[int]struct{}, len(c.indices))
		for idx := range c.indices {
			idxCopy[idx] = struct{}{}
		}
		work[i] = &codedBlock{indices: idxCopy, payload: c.payload}
	}

	progress := true
	for progress && knownCount < k {
		progress = false

		for _, c := range work {
			if len(c.indices) == 0 {
				continue
			}

			// Remove already-known indices by XORing their payload out.
			for idx := range c.indices {
				if known[idx] {
					xorInto(&c.payload, &decoded[idx])
					delete(c.indices, idx)
				}
			}

			if len(c.indices) == 1 {
				var only int
				for idx := range c.indices {
					only = idx
				}
				if !known[only] {
					decoded[only] = c.payload
					known[only] = true
					knownCount++
					progress = true
				}
				c.indices = map[int]struct{}{}
			}
		}
	}

	return decoded, knownCount == k
}

// reassemble concatenates decoded source blocks 0..K-1 and truncates to
// totalLength.
func reassemble(blocks [][SourceBlockSize]byte, totalLength int) []byte {
	out := make([]byte, 0, len(blocks)*SourceBlockSize)
	for _, b := range blocks {
		out = append(out, b[:]...)
	}
	if totalLength < len(out) {
		out = out[:totalLength]
	}
	return out
}
