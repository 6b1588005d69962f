package fountain

import "github.com/atakgw/meshtak/internal/soliton"

// splitSourceBlocks divides payload into K fixed-size SourceBlockSize
// blocks, zero-padding the final block, with K = ceil(len/220) (minimum
// 1).
func splitSourceBlocks(payload []byte) [][SourceBlockSize]byte {
	k := (len(payload) + SourceBlockSize - 1) / SourceBlockSize
	if k < 1 {
		k = 1
	}

	blocks := make([][SourceBlockSize]byte, k)
	for i := 0; i < k; i++ {
		start := i * SourceBlockSize
		end := start + SourceBlockSize
		if end > len(payload) {
			end = len(payload)
		}
		copy(blocks[i][:], payload[start:end])
	}
	return blocks
}

// redundancyOverhead returns the adaptive overhead fraction for a given
// source block count.
func redundancyOverhead(k int) float64 {
	switch {
	case k <= 10:
		return 0.50
	case k <= 50:
		return 0.25
	default:
		return 0.15
	}
}

// totalBlocksFor returns ceil(K * (1 + overhead)).
func totalBlocksFor(k int) int {
	overhead := redundancyOverhead(k)
	n := int(float64(k)*(1+overhead) + 0.999999999)
	if n < k {
		n = k
	}
	return n
}

// Encode splits payload into source blocks and produces totalBlocksFor(K)
// coded DataBlocks for transferID, with block 0 always degree-1.
func Encode(transferID uint32, payload []byte) []*DataBlock {
	sourceBlocks := splitSourceBlocks(payload)
	k := len(sourceBlocks)
	total := totalBlocksFor(k)
	cdf := soliton.Build(k)
	totalLength := uint16(len(payload))

	blocks := make([]*DataBlock, 0, total)
	for i := 0; i < total; i++ {
		seed := DeriveSeed(transferID, i)
		indices := generateIndices(seed, k, i == 0, cdf)

		var payloadOut [SourceBlockSize]byte
		for _, idx := range indices {
			xorInto(&payloadOut, &sourceBlocks[idx])
		}

		blocks = append(blocks, &DataBlock{
			TransferID:  transferID,
			Seed:        seed,
			K:           uint8(k),
			TotalLength: totalLength,
			Payload:     payloadOut,
		})
	}
	return blocks
}

func xorInto(dst *[SourceBlockSize]byte, src *[SourceBlockSize]byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
