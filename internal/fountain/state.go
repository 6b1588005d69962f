package fountain

import (
	"crypto/sha256"
	"sync"
	"time"
)

// ExpiryAge is how long after its first block a receive-side transfer
// state may live before it is evicted on the next packet arrival; later
// blocks do not extend it.
const ExpiryAge = 60 * time.Second

// receiveState is the receive-side bookkeeping for one transfer-id: the
// declared K and total length (learned from the first block seen) and
// every distinct coded block received so far, keyed by seed so duplicates
// are rejected.
type receiveState struct {
	k           int
	totalLength int
	blocks      map[uint16]*codedBlock
	createdAt   time.Time
}

// DecodeResult is returned once a transfer completes: the reassembled
// payload and the SHA-256 prefix to report back in the Complete ACK.
type DecodeResult struct {
	TransferID uint32
	Payload    []byte
	HashPrefix [HashPrefixLen]byte
}

// ReceiveTable owns every in-flight receive-side transfer. It is touched
// only from the coordinator context handling inbound forwarder-port
// packets, so a simple mutex is sufficient.
type ReceiveTable struct {
	mu      sync.Mutex
	entries map[uint32]*receiveState
}

// NewReceiveTable constructs an empty table.
func NewReceiveTable() *ReceiveTable {
	return &ReceiveTable{entries: make(map[uint32]*receiveState)}
}

// AddBlock feeds one received data block into its transfer's state,
// evicting expired transfers on the way in. It returns a non-nil
// DecodeResult exactly when this block completes the transfer; the
// transfer's state is removed in that case. A duplicate seed for an
// already-known block is silently ignored (returns nil, false).
func (t *ReceiveTable) AddBlock(block *DataBlock) (*DecodeResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpiredLocked()

	st, ok := t.entries[block.TransferID]
	if !ok {
		st = &receiveState{
			k:           int(block.K),
			totalLength: int(block.TotalLength),
			blocks:      make(map[uint16]*codedBlock),
			createdAt:   time.Now(),
		}
		t.entries[block.TransferID] = st
	}

	if _, dup := st.blocks[block.Seed]; dup {
		return nil, false
	}

	indices := RegenerateIndices(block.Seed, st.k, block.TransferID)
	idxSet := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		idxSet[idx] = struct{}{}
	}
	st.blocks[block.Seed] = &codedBlock{indices: idxSet, payload: block.Payload}

	coded := make([]*codedBlock, 0, len(st.blocks))
	for _, c := range st.blocks {
		coded = append(coded, c)
	}

	decodedBlocks, complete := peelingDecode(st.k, coded)
	if !complete {
		return nil, false
	}

	payload := reassemble(decodedBlocks, st.totalLength)
	sum := sha256.Sum256(payload)
	var prefix [HashPrefixLen]byte
	copy(prefix[:], sum[:HashPrefixLen])

	delete(t.entries, block.TransferID)

	return &DecodeResult{
		TransferID: block.TransferID,
		Payload:    payload,
		HashPrefix: prefix,
	}, true
}

// evictExpiredLocked removes any transfer whose state was created more
// than ExpiryAge ago. Must be called with t.mu held.
func (t *ReceiveTable) evictExpiredLocked() {
	now := time.Now()
	for id, st := range t.entries {
		if now.Sub(st.createdAt) > ExpiryAge {
			delete(t.entries, id)
		}
	}
}

// Len reports the number of in-flight transfers, for tests/diagnostics.
func (t *ReceiveTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// PendingTransfer is the send-side record kept until a matching Complete
// ACK arrives. Receiver-side expiry (ExpiryAge) is the authoritative
// timeout; the sender never expires these on its own, per spec's open
// question about send-side expiry being unimplemented.
type PendingTransfer struct {
	TransferID  uint32
	TotalBlocks int
	HashPrefix  [HashPrefixLen]byte
}

// PendingTable tracks outstanding sends, keyed by transfer id.
type PendingTable struct {
	mu      sync.Mutex
	entries map[uint32]*PendingTransfer
}

// NewPendingTable constructs an empty send-side table.
func NewPendingTable() *PendingTable {
	return &PendingTable{entries: make(map[uint32]*PendingTransfer)}
}

// Register records a newly sent transfer.
func (t *PendingTable) Register(p *PendingTransfer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[p.TransferID] = p
}

// Reconcile processes an inbound ACK against the pending table. For a
// Complete ACK with a matching hash it clears the entry and reports
// success. A hash mismatch or unknown transfer id reports failure without
// mutating the table (so a later, correct ACK can still land). NeedMore
// ACKs are reported but never mutate the table, per spec.
func (t *PendingTable) Reconcile(ack *Ack) (success bool, known bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[ack.TransferID]
	if !ok {
		return false, false
	}

	if ack.Type == TypeAckNeedMore {
		return false, true
	}

	if ack.Type != TypeAckComplete {
		return false, true
	}

	if p.HashPrefix != ack.HashPrefix {
		return false, true
	}

	delete(t.entries, ack.TransferID)
	return true, true
}

// Len reports the number of outstanding sends, for tests/diagnostics.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
