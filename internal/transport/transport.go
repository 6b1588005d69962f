// Package transport implements the generic-CoT pipeline on the radio's
// forwarder port: outbound compression and direct-or-fountain framing,
// inbound demultiplexing of ACK vs data-block vs direct payloads, and
// the receive-side decode → decompress → parse → broadcast chain.
package transport

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"time"

	"github.com/atakgw/meshtak/internal/bridge"
	"github.com/atakgw/meshtak/internal/cot"
	"github.com/atakgw/meshtak/internal/fountain"
	"github.com/atakgw/meshtak/internal/radio"
	"github.com/atakgw/meshtak/internal/zlibcodec"
)

// TransportType is the single prefix byte on a direct or fountain-coded
// forwarder-port payload, ahead of the compressed CoT XML.
type TransportType byte

// TransportTypeCoT is the only transport type this system produces.
const TransportTypeCoT TransportType = 0x00

// InterPacketDelay is the pacing gap between successive fountain blocks
// of one transfer.
const InterPacketDelay = 100 * time.Millisecond

// CompleteAckGap is the gap between the two Complete ACKs sent on
// receive completion.
const CompleteAckGap = 50 * time.Millisecond

// Broadcaster fans a reconstructed CoT event out to every connected TAK
// client. Implemented by internal/tlsserver.
type Broadcaster interface {
	Broadcast(ev *cot.Event)
}

// Transport owns the forwarder-port pipeline: the send-side pending
// table and the receive-side fountain state table, both single-writer
// structures touched only from the coordinator context per the
// concurrency model.
type Transport struct {
	driver      radio.Driver
	broadcaster Broadcaster
	pending     *fountain.PendingTable
	receiving   *fountain.ReceiveTable
	selfNode    uint32
	logger      *log.Logger
	sleep       func(time.Duration)
	transferID  func() uint32
}

// New constructs a Transport. selfNode is this device's own radio node
// id, used as the `from` address on every send.
func New(driver radio.Driver, broadcaster Broadcaster, selfNode uint32, logger *log.Logger) *Transport {
	if logger == nil {
		logger = log.Default()
	}
	return &Transport{
		driver:      driver,
		broadcaster: broadcaster,
		pending:     fountain.NewPendingTable(),
		receiving:   fountain.NewReceiveTable(),
		selfNode:    selfNode,
		logger:      logger,
		sleep:       time.Sleep,
		transferID:  fountain.GenerateTransferID,
	}
}

// SendOutbound transmits a forwarder-kind Outbound that
// bridge.ClassifyOutbound already classified, honoring the direct/
// fountain choice it made rather than re-deriving the threshold
// decision here. Compact-binary kinds are the caller's responsibility
// (they go out on the plugin port, not through Transport at all).
func (t *Transport) SendOutbound(ctx context.Context, out *bridge.Outbound, to uint32, channel uint8) error {
	payload := append([]byte{byte(TransportTypeCoT)}, out.Zlib...)

	if out.Kind == bridge.OutboundForwarderFountain {
		return t.sendFountain(ctx, payload, to, channel)
	}
	return t.driver.Send(ctx, to, t.selfNode, channel, radio.PortForwarder, payload)
}

func (t *Transport) sendFountain(ctx context.Context, payload []byte, to uint32, channel uint8) error {
	transferID := t.transferID()
	blocks := fountain.Encode(transferID, payload)

	sum := sha256.Sum256(payload)
	var prefix [fountain.HashPrefixLen]byte
	copy(prefix[:], sum[:fountain.HashPrefixLen])
	t.pending.Register(&fountain.PendingTransfer{
		TransferID:  transferID,
		TotalBlocks: len(blocks),
		HashPrefix:  prefix,
	})

	for i, block := range blocks {
		if err := t.driver.Send(ctx, to, t.selfNode, channel, radio.PortForwarder, block.Marshal()); err != nil {
			return fmt.Errorf("transport: sending fountain block %d/%d: %w", i+1, len(blocks), err)
		}
		if i != len(blocks)-1 {
			t.sleep(InterPacketDelay)
		}
	}
	return nil
}

// HandleForwarderPacket demultiplexes one inbound forwarder-port packet:
// an ACK, a fountain data block, or a direct (non-fountain) payload.
// from/channel address the reply path for Complete ACKs.
func (t *Transport) HandleForwarderPacket(ctx context.Context, from uint32, channel uint8, payload []byte) {
	switch {
	case len(payload) == fountain.AckSize && fountain.IsFountainFramed(payload):
		t.handleAck(payload)

	case fountain.IsFountainFramed(payload):
		t.handleDataBlock(ctx, from, channel, payload)

	default:
		if len(payload) < 1 {
			t.logger.Printf("[transport] dropping empty forwarder payload")
			return
		}
		t.deliver(payload[1:])
	}
}

func (t *Transport) handleAck(payload []byte) {
	ack, err := fountain.UnmarshalAck(payload)
	if err != nil {
		t.logger.Printf("[transport] dropping malformed ack: %v", err)
		return
	}
	switch ack.Type {
	case fountain.TypeAckNeedMore:
		t.pending.Reconcile(ack)
		t.logger.Printf("[transport] need-more ack for transfer %06x (unused by this profile)", ack.TransferID)
	case fountain.TypeAckComplete:
		success, known := t.pending.Reconcile(ack)
		if !known {
			t.logger.Printf("[transport] complete ack for unknown transfer %06x", ack.TransferID)
		} else if !success {
			t.logger.Printf("[transport] complete ack hash mismatch for transfer %06x", ack.TransferID)
		}
	default:
		t.logger.Printf("[transport] dropping ack with unexpected type %d", ack.Type)
	}
}

func (t *Transport) handleDataBlock(ctx context.Context, from uint32, channel uint8, payload []byte) {
	block, err := fountain.UnmarshalDataBlock(payload)
	if err != nil {
		t.logger.Printf("[transport] dropping malformed data block: %v", err)
		return
	}

	result, complete := t.receiving.AddBlock(block)
	if !complete {
		return
	}

	t.sendCompleteAcks(ctx, from, channel, result)

	if len(result.Payload) < 1 {
		t.logger.Printf("[transport] dropping empty reassembled fountain payload")
		return
	}
	t.deliver(result.Payload[1:])
}

func (t *Transport) sendCompleteAcks(ctx context.Context, to uint32, channel uint8, result *fountain.DecodeResult) {
	ack := &fountain.Ack{
		TransferID: result.TransferID,
		Type:       fountain.TypeAckComplete,
		HashPrefix: result.HashPrefix,
	}
	wire := ack.Marshal()

	if err := t.driver.Send(ctx, to, t.selfNode, channel, radio.PortForwarder, wire); err != nil {
		t.logger.Printf("[transport] sending first complete ack for transfer %06x: %v", result.TransferID, err)
	}
	t.sleep(CompleteAckGap)
	if err := t.driver.Send(ctx, to, t.selfNode, channel, radio.PortForwarder, wire); err != nil {
		t.logger.Printf("[transport] sending second complete ack for transfer %06x: %v", result.TransferID, err)
	}
}

// deliver decompresses a stripped (transport-byte-removed) payload,
// falling back to raw UTF-8 on decode failure, parses it as CoT, and
// broadcasts the result.
func (t *Transport) deliver(compressed []byte) {
	decoded, ok := zlibcodec.Decompress(compressed)
	if !ok {
		decoded = compressed
	}
	ev, err := cot.Parse(decoded)
	if err != nil {
		t.logger.Printf("[transport] dropping unparseable cot payload: %v", err)
		return
	}
	t.broadcaster.Broadcast(ev)
}
