// Package bridge classifies outgoing CoT events onto one of the radio's
// two transports, translates between CoT and the compact-binary wire
// record in both directions, intercepts chat read receipts, and owns
// the process-wide callsign↔device-uid directory.
package bridge

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/atakgw/meshtak/internal/compactbinary"
	"github.com/atakgw/meshtak/internal/cot"
	"github.com/atakgw/meshtak/internal/fountain"
	"github.com/atakgw/meshtak/internal/zlibcodec"
)

// DefaultAckDebounce is how long a repeated read-receipt for the same
// message id is suppressed, the same hang-timer idea the radio side
// uses to hold a call open briefly after the last activity rather than
// re-triggering on every retransmitted duplicate.
const DefaultAckDebounce = 3 * time.Second

// Radio ports, per the forwarder-port/plugin-port split in the external
// interfaces.
const (
	PortPlugin    = 72
	PortForwarder = 257
)

// OutboundKind names which of the four transports a classified CoT
// event was routed to.
type OutboundKind int

const (
	OutboundCompactPLI OutboundKind = iota
	OutboundCompactChat
	OutboundForwarderDirect
	OutboundForwarderFountain
)

func (k OutboundKind) String() string {
	switch k {
	case OutboundCompactPLI:
		return "compact-pli"
	case OutboundCompactChat:
		return "compact-chat"
	case OutboundForwarderDirect:
		return "forwarder-direct"
	case OutboundForwarderFountain:
		return "forwarder-fountain"
	default:
		return "unknown"
	}
}

// Outbound is the result of classifying and translating one CoT event
// for radio transmission.
type Outbound struct {
	Kind    OutboundKind
	Port    int
	Compact *compactbinary.Record // set for the two compact-binary kinds
	Zlib    []byte                // zlib-compressed CoT XML, set for the two forwarder kinds
}

// Bridge is the classifier/translator plus its owned callsign directory.
// Constructed once at startup and threaded explicitly (see Design Notes
// on recasting process-wide singletons as an explicit Core value).
type Bridge struct {
	directory *Directory
	logger    *log.Logger

	defaultChatroom string
	ackDebounce     time.Duration

	receiptMu   sync.Mutex
	receiptSeen map[string]time.Time
}

// New constructs a Bridge with a fresh directory, the literal "All Chat
// Rooms" broadcast room as its default chatroom, and DefaultAckDebounce
// as its receipt-debounce window. SetDefaultChatroom and SetAckDebounce
// override either from configuration.
func New(logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Default()
	}
	return &Bridge{
		directory:       NewDirectory(),
		logger:          logger,
		defaultChatroom: cot.AllChatRooms,
		ackDebounce:     DefaultAckDebounce,
		receiptSeen:     make(map[string]time.Time),
	}
}

// Directory exposes the bridge's owned callsign↔device-uid directory.
func (b *Bridge) Directory() *Directory {
	return b.directory
}

// SetDefaultChatroom overrides the chatroom ToCompactChat falls back to
// when an outgoing chat event's uid carries no room of its own.
func (b *Bridge) SetDefaultChatroom(room string) {
	if room != "" {
		b.defaultChatroom = room
	}
}

// SetAckDebounce overrides the hang-timer-style window HandleReceipt
// uses to suppress repeated identical read receipts.
func (b *Bridge) SetAckDebounce(d time.Duration) {
	if d > 0 {
		b.ackDebounce = d
	}
}

// ClassifyOutbound routes ev to one of the four transports and performs
// translation (for the compact-binary kinds) or compression (for the
// forwarder kinds). Protocol-control and ping events are the caller's
// responsibility to filter before calling this — see ShouldForwardToRadio.
func (b *Bridge) ClassifyOutbound(ev *cot.Event) (*Outbound, error) {
	switch {
	case cot.IsPLI(ev.Type):
		rec, err := b.ToCompactPLI(ev)
		if err != nil {
			return nil, err
		}
		return &Outbound{Kind: OutboundCompactPLI, Port: PortPlugin, Compact: rec}, nil

	case cot.IsChat(ev.Type):
		rec, err := b.ToCompactChat(ev)
		if err != nil {
			return nil, err
		}
		return &Outbound{Kind: OutboundCompactChat, Port: PortPlugin, Compact: rec}, nil

	default:
		compressed, err := zlibcodec.Compress(cot.Serialize(ev))
		if err != nil {
			b.logger.Printf("bridge: compression failed, falling back to raw utf8: %v", err)
			compressed = cot.Serialize(ev)
		}
		if len(compressed)+1 < fountain.Threshold {
			return &Outbound{Kind: OutboundForwarderDirect, Port: PortForwarder, Zlib: compressed}, nil
		}
		return &Outbound{Kind: OutboundForwarderFountain, Port: PortForwarder, Zlib: compressed}, nil
	}
}

// ShouldForwardToRadio reports whether ev should reach the radio at all.
// TAK-Protocol negotiation and ping events are consumed by the server
// and never forwarded.
func ShouldForwardToRadio(ev *cot.Event) bool {
	return !cot.IsProtocolControl(ev.Type, ev.UID)
}

// ReceiptKind distinguishes the two chat read-receipt bodies the bridge
// intercepts before fan-out.
type ReceiptKind int

const (
	ReceiptNone ReceiptKind = iota
	ReceiptDelivered
	ReceiptRead
)

func (k ReceiptKind) String() string {
	switch k {
	case ReceiptDelivered:
		return "delivered"
	case ReceiptRead:
		return "read"
	default:
		return "none"
	}
}

// ClassifyReceipt inspects a chat message body for the ACK:D:<id> /
// ACK:R:<id> read-receipt convention. Matching messages must be
// intercepted before broadcast to TAK clients and handled internally.
func ClassifyReceipt(message string) (kind ReceiptKind, id string) {
	switch {
	case strings.HasPrefix(message, "ACK:D:"):
		return ReceiptDelivered, strings.TrimPrefix(message, "ACK:D:")
	case strings.HasPrefix(message, "ACK:R:"):
		return ReceiptRead, strings.TrimPrefix(message, "ACK:R:")
	default:
		return ReceiptNone, ""
	}
}

// HandleReceipt logs a read receipt once per b.ackDebounce window for a
// given (kind, id) pair. A flurry of identical receipts — e.g. the same
// ACK relayed by more than one hop — logs once and goes quiet until the
// window elapses, then re-arms on the next occurrence, the same
// activity-resets-the-timer behavior as a repeater hang timer.
func (b *Bridge) HandleReceipt(kind ReceiptKind, id string) {
	if kind == ReceiptNone {
		return
	}

	key := fmt.Sprintf("%s:%s", kind, id)
	now := time.Now()

	b.receiptMu.Lock()
	last, seen := b.receiptSeen[key]
	suppress := seen && now.Sub(last) < b.ackDebounce
	b.receiptSeen[key] = now
	b.receiptMu.Unlock()

	if suppress {
		return
	}
	b.logger.Printf("bridge: %s receipt for message %s", kind, id)
}
