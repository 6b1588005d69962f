// Package radio defines the external collaborator interfaces this
// system consumes but does not implement: the mesh radio-link driver
// and the persistent node/entity store, both out of scope per the
// purpose-and-scope section.
package radio

import "context"

// Port identifies which of the two radio ports a packet travels on.
type Port uint16

const (
	PortPlugin    Port = 72  // compact-binary PLI/chat/status records
	PortForwarder Port = 257 // generic compressed/fountain-coded CoT
)

// BroadcastNode is the destination node id meaning "every node on the
// mesh".
const BroadcastNode uint32 = 0xFFFFFFFF

// Driver is the mesh radio-link collaborator: it delivers and accepts
// opaque datagrams addressed by node id, channel, and port. This system
// never interprets mesh routing or MAC behavior; it only calls Send and
// is called back through whatever dispatch mechanism the driver uses
// (see Dispatcher).
type Driver interface {
	Send(ctx context.Context, to, from uint32, channel uint8, port Port, payload []byte) error
}

// Dispatcher receives inbound packets from the driver and routes them
// by port. Implemented by the coordinator (internal/core), not by this
// package.
type Dispatcher interface {
	OnReceive(ctx context.Context, from uint32, channel uint8, port Port, payload []byte)
}

// NodeStore is the persistent node/entity store collaborator, looked up
// by numeric node id. This system treats it as read-only.
type NodeStore interface {
	Lookup(nodeID uint32) (name string, ok bool)
}
