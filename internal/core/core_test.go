package core

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/atakgw/meshtak/internal/certstore"
	"github.com/atakgw/meshtak/internal/compactbinary"
	"github.com/atakgw/meshtak/internal/config"
	"github.com/atakgw/meshtak/internal/cot"
	"github.com/atakgw/meshtak/internal/radio"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testConfig() *config.Config {
	cfg := config.NewConfig("")
	if err := cfg.LoadFromString("[Directory]\nEnabled=0\n"); err != nil {
		panic(err)
	}
	return cfg
}

func newTestCore(t *testing.T) (*Core, *radio.Mock) {
	t.Helper()
	mock := radio.NewMock()
	c, err := New(Options{
		Config:      testConfig(),
		RadioDriver: mock,
		KeyStore:    certstore.NewMemKeyStore(),
		Logger:      discardLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, mock
}

func samplePLIEvent() *cot.Event {
	return &cot.Event{
		UID:     "U1",
		Type:    "a-f-G-U-C",
		How:     "m-g",
		Point:   cot.Point{Lat: 37.5, Lon: -122.25, Hae: 9999999, Ce: 9999999, Le: 9999999},
		Contact: &cot.Contact{Callsign: "ALPHA"},
		Group:   &cot.Group{TeamName: "Cyan", RoleName: "Team Member"},
	}
}

func TestHandleClientEventSendsPLIOnPluginPort(t *testing.T) {
	c, mock := newTestCore(t)

	c.HandleClientEvent(samplePLIEvent())

	packets := mock.Packets()
	if len(packets) != 1 {
		t.Fatalf("expected exactly one sent packet, got %d", len(packets))
	}
	p := packets[0]
	if p.Port != radio.PortPlugin {
		t.Fatalf("expected plugin port, got %d", p.Port)
	}
	if p.To != radio.BroadcastNode {
		t.Fatalf("expected broadcast destination, got %#x", p.To)
	}

	rec, err := compactbinary.Unmarshal(p.Payload)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rec.PLI == nil {
		t.Fatalf("expected a pli record, got %+v", rec)
	}
	if rec.Contact == nil || rec.Contact.Callsign != "ALPHA" {
		t.Fatalf("unexpected contact: %+v", rec.Contact)
	}
}

func TestHandleClientEventSendsChatOnPluginPort(t *testing.T) {
	c, mock := newTestCore(t)

	ev := &cot.Event{
		UID:     "GeoChat.SENDER.All Chat Rooms.msg1",
		Type:    "b-t-f",
		Contact: &cot.Contact{Callsign: "BRAVO"},
		Chat:    &cot.Chat{Message: "hello mesh", Chatroom: cot.AllChatRooms},
	}
	c.HandleClientEvent(ev)

	packets := mock.Packets()
	if len(packets) != 1 {
		t.Fatalf("expected exactly one sent packet, got %d", len(packets))
	}
	if packets[0].Port != radio.PortPlugin {
		t.Fatalf("expected plugin port, got %d", packets[0].Port)
	}

	rec, err := compactbinary.Unmarshal(packets[0].Payload)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rec.Chat == nil || rec.Chat.Message != "hello mesh" {
		t.Fatalf("unexpected chat record: %+v", rec.Chat)
	}
}

func TestHandleClientEventSendsNonPLIEventOnForwarderPort(t *testing.T) {
	c, mock := newTestCore(t)

	ev := &cot.Event{
		UID:   "U2",
		Type:  "a-u-S",
		How:   "m-g",
		Point: cot.Point{Lat: 1, Lon: 2, Hae: cot.UnknownCoordinate, Ce: cot.UnknownCoordinate, Le: cot.UnknownCoordinate},
	}
	c.HandleClientEvent(ev)

	packets := mock.Packets()
	if len(packets) != 1 {
		t.Fatalf("expected exactly one sent packet, got %d", len(packets))
	}
	if packets[0].Port != radio.PortForwarder {
		t.Fatalf("expected forwarder port, got %d", packets[0].Port)
	}
	if packets[0].Payload[0] != 0x00 {
		t.Fatalf("expected transport-type CoT prefix byte, got %#x", packets[0].Payload[0])
	}
}

func TestHandleClientEventDropsProtocolControlEvent(t *testing.T) {
	c, mock := newTestCore(t)

	c.HandleClientEvent(&cot.Event{UID: "takControl", Type: "t-x-takp-q"})

	if len(mock.Packets()) != 0 {
		t.Fatalf("expected protocol-control event not to be forwarded, got %v", mock.Packets())
	}
}

// recordingBroadcaster captures broadcast events in place of the real
// tlsserver.Server, so OnReceive can be tested without a live TLS
// listener.
type recordingBroadcaster struct {
	events []*cot.Event
}

func (r *recordingBroadcaster) Broadcast(ev *cot.Event) {
	r.events = append(r.events, ev)
}

func TestOnReceivePluginPortPLIBroadcasts(t *testing.T) {
	c, _ := newTestCore(t)
	broadcaster := &recordingBroadcaster{}
	c.broadcaster = broadcaster

	// Build a plugin-port payload the way the mesh would deliver one, by
	// round-tripping an outbound PLI event through the bridge/marshal path.
	out, err := c.bridge.ToCompactPLI(samplePLIEvent())
	if err != nil {
		t.Fatalf("ToCompactPLI: %v", err)
	}
	wire, err := out.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	c.OnReceive(context.Background(), 0x1, 0, radio.PortPlugin, wire)

	if len(broadcaster.events) != 1 {
		t.Fatalf("expected one broadcast event, got %d", len(broadcaster.events))
	}
	if broadcaster.events[0].Contact == nil || broadcaster.events[0].Contact.Callsign != "ALPHA" {
		t.Fatalf("unexpected broadcast event: %+v", broadcaster.events[0])
	}
}

func TestOnReceivePluginPortIgnoresDuplicatePrefix(t *testing.T) {
	c, _ := newTestCore(t)
	broadcaster := &recordingBroadcaster{}
	c.broadcaster = broadcaster

	c.OnReceive(context.Background(), 0x1, 0, radio.PortPlugin, []byte{0x08, 0x01, 0xFF, 0xFF})

	if len(broadcaster.events) != 0 {
		t.Fatalf("expected duplicate-prefixed packet to be dropped, got %v", broadcaster.events)
	}
}

func TestOnReceivePluginPortInterceptsReadReceipt(t *testing.T) {
	c, _ := newTestCore(t)
	broadcaster := &recordingBroadcaster{}
	c.broadcaster = broadcaster

	rec, err := c.bridge.ToCompactChat(&cot.Event{
		UID:     "GeoChat.SENDER.All Chat Rooms.msg1",
		Type:    "b-t-f",
		Contact: &cot.Contact{Callsign: "ALPHA"},
		Chat:    &cot.Chat{Message: "ACK:D:msg1", Chatroom: cot.AllChatRooms},
	})
	if err != nil {
		t.Fatalf("ToCompactChat: %v", err)
	}
	wire, err := rec.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	c.OnReceive(context.Background(), 0x1, 0, radio.PortPlugin, wire)

	if len(broadcaster.events) != 0 {
		t.Fatalf("expected read receipt to be intercepted, not broadcast, got %v", broadcaster.events)
	}
}

func TestOnReceiveUnknownPortIsDropped(t *testing.T) {
	c, _ := newTestCore(t)
	broadcaster := &recordingBroadcaster{}
	c.broadcaster = broadcaster

	c.OnReceive(context.Background(), 0x1, 0, radio.Port(99), []byte{0x01})

	if len(broadcaster.events) != 0 {
		t.Fatalf("expected unknown-port packet to be dropped, got %v", broadcaster.events)
	}
}
