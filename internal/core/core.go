// Package core wires every collaborator — the bridge, the certificate
// store, the fountain transport, the TLS server — into a single
// explicit value threaded through the entrypoint rather than scattered
// across package-level state.
package core

import (
	"context"
	"fmt"
	"log"

	"github.com/atakgw/meshtak/internal/bridge"
	"github.com/atakgw/meshtak/internal/certstore"
	"github.com/atakgw/meshtak/internal/compactbinary"
	"github.com/atakgw/meshtak/internal/config"
	"github.com/atakgw/meshtak/internal/cot"
	"github.com/atakgw/meshtak/internal/directory"
	"github.com/atakgw/meshtak/internal/radio"
	"github.com/atakgw/meshtak/internal/tlsserver"
	"github.com/atakgw/meshtak/internal/transport"
)

// Core owns every long-lived collaborator for one running gateway
// instance. Unit tests construct an isolated Core directly rather than
// reaching through package-level state.
type Core struct {
	cfg    *config.Config
	logger *log.Logger

	radioDriver radio.Driver

	bridge      *bridge.Bridge
	certs       *certstore.Store
	directoryDB *directory.DB
	server      *tlsserver.Server
	transport   *transport.Transport

	// broadcaster is where inbound plugin-port events get delivered to
	// connected TAK clients. It is c.server under normal operation; tests
	// substitute a recording stand-in so OnReceive can be exercised
	// without a live TLS listener.
	broadcaster transport.Broadcaster
}

// Options gathers the collaborators that must be supplied from outside
// (the radio driver, the certificate keyring) alongside the loaded
// config.
type Options struct {
	Config      *config.Config
	RadioDriver radio.Driver
	KeyStore    certstore.KeyStore
	Logger      *log.Logger
}

// New constructs a fully wired Core. If cfg.GetDirectoryEnabled() is
// true, it opens the sqlite-backed directory store and seeds the
// bridge's in-memory directory from it before wiring the write-through
// persist hook.
func New(opts Options) (*Core, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	br := bridge.New(opts.Logger)
	br.SetDefaultChatroom(opts.Config.GetBridgeDefaultChatroom())
	br.SetAckDebounce(opts.Config.GetBridgeAckDebounce())

	var directoryDB *directory.DB
	if opts.Config.GetDirectoryEnabled() {
		dirCfg := directory.Config{
			Path:      opts.Config.GetDirectoryPath(),
			CacheSize: opts.Config.GetDirectoryCacheSize(),
		}
		db, err := directory.Open(dirCfg, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("core: opening directory store: %w", err)
		}
		repo := directory.NewRepository(db)
		store := directory.NewStore(repo, opts.Logger)
		if err := store.LoadInto(br.Directory()); err != nil {
			db.Close()
			return nil, fmt.Errorf("core: seeding directory: %w", err)
		}
		store.Wire(br.Directory())
		directoryDB = db
	}

	certs := certstore.New(opts.KeyStore)

	c := &Core{
		cfg:         opts.Config,
		logger:      opts.Logger,
		radioDriver: opts.RadioDriver,
		bridge:      br,
		certs:       certs,
		directoryDB: directoryDB,
	}

	c.server = tlsserver.New(certs, c, opts.Logger)
	c.broadcaster = c.server
	c.transport = transport.New(opts.RadioDriver, c.server, opts.Config.GetRadioNodeID(), opts.Logger)

	return c, nil
}

// Close releases any resources Core owns that require explicit cleanup
// (currently just the directory database, if one was opened).
func (c *Core) Close() error {
	if c.directoryDB != nil {
		return c.directoryDB.Close()
	}
	return nil
}

// Server exposes the TLS server for callers that need it directly (the
// onboarding data-package export reads certificates through c.certs
// instead, so this is mostly useful for tests).
func (c *Core) Server() *tlsserver.Server {
	return c.server
}

// Run starts the TLS listener and blocks until ctx is cancelled.
// Inbound radio packets are never polled here: whatever delivers them
// calls OnReceive (Core satisfies radio.Dispatcher). Run does not
// register Core with the driver itself.
func (c *Core) Run(ctx context.Context) error {
	if !c.cfg.GetTLSEnabled() {
		c.logger.Printf("core: tls server disabled by configuration, running radio bridge only")
		<-ctx.Done()
		return nil
	}
	return c.server.Run(ctx)
}

// HandleClientEvent implements tlsserver.EventHandler: every CoT event a
// connected TAK client sends (after the server's own protocol-control
// filtering) is routed to the radio here.
func (c *Core) HandleClientEvent(ev *cot.Event) {
	if err := c.sendToRadio(context.Background(), ev); err != nil {
		c.logger.Printf("core: failed to forward client event to radio: %v", err)
	}
}

// sendToRadio classifies ev via bridge.ClassifyOutbound and dispatches
// it on the matching radio port: PLI and chat go out as compact-binary
// records on the plugin port, everything else through the forwarder-
// port transport, honoring whichever direct/fountain split the
// classifier already decided.
func (c *Core) sendToRadio(ctx context.Context, ev *cot.Event) error {
	if !bridge.ShouldForwardToRadio(ev) {
		return nil
	}

	out, err := c.bridge.ClassifyOutbound(ev)
	if err != nil {
		return fmt.Errorf("core: classifying outbound event: %w", err)
	}

	channel := c.cfg.GetRadioChannel()

	switch out.Kind {
	case bridge.OutboundCompactPLI, bridge.OutboundCompactChat:
		return c.sendCompact(ctx, out.Compact, channel)
	default:
		return c.transport.SendOutbound(ctx, out, radio.BroadcastNode, channel)
	}
}

func (c *Core) sendCompact(ctx context.Context, rec *compactbinary.Record, channel uint8) error {
	wire, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("core: marshaling compact-binary record: %w", err)
	}
	return c.radioDriver.Send(ctx, radio.BroadcastNode, c.cfg.GetRadioNodeID(), channel, radio.PortPlugin, wire)
}

// duplicateCompressedPrefix is the two-byte sentinel on the plugin port
// that marks a duplicate-compressed copy of a record already delivered;
// it is always silently ignored.
var duplicateCompressedPrefix = [2]byte{0x08, 0x01}

// OnReceive implements radio.Dispatcher: every inbound packet from the
// radio driver, demultiplexed by port.
func (c *Core) OnReceive(ctx context.Context, from uint32, channel uint8, port radio.Port, payload []byte) {
	switch port {
	case radio.PortPlugin:
		c.handlePluginPacket(payload)
	case radio.PortForwarder:
		c.transport.HandleForwarderPacket(ctx, from, channel, payload)
	default:
		c.logger.Printf("core: dropping packet on unknown port %d", port)
	}
}

func (c *Core) handlePluginPacket(payload []byte) {
	if len(payload) >= 2 && payload[0] == duplicateCompressedPrefix[0] && payload[1] == duplicateCompressedPrefix[1] {
		return
	}

	rec, err := compactbinary.Unmarshal(payload)
	if err != nil {
		c.logger.Printf("core: dropping malformed plugin-port packet: %v", err)
		return
	}

	var ev *cot.Event
	switch {
	case rec.PLI != nil:
		ev, err = c.bridge.FromCompactPLI(rec)
	case rec.Chat != nil:
		ev, err = c.bridge.FromCompactChat(rec)
		if err == nil && ev.Chat != nil {
			if kind, id := bridge.ClassifyReceipt(ev.Chat.Message); kind != bridge.ReceiptNone {
				c.bridge.HandleReceipt(kind, id)
				return
			}
		}
	default:
		c.logger.Printf("core: dropping plugin-port record with neither pli nor chat payload")
		return
	}
	if err != nil {
		c.logger.Printf("core: dropping unconvertible plugin-port record: %v", err)
		return
	}

	c.broadcaster.Broadcast(ev)
}
