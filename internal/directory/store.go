package directory

import (
	"log"

	"github.com/atakgw/meshtak/internal/bridge"
)

// Store adapts a Repository to the bridge's in-memory Directory,
// providing load-at-startup and write-through persistence. This is the
// optional persistence backend referenced in the bridge's directory
// entry; the bridge works perfectly well without one (purely in-memory,
// process-lifetime directory).
type Store struct {
	repo   *Repository
	logger *log.Logger
}

// NewStore constructs a Store over repo.
func NewStore(repo *Repository, lg *log.Logger) *Store {
	if lg == nil {
		lg = log.Default()
	}
	return &Store{repo: repo, logger: lg}
}

// LoadInto seeds d with every persisted entry. Call once at startup,
// before wiring the write-through hook.
func (s *Store) LoadInto(d *bridge.Directory) error {
	entries, err := s.repo.All()
	if err != nil {
		return err
	}
	for _, e := range entries {
		d.Seed(e.Callsign, e.DeviceUID)
	}
	s.logger.Printf("[directory] seeded %d entries from persisted store", len(entries))
	return nil
}

// Wire installs a write-through persist hook on d: every subsequent Put
// is upserted into the backing store. Persistence failures are logged
// and otherwise ignored — a write failure here must never fail the
// in-memory directory update it shadows.
func (s *Store) Wire(d *bridge.Directory) {
	d.SetPersistHook(func(callsign, uid string) {
		if err := s.repo.Upsert(callsign, uid); err != nil {
			s.logger.Printf("[directory] persist failed for %q: %v", callsign, err)
		}
	})
}
