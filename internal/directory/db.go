package directory

import (
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// DefaultCacheSize is used when Config.CacheSize is left at zero.
const DefaultCacheSize = 1000

// Config holds sqlite database configuration.
type Config struct {
	Path string // Path to the sqlite database file; ":memory:" for tests.

	// CacheSize feeds the sqlite page-cache PRAGMA; this directory is
	// small and single-writer (per the coordinator-only mutation rule),
	// so the default favors a bigger cache over WAL-concurrency tuning.
	CacheSize uint32
}

// DB wraps the GORM database instance, using the pure-Go modernc.org/
// sqlite driver so the binary stays CGO-free.
type DB struct {
	db *gorm.DB
}

// Open creates the directory database and auto-migrates the Entry
// schema. lg defaults to log.Default() when nil, matching Store's own
// nil-logger convention.
func Open(config Config, lg *log.Logger) (*DB, error) {
	if lg == nil {
		lg = log.Default()
	}

	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        config.Path,
	}
	gormLog := logger.New(lg, logger.Config{
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("directory: opening sqlite at %s: %w", config.Path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	cacheSize := config.CacheSize
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}

	// A single coordinator goroutine owns every write (spec's shared-
	// resource policy), so this never contends with itself; WAL still
	// buys safe concurrent reads from whatever inspects the file on disk.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=memory",
		fmt.Sprintf("PRAGMA cache_size=%d", cacheSize),
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return nil, fmt.Errorf("directory: applying %q: %w", pragma, err)
		}
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}

	lg.Printf("[directory] database initialized: %s (cache_size=%d)", config.Path, cacheSize)

	return &DB{db: db}, nil
}

// GetDB returns the underlying GORM database instance.
func (db *DB) GetDB() *gorm.DB {
	return db.db
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
