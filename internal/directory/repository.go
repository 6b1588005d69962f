package directory

import (
	"time"

	"gorm.io/gorm"
)

// Repository provides persistence operations for directory entries.
type Repository struct {
	db *gorm.DB
}

// NewRepository wraps db's GORM handle.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db.GetDB()}
}

// Upsert writes one callsign↔device-uid mapping, overwriting any
// existing row for that callsign.
func (r *Repository) Upsert(callsign, deviceUID string) error {
	entry := Entry{Callsign: callsign, DeviceUID: deviceUID, UpdatedAt: time.Now()}
	return r.db.Save(&entry).Error
}

// GetByCallsign looks up a single entry.
func (r *Repository) GetByCallsign(callsign string) (*Entry, error) {
	var entry Entry
	if err := r.db.Where("callsign = ?", callsign).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// All returns every persisted entry, used to seed the in-memory
// directory at startup.
func (r *Repository) All() ([]Entry, error) {
	var entries []Entry
	if err := r.db.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of persisted entries.
func (r *Repository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&Entry{}).Count(&count).Error
	return count, err
}
