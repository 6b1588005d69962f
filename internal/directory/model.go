// Package directory provides optional sqlite-backed persistence for the
// bridge's callsign↔device-uid directory.
package directory

import "time"

// Entry is the persisted row for one callsign↔device-uid mapping.
type Entry struct {
	Callsign  string `gorm:"primaryKey;size:64"`
	DeviceUID string `gorm:"size:128;index"`
	UpdatedAt time.Time
}

// TableName pins the table name regardless of GORM's pluralization
// convention.
func (Entry) TableName() string {
	return "directory_entries"
}
