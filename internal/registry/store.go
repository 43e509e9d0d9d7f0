package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DeviceRecord is the persisted identity of a fleet device. Identity is the
// hardware id; the nickname is cosmetic and not unique.
type DeviceRecord struct {
	DeviceID  string `gorm:"primarykey"`
	Nickname  string `gorm:"not null"`
	LastSeen  string `gorm:"not null"` // ISO date, YYYY-MM-DD
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the registry's backing store. The sqlite implementation rewrites
// the full record set on every mutation; device counts are small, so write
// amplification is acceptable and partial writes never happen.
type Store interface {
	LoadAll() ([]DeviceRecord, error)
	SaveAll(records []DeviceRecord) error
}

type sqliteStore struct {
	db *gorm.DB
}

// OpenStore opens (or creates) the sqlite registry store.
func OpenStore(dbPath string) (Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %v", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&DeviceRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) LoadAll() ([]DeviceRecord, error) {
	var records []DeviceRecord
	if err := s.db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load device records: %v", err)
	}
	return records, nil
}

func (s *sqliteStore) SaveAll(records []DeviceRecord) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Delete(&DeviceRecord{}, "1 = 1").Error; err != nil {
			return fmt.Errorf("failed to clear device records: %v", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to write device records: %v", err)
		}
		return nil
	})
}
