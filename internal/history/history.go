package history

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OperationRecord is one side-effecting action applied to one device:
// install, uninstall, push, delete or mkdir. The log is append-only.
type OperationRecord struct {
	ID        uint   `gorm:"primarykey"`
	DeviceID  string `gorm:"index;not null"`
	Action    string `gorm:"not null"`
	Item      string `gorm:"not null"` // apk path, package id or relative file path
	Outcome   string `gorm:"not null"`
	Detail    string
	Digest    string // xxhash of the local file, for push/install actions
	CreatedAt time.Time
}

// Log is the sqlite-backed operation history. A nil *Log is valid and
// discards appends, so components can run without history wiring in tests.
type Log struct {
	db *gorm.DB
}

func Open(dbPath string) (*Log, error) {
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
	if err := db.AutoMigrate(&OperationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}
	return &Log{db: db}, nil
}

func (l *Log) Append(rec OperationRecord) error {
	if l == nil {
		return nil
	}
	if err := l.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to append history record: %v", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (l *Log) Recent(limit int) ([]OperationRecord, error) {
	if l == nil {
		return nil, nil
	}
	var records []OperationRecord
	err := l.db.Order("created_at desc, id desc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %v", err)
	}
	return records, nil
}

// FileDigest calculates the xxHash of a local file for the history log.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
