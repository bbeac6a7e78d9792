package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nodetick/mail-gateway/pkg/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store records signups that reached the mailing-list provider
type Store struct {
	db     *gorm.DB
	dbType string // "postgres" or "sqlite"
}

// New opens the signup log. A postgres:// or postgresql:// DSN selects
// PostgreSQL, anything else is treated as a SQLite file path.
func New(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	var gormDB *gorm.DB
	var dbType string
	var err error

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	if IsPostgresDSN(dsn) {
		gormDB, err = gorm.Open(postgres.Open(dsn), gormConfig)
		dbType = "postgres"
	} else {
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		gormDB, err = gorm.Open(sqlite.Open(dsn), gormConfig)
		dbType = "sqlite"
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: gormDB, dbType: dbType}

	if err := store.db.AutoMigrate(&types.Signup{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database schema: %w", err)
	}

	return store, nil
}

func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Type returns "postgres" or "sqlite"
func (d *Store) Type() string {
	return d.dbType
}

// RecordSignup stores a signup, assigning an ID if it has none
func (d *Store) RecordSignup(signup *types.Signup) error {
	if signup.ID == "" {
		signup.ID = uuid.NewString()
	}
	return d.db.Create(signup).Error
}

// ListSignups returns the signups for email, newest first
func (d *Store) ListSignups(email string) ([]types.Signup, error) {
	var signups []types.Signup
	err := d.db.Where("email = ?", email).Order("created_at DESC").Find(&signups).Error
	if err != nil {
		return nil, err
	}
	return signups, nil
}

// CountSignups counts signups with the given status
func (d *Store) CountSignups(status string) (int64, error) {
	var count int64
	err := d.db.Model(&types.Signup{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func (d *Store) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
