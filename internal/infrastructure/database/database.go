package database

import (
	"errors"
	"strings"

	"cdv-engine/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB from DSN (Supabase/Postgres pooler URL).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") when using connection poolers (e.g. PgBouncer, Supabase).
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{TranslateError: true})
}

// OpenSQLite opens an embedded database (local runs and tests). A single
// connection keeps ":memory:" databases shared and serializes writers.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// OpenURL picks the driver from the URL: "sqlite:<path>" opens an embedded
// database, anything else is treated as a postgres DSN.
func OpenURL(url string) (*gorm.DB, error) {
	if strings.HasPrefix(url, "sqlite:") {
		return OpenSQLite(strings.TrimPrefix(url, "sqlite:"))
	}
	return Open(url)
}

// Models lists every table owned by the engine, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&domain.Project{},
		&domain.Investor{},
		&domain.Quota{},
		&domain.ImpactUnit{},
		&domain.Certificate{},
		&domain.CertificateCounter{},
		&domain.LedgerEvent{},
	}
}

// AutoMigrate creates or updates the CDV tables and indexes.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// IsPostgres reports whether row locks (FOR UPDATE SKIP LOCKED) are available.
func IsPostgres(db *gorm.DB) bool {
	return db != nil && db.Dialector != nil && db.Dialector.Name() == "postgres"
}

// IsDuplicate reports a unique-constraint violation from postgres or sqlite.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
