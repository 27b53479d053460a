package database

import (
	"fmt"
	"strings"

	"github.com/ksred/dca-api/internal/database/migrations"
	"github.com/ksred/dca-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection.
// A busy timeout is appended so concurrent relayer ticks queue on sqlite's
// write lock instead of failing with SQLITE_BUSY.
func NewDatabase(path string) (*gorm.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddLedgerTables(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddReconciliations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	if err := db.AutoMigrate(&types.Strategy{}); err != nil {
		return nil, err
	}

	return db, nil
}
