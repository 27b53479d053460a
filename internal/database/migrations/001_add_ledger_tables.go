package migrations

import (
	"github.com/ksred/dca-api/internal/ledger"
	"gorm.io/gorm"
)

func AddLedgerTables(db *gorm.DB) error {
	if err := db.AutoMigrate(&ledger.Balance{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&ledger.Escrow{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&ledger.SwapCommit{}); err != nil {
		return err
	}

	return nil
}
