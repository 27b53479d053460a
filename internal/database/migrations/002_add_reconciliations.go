package migrations

import (
	"github.com/ksred/dca-api/internal/executor"
	"gorm.io/gorm"
)

func AddReconciliations(db *gorm.DB) error {
	return db.AutoMigrate(&executor.Reconciliation{})
}
