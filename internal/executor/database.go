package executor

import (
	"fmt"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateReconciliation persists a reconciliation record.
func (d *Database) CreateReconciliation(rec *Reconciliation) error {
	if err := d.db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create reconciliation record: %w", err)
	}
	return nil
}

// ListUnresolved returns all reconciliation records awaiting operator
// action, oldest first.
func (d *Database) ListUnresolved() ([]Reconciliation, error) {
	var recs []Reconciliation
	if err := d.db.Where("resolved = ?", false).
		Order("created_at ASC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list reconciliations: %w", err)
	}
	return recs, nil
}

// Resolve marks a reconciliation record as handled.
func (d *Database) Resolve(reconciliationID string) error {
	res := d.db.Model(&Reconciliation{}).
		Where("reconciliation_id = ?", reconciliationID).
		Update("resolved", true)
	if res.Error != nil {
		return fmt.Errorf("failed to resolve reconciliation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("reconciliation %s not found", reconciliationID)
	}
	return nil
}
