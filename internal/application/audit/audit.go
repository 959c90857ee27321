package audit

import (
	"context"
	"encoding/json"

	"cdv-engine/internal/domain"
	"cdv-engine/internal/pkg/actor"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Record writes a ledger event inside tx, stamped with the caller from ctx.
func Record(ctx context.Context, tx *gorm.DB, e domain.LedgerEvent, detail map[string]interface{}) error {
	e.Actor = actor.From(ctx)
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return err
		}
		e.Detail = datatypes.JSON(b)
	} else {
		e.Detail = datatypes.JSON("{}")
	}
	return tx.Create(&e).Error
}

// Events lists ledger events for a project, newest first.
func Events(ctx context.Context, db *gorm.DB, projectID string, limit int) ([]domain.LedgerEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []domain.LedgerEvent
	q := db.WithContext(ctx).Order(`"createdAt" DESC`).Limit(limit)
	if projectID != "" {
		q = q.Where("project_id = ?", projectID)
	}
	err := q.Find(&out).Error
	return out, err
}
