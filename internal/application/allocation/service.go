package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cdv-engine/internal/application/audit"
	"cdv-engine/internal/application/pool"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/metrics"
	"cdv-engine/internal/pkg/retry"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service moves impact units from the pool into quotas, one full bundle per quota.
type Service struct {
	DB         *gorm.DB
	Metrics    *metrics.Metrics
	MaxRetries uint64
}

type Result struct {
	QuotaID          uuid.UUID            `json:"quota_id"`
	ProjectID        uuid.UUID            `json:"project_id"`
	Number           int                  `json:"number"`
	Status           domain.QuotaStatus   `json:"status"`
	AlreadyAllocated bool                 `json:"already_allocated"`
	Units            domain.UnitPartition `json:"units,omitempty"`
}

type BatchResult struct {
	Allocated []int `json:"allocated"`
	// Shortfall is set when the batch stopped because the pool ran dry.
	Shortfall *domain.InsufficientInventoryError `json:"-"`
	Remaining int                                `json:"remaining"`
}

// Shortfalls exposes the stopping shortfall for JSON responses.
func (b *BatchResult) Shortfalls() []domain.Shortfall {
	if b.Shortfall == nil {
		return nil
	}
	return b.Shortfall.Shortfalls
}

// need is what a quota still lacks per category.
func need(q *domain.Quota) domain.Bundle {
	gap := func(c domain.Category) int64 {
		if d := q.Target(c) - q.Reconciled(c); d > 0 {
			return d
		}
		return 0
	}
	return domain.Bundle{
		Waste:     gap(domain.CategoryWaste),
		Education: gap(domain.CategoryEducation),
		Products:  gap(domain.CategoryProduct),
	}
}

// AllocateToQuota claims the quota's bundle from the pool, oldest units first.
// Every category is checked before anything is claimed, so a shortfall in one
// never consumes another. A quota that is already ready is left untouched.
// projectID may be uuid.Nil to skip the ownership check.
func (s *Service) AllocateToQuota(ctx context.Context, quotaID, projectID uuid.UUID) (*Result, error) {
	start := time.Now()
	defer s.Metrics.ObserveAllocate(start)

	var result *Result
	err := retry.Do(ctx, s.MaxRetries, func() error {
		result = nil
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var q domain.Quota
			if err := tx.Where("id = ?", quotaID).First(&q).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: quota", domain.ErrNotFound)
				}
				return err
			}
			if projectID != uuid.Nil && q.ProjectID != projectID {
				return fmt.Errorf("%w: quota %d is not in project", domain.ErrNotFound, q.Number)
			}
			if q.Frozen() {
				return domain.ErrQuotaFrozen
			}
			if q.Status == domain.QuotaReady {
				result = &Result{QuotaID: q.ID, ProjectID: q.ProjectID, Number: q.Number, Status: q.Status, AlreadyAllocated: true}
				return nil
			}

			want := need(&q)
			short, err := pool.Shortfalls(tx, want)
			if err != nil {
				return err
			}
			if len(short) > 0 {
				return &domain.InsufficientInventoryError{Shortfalls: short}
			}

			now := time.Now().UTC()
			units := domain.UnitPartition{}
			for _, c := range domain.Categories {
				ids, err := pool.Claim(tx, c, want.For(c), q.ID, q.ProjectID, now)
				if err != nil {
					return err
				}
				if len(ids) > 0 {
					units[c] = ids
				}
			}

			res := tx.Model(&domain.Quota{}).
				Where("id = ? AND status = ?", q.ID, domain.QuotaGenerating).
				Updates(map[string]interface{}{
					"reconciled_waste_kg":      q.TargetWasteKg,
					"reconciled_education_min": q.TargetEducationMin,
					"reconciled_products":      q.TargetProducts,
					"status":                   domain.QuotaReady,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return fmt.Errorf("%w: quota %d changed during allocation", domain.ErrConflict, q.Number)
			}

			qid, pid := q.ID, q.ProjectID
			if err := audit.Record(ctx, tx, domain.LedgerEvent{
				EventType:  domain.EventQuotaAllocated,
				ProjectID:  &pid,
				QuotaID:    &qid,
				InvestorID: q.InvestorID,
				Quantity:   want.Total(),
			}, map[string]interface{}{
				"number":    q.Number,
				"waste":     want.Waste,
				"education": want.Education,
				"products":  want.Products,
			}); err != nil {
				return err
			}
			result = &Result{QuotaID: q.ID, ProjectID: q.ProjectID, Number: q.Number, Status: domain.QuotaReady, Units: units}
			return nil
		})
	})

	var short *domain.InsufficientInventoryError
	switch {
	case errors.As(err, &short):
		s.Metrics.Allocation("insufficient")
		for _, sf := range short.Shortfalls {
			s.Metrics.Shortfall(string(sf.Category))
		}
		log.Warn().Str("quota_id", quotaID.String()).Interface("shortfalls", short.Shortfalls).Msg("allocation rejected: insufficient inventory")
		return nil, err
	case err != nil:
		s.Metrics.Allocation("error")
		return nil, err
	case result.AlreadyAllocated:
		s.Metrics.Allocation("already_allocated")
	default:
		s.Metrics.Allocation("allocated")
		log.Info().Str("quota_id", quotaID.String()).Int("number", result.Number).Msg("quota allocated")
	}
	return result, nil
}

// AllocateProject allocates the project's generating quotas in ascending number
// order until limit quotas are done (0 = no limit) or the pool runs short.
func (s *Service) AllocateProject(ctx context.Context, projectID uuid.UUID, limit int) (*BatchResult, error) {
	var exists int64
	if err := s.DB.WithContext(ctx).Model(&domain.Project{}).Where("id = ?", projectID).Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: project", domain.ErrNotFound)
	}

	var pending []domain.Quota
	q := s.DB.WithContext(ctx).Select("id", "number").
		Where("project_id = ? AND status = ?", projectID, domain.QuotaGenerating).
		Order("number ASC")
	if err := q.Find(&pending).Error; err != nil {
		return nil, err
	}

	out := &BatchResult{Allocated: []int{}}
	for i, p := range pending {
		if limit > 0 && len(out.Allocated) >= limit {
			out.Remaining = len(pending) - i
			return out, nil
		}
		res, err := s.AllocateToQuota(ctx, p.ID, projectID)
		if err != nil {
			var short *domain.InsufficientInventoryError
			if errors.As(err, &short) {
				out.Shortfall = short
				out.Remaining = len(pending) - i
				return out, nil
			}
			if errors.Is(err, domain.ErrQuotaFrozen) {
				continue
			}
			return out, err
		}
		if !res.AlreadyAllocated {
			out.Allocated = append(out.Allocated, res.Number)
		}
	}
	return out, nil
}
