package pool

import (
	"context"
	"fmt"
	"math"
	"time"

	"cdv-engine/internal/application/audit"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/infrastructure/database"
	"cdv-engine/internal/metrics"
	"cdv-engine/internal/pkg/retry"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	insertBatchSize  = 100
	maxRegisterBatch = 1_000_000
)

type Service struct {
	DB         *gorm.DB
	Bundle     domain.Bundle
	Metrics    *metrics.Metrics
	MaxRetries uint64
}

type RegisterResult struct {
	Category      domain.Category `json:"category"`
	Count         int             `json:"count"`
	FirstSequence int64           `json:"first_sequence"`
	LastSequence  int64           `json:"last_sequence"`
}

type CategoryStock struct {
	Category  domain.Category `json:"category"`
	Available int64           `json:"available"`
	Allocated int64           `json:"allocated"`
	PerQuota  int64           `json:"per_quota"`
}

type Stock struct {
	Categories []CategoryStock `json:"categories"`
	// Capacity is the number of complete bundles the pool can still back.
	Capacity int64 `json:"capacity"`
}

func (st *Stock) Get(c domain.Category) CategoryStock {
	for _, cs := range st.Categories {
		if cs.Category == c {
			return cs
		}
	}
	return CategoryStock{Category: c}
}

func (s *Service) bundle() domain.Bundle {
	if s.Bundle.Valid() {
		return s.Bundle
	}
	return domain.DefaultBundle
}

// RegisterUnits appends count available units of category with the next sequence
// numbers. This is the intake used by the external reconciliation process.
func (s *Service) RegisterUnits(ctx context.Context, category domain.Category, count int, sourceRef string) (*RegisterResult, error) {
	if _, err := domain.ParseCategory(string(category)); err != nil {
		return nil, err
	}
	if count <= 0 || count > maxRegisterBatch {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", domain.ErrInvalidInput, maxRegisterBatch)
	}

	var result *RegisterResult
	err := retry.Do(ctx, s.MaxRetries, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var last int64
			if err := tx.Model(&domain.ImpactUnit{}).
				Where("category = ?", category).
				Select("COALESCE(MAX(sequence), 0)").
				Scan(&last).Error; err != nil {
				return err
			}

			var ref *string
			if sourceRef != "" {
				ref = &sourceRef
			}
			units := make([]domain.ImpactUnit, count)
			for i := range units {
				units[i] = domain.ImpactUnit{
					Category:  category,
					Sequence:  last + int64(i) + 1,
					Status:    domain.UnitAvailable,
					SourceRef: ref,
				}
			}
			if err := tx.CreateInBatches(units, insertBatchSize).Error; err != nil {
				if database.IsDuplicate(err) {
					return fmt.Errorf("%w: %s sequence taken concurrently", domain.ErrConflict, category)
				}
				return err
			}

			if err := audit.Record(ctx, tx, domain.LedgerEvent{
				EventType: domain.EventUnitsRegistered,
				Quantity:  int64(count),
			}, map[string]interface{}{
				"category":       category,
				"first_sequence": last + 1,
				"last_sequence":  last + int64(count),
				"source_ref":     sourceRef,
			}); err != nil {
				return err
			}

			result = &RegisterResult{
				Category:      category,
				Count:         count,
				FirstSequence: last + 1,
				LastSequence:  last + int64(count),
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.Metrics.Registered(string(category), count)
	log.Info().Str("category", string(category)).Int("count", count).Int64("last_sequence", result.LastSequence).Msg("impact units registered")
	return result, nil
}

// Stock returns available and allocated counts per category plus bundle capacity.
func (s *Service) Stock(ctx context.Context) (*Stock, error) {
	return StockOf(s.DB.WithContext(ctx), s.bundle())
}

// Capacity is the number of quotas the current pool can fully allocate.
func (s *Service) Capacity(ctx context.Context) (int64, error) {
	st, err := s.Stock(ctx)
	if err != nil {
		return 0, err
	}
	return st.Capacity, nil
}

// PreviewAvailable lists the next units FIFO allocation would take from category.
func (s *Service) PreviewAvailable(ctx context.Context, category domain.Category, limit int) ([]domain.ImpactUnit, error) {
	if _, err := domain.ParseCategory(string(category)); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	var units []domain.ImpactUnit
	err := s.DB.WithContext(ctx).
		Where("category = ? AND status = ?", category, domain.UnitAvailable).
		Order("sequence ASC").
		Limit(limit).
		Find(&units).Error
	return units, err
}

// StockOf aggregates the pool on db, which may be a transaction.
func StockOf(db *gorm.DB, b domain.Bundle) (*Stock, error) {
	var rows []struct {
		Category domain.Category
		Status   domain.UnitStatus
		N        int64
	}
	if err := db.Model(&domain.ImpactUnit{}).
		Select("category, status, COUNT(*) AS n").
		Group("category, status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	st := &Stock{Capacity: math.MaxInt64}
	for _, c := range domain.Categories {
		cs := CategoryStock{Category: c, PerQuota: b.For(c)}
		for _, r := range rows {
			if r.Category != c {
				continue
			}
			switch r.Status {
			case domain.UnitAvailable:
				cs.Available = r.N
			case domain.UnitAllocated:
				cs.Allocated = r.N
			}
		}
		if cs.PerQuota > 0 {
			if n := cs.Available / cs.PerQuota; n < st.Capacity {
				st.Capacity = n
			}
		}
		st.Categories = append(st.Categories, cs)
	}
	if st.Capacity == math.MaxInt64 {
		st.Capacity = 0
	}
	return st, nil
}

// Shortfalls counts available units for every category of b and reports each one
// that cannot cover its requirement. Nothing is mutated.
func Shortfalls(tx *gorm.DB, b domain.Bundle) ([]domain.Shortfall, error) {
	var out []domain.Shortfall
	for _, c := range domain.Categories {
		need := b.For(c)
		var available int64
		if err := tx.Model(&domain.ImpactUnit{}).
			Where("category = ? AND status = ?", c, domain.UnitAvailable).
			Count(&available).Error; err != nil {
			return nil, err
		}
		if available < need {
			out = append(out, domain.Shortfall{Category: c, Required: need, Available: available})
		}
	}
	return out, nil
}

// Claim binds the n lowest-sequence available units of category to quotaID.
// Selection and claim run as one compare-and-swap: rows another transaction took
// first make the update short, which is reported as ErrConflict.
func Claim(tx *gorm.DB, category domain.Category, n int64, quotaID, projectID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	if n <= 0 {
		return nil, nil
	}
	sel := tx.Model(&domain.ImpactUnit{}).
		Where("category = ? AND status = ?", category, domain.UnitAvailable).
		Order("sequence ASC").
		Limit(int(n))
	if database.IsPostgres(tx) {
		sel = sel.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var ids []uuid.UUID
	if err := sel.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if int64(len(ids)) < n {
		return nil, fmt.Errorf("%w: %s units locked by another allocation", domain.ErrConflict, category)
	}

	res := tx.Model(&domain.ImpactUnit{}).
		Where("id IN ? AND status = ?", ids, domain.UnitAvailable).
		Updates(map[string]interface{}{
			"status":       domain.UnitAllocated,
			"quota_id":     quotaID,
			"project_id":   projectID,
			"allocated_at": at,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != n {
		return nil, fmt.Errorf("%w: claimed %d of %d %s units", domain.ErrConflict, res.RowsAffected, n, category)
	}
	return ids, nil
}

// UnitsOf returns the unit ids bound to the given quotas, grouped by category
// and ordered by sequence.
func UnitsOf(tx *gorm.DB, quotaIDs []uuid.UUID) (domain.UnitPartition, error) {
	var units []domain.ImpactUnit
	if err := tx.Select("id", "category", "sequence").
		Where("quota_id IN ?", quotaIDs).
		Order("category ASC, sequence ASC").
		Find(&units).Error; err != nil {
		return nil, err
	}
	out := domain.UnitPartition{}
	for _, u := range units {
		out[u.Category] = append(out[u.Category], u.ID)
	}
	return out, nil
}
