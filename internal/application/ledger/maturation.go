package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cdv-engine/internal/application/audit"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/pkg/retry"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const refreshBatchSize = 500

// DeriveMaturationStatus computes a quota's maturation status at now.
// Complete quotas are on-time regardless of date.
func DeriveMaturationStatus(q domain.Quota, now time.Time) domain.MaturationStatus {
	if q.InvestorID == nil {
		return domain.MaturationUnassigned
	}
	if q.Complete() {
		return domain.MaturationOnTime
	}
	if now.After(q.MaturationDate) {
		return domain.MaturationLate
	}
	return domain.MaturationMaturing
}

// Block returns the yearly maturation block (1-based) of quota number n in a
// project of total quotas with a term of termMonths.
func Block(n, total, termMonths int) int {
	if n < 1 || total < 1 {
		return 0
	}
	blocks := ceilDiv(termMonths, 12)
	if blocks < 1 {
		blocks = 1
	}
	perBlock := ceilDiv(total, blocks)
	return ceilDiv(n, perBlock)
}

// BlockMaturation is the maturation date of a block: start plus 12 months per
// block, capped at the project term.
func BlockMaturation(start time.Time, block, termMonths int) time.Time {
	months := 12 * block
	if months > termMonths {
		months = termMonths
	}
	return start.AddDate(0, months, 0)
}

// RedistributeMaturationDates spreads the project's quotas over yearly blocks of
// its maturation horizon. It returns how many dates changed; a second run returns 0.
// Quotas with a certificate keep their dates.
func (s *Service) RedistributeMaturationDates(ctx context.Context, projectID uuid.UUID) (int, error) {
	changed := 0
	err := retry.Do(ctx, s.MaxRetries, func() error {
		changed = 0
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var p domain.Project
			if err := tx.Where("id = ?", projectID).First(&p).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: project", domain.ErrNotFound)
				}
				return err
			}
			var quotas []domain.Quota
			if err := tx.Select("id", "number", "maturation_date", "status", "certificate_id").
				Where("project_id = ?", projectID).
				Order("number ASC").
				Find(&quotas).Error; err != nil {
				return err
			}
			for _, q := range quotas {
				if q.Frozen() {
					continue
				}
				want := BlockMaturation(p.StartDate, Block(q.Number, len(quotas), p.MaturationMonths), p.MaturationMonths)
				if q.MaturationDate.Equal(want) {
					continue
				}
				if err := tx.Model(&domain.Quota{}).Where("id = ?", q.ID).Update("maturation_date", want).Error; err != nil {
					return err
				}
				changed++
			}
			if changed == 0 {
				return nil
			}
			pid := p.ID
			return audit.Record(ctx, tx, domain.LedgerEvent{
				EventType: domain.EventMaturationRescheduled,
				ProjectID: &pid,
				Quantity:  int64(changed),
			}, map[string]interface{}{"term_months": p.MaturationMonths, "quotas": len(quotas)})
		})
	})
	if err != nil {
		return 0, err
	}
	log.Info().Str("project_id", projectID.String()).Int("changed", changed).Msg("maturation dates redistributed")
	return changed, nil
}

// RefreshMaturationStatuses persists DeriveMaturationStatus for every quota
// without a certificate and returns how many statuses changed.
func (s *Service) RefreshMaturationStatuses(ctx context.Context, now time.Time) (int, error) {
	changed := 0
	err := retry.Do(ctx, s.MaxRetries, func() error {
		changed = 0
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var batch []domain.Quota
			res := tx.Where("certificate_id IS NULL AND status <> ?", domain.QuotaCertificateIssued).
				FindInBatches(&batch, refreshBatchSize, func(btx *gorm.DB, _ int) error {
					for _, q := range batch {
						want := DeriveMaturationStatus(q, now)
						if want == q.MaturationStatus {
							continue
						}
						if err := tx.Model(&domain.Quota{}).
							Where("id = ? AND status <> ?", q.ID, domain.QuotaCertificateIssued).
							Update("maturation_status", want).Error; err != nil {
							return err
						}
						changed++
					}
					return nil
				})
			if res.Error != nil {
				return res.Error
			}
			if changed == 0 {
				return nil
			}
			return audit.Record(ctx, tx, domain.LedgerEvent{
				EventType: domain.EventMaturationRefreshed,
				Quantity:  int64(changed),
			}, map[string]interface{}{"at": now})
		})
	})
	if err != nil {
		return 0, err
	}
	log.Info().Int("changed", changed).Msg("maturation statuses refreshed")
	return changed, nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
