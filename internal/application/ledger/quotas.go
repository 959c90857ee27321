package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"cdv-engine/internal/application/audit"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/pkg/retry"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const quotaInsertBatch = 100

// AssignmentResult is returned by AssignInvestor.
type AssignmentResult struct {
	Quota           domain.Quota `json:"quota"`
	FirstAssignment bool         `json:"first_assignment"`
}

// RangeRequest asks for every free quota numbered between Start and End (either order).
type RangeRequest struct {
	ProjectID  uuid.UUID
	InvestorID uuid.UUID
	Start      int
	End        int
	TermMonths int
	// Strict fails the whole request when any quota in range is taken.
	Strict bool
}

// BulkAssignmentResult is returned by AssignRange.
type BulkAssignmentResult struct {
	Assigned        int   `json:"assigned"`
	Skipped         int   `json:"skipped"`
	Numbers         []int `json:"numbers"`
	FirstAssignment bool  `json:"first_assignment"`
}

// QuotaView is a quota with its live progress and derived maturation status.
type QuotaView struct {
	domain.Quota
	Progress                float64                 `json:"progress"`
	DerivedMaturationStatus domain.MaturationStatus `json:"derived_maturation_status"`
	Block                   int                     `json:"block"`
}

// BuildQuotas computes the quotas of a project without persisting them:
// floor(totalValue/unitPrice) quotas numbered 1..n, each carrying bundle as target.
func BuildQuotas(projectID uuid.UUID, totalValue, unitPrice float64, termMonths int, startDate time.Time, b domain.Bundle, co2PerQuota int64) ([]domain.Quota, error) {
	if totalValue <= 0 || unitPrice <= 0 {
		return nil, fmt.Errorf("%w: total value and unit price must be positive", domain.ErrInvalidInput)
	}
	if termMonths <= 0 {
		return nil, fmt.Errorf("%w: maturation term must be positive", domain.ErrInvalidInput)
	}
	if !b.Valid() {
		return nil, fmt.Errorf("%w: bundle must be positive", domain.ErrInvalidInput)
	}
	count := int(math.Floor(totalValue/unitPrice + 1e-9))
	maturation := startDate.AddDate(0, termMonths, 0)

	quotas := make([]domain.Quota, count)
	for i := range quotas {
		n := i + 1
		quotas[i] = domain.Quota{
			ID:                 uuid.New(),
			ProjectID:          projectID,
			Number:             n,
			Code:               domain.QuotaCode(projectID, n),
			PaidValue:          unitPrice,
			PurchaseDate:       startDate,
			MaturationDate:     maturation,
			TargetWasteKg:      b.Waste,
			TargetEducationMin: b.Education,
			TargetProducts:     b.Products,
			TargetCO2Kg:        co2PerQuota,
			Status:             domain.QuotaGenerating,
			MaturationStatus:   domain.MaturationUnassigned,
		}
	}
	return quotas, nil
}

// GenerateQuotas creates the full quota set of a project inside tx. It runs once
// per project; a second call fails with ErrQuotasAlreadyGenerated.
func (s *Service) GenerateQuotas(tx *gorm.DB, projectID uuid.UUID, totalValue, unitPrice float64, termMonths int, startDate time.Time) ([]domain.Quota, error) {
	quotas, err := BuildQuotas(projectID, totalValue, unitPrice, termMonths, startDate, s.bundle(), s.CO2PerQuotaKg)
	if err != nil {
		return nil, err
	}
	var existing int64
	if err := tx.Model(&domain.Quota{}).Where("project_id = ?", projectID).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, domain.ErrQuotasAlreadyGenerated
	}
	if len(quotas) == 0 {
		return quotas, nil
	}
	if err := tx.CreateInBatches(quotas, quotaInsertBatch).Error; err != nil {
		return nil, err
	}
	return quotas, nil
}

// AssignInvestor binds one free quota to an investor. The free check and the write
// are a single conditional update. A non-positive term falls back to the project's.
func (s *Service) AssignInvestor(ctx context.Context, quotaID, investorID uuid.UUID, termMonths int) (*AssignmentResult, error) {
	var result *AssignmentResult
	err := retry.Do(ctx, s.MaxRetries, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := investorExists(tx, investorID); err != nil {
				return err
			}
			var q domain.Quota
			if err := tx.Where("id = ?", quotaID).First(&q).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: quota", domain.ErrNotFound)
				}
				return err
			}
			term, err := resolveTerm(tx, q.ProjectID, termMonths)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			res := tx.Model(&domain.Quota{}).
				Where("id = ? AND investor_id IS NULL AND certificate_id IS NULL AND status <> ?", quotaID, domain.QuotaCertificateIssued).
				Updates(map[string]interface{}{
					"investor_id":       investorID,
					"assigned_at":       now,
					"maturation_date":   now.AddDate(0, term, 0),
					"maturation_status": domain.MaturationOnTime,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				var cur domain.Quota
				if err := tx.Where("id = ?", quotaID).First(&cur).Error; err != nil {
					return err
				}
				if cur.Frozen() {
					return domain.ErrQuotaFrozen
				}
				return domain.ErrAlreadyAssigned
			}

			first, err := markInvited(tx, investorID, now)
			if err != nil {
				return err
			}
			if err := tx.Where("id = ?", quotaID).First(&q).Error; err != nil {
				return err
			}
			pid, qid, iid := q.ProjectID, q.ID, investorID
			if err := audit.Record(ctx, tx, domain.LedgerEvent{
				EventType:  domain.EventQuotaAssigned,
				ProjectID:  &pid,
				QuotaID:    &qid,
				InvestorID: &iid,
				Quantity:   1,
			}, map[string]interface{}{"number": q.Number, "term_months": term, "first_assignment": first}); err != nil {
				return err
			}
			result = &AssignmentResult{Quota: q, FirstAssignment: first}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.Metrics.Assigned("single", 1)
	return result, nil
}

// AssignRange assigns every free quota numbered within the request's bounds.
// Quotas already taken are skipped unless Strict is set.
func (s *Service) AssignRange(ctx context.Context, req RangeRequest) (*BulkAssignmentResult, error) {
	lo, hi, err := NormalizeRange(req.Start, req.End)
	if err != nil {
		return nil, err
	}

	var result *BulkAssignmentResult
	err = retry.Do(ctx, s.MaxRetries, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := investorExists(tx, req.InvestorID); err != nil {
				return err
			}
			term, err := resolveTerm(tx, req.ProjectID, req.TermMonths)
			if err != nil {
				return err
			}

			var total int64
			if err := tx.Model(&domain.Quota{}).
				Where("project_id = ? AND number BETWEEN ? AND ?", req.ProjectID, lo, hi).
				Count(&total).Error; err != nil {
				return err
			}

			var ids []uuid.UUID
			if err := tx.Model(&domain.Quota{}).
				Where("project_id = ? AND number BETWEEN ? AND ?", req.ProjectID, lo, hi).
				Where("investor_id IS NULL AND certificate_id IS NULL AND status <> ?", domain.QuotaCertificateIssued).
				Order("number ASC").
				Pluck("id", &ids).Error; err != nil {
				return err
			}
			if req.Strict && (int64(len(ids)) != total || total != int64(hi-lo+1)) {
				return fmt.Errorf("%w: %d of %d quotas in [%d,%d] are free", domain.ErrRangeUnavailable, len(ids), hi-lo+1, lo, hi)
			}
			if len(ids) == 0 {
				return fmt.Errorf("%w: [%d,%d]", domain.ErrNoQuotasInRange, lo, hi)
			}

			now := time.Now().UTC()
			res := tx.Model(&domain.Quota{}).
				Where("id IN ? AND investor_id IS NULL AND certificate_id IS NULL AND status <> ?", ids, domain.QuotaCertificateIssued).
				Updates(map[string]interface{}{
					"investor_id":       req.InvestorID,
					"assigned_at":       now,
					"maturation_date":   now.AddDate(0, term, 0),
					"maturation_status": domain.MaturationOnTime,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: [%d,%d]", domain.ErrNoQuotasInRange, lo, hi)
			}
			if req.Strict && res.RowsAffected != int64(len(ids)) {
				return fmt.Errorf("%w: range changed concurrently", domain.ErrConflict)
			}

			var numbers []int
			if err := tx.Model(&domain.Quota{}).
				Where("id IN ? AND investor_id = ?", ids, req.InvestorID).
				Order("number ASC").
				Pluck("number", &numbers).Error; err != nil {
				return err
			}

			first, err := markInvited(tx, req.InvestorID, now)
			if err != nil {
				return err
			}
			pid, iid := req.ProjectID, req.InvestorID
			if err := audit.Record(ctx, tx, domain.LedgerEvent{
				EventType:  domain.EventRangeAssigned,
				ProjectID:  &pid,
				InvestorID: &iid,
				Quantity:   res.RowsAffected,
			}, map[string]interface{}{"start": lo, "end": hi, "term_months": term, "first_assignment": first}); err != nil {
				return err
			}

			result = &BulkAssignmentResult{
				Assigned:        int(res.RowsAffected),
				Skipped:         int(total) - int(res.RowsAffected),
				Numbers:         numbers,
				FirstAssignment: first,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.Metrics.Assigned("range", result.Assigned)
	log.Info().Str("project_id", req.ProjectID.String()).Str("investor_id", req.InvestorID.String()).
		Int("assigned", result.Assigned).Int("skipped", result.Skipped).Msg("quota range assigned")
	return result, nil
}

// PreviewRange lists the free quotas within the bounds, ascending. Read only.
func (s *Service) PreviewRange(ctx context.Context, projectID uuid.UUID, start, end int) ([]domain.Quota, error) {
	lo, hi, err := NormalizeRange(start, end)
	if err != nil {
		return nil, err
	}
	var quotas []domain.Quota
	err = s.DB.WithContext(ctx).
		Where("project_id = ? AND number BETWEEN ? AND ?", projectID, lo, hi).
		Where("investor_id IS NULL AND certificate_id IS NULL AND status <> ?", domain.QuotaCertificateIssued).
		Order("number ASC").
		Find(&quotas).Error
	return quotas, err
}

func (s *Service) GetQuota(ctx context.Context, quotaID uuid.UUID) (*domain.Quota, error) {
	var q domain.Quota
	if err := s.DB.WithContext(ctx).Where("id = ?", quotaID).First(&q).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: quota", domain.ErrNotFound)
		}
		return nil, err
	}
	return &q, nil
}

// ListQuotas returns every quota of a project with live progress, ordered by number.
func (s *Service) ListQuotas(ctx context.Context, projectID uuid.UUID, now time.Time) ([]QuotaView, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var quotas []domain.Quota
	if err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).Order("number ASC").Find(&quotas).Error; err != nil {
		return nil, err
	}
	out := make([]QuotaView, 0, len(quotas))
	for _, q := range quotas {
		out = append(out, QuotaView{
			Quota:                   q,
			Progress:                q.Progress(),
			DerivedMaturationStatus: DeriveMaturationStatus(q, now),
			Block:                   Block(q.Number, len(quotas), p.MaturationMonths),
		})
	}
	return out, nil
}

// NormalizeRange orders the bounds; both must be at least 1.
func NormalizeRange(start, end int) (int, int, error) {
	if start < 1 || end < 1 {
		return 0, 0, fmt.Errorf("%w: range bounds must be positive quota numbers", domain.ErrInvalidInput)
	}
	if start > end {
		start, end = end, start
	}
	return start, end, nil
}

// markInvited flips the investor's invited flag. It returns true only for the
// call that performed the transition.
func markInvited(tx *gorm.DB, investorID uuid.UUID, now time.Time) (bool, error) {
	res := tx.Model(&domain.Investor{}).
		Where("id = ? AND invited = ?", investorID, false).
		Updates(map[string]interface{}{"invited": true, "invited_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func investorExists(tx *gorm.DB, investorID uuid.UUID) error {
	var n int64
	if err := tx.Model(&domain.Investor{}).Where("id = ?", investorID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: investor", domain.ErrNotFound)
	}
	return nil
}

func resolveTerm(tx *gorm.DB, projectID uuid.UUID, termMonths int) (int, error) {
	var p domain.Project
	if err := tx.Select("id", "maturation_months").Where("id = ?", projectID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: project", domain.ErrNotFound)
		}
		return 0, err
	}
	if termMonths > 0 {
		return termMonths, nil
	}
	if p.MaturationMonths > 0 {
		return p.MaturationMonths, nil
	}
	return 12, nil
}
