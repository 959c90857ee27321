package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cdv-engine/internal/application/audit"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/metrics"
	"cdv-engine/internal/pkg/retry"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service owns projects, their quota ledger and the investor-assignment relation.
type Service struct {
	DB                      *gorm.DB
	Bundle                  domain.Bundle
	UnitPrice               float64
	CO2PerQuotaKg           int64
	DefaultMaturationMonths int
	Metrics                 *metrics.Metrics
	MaxRetries              uint64
}

type CreateProjectInput struct {
	Title            string    `json:"title"`
	TotalValue       float64   `json:"total_value"`
	UnitPrice        float64   `json:"unit_price"`
	MaturationMonths int       `json:"maturation_months"`
	StartDate        time.Time `json:"start_date"`
}

func (s *Service) bundle() domain.Bundle {
	if s.Bundle.Valid() {
		return s.Bundle
	}
	return domain.DefaultBundle
}

func (s *Service) unitPrice() float64 {
	if s.UnitPrice > 0 {
		return s.UnitPrice
	}
	return 2000
}

func (s *Service) defaultTerm() int {
	if s.DefaultMaturationMonths > 0 {
		return s.DefaultMaturationMonths
	}
	return 12
}

// CreateProject persists the project and generates its quotas in one transaction.
func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (*domain.Project, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if in.UnitPrice == 0 {
		in.UnitPrice = s.unitPrice()
	}
	if in.MaturationMonths == 0 {
		in.MaturationMonths = s.defaultTerm()
	}
	if in.MaturationMonths < 0 {
		return nil, fmt.Errorf("%w: maturation_months must be positive", domain.ErrInvalidInput)
	}
	if in.TotalValue <= 0 || in.UnitPrice <= 0 {
		return nil, fmt.Errorf("%w: total value and unit price must be positive", domain.ErrInvalidInput)
	}
	if in.StartDate.IsZero() {
		in.StartDate = time.Now()
	}
	start := truncateDay(in.StartDate)

	project := domain.Project{
		ID:               uuid.New(),
		Title:            in.Title,
		TotalValue:       in.TotalValue,
		UnitPrice:        in.UnitPrice,
		MaturationMonths: in.MaturationMonths,
		StartDate:        start,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		quotas, err := s.GenerateQuotas(tx, project.ID, in.TotalValue, in.UnitPrice, in.MaturationMonths, start)
		if err != nil {
			return err
		}
		n := int64(len(quotas))
		b := s.bundle()
		project.TotalQuotas = len(quotas)
		project.TargetWasteKg = n * b.Waste
		project.TargetEducationMin = n * b.Education
		project.TargetProducts = n * b.Products
		project.TargetCO2Kg = n * s.CO2PerQuotaKg
		if err := tx.Model(&project).Updates(map[string]interface{}{
			"total_quotas":         project.TotalQuotas,
			"target_waste_kg":      project.TargetWasteKg,
			"target_education_min": project.TargetEducationMin,
			"target_products":      project.TargetProducts,
			"target_co2_kg":        project.TargetCO2Kg,
		}).Error; err != nil {
			return err
		}
		pid := project.ID
		return audit.Record(ctx, tx, domain.LedgerEvent{
			EventType: domain.EventProjectCreated,
			ProjectID: &pid,
			Quantity:  n,
		}, map[string]interface{}{"title": project.Title, "total_value": project.TotalValue, "unit_price": project.UnitPrice})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("project_id", project.ID.String()).Int("quotas", project.TotalQuotas).Msg("cdv project created")
	return &project, nil
}

func (s *Service) GetProject(ctx context.Context, projectID uuid.UUID) (*domain.Project, error) {
	var p domain.Project
	if err := s.DB.WithContext(ctx).Where("id = ?", projectID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: project", domain.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Service) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var out []domain.Project
	err := s.DB.WithContext(ctx).Order(`"createdAt" DESC`).Find(&out).Error
	return out, err
}

// DeleteProject removes a project and its quotas. It is rejected once any quota
// has a certificate. Allocated units stay allocated.
func (s *Service) DeleteProject(ctx context.Context, projectID uuid.UUID) error {
	return retry.Do(ctx, s.MaxRetries, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var p domain.Project
			if err := tx.Where("id = ?", projectID).First(&p).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: project", domain.ErrNotFound)
				}
				return err
			}

			var certified int64
			if err := tx.Model(&domain.Quota{}).
				Where("project_id = ? AND (certificate_id IS NOT NULL OR status = ?)", projectID, domain.QuotaCertificateIssued).
				Count(&certified).Error; err != nil {
				return err
			}
			if certified == 0 {
				if err := tx.Model(&domain.Certificate{}).Where("project_id = ?", projectID).Count(&certified).Error; err != nil {
					return err
				}
			}
			if certified > 0 {
				return fmt.Errorf("%w: %d certified quotas", domain.ErrProjectHasCertificates, certified)
			}

			res := tx.Where("project_id = ?", projectID).Delete(&domain.Quota{})
			if res.Error != nil {
				return res.Error
			}
			if err := tx.Delete(&p).Error; err != nil {
				return err
			}
			pid := p.ID
			return audit.Record(ctx, tx, domain.LedgerEvent{
				EventType: domain.EventProjectDeleted,
				ProjectID: &pid,
				Quantity:  res.RowsAffected,
			}, map[string]interface{}{"title": p.Title})
		})
	})
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
