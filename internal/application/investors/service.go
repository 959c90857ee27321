package investors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cdv-engine/internal/domain"
	"cdv-engine/internal/infrastructure/database"
	"cdv-engine/internal/pkg/validation"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service struct {
	DB *gorm.DB
}

type CreateInput struct {
	LegalName   string `json:"legal_name"`
	TaxID       string `json:"tax_id"`
	Email       string `json:"email"`
	ContactName string `json:"contact_name"`
}

// NormalizeTaxID drops the punctuation of a formatted CNPJ/CPF.
func NormalizeTaxID(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '/', '-', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Investor, error) {
	in.LegalName = strings.TrimSpace(in.LegalName)
	in.TaxID = NormalizeTaxID(in.TaxID)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.LegalName == "" || in.TaxID == "" {
		return nil, fmt.Errorf("%w: legal_name and tax_id are required", domain.ErrInvalidInput)
	}
	if in.Email != "" && !validation.IsValidEmail(in.Email) {
		return nil, fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}

	inv := domain.Investor{
		LegalName:   in.LegalName,
		TaxID:       in.TaxID,
		Email:       in.Email,
		ContactName: strings.TrimSpace(in.ContactName),
		FirstAccess: true,
	}
	if err := s.DB.WithContext(ctx).Create(&inv).Error; err != nil {
		if database.IsDuplicate(err) {
			return nil, fmt.Errorf("%w: investor with tax id %s", domain.ErrAlreadyExists, in.TaxID)
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Investor, error) {
	var inv domain.Investor
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: investor", domain.ErrNotFound)
		}
		return nil, err
	}
	return &inv, nil
}

// ByEmail returns every investor whose contact email matches, case-insensitively.
func (s *Service) ByEmail(ctx context.Context, email string) ([]domain.Investor, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	var out []domain.Investor
	err := s.DB.WithContext(ctx).Where("email = ?", email).Order("legal_name ASC").Find(&out).Error
	return out, err
}

// List returns investors ordered by legal name; an empty query lists all.
func (s *Service) List(ctx context.Context, query string) ([]domain.Investor, error) {
	var out []domain.Investor
	q := s.DB.WithContext(ctx).Order("legal_name ASC")
	if query = strings.TrimSpace(query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		q = q.Where("LOWER(legal_name) LIKE ? OR tax_id LIKE ?", like, "%"+NormalizeTaxID(query)+"%")
	}
	err := q.Find(&out).Error
	return out, err
}
