package documents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cdv-engine/internal/application/certificates"
	"cdv-engine/internal/application/ledger"
	"cdv-engine/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service loads what a document needs and renders it.
type Service struct {
	DB           *gorm.DB
	Ledger       *ledger.Service
	Certificates *certificates.Service
	// PublicBaseURL prefixes the validation hash on printed certificates.
	PublicBaseURL string
}

// CertificatePDF returns the rendered certificate and a download file name.
func (s *Service) CertificatePDF(ctx context.Context, certificateID uuid.UUID) ([]byte, string, error) {
	c, err := s.Certificates.Get(ctx, certificateID)
	if err != nil {
		return nil, "", err
	}
	p, err := s.Ledger.GetProject(ctx, c.ProjectID)
	if err != nil {
		return nil, "", err
	}
	ids, err := c.Quotas()
	if err != nil {
		return nil, "", fmt.Errorf("decode certificate quotas: %w", err)
	}
	var codes []string
	if len(ids) > 0 {
		if err := s.DB.WithContext(ctx).Model(&domain.Quota{}).
			Where("id IN ?", ids).Order("number ASC").Pluck("code", &codes).Error; err != nil {
			return nil, "", err
		}
	}

	doc := CertificateDocument{Certificate: *c, ProjectTitle: p.Title, QuotaCodes: codes}
	if s.PublicBaseURL != "" {
		doc.ValidationURL = strings.TrimRight(s.PublicBaseURL, "/") + "/" + c.ValidationHash
	}
	b, err := RenderCertificate(doc)
	if err != nil {
		return nil, "", err
	}
	return b, c.Number + ".pdf", nil
}

// QuotaExport returns the project's quota ledger as an xlsx workbook.
func (s *Service) QuotaExport(ctx context.Context, projectID uuid.UUID, now time.Time) ([]byte, string, error) {
	p, err := s.Ledger.GetProject(ctx, projectID)
	if err != nil {
		return nil, "", err
	}
	quotas, err := s.Ledger.ListQuotas(ctx, projectID, now)
	if err != nil {
		return nil, "", err
	}

	var investorIDs, certIDs []uuid.UUID
	for _, q := range quotas {
		if q.InvestorID != nil {
			investorIDs = append(investorIDs, *q.InvestorID)
		}
		if q.CertificateID != nil {
			certIDs = append(certIDs, *q.CertificateID)
		}
	}
	investors := map[uuid.UUID]string{}
	if len(investorIDs) > 0 {
		var rows []domain.Investor
		if err := s.DB.WithContext(ctx).Select("id", "legal_name").Where("id IN ?", investorIDs).Find(&rows).Error; err != nil {
			return nil, "", err
		}
		for _, r := range rows {
			investors[r.ID] = r.LegalName
		}
	}
	certs := map[uuid.UUID]string{}
	if len(certIDs) > 0 {
		var rows []domain.Certificate
		if err := s.DB.WithContext(ctx).Select("id", "number").Where("id IN ?", certIDs).Find(&rows).Error; err != nil {
			return nil, "", err
		}
		for _, r := range rows {
			certs[r.ID] = r.Number
		}
	}

	b, err := QuotaWorkbook(*p, quotas, investors, certs)
	if err != nil {
		return nil, "", err
	}
	name := fmt.Sprintf("cotas-%s-%s.xlsx", strings.ToLower(domain.QuotaCode(p.ID, 0)[:8]), now.Format("20060102"))
	return b, name, nil
}
