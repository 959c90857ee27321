package certificates

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cdv-engine/internal/application/audit"
	"cdv-engine/internal/application/pool"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/metrics"
	"cdv-engine/internal/pkg/retry"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service mints certificates for fully allocated quotas.
type Service struct {
	DB         *gorm.DB
	Metrics    *metrics.Metrics
	MaxRetries uint64
}

// Validation is the public view of a certificate lookup.
type Validation struct {
	Certificate  *domain.Certificate `json:"certificate"`
	ProjectTitle string              `json:"project_title"`
	Valid        bool                `json:"valid"`
}

// IssueForQuota certifies a single ready quota and freezes it.
func (s *Service) IssueForQuota(ctx context.Context, quotaID uuid.UUID) (*domain.Certificate, error) {
	var cert *domain.Certificate
	err := retry.Do(ctx, s.MaxRetries, func() error {
		cert = nil
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var q domain.Quota
			if err := tx.Where("id = ?", quotaID).First(&q).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: quota", domain.ErrNotFound)
				}
				return err
			}
			if q.Frozen() {
				return domain.ErrQuotaFrozen
			}
			if q.Status != domain.QuotaReady {
				return &domain.NotReadyError{QuotaID: q.ID.String(), Status: q.Status, Missing: q.Missing()}
			}

			c, err := s.mint(ctx, tx, []domain.Quota{q}, q.InvestorID, false)
			if err != nil {
				return err
			}
			cert = c
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.Metrics.CertificateIssued("single")
	log.Info().Str("certificate", cert.Number).Str("quota_id", quotaID.String()).Msg("certificate issued")
	return cert, nil
}

// IssueConsolidated certifies several quotas of one investor in one project.
// Completion is checked live from reconciled against target amounts, not from status.
func (s *Service) IssueConsolidated(ctx context.Context, investorID uuid.UUID, quotaIDs []uuid.UUID) (*domain.Certificate, error) {
	ids := dedupe(quotaIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one quota is required", domain.ErrInvalidInput)
	}

	var cert *domain.Certificate
	err := retry.Do(ctx, s.MaxRetries, func() error {
		cert = nil
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var quotas []domain.Quota
			if err := tx.Where("id IN ?", ids).Order("number ASC").Find(&quotas).Error; err != nil {
				return err
			}
			if len(quotas) != len(ids) {
				return fmt.Errorf("%w: %d of %d quotas", domain.ErrNotFound, len(ids)-len(quotas), len(ids))
			}
			projectID := quotas[0].ProjectID
			for _, q := range quotas {
				if q.InvestorID == nil || *q.InvestorID != investorID {
					return fmt.Errorf("%w: quota %s", domain.ErrInvestorMismatch, q.Code)
				}
				if q.ProjectID != projectID {
					return fmt.Errorf("%w: quotas span more than one project", domain.ErrInvalidInput)
				}
				if q.Frozen() {
					return fmt.Errorf("%w: quota %s", domain.ErrQuotaFrozen, q.Code)
				}
				if !q.Complete() {
					return &domain.NotReadyError{QuotaID: q.ID.String(), Status: q.Status, Missing: q.Missing()}
				}
			}

			inv := investorID
			c, err := s.mint(ctx, tx, quotas, &inv, true)
			if err != nil {
				return err
			}
			cert = c
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.Metrics.CertificateIssued("consolidated")
	log.Info().Str("certificate", cert.Number).Int("quotas", len(ids)).Msg("consolidated certificate issued")
	return cert, nil
}

// mint numbers, persists and links a certificate for quotas, then freezes them.
func (s *Service) mint(ctx context.Context, tx *gorm.DB, quotas []domain.Quota, investorID *uuid.UUID, consolidated bool) (*domain.Certificate, error) {
	ids := make([]uuid.UUID, 0, len(quotas))
	cert := &domain.Certificate{
		ID:           uuid.New(),
		ProjectID:    quotas[0].ProjectID,
		InvestorID:   investorID,
		Consolidated: consolidated,
		IssuedAt:     time.Now().UTC(),
	}
	for i, q := range quotas {
		ids = append(ids, q.ID)
		cert.TotalWasteKg += q.ReconciledWasteKg
		cert.TotalEducationMin += q.ReconciledEducationMin
		cert.TotalProducts += q.ReconciledProducts
		cert.TotalCO2Kg += q.TargetCO2Kg
		if i == 0 || q.PurchaseDate.Before(cert.PeriodStart) {
			cert.PeriodStart = q.PurchaseDate
		}
		if q.MaturationDate.After(cert.PeriodEnd) {
			cert.PeriodEnd = q.MaturationDate
		}
	}

	if investorID != nil {
		var inv domain.Investor
		if err := tx.Where("id = ?", *investorID).First(&inv).Error; err == nil {
			cert.InvestorName = inv.LegalName
			cert.InvestorTaxID = inv.TaxID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	units, err := pool.UnitsOf(tx, ids)
	if err != nil {
		return nil, err
	}
	qb, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	ub, err := json.Marshal(units)
	if err != nil {
		return nil, err
	}
	cert.QuotaIDs = datatypes.JSON(qb)
	cert.UnitIDs = datatypes.JSON(ub)

	year := cert.IssuedAt.Year()
	seq, err := NextSequence(tx, year)
	if err != nil {
		return nil, err
	}
	cert.Year = year
	cert.Sequence = seq
	cert.Number = domain.FormatCertificateNumber(year, seq)
	cert.ValidationHash = NewValidationHash()
	cert.ContentDigest, err = Digest(cert)
	if err != nil {
		return nil, err
	}

	if err := tx.Create(cert).Error; err != nil {
		return nil, err
	}
	res := tx.Model(&domain.Quota{}).
		Where("id IN ? AND certificate_id IS NULL AND status <> ?", ids, domain.QuotaCertificateIssued).
		Updates(map[string]interface{}{
			"status":         domain.QuotaCertificateIssued,
			"certificate_id": cert.ID,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != int64(len(ids)) {
		return nil, fmt.Errorf("%w: quotas certified concurrently", domain.ErrConflict)
	}

	cid, pid := cert.ID, cert.ProjectID
	var qid *uuid.UUID
	if len(ids) == 1 {
		qid = &ids[0]
	}
	if err := audit.Record(ctx, tx, domain.LedgerEvent{
		EventType:     domain.EventCertificateIssued,
		ProjectID:     &pid,
		QuotaID:       qid,
		InvestorID:    investorID,
		CertificateID: &cid,
		Quantity:      int64(len(ids)),
	}, map[string]interface{}{"number": cert.Number, "consolidated": consolidated}); err != nil {
		return nil, err
	}
	return cert, nil
}

// NextSequence returns the next certificate sequence for year. The per-year
// counter row is seeded from the highest number already issued that year and
// incremented in place, so concurrent issuers serialize on its row lock.
func NextSequence(tx *gorm.DB, year int) (int, error) {
	var maxSeq int
	if err := tx.Model(&domain.Certificate{}).
		Where("year = ?", year).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&maxSeq).Error; err != nil {
		return 0, err
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.CertificateCounter{Year: year, LastValue: maxSeq}).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&domain.CertificateCounter{}).
		Where("year = ?", year).
		Update("last_value", gorm.Expr("last_value + 1")).Error; err != nil {
		return 0, err
	}
	var counter domain.CertificateCounter
	if err := tx.Where("year = ?", year).First(&counter).Error; err != nil {
		return 0, err
	}
	if counter.LastValue <= maxSeq {
		counter.LastValue = maxSeq + 1
		if err := tx.Model(&domain.CertificateCounter{}).
			Where("year = ?", year).
			Update("last_value", counter.LastValue).Error; err != nil {
			return 0, err
		}
	}
	return counter.LastValue, nil
}

// NewValidationHash returns an opaque 32-character token unrelated to the number.
func NewValidationHash() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Digest is the blake2b-256 of the certificate's canonical content.
func Digest(c *domain.Certificate) (string, error) {
	quotas, err := c.Quotas()
	if err != nil {
		return "", err
	}
	units, err := c.Units()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(c.Number)
	b.WriteByte('|')
	b.WriteString(c.ProjectID.String())
	b.WriteByte('|')
	if c.InvestorID != nil {
		b.WriteString(c.InvestorID.String())
	}
	b.WriteByte('|')
	b.WriteString(strings.Join(sortedStrings(quotas), ","))
	for _, cat := range domain.Categories {
		b.WriteByte('|')
		b.WriteString(string(cat))
		b.WriteByte(':')
		b.WriteString(strings.Join(sortedStrings(units[cat]), ","))
	}
	fmt.Fprintf(&b, "|%d|%d|%d|%d", c.TotalWasteKg, c.TotalEducationMin, c.TotalProducts, c.TotalCO2Kg)

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

// Validate looks a certificate up by its public hash and re-checks its digest.
func (s *Service) Validate(ctx context.Context, hash string) (*Validation, error) {
	hash = strings.ToUpper(strings.TrimSpace(hash))
	if hash == "" {
		return nil, fmt.Errorf("%w: hash is required", domain.ErrInvalidInput)
	}
	var c domain.Certificate
	if err := s.DB.WithContext(ctx).Where("validation_hash = ?", hash).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: certificate", domain.ErrNotFound)
		}
		return nil, err
	}
	digest, err := Digest(&c)
	if err != nil {
		return nil, err
	}
	out := &Validation{Certificate: &c, Valid: digest == c.ContentDigest}
	var p domain.Project
	if err := s.DB.WithContext(ctx).Select("id", "title").Where("id = ?", c.ProjectID).First(&p).Error; err == nil {
		out.ProjectTitle = p.Title
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Certificate, error) {
	var c domain.Certificate
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: certificate", domain.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

// ListByProject returns a project's certificates in issuance order.
func (s *Service) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.Certificate, error) {
	var out []domain.Certificate
	err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).Order("year ASC, sequence ASC").Find(&out).Error
	return out, err
}

// ListByInvestors returns the certificates issued to any of the investors, newest first.
func (s *Service) ListByInvestors(ctx context.Context, investorIDs []uuid.UUID) ([]domain.Certificate, error) {
	out := []domain.Certificate{}
	if len(investorIDs) == 0 {
		return out, nil
	}
	err := s.DB.WithContext(ctx).Where("investor_id IN ?", investorIDs).Order("year DESC, sequence DESC").Find(&out).Error
	return out, err
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortedStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	sort.Strings(out)
	return out
}
