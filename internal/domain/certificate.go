package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UnitPartition groups consumed unit ids by category.
type UnitPartition map[Category][]uuid.UUID

// Certificate is written once and never updated.
type Certificate struct {
	ID                uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Number            string         `gorm:"column:number;not null;uniqueIndex" json:"number"`
	Year              int            `gorm:"column:year;not null;uniqueIndex:idx_cert_year_seq,priority:1" json:"year"`
	Sequence          int            `gorm:"column:sequence;not null;uniqueIndex:idx_cert_year_seq,priority:2" json:"sequence"`
	ValidationHash    string         `gorm:"column:validation_hash;type:varchar(64);not null;uniqueIndex" json:"validation_hash"`
	ContentDigest     string         `gorm:"column:content_digest;type:varchar(64);not null" json:"content_digest"`
	ProjectID         uuid.UUID      `gorm:"column:project_id;type:uuid;not null;index" json:"project_id"`
	InvestorID        *uuid.UUID     `gorm:"column:investor_id;type:uuid;index" json:"investor_id"`
	InvestorName      string         `gorm:"column:investor_name" json:"investor_name"`
	InvestorTaxID     string         `gorm:"column:investor_tax_id" json:"investor_tax_id"`
	Consolidated      bool           `gorm:"column:consolidated;not null;default:false" json:"consolidated"`
	QuotaIDs          datatypes.JSON `gorm:"column:quota_ids;type:json;not null" json:"quota_ids"`
	UnitIDs           datatypes.JSON `gorm:"column:unit_ids;type:json;not null" json:"unit_ids"`
	TotalWasteKg      int64          `gorm:"column:total_waste_kg;not null" json:"total_waste_kg"`
	TotalEducationMin int64          `gorm:"column:total_education_min;not null" json:"total_education_min"`
	TotalProducts     int64          `gorm:"column:total_products;not null" json:"total_products"`
	TotalCO2Kg        int64          `gorm:"column:total_co2_kg;not null;default:0" json:"total_co2_kg"`
	PeriodStart       time.Time      `gorm:"column:period_start" json:"period_start"`
	PeriodEnd         time.Time      `gorm:"column:period_end" json:"period_end"`
	IssuedAt          time.Time      `gorm:"column:issued_at;not null" json:"issued_at"`
}

func (Certificate) TableName() string {
	return "CdvCertificates"
}

func (c *Certificate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// FormatCertificateNumber renders CDV-<4-digit year>-<6-digit sequence>.
func FormatCertificateNumber(year, seq int) string {
	return fmt.Sprintf("CDV-%04d-%06d", year, seq)
}

// ParseCertificateNumber is the inverse of FormatCertificateNumber.
func ParseCertificateNumber(number string) (year, seq int, err error) {
	var y, s int
	if _, err := fmt.Sscanf(number, "CDV-%04d-%06d", &y, &s); err != nil {
		return 0, 0, fmt.Errorf("%w: certificate number %q", ErrInvalidInput, number)
	}
	return y, s, nil
}

func (c *Certificate) Quotas() ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if len(c.QuotaIDs) == 0 {
		return ids, nil
	}
	err := json.Unmarshal(c.QuotaIDs, &ids)
	return ids, err
}

func (c *Certificate) Units() (UnitPartition, error) {
	p := UnitPartition{}
	if len(c.UnitIDs) == 0 {
		return p, nil
	}
	err := json.Unmarshal(c.UnitIDs, &p)
	return p, err
}

// Total returns the aggregated amount of a category.
func (c *Certificate) Total(cat Category) int64 {
	switch cat {
	case CategoryWaste:
		return c.TotalWasteKg
	case CategoryEducation:
		return c.TotalEducationMin
	case CategoryProduct:
		return c.TotalProducts
	}
	return 0
}

// CertificateCounter is the per-year sequence used to number certificates.
type CertificateCounter struct {
	Year      int       `gorm:"column:year;primaryKey;autoIncrement:false" json:"year"`
	LastValue int       `gorm:"column:last_value;not null;default:0" json:"last_value"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (CertificateCounter) TableName() string {
	return "CertificateCounters"
}
