package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuotaStatus moves strictly forward: generating -> ready -> certificate-issued.
type QuotaStatus string

const (
	QuotaGenerating        QuotaStatus = "generating"
	QuotaReady             QuotaStatus = "ready"
	QuotaCertificateIssued QuotaStatus = "certificate-issued"
)

type MaturationStatus string

const (
	MaturationUnassigned MaturationStatus = "unassigned"
	MaturationOnTime     MaturationStatus = "on-time"
	MaturationMaturing   MaturationStatus = "maturing"
	MaturationLate       MaturationStatus = "late"
)

// Quota is one sellable unit of a project. (ProjectID, Number) is its canonical key;
// Code is display only.
type Quota struct {
	ID                     uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProjectID              uuid.UUID        `gorm:"column:project_id;type:uuid;not null;uniqueIndex:idx_quota_project_number,priority:1" json:"project_id"`
	Number                 int              `gorm:"column:number;not null;uniqueIndex:idx_quota_project_number,priority:2" json:"number"`
	Code                   string           `gorm:"column:code;not null" json:"code"`
	PaidValue              float64          `gorm:"column:paid_value;type:decimal(18,2);not null" json:"paid_value"`
	PurchaseDate           time.Time        `gorm:"column:purchase_date;not null" json:"purchase_date"`
	MaturationDate         time.Time        `gorm:"column:maturation_date;not null" json:"maturation_date"`
	InvestorID             *uuid.UUID       `gorm:"column:investor_id;type:uuid;index" json:"investor_id"`
	AssignedAt             *time.Time       `gorm:"column:assigned_at" json:"assigned_at"`
	TargetWasteKg          int64            `gorm:"column:target_waste_kg;not null" json:"target_waste_kg"`
	TargetEducationMin     int64            `gorm:"column:target_education_min;not null" json:"target_education_min"`
	TargetProducts         int64            `gorm:"column:target_products;not null" json:"target_products"`
	TargetCO2Kg            int64            `gorm:"column:target_co2_kg;not null;default:0" json:"target_co2_kg"`
	ReconciledWasteKg      int64            `gorm:"column:reconciled_waste_kg;not null;default:0" json:"reconciled_waste_kg"`
	ReconciledEducationMin int64            `gorm:"column:reconciled_education_min;not null;default:0" json:"reconciled_education_min"`
	ReconciledProducts     int64            `gorm:"column:reconciled_products;not null;default:0" json:"reconciled_products"`
	Status                 QuotaStatus      `gorm:"column:status;type:varchar(30);not null;default:'generating';index" json:"status"`
	MaturationStatus       MaturationStatus `gorm:"column:maturation_status;type:varchar(20);not null;default:'unassigned'" json:"maturation_status"`
	CertificateID          *uuid.UUID       `gorm:"column:certificate_id;type:uuid;index" json:"certificate_id"`
	CreatedAt              time.Time        `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt              time.Time        `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Quota) TableName() string {
	return "CdvQuotas"
}

func (q *Quota) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// QuotaCode renders the display code, e.g. "3F2A9C1B-0007".
func QuotaCode(projectID uuid.UUID, number int) string {
	prefix := strings.ToUpper(strings.ReplaceAll(projectID.String(), "-", "")[:8])
	return fmt.Sprintf("%s-%04d", prefix, number)
}

func (q *Quota) Target(c Category) int64 {
	switch c {
	case CategoryWaste:
		return q.TargetWasteKg
	case CategoryEducation:
		return q.TargetEducationMin
	case CategoryProduct:
		return q.TargetProducts
	}
	return 0
}

func (q *Quota) Reconciled(c Category) int64 {
	switch c {
	case CategoryWaste:
		return q.ReconciledWasteKg
	case CategoryEducation:
		return q.ReconciledEducationMin
	case CategoryProduct:
		return q.ReconciledProducts
	}
	return 0
}

// Missing returns the categories whose reconciled amount is below target.
func (q *Quota) Missing() []Shortfall {
	var out []Shortfall
	for _, c := range Categories {
		if q.Reconciled(c) < q.Target(c) {
			out = append(out, Shortfall{Category: c, Required: q.Target(c), Available: q.Reconciled(c)})
		}
	}
	return out
}

// Complete reports whether every category target is met.
func (q *Quota) Complete() bool {
	return len(q.Missing()) == 0
}

// Frozen reports whether the quota is terminal.
func (q *Quota) Frozen() bool {
	return q.Status == QuotaCertificateIssued || q.CertificateID != nil
}

// Progress is the average of the per-category fulfilment ratios, each capped at 100, as a percentage.
func (q *Quota) Progress() float64 {
	var sum float64
	for _, c := range Categories {
		target := q.Target(c)
		if target <= 0 {
			sum += 100
			continue
		}
		sum += math.Min(float64(q.Reconciled(c))/float64(target)*100, 100)
	}
	return math.Round(sum/float64(len(Categories))*100) / 100
}
