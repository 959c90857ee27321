package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project is a CDV project. Its quotas are generated once, with the project row.
type Project struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Title              string    `gorm:"column:title;not null" json:"title"`
	TotalValue         float64   `gorm:"column:total_value;type:decimal(18,2);not null" json:"total_value"`
	UnitPrice          float64   `gorm:"column:unit_price;type:decimal(18,2);not null" json:"unit_price"`
	MaturationMonths   int       `gorm:"column:maturation_months;not null" json:"maturation_months"`
	StartDate          time.Time `gorm:"column:start_date;not null" json:"start_date"`
	TotalQuotas        int       `gorm:"column:total_quotas;not null;default:0" json:"total_quotas"`
	TargetWasteKg      int64     `gorm:"column:target_waste_kg;not null;default:0" json:"target_waste_kg"`
	TargetEducationMin int64     `gorm:"column:target_education_min;not null;default:0" json:"target_education_min"`
	TargetProducts     int64     `gorm:"column:target_products;not null;default:0" json:"target_products"`
	TargetCO2Kg        int64     `gorm:"column:target_co2_kg;not null;default:0" json:"target_co2_kg"`
	CreatedAt          time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Project) TableName() string {
	return "CdvProjects"
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
