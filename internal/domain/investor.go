package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Investor owns quotas. Invited flips to true once, with the first assignment.
type Investor struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	LegalName   string     `gorm:"column:legal_name;not null" json:"legal_name"`
	TaxID       string     `gorm:"column:tax_id;not null;uniqueIndex" json:"tax_id"`
	Email       string     `gorm:"column:email" json:"email"`
	ContactName string     `gorm:"column:contact_name" json:"contact_name"`
	Invited     bool       `gorm:"column:invited;not null;default:false" json:"invited"`
	InvitedAt   *time.Time `gorm:"column:invited_at" json:"invited_at"`
	FirstAccess bool       `gorm:"column:first_access;not null;default:true" json:"first_access"`
	CreatedAt   time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Investor) TableName() string {
	return "CdvInvestors"
}

func (i *Investor) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
