package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ledger event types.
const (
	EventProjectCreated        = "PROJECT_CREATED"
	EventProjectDeleted        = "PROJECT_DELETED"
	EventUnitsRegistered       = "UNITS_REGISTERED"
	EventQuotaAssigned         = "QUOTA_ASSIGNED"
	EventRangeAssigned         = "RANGE_ASSIGNED"
	EventQuotaAllocated        = "QUOTA_ALLOCATED"
	EventCertificateIssued     = "CERTIFICATE_ISSUED"
	EventMaturationRescheduled = "MATURATION_RESCHEDULED"
	EventMaturationRefreshed   = "MATURATION_REFRESHED"
	EventInvestorInvited       = "INVESTOR_INVITED"
)

// LedgerEvent is the audit trail, written in the same transaction as the change it records.
type LedgerEvent struct {
	ID            uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	EventType     string         `gorm:"column:event_type;type:varchar(40);not null;index" json:"event_type"`
	ProjectID     *uuid.UUID     `gorm:"column:project_id;type:uuid;index" json:"project_id"`
	QuotaID       *uuid.UUID     `gorm:"column:quota_id;type:uuid" json:"quota_id"`
	InvestorID    *uuid.UUID     `gorm:"column:investor_id;type:uuid" json:"investor_id"`
	CertificateID *uuid.UUID     `gorm:"column:certificate_id;type:uuid" json:"certificate_id"`
	Actor         string         `gorm:"column:actor;not null;default:'system'" json:"actor"`
	Quantity      int64          `gorm:"column:quantity;not null;default:0" json:"quantity"`
	Detail        datatypes.JSON `gorm:"column:detail;type:json" json:"detail"`
	CreatedAt     time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (LedgerEvent) TableName() string {
	return "LedgerEvents"
}

func (e *LedgerEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
