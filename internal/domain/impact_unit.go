package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category is the kind of impact an ImpactUnit represents.
type Category string

const (
	CategoryWaste     Category = "waste"     // 1 unit = 1 kg of recycled waste
	CategoryEducation Category = "education" // 1 unit = 1 minute of environmental education
	CategoryProduct   Category = "product"   // 1 unit = 1 catalogued product
)

// Categories in the order reports and shortfalls list them.
var Categories = []Category{CategoryWaste, CategoryEducation, CategoryProduct}

// ParseCategory accepts the canonical names plus the plural "products".
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "waste":
		return CategoryWaste, nil
	case "education":
		return CategoryEducation, nil
	case "product", "products":
		return CategoryProduct, nil
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, s)
}

type UnitStatus string

const (
	UnitAvailable UnitStatus = "available"
	UnitAllocated UnitStatus = "allocated"
)

// ImpactUnit is one indivisible impact credit. Sequence is monotonic per category
// and defines FIFO consumption order.
type ImpactUnit struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Category    Category   `gorm:"column:category;type:varchar(20);not null;uniqueIndex:idx_unit_category_seq,priority:1;index:idx_unit_fifo,priority:1" json:"category"`
	Sequence    int64      `gorm:"column:sequence;not null;uniqueIndex:idx_unit_category_seq,priority:2;index:idx_unit_fifo,priority:3" json:"sequence"`
	Status      UnitStatus `gorm:"column:status;type:varchar(20);not null;default:'available';index:idx_unit_fifo,priority:2" json:"status"`
	QuotaID     *uuid.UUID `gorm:"column:quota_id;type:uuid;index" json:"quota_id"`
	ProjectID   *uuid.UUID `gorm:"column:project_id;type:uuid;index" json:"project_id"`
	AllocatedAt *time.Time `gorm:"column:allocated_at" json:"allocated_at"`
	SourceRef   *string    `gorm:"column:source_ref" json:"source_ref"`
	CreatedAt   time.Time  `gorm:"column:createdAt" json:"createdAt"`
}

func (ImpactUnit) TableName() string {
	return "ImpactUnits"
}

func (u *ImpactUnit) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Bundle is the fixed number of units of each category one quota consumes.
type Bundle struct {
	Waste     int64 `json:"waste"`
	Education int64 `json:"education"`
	Products  int64 `json:"products"`
}

// DefaultBundle is 250 kg of waste, 5 education minutes and 1 product.
var DefaultBundle = Bundle{Waste: 250, Education: 5, Products: 1}

func (b Bundle) Valid() bool {
	return b.Waste > 0 && b.Education > 0 && b.Products > 0
}

// For returns the per-quota requirement of a category.
func (b Bundle) For(c Category) int64 {
	switch c {
	case CategoryWaste:
		return b.Waste
	case CategoryEducation:
		return b.Education
	case CategoryProduct:
		return b.Products
	}
	return 0
}

// Total is the number of units in one bundle.
func (b Bundle) Total() int64 {
	return b.Waste + b.Education + b.Products
}
