package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrAlreadyAssigned        = errors.New("quota already assigned")
	ErrNoQuotasInRange        = errors.New("no unassigned quotas in range")
	ErrRangeUnavailable       = errors.New("range contains unavailable quotas")
	ErrAlreadyAllocated       = errors.New("quota already allocated")
	ErrQuotaFrozen            = errors.New("quota has an issued certificate")
	ErrNotReady               = errors.New("quota not ready for certificate")
	ErrInsufficientInventory  = errors.New("insufficient inventory")
	ErrInvestorMismatch       = errors.New("quotas belong to different investors")
	ErrProjectHasCertificates = errors.New("project has issued certificates")
	ErrQuotasAlreadyGenerated = errors.New("quotas already generated for project")
	// ErrConflict marks a lost race; callers retry the whole unit of work.
	ErrConflict = errors.New("concurrent update conflict")
)

// Shortfall is the gap between what a category needs and what it has.
type Shortfall struct {
	Category  Category `json:"category"`
	Required  int64    `json:"required"`
	Available int64    `json:"available"`
}

// InsufficientInventoryError lists every category the pool cannot cover.
type InsufficientInventoryError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientInventoryError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s: required %d, available %d", s.Category, s.Required, s.Available))
	}
	return ErrInsufficientInventory.Error() + " (" + strings.Join(parts, "; ") + ")"
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

// Has reports whether category is one of the short categories.
func (e *InsufficientInventoryError) Has(category Category) bool {
	for _, s := range e.Shortfalls {
		if s.Category == category {
			return true
		}
	}
	return false
}

// NotReadyError carries the unmet category deltas of a quota. For each entry
// Required is the target and Available what has been reconciled so far.
type NotReadyError struct {
	QuotaID string
	Status  QuotaStatus
	Missing []Shortfall
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s: quota %s is %s", ErrNotReady.Error(), e.QuotaID, e.Status)
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}
