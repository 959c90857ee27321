package notifications

//go:generate mockgen -source=dispatcher.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/google/uuid"
)

// InvestorInvite is what the onboarding email needs to know about a first assignment.
type InvestorInvite struct {
	InvestorID   uuid.UUID
	Email        string
	LegalName    string
	ContactName  string
	ProjectTitle string
	Quotas       int
	Resend       bool
}

// Dispatcher delivers investor notifications. Nil = no-op.
type Dispatcher interface {
	SendInvestorInvite(ctx context.Context, invite InvestorInvite) error
}
