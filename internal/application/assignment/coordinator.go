package assignment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"cdv-engine/internal/application/audit"
	"cdv-engine/internal/application/ledger"
	"cdv-engine/internal/application/notifications"
	"cdv-engine/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const inviteTimeout = 20 * time.Second

// Coordinator turns "from quota #N to #M" requests into ledger assignments and
// notifies investors on their first assignment once the write has committed.
type Coordinator struct {
	Ledger     *ledger.Service
	Dispatcher notifications.Dispatcher
	// Strict is the default for requests that do not choose a mode.
	Strict bool
}

type RangeInput struct {
	ProjectID  uuid.UUID
	InvestorID uuid.UUID
	Start      string
	End        string
	TermMonths int
	Strict     *bool
}

type CommitResult struct {
	ledger.BulkAssignmentResult
	InviteSent bool   `json:"invite_sent"`
	Warning    string `json:"warning,omitempty"`
}

type InviteResult struct {
	InvestorID uuid.UUID `json:"investor_id"`
	ProjectID  uuid.UUID `json:"project_id"`
	InviteSent bool      `json:"invite_sent"`
	Warning    string    `json:"warning,omitempty"`
}

type AssignResult struct {
	ledger.AssignmentResult
	InviteSent bool   `json:"invite_sent"`
	Warning    string `json:"warning,omitempty"`
}

// ParseQuotaReference reads a quota number typed by a person: "12", "#0012" or a
// display code such as "3F2A9C1B-0012". For codes the number is the segment after
// the last dash; otherwise the first run of digits is used.
func ParseQuotaReference(input string) (int, error) {
	s := strings.TrimSpace(input)
	if i := strings.LastIndex(s, "-"); i >= 0 {
		if digits := firstDigits(s[i+1:]); digits != "" {
			return atoiRef(digits, input)
		}
	}
	digits := firstDigits(s)
	if digits == "" {
		return 0, fmt.Errorf("%w: %q is not a quota number", domain.ErrInvalidInput, input)
	}
	return atoiRef(digits, input)
}

func firstDigits(s string) string {
	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return ""
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[start:end]
}

func atoiRef(digits, input string) (int, error) {
	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a quota number", domain.ErrInvalidInput, input)
	}
	return n, nil
}

func parseBounds(start, end string) (int, int, error) {
	lo, err := ParseQuotaReference(start)
	if err != nil {
		return 0, 0, err
	}
	hi, err := ParseQuotaReference(end)
	if err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

// PreviewRange lists the free quotas between two references, ascending. Read only.
func (c *Coordinator) PreviewRange(ctx context.Context, projectID uuid.UUID, start, end string) ([]domain.Quota, error) {
	lo, hi, err := parseBounds(start, end)
	if err != nil {
		return nil, err
	}
	if _, err := c.Ledger.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return c.Ledger.PreviewRange(ctx, projectID, lo, hi)
}

// Commit assigns the range and sends the invite if this was the investor's first assignment.
func (c *Coordinator) Commit(ctx context.Context, in RangeInput) (*CommitResult, error) {
	lo, hi, err := parseBounds(in.Start, in.End)
	if err != nil {
		return nil, err
	}
	strict := c.Strict
	if in.Strict != nil {
		strict = *in.Strict
	}
	res, err := c.Ledger.AssignRange(ctx, ledger.RangeRequest{
		ProjectID:  in.ProjectID,
		InvestorID: in.InvestorID,
		Start:      lo,
		End:        hi,
		TermMonths: in.TermMonths,
		Strict:     strict,
	})
	if err != nil {
		return nil, err
	}
	out := &CommitResult{BulkAssignmentResult: *res}
	if res.FirstAssignment {
		out.InviteSent, out.Warning = c.invite(ctx, in.InvestorID, in.ProjectID, false)
	}
	return out, nil
}

// AssignOne assigns a single quota, with the same post-commit invite as Commit.
func (c *Coordinator) AssignOne(ctx context.Context, quotaID, investorID uuid.UUID, termMonths int) (*AssignResult, error) {
	res, err := c.Ledger.AssignInvestor(ctx, quotaID, investorID, termMonths)
	if err != nil {
		return nil, err
	}
	out := &AssignResult{AssignmentResult: *res}
	if res.FirstAssignment {
		out.InviteSent, out.Warning = c.invite(ctx, investorID, res.Quota.ProjectID, false)
	}
	return out, nil
}

// ResendInvite sends the dashboard reminder to an investor who was already
// invited. It is addressed for the project of their latest assignment. Delivery
// problems come back as a warning, never as an error.
func (c *Coordinator) ResendInvite(ctx context.Context, investorID uuid.UUID) (*InviteResult, error) {
	db := c.Ledger.DB.WithContext(ctx)
	var inv domain.Investor
	if err := db.Where("id = ?", investorID).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: investor", domain.ErrNotFound)
		}
		return nil, err
	}
	if !inv.Invited {
		return nil, fmt.Errorf("%w: investor has no assigned quotas to be invited for", domain.ErrInvalidInput)
	}
	var q domain.Quota
	if err := db.Select("id", "project_id").
		Where("investor_id = ?", investorID).
		Order("assigned_at DESC, number DESC").
		First(&q).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: investor has no assigned quotas to be invited for", domain.ErrInvalidInput)
		}
		return nil, err
	}

	out := &InviteResult{InvestorID: inv.ID, ProjectID: q.ProjectID}
	out.InviteSent, out.Warning = c.invite(ctx, inv.ID, q.ProjectID, true)
	return out, nil
}

// invite never fails the caller; problems come back as a warning string.
func (c *Coordinator) invite(ctx context.Context, investorID, projectID uuid.UUID, resend bool) (bool, string) {
	warning := func(msg string) string {
		if resend {
			return msg
		}
		return "assignment saved, but " + msg
	}
	if c.Dispatcher == nil {
		if resend {
			return false, warning("email delivery is not configured")
		}
		return false, ""
	}
	db := c.Ledger.DB.WithContext(ctx)

	var inv domain.Investor
	if err := db.Where("id = ?", investorID).First(&inv).Error; err != nil {
		log.Warn().Err(err).Str("investor_id", investorID.String()).Msg("invite skipped: investor lookup failed")
		return false, warning("the investor invite could not be prepared")
	}
	var p domain.Project
	if err := db.Select("id", "title").Where("id = ?", projectID).First(&p).Error; err != nil {
		log.Warn().Err(err).Str("project_id", projectID.String()).Msg("invite skipped: project lookup failed")
		return false, warning("the investor invite could not be prepared")
	}
	var owned int64
	if err := db.Model(&domain.Quota{}).Where("project_id = ? AND investor_id = ?", projectID, investorID).Count(&owned).Error; err != nil {
		log.Warn().Err(err).Msg("invite: quota count failed")
	}

	sendCtx, cancel := context.WithTimeout(ctx, inviteTimeout)
	defer cancel()
	err := c.Dispatcher.SendInvestorInvite(sendCtx, notifications.InvestorInvite{
		InvestorID:   inv.ID,
		Email:        inv.Email,
		LegalName:    inv.LegalName,
		ContactName:  inv.ContactName,
		ProjectTitle: p.Title,
		Quotas:       int(owned),
		Resend:       resend,
	})
	if err != nil {
		log.Warn().Err(err).Str("investor_id", investorID.String()).Bool("resend", resend).Msg("investor invite failed")
		return false, warning("the investor invite email failed: " + err.Error())
	}

	iid, pid := inv.ID, p.ID
	if err := audit.Record(ctx, db, domain.LedgerEvent{
		EventType:  domain.EventInvestorInvited,
		ProjectID:  &pid,
		InvestorID: &iid,
		Quantity:   owned,
	}, map[string]interface{}{"email": inv.Email, "resend": resend}); err != nil {
		log.Warn().Err(err).Msg("invite sent but ledger event not recorded")
	}
	log.Info().Str("investor_id", investorID.String()).Str("project_id", projectID.String()).Bool("resend", resend).Msg("investor invite sent")
	return true, ""
}
