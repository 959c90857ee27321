package quotas

import (
	"fmt"
	"time"

	"cdv-engine/internal/application/allocation"
	"cdv-engine/internal/application/assignment"
	"cdv-engine/internal/application/certificates"
	"cdv-engine/internal/application/ledger"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/pkg/request"
	"cdv-engine/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Ledger       *ledger.Service
	Coordinator  *assignment.Coordinator
	Allocation   *allocation.Service
	Certificates *certificates.Service
}

type rangeBody struct {
	InvestorID string      `json:"investor_id"`
	Start      request.Ref `json:"start"`
	End        request.Ref `json:"end"`
	TermMonths int         `json:"term_months"`
	Strict     *bool       `json:"strict"`
}

func parseInvestor(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: investor_id is required", domain.ErrInvalidInput)
	}
	return id, nil
}

// POST /api/v1/cdv/projects/:id/assign-range/preview  body: {"start": 1, "end": "0010"}
func (h *Handlers) PreviewRange(c *fiber.Ctx) error {
	projectID, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var body rangeBody
	if err := request.Body(c, &body); err != nil {
		return response.FromError(c, err)
	}
	quotas, err := h.Coordinator.PreviewRange(c.UserContext(), projectID, string(body.Start), string(body.End))
	if err != nil {
		return response.FromError(c, err)
	}
	numbers := make([]int, len(quotas))
	for i, q := range quotas {
		numbers[i] = q.Number
	}
	return response.Success(c, "Available quotas in range", quotas, fiber.Map{"count": len(quotas), "numbers": numbers})
}

// POST /api/v1/cdv/projects/:id/assign-range
func (h *Handlers) CommitRange(c *fiber.Ctx) error {
	projectID, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var body rangeBody
	if err := request.Body(c, &body); err != nil {
		return response.FromError(c, err)
	}
	investorID, err := parseInvestor(body.InvestorID)
	if err != nil {
		return response.FromError(c, err)
	}
	res, err := h.Coordinator.Commit(c.UserContext(), assignment.RangeInput{
		ProjectID:  projectID,
		InvestorID: investorID,
		Start:      string(body.Start),
		End:        string(body.End),
		TermMonths: body.TermMonths,
		Strict:     body.Strict,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fmt.Sprintf("%d quota(s) assigned", res.Assigned), res, nil)
}

// POST /api/v1/cdv/quotas/:id/assign  body: {"investor_id": "...", "term_months": 12}
func (h *Handlers) Assign(c *fiber.Ctx) error {
	quotaID, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var body struct {
		InvestorID string `json:"investor_id"`
		TermMonths int    `json:"term_months"`
	}
	if err := request.Body(c, &body); err != nil {
		return response.FromError(c, err)
	}
	investorID, err := parseInvestor(body.InvestorID)
	if err != nil {
		return response.FromError(c, err)
	}
	res, err := h.Coordinator.AssignOne(c.UserContext(), quotaID, investorID, body.TermMonths)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Quota assigned successfully", res, nil)
}

// POST /api/v1/cdv/quotas/:id/allocate
func (h *Handlers) Allocate(c *fiber.Ctx) error {
	quotaID, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	res, err := h.Allocation.AllocateToQuota(c.UserContext(), quotaID, uuid.Nil)
	if err != nil {
		return response.FromError(c, err)
	}
	msg := "Quota allocated successfully"
	if res.AlreadyAllocated {
		msg = "Quota already allocated"
	}
	return response.Success(c, msg, res, nil)
}

// POST /api/v1/cdv/quotas/:id/certificate
func (h *Handlers) IssueCertificate(c *fiber.Ctx) error {
	quotaID, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	cert, err := h.Certificates.IssueForQuota(c.UserContext(), quotaID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Certificate issued successfully", cert, nil)
}

// POST /api/v1/cdv/quotas/maturation/refresh
func (h *Handlers) RefreshMaturation(c *fiber.Ctx) error {
	n, err := h.Ledger.RefreshMaturationStatuses(c.UserContext(), time.Now().UTC())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Maturation statuses refreshed", fiber.Map{"updated": n}, nil)
}
