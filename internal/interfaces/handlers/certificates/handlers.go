package certificates

import (
	"fmt"

	certsvc "cdv-engine/internal/application/certificates"
	"cdv-engine/internal/application/documents"
	invsvc "cdv-engine/internal/application/investors"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/middleware"
	"cdv-engine/internal/pkg/request"
	"cdv-engine/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service   *certsvc.Service
	Documents *documents.Service
	Investors *invsvc.Service
}

// POST /api/v1/cdv/certificates/consolidated  body: {"investor_id": "...", "quota_ids": ["..."]}
func (h *Handlers) IssueConsolidated(c *fiber.Ctx) error {
	var body struct {
		InvestorID string   `json:"investor_id"`
		QuotaIDs   []string `json:"quota_ids"`
	}
	if err := request.Body(c, &body); err != nil {
		return response.FromError(c, err)
	}
	investorID, err := uuid.Parse(body.InvestorID)
	if err != nil {
		return response.FromError(c, fmt.Errorf("%w: investor_id is required", domain.ErrInvalidInput))
	}
	ids := make([]uuid.UUID, 0, len(body.QuotaIDs))
	for _, s := range body.QuotaIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return response.FromError(c, fmt.Errorf("%w: invalid quota id %q", domain.ErrInvalidInput, s))
		}
		ids = append(ids, id)
	}
	cert, err := h.Service.IssueConsolidated(c.UserContext(), investorID, ids)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Consolidated certificate issued successfully", cert, nil)
}

// GET /api/v1/cdv/certificates/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	cert, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Certificate fetched successfully", cert, nil)
}

// GET /api/v1/cdv/projects/:id/certificates
func (h *Handlers) ListByProject(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	list, err := h.Service.ListByProject(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Certificates fetched successfully", list, fiber.Map{"count": len(list)})
}

// GET /api/v1/cdv/portal/certificates
// Investors linked to the session email; the portal never takes an investor id.
func (h *Handlers) Mine(c *fiber.Ctx) error {
	u, ok := middleware.SessionUserFrom(c)
	if !ok || u.Email == "" {
		return response.Unauthorized(c, "Unauthorized")
	}
	invs, err := h.Investors.ByEmail(c.UserContext(), u.Email)
	if err != nil {
		return response.FromError(c, err)
	}
	if len(invs) == 0 {
		return response.FromError(c, fmt.Errorf("%w: no investor linked to this account", domain.ErrNotFound))
	}
	ids := make([]uuid.UUID, len(invs))
	for i, inv := range invs {
		ids[i] = inv.ID
	}
	list, err := h.Service.ListByInvestors(c.UserContext(), ids)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Certificates fetched successfully", list, fiber.Map{"count": len(list), "investors": len(invs)})
}

// GET /api/v1/cdv/certificates/:id/pdf
func (h *Handlers) PDF(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	b, name, err := h.Documents.CertificatePDF(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Attachment(name)
	return c.Send(b)
}

// GET /api/v1/cdv/public/certificates/:hash (no auth)
func (h *Handlers) Validate(c *fiber.Ctx) error {
	v, err := h.Service.Validate(c.UserContext(), c.Params("hash"))
	if err != nil {
		return response.FromError(c, err)
	}
	msg := "Certificate is valid"
	if !v.Valid {
		msg = "Certificate content does not match its seal"
	}
	return response.Success(c, msg, v, nil)
}
