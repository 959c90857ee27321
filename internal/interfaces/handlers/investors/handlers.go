package investors

import (
	"cdv-engine/internal/application/assignment"
	invsvc "cdv-engine/internal/application/investors"
	"cdv-engine/internal/pkg/request"
	"cdv-engine/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service     *invsvc.Service
	Coordinator *assignment.Coordinator
}

// POST /api/v1/cdv/investors
func (h *Handlers) Create(c *fiber.Ctx) error {
	var body invsvc.CreateInput
	if err := request.Body(c, &body); err != nil {
		return response.FromError(c, err)
	}
	inv, err := h.Service.Create(c.UserContext(), body)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Investor created successfully", inv, nil)
}

// GET /api/v1/cdv/investors?q=acme
func (h *Handlers) List(c *fiber.Ctx) error {
	list, err := h.Service.List(c.UserContext(), c.Query("q"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Investors fetched successfully", list, fiber.Map{"count": len(list)})
}

// GET /api/v1/cdv/investors/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	inv, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Investor fetched successfully", inv, nil)
}

// POST /api/v1/cdv/investors/:id/invite
func (h *Handlers) Invite(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	res, err := h.Coordinator.ResendInvite(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	msg := "Invite resent successfully"
	if !res.InviteSent {
		msg = "Invite not sent"
	}
	return response.Success(c, msg, res, nil)
}
