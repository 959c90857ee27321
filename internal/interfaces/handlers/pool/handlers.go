package pool

import (
	poolsvc "cdv-engine/internal/application/pool"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/pkg/request"
	"cdv-engine/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *poolsvc.Service
}

// POST /api/v1/cdv/pool/units  body: {"category": "waste", "count": 250, "source_ref": "..."}
func (h *Handlers) Register(c *fiber.Ctx) error {
	var body struct {
		Category  string `json:"category"`
		Count     int    `json:"count"`
		SourceRef string `json:"source_ref"`
	}
	if err := request.Body(c, &body); err != nil {
		return response.FromError(c, err)
	}
	cat, err := domain.ParseCategory(body.Category)
	if err != nil {
		return response.FromError(c, err)
	}
	res, err := h.Service.RegisterUnits(c.UserContext(), cat, body.Count, body.SourceRef)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Units registered successfully", res, nil)
}

// GET /api/v1/cdv/pool/stock
func (h *Handlers) Stock(c *fiber.Ctx) error {
	st, err := h.Service.Stock(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Pool stock fetched successfully", st, nil)
}

// GET /api/v1/cdv/pool/units?category=waste&limit=50
func (h *Handlers) Head(c *fiber.Ctx) error {
	cat, err := domain.ParseCategory(c.Query("category"))
	if err != nil {
		return response.FromError(c, err)
	}
	limit, err := request.IntQuery(c, "limit", 50)
	if err != nil {
		return response.FromError(c, err)
	}
	units, err := h.Service.PreviewAvailable(c.UserContext(), cat, limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Next available units", units, fiber.Map{"count": len(units)})
}
