package projects

import (
	"time"

	"cdv-engine/internal/application/allocation"
	"cdv-engine/internal/application/audit"
	"cdv-engine/internal/application/documents"
	"cdv-engine/internal/application/ledger"
	"cdv-engine/internal/pkg/request"
	"cdv-engine/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Ledger     *ledger.Service
	Allocation *allocation.Service
	Documents  *documents.Service
}

type createProjectBody struct {
	Title            string       `json:"title"`
	TotalValue       float64      `json:"total_value"`
	UnitPrice        float64      `json:"unit_price"`
	MaturationMonths int          `json:"maturation_months"`
	StartDate        request.Date `json:"start_date"`
}

// POST /api/v1/cdv/projects
func (h *Handlers) Create(c *fiber.Ctx) error {
	var body createProjectBody
	if err := request.Body(c, &body); err != nil {
		return response.FromError(c, err)
	}
	p, err := h.Ledger.CreateProject(c.UserContext(), ledger.CreateProjectInput{
		Title:            body.Title,
		TotalValue:       body.TotalValue,
		UnitPrice:        body.UnitPrice,
		MaturationMonths: body.MaturationMonths,
		StartDate:        body.StartDate.Time,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Project created successfully", p, fiber.Map{"total_quotas": p.TotalQuotas})
}

// GET /api/v1/cdv/projects
func (h *Handlers) List(c *fiber.Ctx) error {
	list, err := h.Ledger.ListProjects(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Projects fetched successfully", list, fiber.Map{"count": len(list)})
}

// GET /api/v1/cdv/projects/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	p, err := h.Ledger.GetProject(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Project fetched successfully", p, nil)
}

// DELETE /api/v1/cdv/projects/:id
func (h *Handlers) Delete(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.Ledger.DeleteProject(c.UserContext(), id); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Project deleted successfully", fiber.Map{"id": id}, nil)
}

// GET /api/v1/cdv/projects/:id/quotas
func (h *Handlers) Quotas(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	quotas, err := h.Ledger.ListQuotas(c.UserContext(), id, time.Now().UTC())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Quotas fetched successfully", quotas, fiber.Map{"count": len(quotas)})
}

// GET /api/v1/cdv/projects/:id/quotas/export
func (h *Handlers) Export(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	b, name, err := h.Documents.QuotaExport(c.UserContext(), id, time.Now().UTC())
	if err != nil {
		return response.FromError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Attachment(name)
	return c.Send(b)
}

// POST /api/v1/cdv/projects/:id/maturation/redistribute
func (h *Handlers) Redistribute(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	n, err := h.Ledger.RedistributeMaturationDates(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Maturation dates redistributed", fiber.Map{"updated": n}, nil)
}

// POST /api/v1/cdv/projects/:id/allocate  body: {"limit": 0}
func (h *Handlers) Allocate(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var body struct {
		Limit int `json:"limit"`
	}
	if err := request.Body(c, &body); err != nil {
		return response.FromError(c, err)
	}
	res, err := h.Allocation.AllocateProject(c.UserContext(), id, body.Limit)
	if err != nil {
		return response.FromError(c, err)
	}
	msg := "Project quotas allocated"
	if res.Shortfall != nil {
		msg = "Allocation stopped: insufficient inventory"
	}
	return response.Success(c, msg, fiber.Map{
		"allocated":  res.Allocated,
		"remaining":  res.Remaining,
		"shortfalls": res.Shortfalls(),
	}, nil)
}

// GET /api/v1/cdv/projects/:id/events?limit=100
func (h *Handlers) Events(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	limit, err := request.IntQuery(c, "limit", 100)
	if err != nil {
		return response.FromError(c, err)
	}
	events, err := audit.Events(c.UserContext(), h.Ledger.DB, id.String(), limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Ledger events fetched successfully", events, fiber.Map{"count": len(events)})
}
