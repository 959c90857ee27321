package response

import (
	"errors"

	"cdv-engine/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

var statusByError = []struct {
	err    error
	status int
}{
	{domain.ErrInvalidInput, fiber.StatusBadRequest},
	{domain.ErrNotFound, fiber.StatusNotFound},
	{domain.ErrAlreadyExists, fiber.StatusConflict},
	{domain.ErrAlreadyAssigned, fiber.StatusConflict},
	{domain.ErrNoQuotasInRange, fiber.StatusConflict},
	{domain.ErrRangeUnavailable, fiber.StatusConflict},
	{domain.ErrAlreadyAllocated, fiber.StatusConflict},
	{domain.ErrQuotaFrozen, fiber.StatusConflict},
	{domain.ErrInvestorMismatch, fiber.StatusUnprocessableEntity},
	{domain.ErrProjectHasCertificates, fiber.StatusConflict},
	{domain.ErrQuotasAlreadyGenerated, fiber.StatusConflict},
	{domain.ErrConflict, fiber.StatusServiceUnavailable},
}

// StatusOf maps a service error to its HTTP status. Unknown errors are 500.
func StatusOf(err error) int {
	var short *domain.InsufficientInventoryError
	var notReady *domain.NotReadyError
	switch {
	case errors.As(err, &short):
		return fiber.StatusConflict
	case errors.As(err, &notReady):
		return fiber.StatusUnprocessableEntity
	}
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return fiber.StatusInternalServerError
}

// FromError writes err in the standard error format. Shortfalls and unmet
// deltas go into details; internal errors are logged and not echoed.
func FromError(c *fiber.Ctx, err error) error {
	status := StatusOf(err)
	details := map[string]interface{}{}

	var short *domain.InsufficientInventoryError
	var notReady *domain.NotReadyError
	switch {
	case errors.As(err, &short):
		details["shortfalls"] = short.Shortfalls
	case errors.As(err, &notReady):
		details["quota_id"] = notReady.QuotaID
		details["status"] = notReady.Status
		details["missing"] = notReady.Missing
	}

	if status == fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return Error(c, "Internal Server Error", status, details)
	}
	return Error(c, err.Error(), status, details)
}
