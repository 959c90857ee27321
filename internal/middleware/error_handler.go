package middleware

import (
	"errors"

	"cdv-engine/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler is the global error handler. Fiber errors keep their code;
// service errors are mapped through response.FromError.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Error(c, fe.Message, fe.Code, nil)
	}
	return response.FromError(c, err)
}
