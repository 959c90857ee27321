package middleware

import (
	"cdv-engine/internal/pkg/actor"
	"cdv-engine/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const userLocal = "user"

// RequireAuth ensures a user is in the session and stamps the request context
// with the caller so ledger events record who acted.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, ok := SessionUserFrom(c)
		if !ok {
			return response.Unauthorized(c, "Unauthorized")
		}
		who := u.Email
		if who == "" {
			who = u.UserID
		}
		c.SetUserContext(actor.WithActor(c.UserContext(), who))
		return c.Next()
	}
}
