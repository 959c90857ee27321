package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	SessionCookieName  = "cdv.sid"
	SessionRedisPrefix = "session:"
	sessionMaxAge      = 24 * time.Hour
)

// SessionUser is the shape stored in session under "user".
type SessionUser struct {
	UserID   string `json:"user_id"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

// Session loads the session from Redis into Locals ("user", "session_id") and
// slides its TTL. Sessions are created by the identity provider, not here.
func Session(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies(SessionCookieName)
		// signed cookies look like "s:id.signature"
		if strings.HasPrefix(sessionID, "s:") {
			parts := strings.SplitN(sessionID[2:], ".", 2)
			sessionID = parts[0]
		}

		var data map[string]interface{}
		if sessionID != "" {
			b, err := rdb.Get(context.Background(), SessionRedisPrefix+sessionID).Bytes()
			if err == nil {
				_ = json.Unmarshal(b, &data)
			}
		}
		if u, ok := data["user"]; ok && u != nil {
			c.Locals(userLocal, u)
		} else {
			c.Locals(userLocal, nil)
		}
		c.Locals("session_id", sessionID)

		if err := c.Next(); err != nil {
			return err
		}
		if data != nil {
			rdb.Expire(context.Background(), SessionRedisPrefix+sessionID, sessionMaxAge)
		}
		return nil
	}
}

// SessionUserFrom decodes the session user stored in Locals.
func SessionUserFrom(c *fiber.Ctx) (SessionUser, bool) {
	m, ok := c.Locals(userLocal).(map[string]interface{})
	if !ok {
		return SessionUser{}, false
	}
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	return SessionUser{
		UserID:   str("user_id"),
		Fullname: str("fullname"),
		Email:    str("email"),
		Role:     str("role"),
	}, true
}
