package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cdv-engine/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// UUIDParam parses a route parameter as a uuid.
func UUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", domain.ErrInvalidInput, name)
	}
	return id, nil
}

// Body decodes the JSON request body into out. An empty body leaves out untouched.
func Body(c *fiber.Ctx, out interface{}) error {
	if len(bytes.TrimSpace(c.Body())) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Body(), out); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	return nil
}

// Ref is a quota reference typed by a person: accepts 12 or "0012" or a display code.
// Strings are parsed leniently later; a JSON number must be a non-negative integer.
type Ref string

func (r *Ref) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = Ref(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if v, err := strconv.Atoi(n.String()); err != nil || v < 0 {
		return fmt.Errorf("%w: quota number %s must be a non-negative integer", domain.ErrInvalidInput, n.String())
	}
	*r = Ref(n.String())
	return nil
}

// Date accepts "2006-01-02" or RFC 3339; empty is the zero time.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// IntQuery reads a non-negative integer query parameter.
func IntQuery(c *fiber.Ctx, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, name)
	}
	return n, nil
}
