package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"cdv-engine/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okPinger struct{}

func (okPinger) Ping() error { return nil }

func setupHealthHandlers(t *testing.T) (*Handlers, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return &Handlers{Rdb: rdb, HealthAdminKey: "test-admin-key"}, rdb
}

func TestReset(t *testing.T) {
	h, rdb := setupHealthHandlers(t)
	app := fiber.New()
	app.Get("/reset", h.Reset)
	ctx := context.Background()
	require.NoError(t, rdb.Set(ctx, middleware.KeyReqTotal, "42", 0).Err())

	resp, err := app.Test(httptest.NewRequest("GET", "/reset?key=wrong", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/reset?key=test-admin-key", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(0), rdb.Exists(ctx, middleware.KeyReqTotal).Val())
	assert.Equal(t, int64(1), rdb.Exists(ctx, middleware.KeyStartTime).Val())
}

func TestJSON(t *testing.T) {
	h, _ := setupHealthHandlers(t)
	app := fiber.New()
	app.Get("/health/json", h.JSON)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	h.DB = okPinger{}
	resp, err = app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "cdv-engine", out["service"])
	assert.Equal(t, "ok", out["status"])
}

func TestErrors(t *testing.T) {
	h, rdb := setupHealthHandlers(t)
	app := fiber.New()
	app.Get("/health/errors", h.Errors)
	ctx := context.Background()
	require.NoError(t, rdb.LPush(ctx, middleware.KeyErrorLog, `{"path":"/x","status":500}`, "not json").Err())

	resp, err := app.Test(httptest.NewRequest("GET", "/health/errors", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out, 1)
	assert.Equal(t, "/x", out[0]["path"])
}
