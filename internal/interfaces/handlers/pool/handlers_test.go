package pool

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	poolsvc "cdv-engine/internal/application/pool"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type envelope struct {
	Status   string                 `json:"status"`
	Data     json.RawMessage        `json:"data"`
	Metadata map[string]interface{} `json:"metadata"`
}

func setupPoolTest(t *testing.T) *fiber.App {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	h := &Handlers{Service: &poolsvc.Service{DB: db}}
	app := fiber.New()
	app.Post("/pool/units", h.Register)
	app.Get("/pool/units", h.Head)
	app.Get("/pool/stock", h.Stock)
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, envelope) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &env))
	return resp, env
}

func TestRegisterAndStock(t *testing.T) {
	app := setupPoolTest(t)

	resp, env := do(t, app, "POST", "/pool/units", map[string]interface{}{"category": "waste", "count": 500, "source_ref": "lote-01"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var reg poolsvc.RegisterResult
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	assert.Equal(t, int64(1), reg.FirstSequence)
	assert.Equal(t, int64(500), reg.LastSequence)

	resp, env = do(t, app, "POST", "/pool/units", map[string]interface{}{"category": "waste", "count": 10})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	assert.Equal(t, int64(501), reg.FirstSequence)

	for _, body := range []map[string]interface{}{
		{"category": "education", "count": 10},
		{"category": "products", "count": 2},
	} {
		resp, _ = do(t, app, "POST", "/pool/units", body)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	resp, env = do(t, app, "GET", "/pool/stock", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var st poolsvc.Stock
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, int64(510), st.Get(domain.CategoryWaste).Available)
	assert.Equal(t, int64(2), st.Capacity)

	resp, env = do(t, app, "GET", "/pool/units?category=waste&limit=3", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var units []domain.ImpactUnit
	require.NoError(t, json.Unmarshal(env.Data, &units))
	require.Len(t, units, 3)
	assert.Equal(t, int64(1), units[0].Sequence)
	assert.EqualValues(t, 3, env.Metadata["count"])
}

func TestRegisterRejectsBadInput(t *testing.T) {
	app := setupPoolTest(t)
	resp, _ := do(t, app, "POST", "/pool/units", map[string]interface{}{"category": "water", "count": 5})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, app, "POST", "/pool/units", map[string]interface{}{"category": "waste", "count": 0})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, app, "GET", "/pool/units?category=waste&limit=abc", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
