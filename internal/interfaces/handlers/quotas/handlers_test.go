package quotas

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cdv-engine/internal/application/allocation"
	"cdv-engine/internal/application/assignment"
	"cdv-engine/internal/application/certificates"
	"cdv-engine/internal/application/ledger"
	"cdv-engine/internal/application/pool"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

type fixture struct {
	app      *fiber.App
	db       *gorm.DB
	project  *domain.Project
	investor domain.Investor
}

func setupQuotasTest(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	led := &ledger.Service{DB: db}
	h := &Handlers{
		Ledger:       led,
		Coordinator:  &assignment.Coordinator{Ledger: led},
		Allocation:   &allocation.Service{DB: db},
		Certificates: &certificates.Service{DB: db},
	}
	app := fiber.New()
	app.Post("/projects/:id/assign-range/preview", h.PreviewRange)
	app.Post("/projects/:id/assign-range", h.CommitRange)
	app.Post("/quotas/maturation/refresh", h.RefreshMaturation)
	app.Post("/quotas/:id/assign", h.Assign)
	app.Post("/quotas/:id/allocate", h.Allocate)
	app.Post("/quotas/:id/certificate", h.IssueCertificate)

	p, err := led.CreateProject(context.Background(), ledger.CreateProjectInput{
		Title:      "Projeto Piloto",
		TotalValue: 10000,
		StartDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	inv := domain.Investor{LegalName: "Acme SA", TaxID: "111"}
	require.NoError(t, db.Create(&inv).Error)
	return &fixture{app: app, db: db, project: p, investor: inv}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*http.Response, envelope) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &env))
	return resp, env
}

func (f *fixture) quotaID(t *testing.T, n int) string {
	var q domain.Quota
	require.NoError(t, f.db.Where("project_id = ? AND number = ?", f.project.ID, n).First(&q).Error)
	return q.ID.String()
}

func TestRangePreviewAndCommit(t *testing.T) {
	f := setupQuotasTest(t)
	base := "/projects/" + f.project.ID.String()

	resp, env := f.do(t, "POST", base+"/assign-range/preview", map[string]interface{}{"start": 4, "end": "0002"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, env.Error.Message)
	var preview []domain.Quota
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	require.Len(t, preview, 3)
	assert.Equal(t, 2, preview[0].Number)

	resp, env = f.do(t, "POST", base+"/assign-range", map[string]interface{}{
		"investor_id": f.investor.ID.String(), "start": "1", "end": domain.QuotaCode(f.project.ID, 3),
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, env.Error.Message)
	var res assignment.CommitResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, []int{1, 2, 3}, res.Numbers)
	assert.True(t, res.FirstAssignment)

	resp, env = f.do(t, "POST", base+"/assign-range", map[string]interface{}{
		"investor_id": f.investor.ID.String(), "start": 1, "end": 3,
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "error", env.Status)

	resp, _ = f.do(t, "POST", base+"/assign-range", map[string]interface{}{"investor_id": f.investor.ID.String(), "start": "abc", "end": 3})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, "POST", base+"/assign-range", map[string]interface{}{"start": 4, "end": 5})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	for _, bound := range []string{`-3`, `1.5`, `1e3`} {
		body := json.RawMessage(`{"investor_id":"` + f.investor.ID.String() + `","start":` + bound + `,"end":5}`)
		resp, _ = f.do(t, "POST", base+"/assign-range", body)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, bound)
		resp, _ = f.do(t, "POST", base+"/assign-range/preview", body)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, bound)
	}
	var owned int64
	require.NoError(t, f.db.Model(&domain.Quota{}).Where("investor_id = ?", f.investor.ID).Count(&owned).Error)
	assert.Equal(t, int64(3), owned)
}

func TestAssignSingleQuota(t *testing.T) {
	f := setupQuotasTest(t)
	path := "/quotas/" + f.quotaID(t, 5) + "/assign"

	resp, env := f.do(t, "POST", path, map[string]interface{}{"investor_id": f.investor.ID.String(), "term_months": 24})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, env.Error.Message)
	assert.Contains(t, string(env.Data), `"first_assignment":true`)

	resp, env = f.do(t, "POST", path, map[string]interface{}{"investor_id": f.investor.ID.String()})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Contains(t, env.Error.Message, "already assigned")
}

func TestAllocateAndCertify(t *testing.T) {
	f := setupQuotasTest(t)
	id := f.quotaID(t, 1)

	resp, env := f.do(t, "POST", "/quotas/"+id+"/certificate", nil)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Len(t, env.Error.Details["missing"], 3)

	resp, env = f.do(t, "POST", "/quotas/"+id+"/allocate", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Len(t, env.Error.Details["shortfalls"], 3)

	ps := &pool.Service{DB: f.db}
	ctx := context.Background()
	for c, n := range map[domain.Category]int{domain.CategoryWaste: 250, domain.CategoryEducation: 5, domain.CategoryProduct: 1} {
		_, err := ps.RegisterUnits(ctx, c, n, "")
		require.NoError(t, err)
	}

	resp, env = f.do(t, "POST", "/quotas/"+id+"/allocate", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, env.Error.Message)
	assert.Equal(t, "Quota allocated successfully", env.Message)

	resp, env = f.do(t, "POST", "/quotas/"+id+"/allocate", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Quota already allocated", env.Message)

	resp, env = f.do(t, "POST", "/quotas/"+id+"/certificate", nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, env.Error.Message)
	var cert domain.Certificate
	require.NoError(t, json.Unmarshal(env.Data, &cert))
	assert.Regexp(t, `^CDV-\d{4}-000001$`, cert.Number)

	resp, _ = f.do(t, "POST", "/quotas/"+id+"/allocate", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestRefreshMaturation(t *testing.T) {
	f := setupQuotasTest(t)
	resp, env := f.do(t, "POST", "/quotas/maturation/refresh", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), `"updated":0`)
}
