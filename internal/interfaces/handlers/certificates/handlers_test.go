package certificates

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cdv-engine/internal/application/allocation"
	certsvc "cdv-engine/internal/application/certificates"
	"cdv-engine/internal/application/documents"
	"cdv-engine/internal/application/ledger"
	"cdv-engine/internal/application/pool"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

type fixture struct {
	app      *fiber.App
	db       *gorm.DB
	ledger   *ledger.Service
	alloc    *allocation.Service
	certs    *certsvc.Service
	project  *domain.Project
	investor domain.Investor
}

func setupCertificatesTest(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	f := &fixture{
		db:     db,
		ledger: &ledger.Service{DB: db},
		alloc:  &allocation.Service{DB: db},
		certs:  &certsvc.Service{DB: db},
	}
	h := &Handlers{
		Service:   f.certs,
		Documents: &documents.Service{DB: db, Ledger: f.ledger, Certificates: f.certs, PublicBaseURL: "https://cdv.example.com/validar"},
	}
	app := fiber.New()
	app.Post("/certificates/consolidated", h.IssueConsolidated)
	app.Get("/certificates/:id", h.Get)
	app.Get("/certificates/:id/pdf", h.PDF)
	app.Get("/projects/:id/certificates", h.ListByProject)
	app.Get("/public/certificates/:hash", h.Validate)
	f.app = app

	ctx := context.Background()
	f.project, err = f.ledger.CreateProject(ctx, ledger.CreateProjectInput{
		Title:      "Projeto Piloto",
		TotalValue: 6000,
		StartDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	f.investor = domain.Investor{LegalName: "Acme SA", TaxID: "111"}
	require.NoError(t, db.Create(&f.investor).Error)

	ps := &pool.Service{DB: db}
	for c, n := range map[domain.Category]int{domain.CategoryWaste: 750, domain.CategoryEducation: 15, domain.CategoryProduct: 3} {
		_, err := ps.RegisterUnits(ctx, c, n, "")
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) readyQuota(t *testing.T, n int, assign bool) uuid.UUID {
	ctx := context.Background()
	var q domain.Quota
	require.NoError(t, f.db.Where("project_id = ? AND number = ?", f.project.ID, n).First(&q).Error)
	if assign {
		_, err := f.ledger.AssignInvestor(ctx, q.ID, f.investor.ID, 0)
		require.NoError(t, err)
	}
	_, err := f.alloc.AllocateToQuota(ctx, q.ID, f.project.ID)
	require.NoError(t, err)
	return q.ID
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*http.Response, envelope, []byte) {
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
	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp, env, raw
}

func TestConsolidatedIssueAndLookup(t *testing.T) {
	f := setupCertificatesTest(t)
	q1 := f.readyQuota(t, 1, true)
	q2 := f.readyQuota(t, 2, true)

	resp, env, _ := f.do(t, "POST", "/certificates/consolidated", map[string]interface{}{
		"investor_id": f.investor.ID.String(),
		"quota_ids":   []string{q1.String(), q2.String(), q1.String()},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, env.Error.Message)
	var cert domain.Certificate
	require.NoError(t, json.Unmarshal(env.Data, &cert))
	assert.True(t, cert.Consolidated)
	assert.Equal(t, int64(500), cert.TotalWasteKg)

	resp, env, _ = f.do(t, "GET", "/certificates/"+cert.ID.String(), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), cert.Number)

	resp, env, _ = f.do(t, "GET", "/projects/"+f.project.ID.String()+"/certificates", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var list []domain.Certificate
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)

	resp, env, _ = f.do(t, "GET", "/public/certificates/"+strings.ToLower(cert.ValidationHash), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, env.Error.Message)
	assert.Equal(t, "Certificate is valid", env.Message)
	assert.Contains(t, string(env.Data), `"project_title":"Projeto Piloto"`)

	resp, _, raw := f.do(t, "GET", "/certificates/"+cert.ID.String()+"/pdf", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), cert.Number+".pdf")
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF")))
}

func TestConsolidatedRejections(t *testing.T) {
	f := setupCertificatesTest(t)
	owned := f.readyQuota(t, 1, true)
	unowned := f.readyQuota(t, 2, false)

	resp, _, _ := f.do(t, "POST", "/certificates/consolidated", map[string]interface{}{
		"investor_id": f.investor.ID.String(),
		"quota_ids":   []string{owned.String(), unowned.String()},
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp, _, _ = f.do(t, "POST", "/certificates/consolidated", map[string]interface{}{
		"investor_id": f.investor.ID.String(),
		"quota_ids":   []string{},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _, _ = f.do(t, "POST", "/certificates/consolidated", map[string]interface{}{
		"investor_id": "nope",
		"quota_ids":   []string{owned.String()},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var n int64
	require.NoError(t, f.db.Model(&domain.Certificate{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestLookupMisses(t *testing.T) {
	f := setupCertificatesTest(t)
	resp, _, _ := f.do(t, "GET", "/certificates/"+uuid.NewString(), nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp, _, _ = f.do(t, "GET", "/certificates/not-a-uuid", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp, _, _ = f.do(t, "GET", "/public/certificates/DEADBEEF", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
