package documents

import (
	"bytes"
	"context"
	"testing"
	"time"

	"cdv-engine/internal/application/allocation"
	"cdv-engine/internal/application/certificates"
	"cdv-engine/internal/application/ledger"
	"cdv-engine/internal/application/pool"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

func setupDocumentsTest(t *testing.T) (*Service, *domain.Project, *domain.Certificate) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	ctx := context.Background()

	led := &ledger.Service{DB: db}
	p, err := led.CreateProject(ctx, ledger.CreateProjectInput{
		Title:      "Projeto Piloto",
		TotalValue: 6000,
		StartDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	inv := domain.Investor{LegalName: "Acme Reciclagem SA", TaxID: "12345678000190"}
	require.NoError(t, db.Create(&inv).Error)

	ps := &pool.Service{DB: db}
	for c, n := range map[domain.Category]int{domain.CategoryWaste: 250, domain.CategoryEducation: 5, domain.CategoryProduct: 1} {
		_, err := ps.RegisterUnits(ctx, c, n, "")
		require.NoError(t, err)
	}

	var q domain.Quota
	require.NoError(t, db.Where("project_id = ? AND number = 1", p.ID).First(&q).Error)
	_, err = led.AssignInvestor(ctx, q.ID, inv.ID, 0)
	require.NoError(t, err)
	_, err = (&allocation.Service{DB: db}).AllocateToQuota(ctx, q.ID, p.ID)
	require.NoError(t, err)
	certs := &certificates.Service{DB: db}
	cert, err := certs.IssueForQuota(ctx, q.ID)
	require.NoError(t, err)

	return &Service{DB: db, Ledger: led, Certificates: certs, PublicBaseURL: "https://cdv.test/validar/"}, p, cert
}

func TestCertificatePDF(t *testing.T) {
	svc, _, cert := setupDocumentsTest(t)

	b, name, err := svc.CertificatePDF(context.Background(), cert.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF-")))
	assert.Equal(t, cert.Number+".pdf", name)

	_, _, err = svc.CertificatePDF(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuotaExport(t *testing.T) {
	svc, p, cert := setupDocumentsTest(t)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	b, name, err := svc.QuotaExport(context.Background(), p.ID, now)
	require.NoError(t, err)
	assert.Contains(t, name, "20250601")

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue("Projeto", "B1")
	require.NoError(t, err)
	assert.Equal(t, "Projeto Piloto", title)
	count, err := f.GetCellValue("Projeto", "B6")
	require.NoError(t, err)
	assert.Equal(t, "3", count)

	rows, err := f.GetRows("Cotas")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Cota", rows[0][0])
	assert.Equal(t, "Acme Reciclagem SA", rows[1][2])
	assert.Equal(t, string(domain.QuotaCertificateIssued), rows[1][3])
	assert.Equal(t, cert.Number, rows[1][11])
	assert.Equal(t, string(domain.QuotaGenerating), rows[2][3])
}

func TestFormatInt(t *testing.T) {
	assert.Equal(t, "0", formatInt(0))
	assert.Equal(t, "250", formatInt(250))
	assert.Equal(t, "2.500", formatInt(2500))
	assert.Equal(t, "-1.234.567", formatInt(-1234567))
}
