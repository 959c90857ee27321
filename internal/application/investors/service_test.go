package investors

import (
	"context"
	"testing"

	"cdv-engine/internal/domain"
	"cdv-engine/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupInvestorTest(t *testing.T) *Service {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	return &Service{DB: db}
}

func TestCreateInvestor(t *testing.T) {
	svc := setupInvestorTest(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateInput{LegalName: " Acme Reciclagem SA ", TaxID: "12.345.678/0001-90", Email: "CFO@Acme.com"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Reciclagem SA", inv.LegalName)
	assert.Equal(t, "12345678000190", inv.TaxID)
	assert.Equal(t, "cfo@acme.com", inv.Email)
	assert.False(t, inv.Invited)

	_, err = svc.Create(ctx, CreateInput{LegalName: "Other", TaxID: "12345678000190"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = svc.Create(ctx, CreateInput{LegalName: "", TaxID: "1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.Create(ctx, CreateInput{LegalName: "X", TaxID: "2", Email: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
	_, err = svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListInvestors(t *testing.T) {
	svc := setupInvestorTest(t)
	ctx := context.Background()
	for _, in := range []CreateInput{
		{LegalName: "Zeta Papel", TaxID: "111"},
		{LegalName: "Alfa Metais", TaxID: "222"},
		{LegalName: "Beta Vidros", TaxID: "333"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Alfa Metais", all[0].LegalName)

	found, err := svc.List(ctx, "vidro")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "333", found[0].TaxID)
}
