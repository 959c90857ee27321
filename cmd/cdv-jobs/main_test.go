package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"cdv-engine/internal/application/ledger"
	"cdv-engine/internal/config"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/infrastructure/database"
	"cdv-engine/internal/interfaces/router"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupJobsTest(t *testing.T) *router.Services {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	cfg := &config.Config{CDV: config.CDVConfig{
		UnitPrice:               2000,
		Bundle:                  domain.DefaultBundle,
		CO2PerQuotaKg:           225,
		DefaultMaturationMonths: 12,
	}}
	return router.NewServices(cfg, db, nil)
}

func execute(t *testing.T, svc *router.Services, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := rootCmd(func() (*router.Services, error) { return svc, nil }, &out)
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func TestJobs_RegisterAndAllocate(t *testing.T) {
	svc := setupJobsTest(t)
	p, err := svc.Ledger.CreateProject(context.Background(), ledger.CreateProjectInput{
		Title: "Projeto Piloto", TotalValue: 6000, StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	out, err := execute(t, svc, "register-units", "waste", "500", "--source", "lote-01")
	require.NoError(t, err)
	assert.Equal(t, "registered 500 waste unit(s), sequences 1-500\n", out)
	_, err = execute(t, svc, "register-units", "education", "10")
	require.NoError(t, err)
	_, err = execute(t, svc, "register-units", "products", "10")
	require.NoError(t, err)

	out, err = execute(t, svc, "allocate-batch", p.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "allocated 2 quota(s), 1 remaining")
	assert.Contains(t, out, "short waste: required 250, available 0")
}

func TestJobs_MaturationCommands(t *testing.T) {
	svc := setupJobsTest(t)
	p, err := svc.Ledger.CreateProject(context.Background(), ledger.CreateProjectInput{
		Title: "Longo", TotalValue: 8000, MaturationMonths: 24, StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = execute(t, svc, "redistribute-dates", p.ID.String())
	require.NoError(t, err)
	out, err := execute(t, svc, "redistribute-dates", p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "redistributed 0 quota(s)\n", out)

	out, err = execute(t, svc, "refresh-maturation")
	require.NoError(t, err)
	assert.Contains(t, out, "updated")
}

func TestJobs_RejectsBadArguments(t *testing.T) {
	svc := setupJobsTest(t)
	_, err := execute(t, svc, "redistribute-dates", "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = execute(t, svc, "register-units", "water", "5")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = execute(t, svc, "register-units", "waste", "many")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = execute(t, svc, "allocate-batch")
	assert.Error(t, err)
}
