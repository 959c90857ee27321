package assignment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cdv-engine/internal/application/ledger"
	"cdv-engine/internal/application/notifications"
	"cdv-engine/internal/application/notifications/mocks"
	"cdv-engine/internal/domain"
	"cdv-engine/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gorm.io/gorm"
)

func TestParseQuotaReference(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"12", 12},
		{"0007", 7},
		{" #0012 ", 12},
		{"3F2A9C1B-0012", 12},
		{"AB12CD34-0007", 7},
		{"cota 5", 5},
		{"000", 0},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseQuotaReference(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, bad := range []string{"", "abc", "---"} {
		_, err := ParseQuotaReference(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, bad)
	}
}

type fixture struct {
	db       *gorm.DB
	ledger   *ledger.Service
	project  *domain.Project
	investor domain.Investor
}

func setupCoordinatorTest(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	f := &fixture{db: db, ledger: &ledger.Service{DB: db}}
	f.project, err = f.ledger.CreateProject(context.Background(), ledger.CreateProjectInput{
		Title:      "Projeto Piloto",
		TotalValue: 20000,
		StartDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	f.investor = domain.Investor{LegalName: "Acme SA", TaxID: "111", Email: "ana@acme.com", ContactName: "Ana"}
	require.NoError(t, db.Create(&f.investor).Error)
	return f
}

func (f *fixture) quotaID(t *testing.T, n int) uuid.UUID {
	var q domain.Quota
	require.NoError(t, f.db.Where("project_id = ? AND number = ?", f.project.ID, n).First(&q).Error)
	return q.ID
}

func TestCommit_InvitesOnFirstAssignmentOnly(t *testing.T) {
	f := setupCoordinatorTest(t)
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	c := &Coordinator{Ledger: f.ledger, Dispatcher: dispatcher}
	ctx := context.Background()

	var sent notifications.InvestorInvite
	dispatcher.EXPECT().SendInvestorInvite(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, inv notifications.InvestorInvite) error {
			sent = inv
			return nil
		}).Times(1)

	res, err := c.Commit(ctx, RangeInput{ProjectID: f.project.ID, InvestorID: f.investor.ID, Start: "0001", End: "#4"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Assigned)
	assert.True(t, res.FirstAssignment)
	assert.True(t, res.InviteSent)
	assert.Empty(t, res.Warning)
	assert.Equal(t, "ana@acme.com", sent.Email)
	assert.Equal(t, "Projeto Piloto", sent.ProjectTitle)
	assert.Equal(t, 4, sent.Quotas)

	again, err := c.Commit(ctx, RangeInput{ProjectID: f.project.ID, InvestorID: f.investor.ID, Start: "5", End: "6"})
	require.NoError(t, err)
	assert.False(t, again.FirstAssignment)
	assert.False(t, again.InviteSent)

	var events int64
	require.NoError(t, f.db.Model(&domain.LedgerEvent{}).Where("event_type = ?", domain.EventInvestorInvited).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestCommit_DispatchFailureKeepsAssignment(t *testing.T) {
	f := setupCoordinatorTest(t)
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	dispatcher.EXPECT().SendInvestorInvite(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))
	c := &Coordinator{Ledger: f.ledger, Dispatcher: dispatcher}

	res, err := c.Commit(context.Background(), RangeInput{ProjectID: f.project.ID, InvestorID: f.investor.ID, Start: "3", End: "1"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, res.Numbers)
	assert.False(t, res.InviteSent)
	assert.Contains(t, res.Warning, "smtp down")

	var owned int64
	require.NoError(t, f.db.Model(&domain.Quota{}).Where("investor_id = ?", f.investor.ID).Count(&owned).Error)
	assert.Equal(t, int64(3), owned)
}

func TestCommit_StrictDefaultAndOverride(t *testing.T) {
	f := setupCoordinatorTest(t)
	c := &Coordinator{Ledger: f.ledger, Strict: true}
	ctx := context.Background()

	_, err := c.AssignOne(ctx, f.quotaID(t, 2), f.investor.ID, 0)
	require.NoError(t, err)

	_, err = c.Commit(ctx, RangeInput{ProjectID: f.project.ID, InvestorID: f.investor.ID, Start: "1", End: "3"})
	assert.ErrorIs(t, err, domain.ErrRangeUnavailable)

	lenient := false
	res, err := c.Commit(ctx, RangeInput{ProjectID: f.project.ID, InvestorID: f.investor.ID, Start: "1", End: "3", Strict: &lenient})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Assigned)
	assert.Equal(t, 1, res.Skipped)
}

func TestAssignOne_Invites(t *testing.T) {
	f := setupCoordinatorTest(t)
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	dispatcher.EXPECT().SendInvestorInvite(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	c := &Coordinator{Ledger: f.ledger, Dispatcher: dispatcher}
	ctx := context.Background()

	first, err := c.AssignOne(ctx, f.quotaID(t, 7), f.investor.ID, 24)
	require.NoError(t, err)
	assert.True(t, first.FirstAssignment)
	assert.True(t, first.InviteSent)

	second, err := c.AssignOne(ctx, f.quotaID(t, 8), f.investor.ID, 0)
	require.NoError(t, err)
	assert.False(t, second.FirstAssignment)

	_, err = c.AssignOne(ctx, f.quotaID(t, 7), f.investor.ID, 0)
	assert.ErrorIs(t, err, domain.ErrAlreadyAssigned)
}

func TestPreviewRange_ParsesReferences(t *testing.T) {
	f := setupCoordinatorTest(t)
	c := &Coordinator{Ledger: f.ledger}
	ctx := context.Background()

	code := domain.QuotaCode(f.project.ID, 4)
	quotas, err := c.PreviewRange(ctx, f.project.ID, "2", code)
	require.NoError(t, err)
	require.Len(t, quotas, 3)
	assert.Equal(t, 2, quotas[0].Number)
	assert.Equal(t, 4, quotas[2].Number)

	_, err = c.PreviewRange(ctx, f.project.ID, "x", "3")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = c.PreviewRange(ctx, uuid.New(), "1", "3")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResendInvite(t *testing.T) {
	f := setupCoordinatorTest(t)
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	c := &Coordinator{Ledger: f.ledger, Dispatcher: dispatcher}
	ctx := context.Background()

	_, err := c.ResendInvite(ctx, f.investor.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = c.ResendInvite(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var sent []notifications.InvestorInvite
	dispatcher.EXPECT().SendInvestorInvite(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, inv notifications.InvestorInvite) error {
			sent = append(sent, inv)
			return nil
		}).Times(2)

	_, err = c.Commit(ctx, RangeInput{ProjectID: f.project.ID, InvestorID: f.investor.ID, Start: "1", End: "3"})
	require.NoError(t, err)

	res, err := c.ResendInvite(ctx, f.investor.ID)
	require.NoError(t, err)
	assert.True(t, res.InviteSent)
	assert.Empty(t, res.Warning)
	assert.Equal(t, f.project.ID, res.ProjectID)
	require.Len(t, sent, 2)
	assert.False(t, sent[0].Resend)
	assert.True(t, sent[1].Resend)
	assert.Equal(t, 3, sent[1].Quotas)
	assert.Equal(t, "Projeto Piloto", sent[1].ProjectTitle)

	var events []domain.LedgerEvent
	require.NoError(t, f.db.Where("event_type = ?", domain.EventInvestorInvited).Find(&events).Error)
	require.Len(t, events, 2)
	resends := 0
	for _, e := range events {
		if strings.Contains(string(e.Detail), `"resend":true`) {
			resends++
		}
	}
	assert.Equal(t, 1, resends)
}

func TestResendInvite_DispatchFailureIsWarning(t *testing.T) {
	f := setupCoordinatorTest(t)
	ctx := context.Background()
	_, err := (&Coordinator{Ledger: f.ledger}).Commit(ctx, RangeInput{ProjectID: f.project.ID, InvestorID: f.investor.ID, Start: "1", End: "1"})
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	dispatcher.EXPECT().SendInvestorInvite(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))
	c := &Coordinator{Ledger: f.ledger, Dispatcher: dispatcher}

	res, err := c.ResendInvite(ctx, f.investor.ID)
	require.NoError(t, err)
	assert.False(t, res.InviteSent)
	assert.Equal(t, "the investor invite email failed: smtp down", res.Warning)

	var events int64
	require.NoError(t, f.db.Model(&domain.LedgerEvent{}).Where("event_type = ?", domain.EventInvestorInvited).Count(&events).Error)
	assert.Equal(t, int64(0), events)
}
