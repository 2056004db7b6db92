package purchase

import (
	"context"
	"testing"
	"time"

	"github.com/bodybiz/backend/auth"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	m, err := NewManager(zaptest.NewLogger(t), db)
	require.NoError(t, err)
	return m
}

func testPurchase(t *testing.T, m *Manager, opt NewPurchaseOptions) *Purchase {
	t.Helper()
	if opt.ClientID == "" {
		opt.ClientID = "client-1"
	}
	if opt.TrainerID == "" {
		opt.TrainerID = "trainer-1"
	}
	if opt.TrainerRole == "" {
		opt.TrainerRole = auth.RoleTrainer
	}
	if opt.ProgramID == nil && opt.CustomProgramName == nil {
		programID := "program-1"
		opt.ProgramID = &programID
	}
	if opt.Amount.IsZero() {
		opt.Amount = decimal.RequireFromString("500")
	}
	if opt.Status == "" {
		opt.Status = StatusPending
	}
	p, err := m.NewPurchase(context.Background(), opt)
	require.NoError(t, err)
	return p
}

func TestNewPurchaseStampsCommission(t *testing.T) {
	m := testManager(t)

	p := testPurchase(t, m, NewPurchaseOptions{
		Amount: decimal.RequireFromString("500"),
	})

	require.True(t, p.TrainerCommissionRate.Equal(decimal.RequireFromString("0.7")))
	require.True(t, p.TrainerAmount.Equal(decimal.RequireFromString("350")))
	require.True(t, p.OwnerAmount.Equal(decimal.RequireFromString("150")))
	require.Equal(t, "usd", p.Currency)
	require.Equal(t, StatusPending, p.Status)
}

func TestNewPurchaseAdminKeepsEverything(t *testing.T) {
	m := testManager(t)

	p := testPurchase(t, m, NewPurchaseOptions{
		TrainerRole: auth.RoleAdmin,
		Amount:      decimal.RequireFromString("1000"),
	})

	require.True(t, p.TrainerCommissionRate.Equal(decimal.NewFromInt(1)))
	require.True(t, p.TrainerAmount.Equal(decimal.NewFromInt(1000)))
	require.True(t, p.OwnerAmount.IsZero())
}

func TestNewPurchaseFixedTermEndDate(t *testing.T) {
	m := testManager(t)

	months := 3
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	p := testPurchase(t, m, NewPurchaseOptions{
		DurationMonths: &months,
		StartDate:      start,
	})

	require.NotNil(t, p.EndDate)
	require.Equal(t, start.AddDate(0, 0, 90), p.EndDate.UTC())
}

func TestNewPurchaseRejectsBadInput(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	programID := "p"
	_, err := m.NewPurchase(ctx, NewPurchaseOptions{
		ClientID:    "c",
		TrainerID:   "t",
		TrainerRole: auth.RoleTrainer,
		ProgramID:   &programID,
		Amount:      decimal.Zero,
		Status:      StatusPending,
	})
	require.Error(t, err)

	_, err = m.NewPurchase(ctx, NewPurchaseOptions{
		ClientID:    "c",
		TrainerID:   "t",
		TrainerRole: auth.RoleTrainer,
		ProgramID:   &programID,
		Amount:      decimal.NewFromInt(100),
		Status:      StatusCancelled,
	})
	require.Error(t, err)

	// a purchase names either a catalog program or a custom one, never both
	custom := "Contest Prep"
	_, err = m.NewPurchase(ctx, NewPurchaseOptions{
		ClientID:          "c",
		TrainerID:         "t",
		TrainerRole:       auth.RoleTrainer,
		ProgramID:         &programID,
		CustomProgramName: &custom,
		Amount:            decimal.NewFromInt(100),
		Status:            StatusPending,
	})
	require.Error(t, err)

	_, err = m.NewPurchase(ctx, NewPurchaseOptions{
		ClientID:    "c",
		TrainerID:   "t",
		TrainerRole: auth.RoleTrainer,
		Amount:      decimal.NewFromInt(100),
		Status:      StatusPending,
	})
	require.Error(t, err)
}

func TestUpdateStatusFollowsLifecycle(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	p := testPurchase(t, m, NewPurchaseOptions{})

	updated, err := m.UpdateStatus(ctx, p.ID, StatusActive)
	require.NoError(t, err)
	require.Equal(t, StatusActive, updated.Status)

	updated, err = m.UpdateStatus(ctx, p.ID, StatusPaused)
	require.NoError(t, err)
	require.Equal(t, StatusPaused, updated.Status)

	_, err = m.UpdateStatus(ctx, p.ID, StatusCompleted)
	require.Error(t, err)

	updated, err = m.UpdateStatus(ctx, p.ID, StatusCancelled)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, updated.Status)

	// terminal, no way back
	_, err = m.UpdateStatus(ctx, p.ID, StatusActive)
	require.Error(t, err)
}

func TestUpdateStatusSameStateIsNoop(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	p := testPurchase(t, m, NewPurchaseOptions{})
	updated, err := m.UpdateStatus(ctx, p.ID, StatusPending)
	require.NoError(t, err)
	require.Equal(t, StatusPending, updated.Status)
}

func TestUpdateStatusLeavesSnapshotAlone(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	p := testPurchase(t, m, NewPurchaseOptions{
		Amount: decimal.RequireFromString("300"),
	})

	_, err := m.UpdateStatus(ctx, p.ID, StatusActive)
	require.NoError(t, err)

	reloaded, err := m.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, reloaded.TrainerAmount.Equal(decimal.RequireFromString("210")))
	require.True(t, reloaded.OwnerAmount.Equal(decimal.RequireFromString("90")))
	require.True(t, reloaded.TrainerCommissionRate.Equal(decimal.RequireFromString("0.7")))
}

func TestUpdateStatusMissingPurchase(t *testing.T) {
	m := testManager(t)
	p, err := m.UpdateStatus(context.Background(), "nope", StatusActive)
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestGetBySubscriptionID(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	p := testPurchase(t, m, NewPurchaseOptions{Status: StatusActive})
	require.NoError(t, m.SetSubscriptionID(ctx, p.ID, "sub_123"))

	found, err := m.GetBySubscriptionID(ctx, "sub_123")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, p.ID, found.ID)

	missing, err := m.GetBySubscriptionID(ctx, "sub_999")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestPaymentLinkConsumeIsIdempotent(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	p := testPurchase(t, m, NewPurchaseOptions{})
	_, err := m.NewPaymentLink(ctx, p.ID, "cs_123", "https://checkout.example/cs_123", time.Now().Add(24*time.Hour))
	require.NoError(t, err)

	require.NoError(t, m.ConsumeLink(ctx, "cs_123"))
	link, err := m.GetLinkBySession(ctx, "cs_123")
	require.NoError(t, err)
	require.NotNil(t, link.ConsumedAt)
	first := *link.ConsumedAt

	require.NoError(t, m.ConsumeLink(ctx, "cs_123"))
	link, err = m.GetLinkBySession(ctx, "cs_123")
	require.NoError(t, err)
	require.Equal(t, first.Unix(), link.ConsumedAt.Unix())
}

func TestOpenLinksExcludesConsumedAndExpired(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	p := testPurchase(t, m, NewPurchaseOptions{})
	_, err := m.NewPaymentLink(ctx, p.ID, "cs_open", "https://checkout.example/open", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = m.NewPaymentLink(ctx, p.ID, "cs_expired", "https://checkout.example/expired", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = m.NewPaymentLink(ctx, p.ID, "cs_used", "https://checkout.example/used", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, m.ConsumeLink(ctx, "cs_used"))

	links, err := m.OpenLinks(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, "cs_open", links[0].StripeSessionID)
}

func TestLatestStatusPrefersRecurring(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	status, err := m.LatestStatus(ctx, "client-empty")
	require.NoError(t, err)
	require.Equal(t, "", status)

	testPurchase(t, m, NewPurchaseOptions{
		ClientID: "client-2",
		Status:   StatusActive,
	})
	status, err = m.LatestStatus(ctx, "client-2")
	require.NoError(t, err)
	require.Equal(t, "active", status)

	testPurchase(t, m, NewPurchaseOptions{
		ClientID:    "client-2",
		IsRecurring: true,
		Status:      StatusPending,
	})
	status, err = m.LatestStatus(ctx, "client-2")
	require.NoError(t, err)
	require.Equal(t, "pending", status)
}

func TestListFilters(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	testPurchase(t, m, NewPurchaseOptions{ClientID: "a", TrainerID: "t1", Status: StatusActive})
	testPurchase(t, m, NewPurchaseOptions{ClientID: "b", TrainerID: "t1", Status: StatusPending})
	testPurchase(t, m, NewPurchaseOptions{ClientID: "a", TrainerID: "t2", Status: StatusActive})

	byClient, err := m.List(ctx, ListOption{ClientID: "a"})
	require.NoError(t, err)
	require.Len(t, byClient, 2)

	byTrainer, err := m.List(ctx, ListOption{TrainerID: "t1", Status: StatusActive})
	require.NoError(t, err)
	require.Len(t, byTrainer, 1)
	require.Equal(t, "a", byTrainer[0].ClientID)
}
