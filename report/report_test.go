package report

import (
	"context"
	"testing"
	"time"

	"github.com/bodybiz/backend/auth"
	"github.com/bodybiz/backend/purchase"
	"github.com/bodybiz/backend/team"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestPeriodLabel(t *testing.T) {
	cases := []struct {
		name     string
		start    time.Time
		end      time.Time
		expected string
	}{
		{
			name:     "same month",
			start:    time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
			end:      time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC),
			expected: "Jan 2-15, 2026",
		},
		{
			name:     "same year",
			start:    time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
			end:      time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC),
			expected: "Jan 2 - Feb 15, 2026",
		},
		{
			name:     "crossing years",
			start:    time.Date(2025, 12, 28, 0, 0, 0, 0, time.UTC),
			end:      time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
			expected: "Dec 28, 2025 - Jan 4, 2026",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := Period{Start: c.start, End: c.end}
			require.Equal(t, c.expected, p.Label())
		})
	}
}

func TestParsePeriod(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	p, err := ParsePeriod("this_month", "", "", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), p.Start)
	require.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), p.End)

	p, err = ParsePeriod("last_month", "", "", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), p.Start)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), p.End)

	p, err = ParsePeriod("custom", "2026-01-02", "2026-01-15", now)
	require.NoError(t, err)
	require.Equal(t, "Jan 2-15, 2026", p.Label())

	_, err = ParsePeriod("custom", "2026-01-15", "2026-01-02", now)
	require.Error(t, err)

	_, err = ParsePeriod("fortnight", "", "", now)
	require.Error(t, err)
}

type fixture struct {
	reports   *Manager
	purchases *purchase.Manager
	teams     *team.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	zl := zaptest.NewLogger(t)
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	purchases, err := purchase.NewManager(zl, db)
	require.NoError(t, err)
	teams, err := team.NewManager(zl, db)
	require.NoError(t, err)
	reports, err := NewManager(zl, db)
	require.NoError(t, err)

	return &fixture{
		reports:   reports,
		purchases: purchases,
		teams:     teams,
	}
}

func (f *fixture) seedMember(t *testing.T, name, email string, role auth.Role) *team.Member {
	t.Helper()
	member, err := f.teams.NewMember(context.Background(), team.NewMemberOptions{
		Email:          email,
		Name:           name,
		Role:           role,
		CommissionRate: decimal.RequireFromString("0.7"),
		Password:       "password1234",
	})
	require.NoError(t, err)
	return member
}

func (f *fixture) seedSale(t *testing.T, trainer *team.Member, clientID, amount string, status purchase.Status) {
	t.Helper()
	programID := "program-1"
	p, err := f.purchases.NewPurchase(context.Background(), purchase.NewPurchaseOptions{
		ClientID:    clientID,
		TrainerID:   trainer.ID,
		TrainerRole: trainer.Role,
		ProgramID:   &programID,
		Amount:      decimal.RequireFromString(amount),
		Status:      purchase.StatusActive,
	})
	require.NoError(t, err)
	if status != purchase.StatusActive {
		_, err = f.purchases.UpdateStatus(context.Background(), p.ID, status)
		require.NoError(t, err)
	}
}

func TestCommissionsAggregation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trainer := f.seedMember(t, "Alex Trainer", "alex@example.com", auth.RoleTrainer)
	owner := f.seedMember(t, "Bo Owner", "bo@example.com", auth.RoleAdmin)

	f.seedSale(t, trainer, "client-1", "500", purchase.StatusActive)
	f.seedSale(t, trainer, "client-2", "300", purchase.StatusActive)
	f.seedSale(t, owner, "client-3", "1000", purchase.StatusActive)

	period := Period{
		Start: time.Now().Add(-time.Hour),
		End:   time.Now().Add(time.Hour),
	}
	report, err := f.reports.Commissions(ctx, period, "")
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	// sorted by revenue descending, the owner's big sale leads
	require.Equal(t, owner.ID, report.Rows[0].TrainerID)
	require.Equal(t, "Bo Owner", report.Rows[0].TrainerName)
	require.Equal(t, auth.RoleAdmin, report.Rows[0].Role)
	require.True(t, report.Rows[0].Revenue.Equal(decimal.NewFromInt(1000)))
	require.True(t, report.Rows[0].TrainerEarnings.Equal(decimal.NewFromInt(1000)))
	require.True(t, report.Rows[0].OwnerEarnings.IsZero())
	require.Equal(t, 1, report.Rows[0].ClientCount)

	require.Equal(t, trainer.ID, report.Rows[1].TrainerID)
	require.Equal(t, auth.RoleTrainer, report.Rows[1].Role)
	require.True(t, report.Rows[1].CommissionRate.Equal(decimal.RequireFromString("0.7")))
	require.True(t, report.Rows[1].Revenue.Equal(decimal.NewFromInt(800)))
	require.True(t, report.Rows[1].TrainerEarnings.Equal(decimal.NewFromInt(560)))
	require.True(t, report.Rows[1].OwnerEarnings.Equal(decimal.NewFromInt(240)))
	require.Equal(t, 2, report.Rows[1].PurchaseCount)
	require.Equal(t, 2, report.Rows[1].ClientCount)

	require.True(t, report.Totals.Revenue.Equal(decimal.NewFromInt(1800)))
	require.True(t, report.Totals.TrainerEarnings.Equal(decimal.NewFromInt(1560)))
	require.True(t, report.Totals.OwnerEarnings.Equal(decimal.NewFromInt(240)))
	require.Equal(t, 3, report.Totals.PurchaseCount)
}

func TestCommissionsExcludesUnpaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trainer := f.seedMember(t, "Alex Trainer", "alex@example.com", auth.RoleTrainer)

	f.seedSale(t, trainer, "client-1", "500", purchase.StatusActive)
	f.seedSale(t, trainer, "client-2", "300", purchase.StatusCancelled)
	f.seedSale(t, trainer, "client-4", "250", purchase.StatusFailed)
	f.seedSale(t, trainer, "client-5", "150", purchase.StatusPaused)

	// pending sales have not collected anything yet
	programID := "program-1"
	_, err := f.purchases.NewPurchase(ctx, purchase.NewPurchaseOptions{
		ClientID:    "client-3",
		TrainerID:   trainer.ID,
		TrainerRole: trainer.Role,
		ProgramID:   &programID,
		Amount:      decimal.RequireFromString("900"),
		Status:      purchase.StatusPending,
	})
	require.NoError(t, err)

	period := Period{
		Start: time.Now().Add(-time.Hour),
		End:   time.Now().Add(time.Hour),
	}
	report, err := f.reports.Commissions(ctx, period, "")
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	require.True(t, report.Totals.Revenue.Equal(decimal.NewFromInt(500)))
}

func TestCommissionsTrainerScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trainer := f.seedMember(t, "Alex Trainer", "alex@example.com", auth.RoleTrainer)
	other := f.seedMember(t, "Casey Trainer", "casey@example.com", auth.RoleTrainer)

	f.seedSale(t, trainer, "client-1", "500", purchase.StatusActive)
	f.seedSale(t, other, "client-2", "700", purchase.StatusActive)

	period := Period{
		Start: time.Now().Add(-time.Hour),
		End:   time.Now().Add(time.Hour),
	}
	report, err := f.reports.Commissions(ctx, period, trainer.ID)
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	require.Equal(t, trainer.ID, report.Rows[0].TrainerID)
	require.True(t, report.Totals.Revenue.Equal(decimal.NewFromInt(500)))
}

func TestCommissionsWindowBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trainer := f.seedMember(t, "Alex Trainer", "alex@example.com", auth.RoleTrainer)
	f.seedSale(t, trainer, "client-1", "500", purchase.StatusActive)

	// a window in the past sees nothing
	period := Period{
		Start: time.Now().AddDate(0, -2, 0),
		End:   time.Now().AddDate(0, -1, 0),
	}
	report, err := f.reports.Commissions(ctx, period, "")
	require.NoError(t, err)
	require.Empty(t, report.Rows)
	require.True(t, report.Totals.Revenue.IsZero())
}
