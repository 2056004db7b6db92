package team

import (
	"context"
	"testing"

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

func newMemberOptions() NewMemberOptions {
	return NewMemberOptions{
		Email:          "Trainer@Example.com",
		Name:           "Trainer",
		Role:           auth.RoleTrainer,
		CommissionRate: decimal.RequireFromString("0.7"),
		Password:       "password1234",
	}
}

func TestNewMemberNormalizesEmail(t *testing.T) {
	m := testManager(t)

	member, err := m.NewMember(context.Background(), newMemberOptions())
	require.NoError(t, err)
	require.Equal(t, "trainer@example.com", member.Email)
	require.NotEqual(t, "password1234", member.PasswordHash)
	require.True(t, member.IsActive)
}

func TestNewMemberDuplicateEmail(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.NewMember(ctx, newMemberOptions())
	require.NoError(t, err)

	opt := newMemberOptions()
	opt.Email = "trainer@EXAMPLE.com"
	_, err = m.NewMember(ctx, opt)
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestNewMemberRejectsUnknownRole(t *testing.T) {
	m := testManager(t)

	opt := newMemberOptions()
	opt.Role = auth.Role("janitor")
	_, err := m.NewMember(context.Background(), opt)
	require.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	created, err := m.NewMember(ctx, newMemberOptions())
	require.NoError(t, err)

	member, err := m.Authenticate(ctx, "trainer@example.com", "password1234")
	require.NoError(t, err)
	require.NotNil(t, member)
	require.Equal(t, created.ID, member.ID)

	member, err = m.Authenticate(ctx, "trainer@example.com", "wrong-password")
	require.NoError(t, err)
	require.Nil(t, member)

	member, err = m.Authenticate(ctx, "ghost@example.com", "password1234")
	require.NoError(t, err)
	require.Nil(t, member)
}

func TestAuthenticateDeactivatedMember(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	created, err := m.NewMember(ctx, newMemberOptions())
	require.NoError(t, err)
	require.NoError(t, m.Deactivate(ctx, created.ID))

	member, err := m.Authenticate(ctx, "trainer@example.com", "password1234")
	require.NoError(t, err)
	require.Nil(t, member)
}

func TestUpdateDoesNotTouchPassword(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	created, err := m.NewMember(ctx, newMemberOptions())
	require.NoError(t, err)

	name := "Renamed"
	rate := decimal.RequireFromString("0.8")
	updated, err := m.Update(ctx, created.ID, UpdateOptions{
		Name:           &name,
		CommissionRate: &rate,
	})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
	require.True(t, updated.CommissionRate.Equal(rate))
	require.Equal(t, created.PasswordHash, updated.PasswordHash)
}
