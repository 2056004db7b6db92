package notification

import (
	"context"
	"testing"

	"github.com/bodybiz/backend/auth"
	"github.com/bodybiz/backend/client"
	"github.com/bodybiz/backend/program"
	"github.com/bodybiz/backend/purchase"
	"github.com/bodybiz/backend/team"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sentMail struct {
	kind string
	to   string
	args []string
}

type stubSender struct {
	sent []sentMail
}

func (s *stubSender) PaymentReceipt(to, name, amount, programName string) error {
	s.sent = append(s.sent, sentMail{kind: "receipt", to: to, args: []string{name, amount, programName}})
	return nil
}

func (s *stubSender) CheckoutLink(to, name, programName, url string) error {
	s.sent = append(s.sent, sentMail{kind: "link", to: to, args: []string{name, programName, url}})
	return nil
}

func (s *stubSender) PaymentFailed(to, trainerName, clientName, amount string) error {
	s.sent = append(s.sent, sentMail{kind: "failed", to: to, args: []string{trainerName, clientName, amount}})
	return nil
}

type fixture struct {
	dispatcher *Dispatcher
	sender     *stubSender
	trainer    *team.Member
	buyer      *client.Client
	program    *program.Program
	purchase   *purchase.Purchase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	zl := zaptest.NewLogger(t)
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	clients, err := client.NewManager(zl, db)
	require.NoError(t, err)
	teams, err := team.NewManager(zl, db)
	require.NoError(t, err)
	purchases, err := purchase.NewManager(zl, db)
	require.NoError(t, err)
	programs, err := program.NewManager(zl, db)
	require.NoError(t, err)

	ctx := context.Background()
	trainer, err := teams.NewMember(ctx, team.NewMemberOptions{
		Email:          "trainer@example.com",
		Name:           "Trainer",
		Role:           auth.RoleTrainer,
		CommissionRate: decimal.RequireFromString("0.7"),
		Password:       "password1234",
	})
	require.NoError(t, err)
	buyer, err := clients.NewClient(ctx, client.NewClientOptions{
		Name:  "Buyer",
		Email: "buyer@example.com",
	})
	require.NoError(t, err)
	prog, err := programs.NewProgram(ctx, program.NewProgramOptions{
		Name:         "Strength Coaching",
		DefaultPrice: decimal.RequireFromString("500"),
	})
	require.NoError(t, err)
	p, err := purchases.NewPurchase(ctx, purchase.NewPurchaseOptions{
		ClientID:    buyer.ID,
		TrainerID:   trainer.ID,
		TrainerRole: trainer.Role,
		ProgramID:   &prog.ID,
		Amount:      decimal.RequireFromString("500"),
		Status:      purchase.StatusActive,
	})
	require.NoError(t, err)

	sender := &stubSender{}
	dispatcher, err := NewDispatcher(DispatcherOptions{
		ClientManager:   clients,
		TeamManager:     teams,
		PurchaseManager: purchases,
		ProgramManager:  programs,
		Mailer:          sender,
		Logger:          zl,
	})
	require.NoError(t, err)

	return &fixture{
		dispatcher: dispatcher,
		sender:     sender,
		trainer:    trainer,
		buyer:      buyer,
		program:    prog,
		purchase:   p,
	}
}

func TestDispatchReceipt(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Handle(context.Background(), Event{
		Type:       TypePaymentReceived,
		PurchaseID: f.purchase.ID,
		ClientID:   f.buyer.ID,
		TrainerID:  f.trainer.ID,
		Amount:     "500",
	})

	require.Len(t, f.sender.sent, 1)
	require.Equal(t, "receipt", f.sender.sent[0].kind)
	require.Equal(t, "buyer@example.com", f.sender.sent[0].to)
	require.Equal(t, "Strength Coaching", f.sender.sent[0].args[2])
}

func TestDispatchCheckoutLink(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Handle(context.Background(), Event{
		Type:       TypeCheckoutLinkCreated,
		PurchaseID: f.purchase.ID,
		ClientID:   f.buyer.ID,
		TrainerID:  f.trainer.ID,
		Detail:     "https://checkout.example/cs_1",
	})

	require.Len(t, f.sender.sent, 1)
	require.Equal(t, "link", f.sender.sent[0].kind)
	require.Equal(t, "https://checkout.example/cs_1", f.sender.sent[0].args[2])
}

func TestDispatchPaymentFailedAlertsTrainer(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Handle(context.Background(), Event{
		Type:       TypePaymentFailed,
		PurchaseID: f.purchase.ID,
		ClientID:   f.buyer.ID,
		TrainerID:  f.trainer.ID,
		Amount:     "500",
	})

	require.Len(t, f.sender.sent, 1)
	require.Equal(t, "failed", f.sender.sent[0].kind)
	require.Equal(t, "trainer@example.com", f.sender.sent[0].to)
}

func TestDispatchIgnoresUnknownAndIncomplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.dispatcher.Handle(ctx, Event{Type: TypePurchasePaused})
	f.dispatcher.Handle(ctx, Event{Type: TypeCheckoutLinkCreated, ClientID: f.buyer.ID})
	f.dispatcher.Handle(ctx, Event{Type: TypePaymentReceived, ClientID: "ghost"})

	require.Empty(t, f.sender.sent)
}
