package notification

import (
	"context"
	"fmt"

	"github.com/bodybiz/backend/client"
	"github.com/bodybiz/backend/program"
	"github.com/bodybiz/backend/purchase"
	"github.com/bodybiz/backend/team"

	"go.uber.org/zap"
)

// Sender is the slice of Mailer the dispatcher needs; tests substitute a stub
type Sender interface {
	PaymentReceipt(to, name, amount, programName string) error
	CheckoutLink(to, name, programName, url string) error
	PaymentFailed(to, trainerName, clientName, amount string) error
}

// DispatcherOptions contains the configuration for the Dispatcher
type DispatcherOptions struct {
	ClientManager   *client.Manager
	TeamManager     *team.Manager
	PurchaseManager *purchase.Manager
	ProgramManager  *program.Manager
	Mailer          Sender
	Logger          *zap.Logger
}

// Dispatcher turns broker events into email. Delivery is best-effort; a
// failed send is logged and the event is not retried
type Dispatcher struct {
	DispatcherOptions
}

// NewDispatcher will create a Dispatcher for the notifier worker
func NewDispatcher(option DispatcherOptions) (*Dispatcher, error) {
	if option.ClientManager == nil {
		return nil, fmt.Errorf("nil ClientManager is invalid")
	}
	if option.TeamManager == nil {
		return nil, fmt.Errorf("nil TeamManager is invalid")
	}
	if option.PurchaseManager == nil {
		return nil, fmt.Errorf("nil PurchaseManager is invalid")
	}
	if option.ProgramManager == nil {
		return nil, fmt.Errorf("nil ProgramManager is invalid")
	}
	if option.Mailer == nil {
		return nil, fmt.Errorf("nil Mailer is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Dispatcher{
		DispatcherOptions: option,
	}, nil
}

// Handle routes one event to the right recipients
func (d *Dispatcher) Handle(ctx context.Context, ev Event) {
	var err error
	switch ev.Type {
	case TypeCheckoutLinkCreated:
		err = d.sendCheckoutLink(ctx, ev)
	case TypePaymentReceived:
		err = d.sendReceipt(ctx, ev)
	case TypePaymentFailed:
		err = d.alertTrainer(ctx, ev)
	default:
		return
	}
	if err != nil {
		d.Logger.Error("Unable to deliver notification",
			zap.String("Type", string(ev.Type)),
			zap.String("PurchaseID", ev.PurchaseID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) sendCheckoutLink(ctx context.Context, ev Event) error {
	if ev.Detail == "" {
		return nil
	}
	buyer, programName, err := d.resolveClientAndProgram(ctx, ev)
	if err != nil || buyer == nil {
		return err
	}
	return d.Mailer.CheckoutLink(buyer.Email, buyer.Name, programName, ev.Detail)
}

func (d *Dispatcher) sendReceipt(ctx context.Context, ev Event) error {
	buyer, programName, err := d.resolveClientAndProgram(ctx, ev)
	if err != nil || buyer == nil {
		return err
	}
	return d.Mailer.PaymentReceipt(buyer.Email, buyer.Name, ev.Amount, programName)
}

func (d *Dispatcher) alertTrainer(ctx context.Context, ev Event) error {
	trainer, err := d.TeamManager.GetByID(ctx, ev.TrainerID)
	if err != nil || trainer == nil {
		return err
	}
	buyer, err := d.ClientManager.GetByID(ctx, ev.ClientID)
	if err != nil || buyer == nil {
		return err
	}
	return d.Mailer.PaymentFailed(trainer.Email, trainer.Name, buyer.Name, ev.Amount)
}

func (d *Dispatcher) resolveClientAndProgram(ctx context.Context, ev Event) (*client.Client, string, error) {
	buyer, err := d.ClientManager.GetByID(ctx, ev.ClientID)
	if err != nil || buyer == nil {
		return nil, "", err
	}
	programName := "your training program"
	if ev.PurchaseID != "" {
		p, err := d.PurchaseManager.GetByID(ctx, ev.PurchaseID)
		if err == nil && p != nil {
			switch {
			case p.CustomProgramName != nil:
				programName = *p.CustomProgramName
			case p.ProgramID != nil:
				prog, err := d.ProgramManager.GetByID(ctx, *p.ProgramID)
				if err == nil && prog != nil {
					programName = prog.Name
				}
			}
		}
	}
	return buyer, programName, nil
}
