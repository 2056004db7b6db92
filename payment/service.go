package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bodybiz/backend/audit"
	"github.com/bodybiz/backend/auth"
	"github.com/bodybiz/backend/client"
	"github.com/bodybiz/backend/notification"
	"github.com/bodybiz/backend/program"
	"github.com/bodybiz/backend/purchase"
	resp "github.com/bodybiz/backend/response"
	"github.com/bodybiz/backend/team"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// Broadcaster publishes business events to the notification broker
type Broadcaster interface {
	Publish(ctx context.Context, ev notification.Event) error
}

// Options contains the configuration for the Service router
type Options struct {
	Auth            *auth.Auth
	PurchaseManager *purchase.Manager
	ClientManager   *client.Manager
	TeamManager     *team.Manager
	ProgramManager  *program.Manager
	AuditManager    *audit.Manager
	Broadcast       Broadcaster
	API             StripeAPI
	Logger          *zap.Logger

	// where the hosted checkout sends the client afterwards
	SuccessURL string
	CancelURL  string
}

// Service is the payment API router
type Service struct {
	Options
}

// NewService will create an instance of the payment API router
func NewService(option Options) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.PurchaseManager == nil {
		return nil, fmt.Errorf("nil PurchaseManager is invalid")
	}
	if option.ClientManager == nil {
		return nil, fmt.Errorf("nil ClientManager is invalid")
	}
	if option.TeamManager == nil {
		return nil, fmt.Errorf("nil TeamManager is invalid")
	}
	if option.ProgramManager == nil {
		return nil, fmt.Errorf("nil ProgramManager is invalid")
	}
	if option.AuditManager == nil {
		return nil, fmt.Errorf("nil AuditManager is invalid")
	}
	if option.Broadcast == nil {
		return nil, fmt.Errorf("nil Broadcast is invalid")
	}
	if option.API == nil {
		return nil, fmt.Errorf("nil API is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if len(option.SuccessURL) == 0 || len(option.CancelURL) == 0 {
		return nil, fmt.Errorf("empty checkout redirect URL is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

// NewClientRequest is the model for enrolling a client inline with a sale
type NewClientRequest struct {
	Name  string  `json:"name" validate:"required"`
	Email string  `json:"email" validate:"required,email"`
	Phone *string `json:"phone"`
}

// SaleRequest names the parties and terms of a sale. The client is either an
// existing record or an inline enrollment; the product is either a catalog
// program or a custom name with an explicit amount. TrainerID names the
// commission counterparty for link sales and defaults to the caller
type SaleRequest struct {
	ClientID          string            `json:"clientId"`
	NewClient         *NewClientRequest `json:"newClient"`
	TrainerID         string            `json:"trainerId"`
	ProgramID         string            `json:"programId"`
	CustomProgramName string            `json:"customProgramName"`
	Amount            string            `json:"amount"`
	IsRecurring       *bool             `json:"isRecurring"`
	DurationMonths    *int              `json:"durationMonths"`
	PaymentMethodID   string            `json:"paymentMethodId"`
	Notes             *string           `json:"notes"`
}

// saleContext carries the resolved parties and terms of a sale
type saleContext struct {
	Client          *client.Client
	Trainer         *team.Member
	Program         *program.Program // nil for custom-named sales
	ProgramName     string
	CustomName      *string
	Amount          decimal.Decimal
	IsRecurring     bool
	Duration        *int
	PaymentMethodID string
}

func (sc *saleContext) programID() *string {
	if sc.Program == nil {
		return nil
	}
	return &sc.Program.ID
}

func (s *Service) resolveSale(ctx context.Context, req SaleRequest, useAssignedTrainer bool) (*saleContext, *resp.Error) {
	claims := auth.ClaimsFromContext(ctx)

	if req.DurationMonths != nil && *req.DurationMonths <= 0 {
		return nil, resp.ErrValidation("Duration must be at least one month")
	}

	// the commission counterparty: the named trainer for link sales, the
	// client's assigned trainer for direct charges
	trainerID := claims.ID
	if !useAssignedTrainer && req.TrainerID != "" {
		if claims.Role == auth.RoleTrainer && req.TrainerID != claims.ID {
			return nil, resp.ErrForbidden().AddMessages("Trainers can only sell for themselves")
		}
		trainerID = req.TrainerID
	}

	buyer, respErr := s.resolveBuyer(ctx, req, claims, trainerID)
	if respErr != nil {
		return nil, respErr
	}
	if useAssignedTrainer {
		if buyer.AssignedTrainerID == nil {
			return nil, resp.ErrValidation("Client has no assigned trainer")
		}
		trainerID = *buyer.AssignedTrainerID
	}

	trainer, err := s.TeamManager.GetByID(ctx, trainerID)
	if err != nil {
		return nil, resp.ErrUnexpected()
	}
	if trainer == nil || !trainer.IsActive {
		return nil, resp.ErrNotFound().AddMessages("Trainer not found")
	}

	sale := &saleContext{
		Client:          buyer,
		Trainer:         trainer,
		Duration:        req.DurationMonths,
		PaymentMethodID: req.PaymentMethodID,
	}
	if req.ProgramID != "" {
		prog, err := s.ProgramManager.GetByID(ctx, req.ProgramID)
		if err != nil {
			return nil, resp.ErrUnexpected()
		}
		if prog == nil || !prog.IsActive {
			return nil, resp.ErrNotFound().AddMessages("Program not found")
		}
		sale.Program = prog
		sale.ProgramName = prog.Name
		sale.Amount = prog.DefaultPrice
		sale.IsRecurring = prog.IsRecurring
		if sale.Duration == nil {
			sale.Duration = prog.DefaultDurationMonths
		}
	} else {
		name := req.CustomProgramName
		if name == "" {
			return nil, resp.ErrValidation("Either a program or a custom program name is required")
		}
		if req.Amount == "" {
			return nil, resp.ErrValidation("Custom programs need an explicit amount")
		}
		sale.ProgramName = name
		sale.CustomName = &name
	}
	if req.IsRecurring != nil {
		sale.IsRecurring = *req.IsRecurring
	}

	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil || !parsed.IsPositive() {
			return nil, resp.ErrValidation("Invalid amount")
		}
		sale.Amount = parsed
	}
	if !sale.Amount.IsPositive() {
		return nil, resp.ErrValidation("Amount must be positive")
	}

	return sale, nil
}

// resolveBuyer loads the named client, or enrolls one inline onto the selling
// trainer's roster. An inline enrollment with a taken email is a conflict,
// never a silent reuse
func (s *Service) resolveBuyer(ctx context.Context, req SaleRequest, claims *auth.Claims, trainerID string) (*client.Client, *resp.Error) {
	if req.NewClient != nil {
		if err := validate.Struct(req.NewClient); err != nil {
			return nil, resp.ErrValidation(err.Error())
		}
		buyer, err := s.ClientManager.NewClient(ctx, client.NewClientOptions{
			Name:              req.NewClient.Name,
			Email:             req.NewClient.Email,
			Phone:             req.NewClient.Phone,
			AssignedTrainerID: &trainerID,
		})
		if err != nil {
			if errors.Is(err, client.ErrDuplicateEmail) {
				return nil, resp.ErrConflict().AddMessages("A client with this email already exists")
			}
			return nil, resp.ErrUnexpected()
		}
		s.publishBestEffort(ctx, notification.Event{
			Type:       notification.TypeClientEnrolled,
			OccurredAt: time.Now(),
			ClientID:   buyer.ID,
			TrainerID:  trainerID,
		})
		return buyer, nil
	}

	if req.ClientID == "" {
		return nil, resp.ErrValidation("Either a client id or an inline client is required")
	}
	buyer, err := s.ClientManager.GetByID(ctx, req.ClientID)
	if err != nil {
		return nil, resp.ErrUnexpected()
	}
	if buyer == nil || !buyer.IsActive {
		return nil, resp.ErrNotFound().AddMessages("Client not found")
	}
	// trainers can only sell to their own roster
	if claims.Role == auth.RoleTrainer {
		if buyer.AssignedTrainerID == nil || *buyer.AssignedTrainerID != claims.ID {
			return nil, resp.ErrForbidden().AddMessages("Client is not on your roster")
		}
	}
	return buyer, nil
}

// cents converts a decimal dollar amount to the integer cents the processor expects
func cents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func (s *Service) publishBestEffort(ctx context.Context, ev notification.Event) {
	if err := s.Broadcast.Publish(ctx, ev); err != nil {
		s.Logger.Error("Unable to publish notification",
			zap.String("Type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

func (s *Service) listPurchases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := auth.ClaimsFromContext(ctx)

	opt := purchase.ListOption{
		ClientID: r.URL.Query().Get("clientId"),
		Status:   purchase.Status(r.URL.Query().Get("status")),
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		opt.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		opt.Offset = offset
	}
	if claims.Role == auth.RoleTrainer {
		opt.TrainerID = claims.ID
	} else if trainerID := r.URL.Query().Get("trainerId"); trainerID != "" {
		opt.TrainerID = trainerID
	}

	purchases, err := s.PurchaseManager.List(ctx, opt)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, purchases)
}

func (s *Service) getPurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := s.PurchaseManager.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if p == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}
	claims := auth.ClaimsFromContext(ctx)
	if claims.Role == auth.RoleTrainer && p.TrainerID != claims.ID {
		resp.WriteError(w, r, resp.ErrForbidden())
		return
	}
	resp.WriteResponse(w, r, p)
}

// listOpenLinks shows unconsumed checkout links so an operator can tell
// whether a pending purchase still has a live link or was simply abandoned
func (s *Service) listOpenLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, respErr := s.loadOwnPurchase(ctx, chi.URLParam(r, "id"))
	if respErr != nil {
		resp.WriteError(w, r, respErr)
		return
	}
	links, err := s.PurchaseManager.OpenLinks(ctx, p.ID)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, links)
}

// loadOwnPurchase fetches a purchase and enforces roster visibility
func (s *Service) loadOwnPurchase(ctx context.Context, id string) (*purchase.Purchase, *resp.Error) {
	p, err := s.PurchaseManager.GetByID(ctx, id)
	if err != nil {
		return nil, resp.ErrUnexpected()
	}
	if p == nil {
		return nil, resp.ErrNotFound()
	}
	claims := auth.ClaimsFromContext(ctx)
	if claims.Role == auth.RoleTrainer && p.TrainerID != claims.ID {
		return nil, resp.ErrForbidden()
	}
	return p, nil
}

// Router returns the payment API routes
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listPurchases)
	r.Get("/{id}", s.getPurchase)
	r.Get("/{id}/links", s.listOpenLinks)
	r.Post("/checkout", s.createCheckout)
	r.Post("/charge", s.directCharge)
	r.Post("/{id}/retry", s.retryPayment)
	r.Post("/{id}/pause", s.pausePurchase)
	r.Post("/{id}/resume", s.resumePurchase)
	r.Post("/{id}/cancel", s.cancelPurchase)

	return r
}
