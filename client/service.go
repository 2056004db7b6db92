package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bodybiz/backend/auth"
	resp "github.com/bodybiz/backend/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// CardLister fetches saved card summaries from the payment processor
type CardLister interface {
	ListCards(ctx context.Context, stripeCustomerID string) ([]Card, error)
}

// StatusProvider reports the most relevant purchase status for a client, or
// an empty string when they have no purchases
type StatusProvider interface {
	LatestStatus(ctx context.Context, clientID string) (string, error)
}

// Options contains the configuration for the Service router
type Options struct {
	Auth          *auth.Auth
	ClientManager *Manager
	Cards         CardLister
	Statuses      StatusProvider
	Logger        *zap.Logger
}

// Service is the client API router
type Service struct {
	Options
}

// NewService will create an instance of the client API router
func NewService(option Options) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.ClientManager == nil {
		return nil, fmt.Errorf("nil ClientManager is invalid")
	}
	if option.Cards == nil {
		return nil, fmt.Errorf("nil Cards is invalid")
	}
	if option.Statuses == nil {
		return nil, fmt.Errorf("nil Statuses is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

// ListedClient is a client decorated with their derived billing status
type ListedClient struct {
	Client
	SubscriptionStatus string `json:"subscriptionStatus"`
}

func (s *Service) listClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := auth.ClaimsFromContext(ctx)

	opt := ListOption{
		Search: r.URL.Query().Get("search"),
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		opt.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		opt.Offset = offset
	}
	// trainers only see their own roster
	if claims.Role == auth.RoleTrainer {
		opt.TrainerID = claims.ID
	}

	clients, err := s.ClientManager.List(ctx, opt)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	listed := make([]ListedClient, 0, len(clients))
	for _, c := range clients {
		status, err := s.Statuses.LatestStatus(ctx, c.ID)
		if err != nil {
			s.Logger.Error("Unable to derive client status",
				zap.String("ClientID", c.ID),
				zap.Error(err),
			)
			status = ""
		}
		listed = append(listed, ListedClient{
			Client:             c,
			SubscriptionStatus: status,
		})
	}

	resp.WriteResponse(w, r, listed)
}

// CreateClientRequest is the model for enrolling a client
type CreateClientRequest struct {
	Name              string  `json:"name" validate:"required"`
	Email             string  `json:"email" validate:"required,email"`
	Phone             *string `json:"phone"`
	AssignedTrainerID *string `json:"assignedTrainerId"`
	Notes             *string `json:"notes"`
}

func (s *Service) createClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err.Error()))
		return
	}

	opt := NewClientOptions{
		Name:              req.Name,
		Email:             req.Email,
		Phone:             req.Phone,
		AssignedTrainerID: req.AssignedTrainerID,
		Notes:             req.Notes,
	}
	// a trainer enrolling a client takes them onto their own roster
	claims := auth.ClaimsFromContext(ctx)
	if claims.Role == auth.RoleTrainer {
		opt.AssignedTrainerID = &claims.ID
	}

	created, err := s.ClientManager.NewClient(ctx, opt)
	if err == ErrDuplicateEmail {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
		return
	}
	if err != nil {
		s.Logger.Error("Unable to create client",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, created, http.StatusCreated)
}

func (s *Service) getClient(w http.ResponseWriter, r *http.Request) {
	found, err := s.ClientManager.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if found == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}
	resp.WriteResponse(w, r, found)
}

// UpdateClientRequest is the model for editing a client
type UpdateClientRequest struct {
	Name              *string `json:"name"`
	Phone             *string `json:"phone"`
	AssignedTrainerID *string `json:"assignedTrainerId"`
	Notes             *string `json:"notes"`
}

func (s *Service) updateClient(w http.ResponseWriter, r *http.Request) {
	var req UpdateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	updated, err := s.ClientManager.Update(r.Context(), chi.URLParam(r, "id"), UpdateOptions{
		Name:              req.Name,
		Phone:             req.Phone,
		AssignedTrainerID: req.AssignedTrainerID,
		Notes:             req.Notes,
	})
	if err != nil {
		s.Logger.Error("Unable to update client",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if updated == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}
	resp.WriteResponse(w, r, updated)
}

func (s *Service) deactivateClient(w http.ResponseWriter, r *http.Request) {
	if err := s.ClientManager.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, map[string]bool{"deactivated": true})
}

func (s *Service) listPaymentMethods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	found, err := s.ClientManager.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if found == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}
	if found.StripeCustomerID == nil {
		// never paid before; nothing saved with the processor
		resp.WriteResponse(w, r, []Card{})
		return
	}

	cards, err := s.Cards.ListCards(ctx, *found.StripeCustomerID)
	if err != nil {
		s.Logger.Error("Unable to list payment methods",
			zap.String("ClientID", found.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, cards)
}

// Router returns the client API routes
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listClients)
	r.Post("/", s.createClient)
	r.Get("/{id}", s.getClient)
	r.Put("/{id}", s.updateClient)
	r.Get("/{id}/payment-methods", s.listPaymentMethods)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.RequireElevated())
		r.Delete("/{id}", s.deactivateClient)
	})

	return r
}
