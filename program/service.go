package program

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bodybiz/backend/auth"
	resp "github.com/bodybiz/backend/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// Options contains the configuration for the Service router
type Options struct {
	Auth           *auth.Auth
	ProgramManager *Manager
	Logger         *zap.Logger
}

// Service is the program catalog API router
type Service struct {
	Options
}

// NewService will create an instance of the program catalog API router
func NewService(option Options) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.ProgramManager == nil {
		return nil, fmt.Errorf("nil ProgramManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

// CreateProgramRequest is the model for adding a catalog entry
type CreateProgramRequest struct {
	Name                  string  `json:"name" validate:"required"`
	Description           *string `json:"description"`
	DefaultPrice          string  `json:"defaultPrice" validate:"required"`
	DefaultDurationMonths *int    `json:"defaultDurationMonths"`
	IsRecurring           bool    `json:"isRecurring"`
	IsAddon               bool    `json:"isAddon"`
}

func (s *Service) createProgram(w http.ResponseWriter, r *http.Request) {
	var req CreateProgramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err.Error()))
		return
	}

	price, err := decimal.NewFromString(req.DefaultPrice)
	if err != nil || price.IsNegative() {
		resp.WriteError(w, r, resp.ErrValidation("Invalid default price"))
		return
	}
	if req.DefaultDurationMonths != nil && *req.DefaultDurationMonths <= 0 {
		resp.WriteError(w, r, resp.ErrValidation("Duration must be at least one month"))
		return
	}

	created, err := s.ProgramManager.NewProgram(r.Context(), NewProgramOptions{
		Name:                  req.Name,
		Description:           req.Description,
		DefaultPrice:          price,
		DefaultDurationMonths: req.DefaultDurationMonths,
		IsRecurring:           req.IsRecurring,
		IsAddon:               req.IsAddon,
	})
	if err != nil {
		s.Logger.Error("Unable to create program",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, created, http.StatusCreated)
}

func (s *Service) listPrograms(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("all") == "true"
	programs, err := s.ProgramManager.List(r.Context(), includeInactive)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, programs)
}

func (s *Service) getProgram(w http.ResponseWriter, r *http.Request) {
	found, err := s.ProgramManager.GetByID(r.Context(), chi.URLParam(r, "id"))
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

// UpdateProgramRequest is the model for editing a catalog entry
type UpdateProgramRequest struct {
	Name                  *string `json:"name"`
	Description           *string `json:"description"`
	DefaultPrice          *string `json:"defaultPrice"`
	DefaultDurationMonths *int    `json:"defaultDurationMonths"`
	IsRecurring           *bool   `json:"isRecurring"`
	IsAddon               *bool   `json:"isAddon"`
	IsActive              *bool   `json:"isActive"`
}

func (s *Service) updateProgram(w http.ResponseWriter, r *http.Request) {
	var req UpdateProgramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	opt := UpdateOptions{
		Name:                  req.Name,
		Description:           req.Description,
		DefaultDurationMonths: req.DefaultDurationMonths,
		IsRecurring:           req.IsRecurring,
		IsAddon:               req.IsAddon,
		IsActive:              req.IsActive,
	}
	if req.DefaultPrice != nil {
		price, err := decimal.NewFromString(*req.DefaultPrice)
		if err != nil || price.IsNegative() {
			resp.WriteError(w, r, resp.ErrValidation("Invalid default price"))
			return
		}
		opt.DefaultPrice = &price
	}

	updated, err := s.ProgramManager.Update(r.Context(), chi.URLParam(r, "id"), opt)
	if err != nil {
		s.Logger.Error("Unable to update program",
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

// Router returns the program catalog routes. Mutations are elevated-only
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listPrograms)
	r.Get("/{id}", s.getProgram)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.RequireElevated())
		r.Post("/", s.createProgram)
		r.Put("/{id}", s.updateProgram)
	})

	return r
}
