package team

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
	Auth        *auth.Auth
	TeamManager *Manager
	Logger      *zap.Logger
}

// Service is the team API router
type Service struct {
	Options
}

// NewService will create an instance of the team API router
func NewService(option Options) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.TeamManager == nil {
		return nil, fmt.Errorf("nil TeamManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

// LoginRequest is the model of a credential login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the bearer token and the member it identifies
type LoginResponse struct {
	Token  string  `json:"token"`
	Member *Member `json:"member"`
}

func (s *Service) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation("Email and password are required"))
		return
	}

	member, err := s.TeamManager.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		s.Logger.Error("Unable to authenticate member",
			zap.String("Email", req.Email),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if member == nil {
		resp.WriteError(w, r, resp.ErrUnauthorized().AddMessages("Invalid email or password"))
		return
	}

	token, err := s.Auth.CreateTokenFromClaims(auth.Claims{
		ID:   member.ID,
		Name: member.Name,
		Role: member.Role,
	})
	if err != nil {
		s.Logger.Error("Unable to issue token",
			zap.String("MemberID", member.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, LoginResponse{
		Token:  token,
		Member: member,
	})
}

// CreateMemberRequest is the model for adding a staff member
type CreateMemberRequest struct {
	Email          string  `json:"email" validate:"required,email"`
	Name           string  `json:"name" validate:"required"`
	Role           string  `json:"role" validate:"required,oneof=admin manager trainer"`
	CommissionRate string  `json:"commissionRate"`
	Phone          *string `json:"phone"`
	Password       string  `json:"password" validate:"required,min=8"`
}

func (s *Service) createMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err.Error()))
		return
	}

	rate := decimal.RequireFromString("0.7")
	if req.CommissionRate != "" {
		parsed, err := decimal.NewFromString(req.CommissionRate)
		if err != nil {
			resp.WriteError(w, r, resp.ErrValidation("Invalid commission rate"))
			return
		}
		rate = parsed
	}

	member, err := s.TeamManager.NewMember(ctx, NewMemberOptions{
		Email:          req.Email,
		Name:           req.Name,
		Role:           auth.Role(req.Role),
		CommissionRate: rate,
		Phone:          req.Phone,
		Password:       req.Password,
	})
	if err == ErrDuplicateEmail {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
		return
	}
	if err != nil {
		s.Logger.Error("Unable to create team member",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, member, http.StatusCreated)
}

func (s *Service) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.TeamManager.List(r.Context())
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, members)
}

func (s *Service) getMember(w http.ResponseWriter, r *http.Request) {
	member, err := s.TeamManager.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if member == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}
	resp.WriteResponse(w, r, member)
}

// UpdateMemberRequest is the model for editing a staff member
type UpdateMemberRequest struct {
	Name           *string `json:"name"`
	Role           *string `json:"role"`
	CommissionRate *string `json:"commissionRate"`
	Phone          *string `json:"phone"`
}

func (s *Service) updateMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	opt := UpdateOptions{
		Name:  req.Name,
		Phone: req.Phone,
	}
	if req.Role != nil {
		role := auth.Role(*req.Role)
		if !role.Valid() {
			resp.WriteError(w, r, resp.ErrValidation("Invalid role"))
			return
		}
		opt.Role = &role
	}
	if req.CommissionRate != nil {
		rate, err := decimal.NewFromString(*req.CommissionRate)
		if err != nil {
			resp.WriteError(w, r, resp.ErrValidation("Invalid commission rate"))
			return
		}
		opt.CommissionRate = &rate
	}

	member, err := s.TeamManager.Update(ctx, chi.URLParam(r, "id"), opt)
	if err != nil {
		s.Logger.Error("Unable to update team member",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if member == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}
	resp.WriteResponse(w, r, member)
}

func (s *Service) deactivateMember(w http.ResponseWriter, r *http.Request) {
	if err := s.TeamManager.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, map[string]bool{"deactivated": true})
}

// PublicRouter returns the unauthenticated routes (login)
func (s *Service) PublicRouter() http.Handler {
	r := chi.NewRouter()

	r.Post("/login", s.login)

	return r
}

// Router returns the authenticated team routes. Mutations are elevated-only
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listMembers)
	r.Get("/{id}", s.getMember)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.RequireElevated())
		r.Post("/", s.createMember)
		r.Put("/{id}", s.updateMember)
		r.Delete("/{id}", s.deactivateMember)
	})

	return r
}
