package report

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bodybiz/backend/auth"
	resp "github.com/bodybiz/backend/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// Options contains the configuration for the Service router
type Options struct {
	Auth          *auth.Auth
	ReportManager *Manager
	Logger        *zap.Logger
}

// Service is the reporting API router
type Service struct {
	Options
}

// NewService will create an instance of the reporting API router
func NewService(option Options) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.ReportManager == nil {
		return nil, fmt.Errorf("nil ReportManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

func (s *Service) commissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := auth.ClaimsFromContext(ctx)

	query := r.URL.Query()
	period, err := ParsePeriod(query.Get("period"), query.Get("start"), query.Get("end"), time.Now())
	if err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err.Error()))
		return
	}

	// trainers only see their own earnings
	trainerID := query.Get("trainerId")
	if claims.Role == auth.RoleTrainer {
		trainerID = claims.ID
	}

	report, err := s.ReportManager.Commissions(ctx, period, trainerID)
	if err != nil {
		s.Logger.Error("Unable to build commission report",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, report)
}

// Router returns the reporting routes
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/commissions", s.commissions)

	return r
}
