package audit

import (
	"fmt"
	"net/http"
	"strconv"

	resp "github.com/bodybiz/backend/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// Options contains the configuration for the Service router
type Options struct {
	AuditManager *Manager
	Logger       *zap.Logger
}

// Service exposes the recent activity feed
type Service struct {
	Options
}

// NewService will create an instance of the activity API router
func NewService(option Options) (*Service, error) {
	if option.AuditManager == nil {
		return nil, fmt.Errorf("nil AuditManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

func (s *Service) listRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.AuditManager.Recent(ctx, limit)
	if err != nil {
		s.Logger.Error("Unable to list recent activity",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, entries)
}

// Router returns the mountable router for the activity feed
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listRecent)

	return r
}
