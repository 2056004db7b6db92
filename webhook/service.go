package webhook

import (
	"fmt"
	"io"
	"net/http"

	resp "github.com/bodybiz/backend/response"

	"github.com/go-chi/chi"
	stripeWebhook "github.com/stripe/stripe-go/v74/webhook"
	"go.uber.org/zap"
)

// the processor signs payloads well under this size
const maxPayloadBytes = 1 << 16

// Options contains the configuration for the Service router
type Options struct {
	Reconciler    *Reconciler
	SigningSecret string
	Logger        *zap.Logger
}

// Service is the webhook ingress router. It is mounted outside the
// authenticated API surface; the signature check is the authentication
type Service struct {
	Options
}

// NewService will create an instance of the webhook ingress router
func NewService(option Options) (*Service, error) {
	if option.Reconciler == nil {
		return nil, fmt.Errorf("nil Reconciler is invalid")
	}
	if len(option.SigningSecret) == 0 {
		return nil, fmt.Errorf("empty SigningSecret is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

func (s *Service) receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Cannot read payload"))
		return
	}

	event, err := stripeWebhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), s.SigningSecret)
	if err != nil {
		s.Logger.Warn("Rejecting webhook with bad signature",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid signature"))
		return
	}

	if err := s.Reconciler.Process(r.Context(), event); err != nil {
		s.Logger.Error("Webhook processing failed, asking for redelivery",
			zap.String("EventID", event.ID),
			zap.String("Type", string(event.Type)),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, map[string]bool{"received": true})
}

// Router returns the webhook ingress routes
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/stripe", s.receive)

	return r
}
