package api

import (
	"context"
	"net/http"
	"os"
	"strings"

	"eventgate/internal/auth"
	"eventgate/internal/config"
	"eventgate/internal/ingest"
	"eventgate/internal/store"
	"eventgate/internal/webhooks"

	"golang.org/x/time/rate"
)

type Server struct {
	Store      store.Store
	Dispatcher *webhooks.Dispatcher
	Gateway    *ingest.Gateway
	Auth       *auth.Verifier
	Broker     EventBroker
	Config     config.Config
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	gw := ingest.NewGateway(s, cfg.PartnerSecret)
	gw.Tolerance = cfg.SignatureTolerance
	if cfg.IngestRateRPS > 0 {
		burst := cfg.IngestRateBurst
		if burst <= 0 {
			burst = 1
		}
		gw.Limiter = rate.NewLimiter(rate.Limit(cfg.IngestRateRPS), burst)
	}
	gw.Notify = func(eventType string, data map[string]any) {
		broker.Publish(activityChannel, ActivityEvent{Type: eventType, Data: data})
	}

	return &Server{
		Store:      s,
		Dispatcher: webhooks.NewDispatcher(s, cfg.DeliveryTimeout, cfg.MaxInFlight),
		Gateway:    gw,
		Auth:       auth.NewVerifierFromEnv(),
		Broker:     broker,
		Config:     cfg,
	}, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	tenant := s.getPrincipal(r).Tenant
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}
