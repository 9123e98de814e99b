package main

import (
	"bufio"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventgate/internal/api"
	"eventgate/internal/config"
	"eventgate/internal/metrics"
)

func main() {
	cfg := config.Load()
	metrics.RegisterDefault()

	srv, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	if cfg.PartnerSecret == "" {
		log.Printf("warning: PARTNER_WEBHOOK_SECRET is empty; inbound verification will reject everything")
	}

	mux := http.NewServeMux()

	// Partner ingestion
	mux.Handle("/v1/partner/webhooks", srv.Gateway)

	// Outbound dispatch (internal trigger surface)
	mux.HandleFunc("/v1/events/dispatch", srv.DispatchHandler)

	// Subscriptions
	mux.HandleFunc("/v1/subscriptions", srv.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srv.SubscriptionByIDHandler)

	// Admin
	mux.HandleFunc("/v1/admin/delivery-attempts", srv.DeliveryAttemptsHandler)
	mux.HandleFunc("/v1/admin/inbound-events", srv.InboundEventsHandler)
	mux.HandleFunc("/v1/admin/webhook-metrics", srv.WebhookMetricsHandler)
	mux.HandleFunc("/v1/admin/revenue-records", srv.RevenueRecordsHandler)
	mux.HandleFunc("/v1/admin/activity/stream", srv.ActivityStreamHandler)
	mux.HandleFunc("/v1/admin/activity/ws", srv.ActivityWSHandler)

	// Health and introspection
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.HandleFunc("/debug", srv.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// Docs
	mux.HandleFunc("/openapi.yaml", srv.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", srv.OpenAPIJSONHandler)
	mux.HandleFunc("/docs", srv.DocsHandler)

	addr := ":" + cfg.Port

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("event gateway listening on %s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Streaming and websocket handlers need the underlying Flusher/Hijacker.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(dur.Seconds())
		log.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, rec.status, dur)
	})
}
