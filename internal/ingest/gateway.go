// Package ingest implements the inbound gateway for the ticketing partner's
// signed webhooks: verification, an append-only audit trail, and dispatch to
// per-event-type processors.
package ingest

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"eventgate/internal/metrics"
	"eventgate/internal/model"
	"eventgate/internal/signature"
	"eventgate/internal/store"
)

// Partner header names carrying the HMAC signature and unix timestamp.
const (
	SignatureHeader = "X-Partner-Signature"
	TimestampHeader = "X-Partner-Timestamp"
)

const maxBodyBytes = 1 << 20

// Gateway accepts signed requests from exactly one external partner. Every
// call leaves an audit trail of immutable transition rows, starting with
// `received` before verification and ending at `rejected` or `processed`.
type Gateway struct {
	Store      store.Store
	Secret     string
	Tolerance  time.Duration
	Processors map[string]Processor
	Limiter    *rate.Limiter
	Now        func() time.Time
	// Notify broadcasts gateway activity to the admin live feed; may be nil.
	Notify func(eventType string, data map[string]any)
}

func NewGateway(s store.Store, secret string) *Gateway {
	return &Gateway{
		Store:      s,
		Secret:     secret,
		Tolerance:  signature.Tolerance,
		Processors: DefaultProcessors(),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// ServeHTTP handles POST from the partner. Contract: 405 non-POST, 400 on
// failed verification, 200 {"status":"ok"} on success (processed or
// validated-but-unhandled), 500 with a generic body on processor failure.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeBody(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}
	if g.Limiter != nil && !g.Limiter.Allow() {
		metrics.InboundRateLimited.Inc()
		writeBody(w, http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeBody(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	// One receipt per HTTP call. Replays within the timestamp window get
	// their own receipt trail; there is no dedup across partner retries.
	receiptID := uuid.New().String()
	g.transition(r, model.InboundEvent{ReceiptID: receiptID, Status: model.InboundReceived, Payload: body})

	if err := signature.Verify(g.Secret, r.Header.Get(SignatureHeader), r.Header.Get(TimestampHeader), body, g.Now(), g.Tolerance); err != nil {
		g.reject(r, receiptID, "", body, rejectReason(err))
		writeBody(w, http.StatusBadRequest, map[string]string{"error": "Invalid signature"})
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		g.reject(r, receiptID, "", body, "unparseable payload")
		writeBody(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
		return
	}
	eventType := stringField(payload, "event_type")
	if eventType == "" {
		eventType = stringField(payload, "type")
	}
	tenantID := stringField(payload, "organization_id")

	// Validated row is written before any processing so the trail survives
	// a processor crash.
	g.transition(r, model.InboundEvent{ReceiptID: receiptID, TenantID: tenantID, EventType: eventType, Status: model.InboundValidated, Payload: body})
	metrics.InboundEvents.WithLabelValues(eventType, model.InboundValidated).Inc()

	proc, ok := g.Processors[eventType]
	if !ok {
		// Unknown types stay validated: forward-compatible, but observable.
		metrics.InboundUnhandled.WithLabelValues(eventType).Inc()
		log.Printf("ingest: no processor for event type %q (receipt %s)", eventType, receiptID)
		writeBody(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if err := proc(r.Context(), g.Store, payload); err != nil {
		// Detail stays in the log; the partner sees a generic body. The
		// trail shows validated-but-not-processed for reconciliation.
		metrics.InboundEvents.WithLabelValues(eventType, "failed").Inc()
		log.Printf("ingest: processing %s (receipt %s): %v", eventType, receiptID, err)
		writeBody(w, http.StatusInternalServerError, map[string]string{"error": "Internal processing error"})
		return
	}

	g.transition(r, model.InboundEvent{ReceiptID: receiptID, TenantID: tenantID, EventType: eventType, Status: model.InboundProcessed, Payload: body})
	metrics.InboundEvents.WithLabelValues(eventType, model.InboundProcessed).Inc()
	writeBody(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) reject(r *http.Request, receiptID, eventType string, body []byte, reason string) {
	g.transition(r, model.InboundEvent{ReceiptID: receiptID, EventType: eventType, Status: model.InboundRejected, FailureReason: reason, Payload: body})
	metrics.InboundEvents.WithLabelValues(eventType, model.InboundRejected).Inc()
	log.Printf("ingest: rejected receipt %s: %s", receiptID, reason)
}

func (g *Gateway) transition(r *http.Request, ev model.InboundEvent) {
	ev.ReceivedAt = g.Now()
	if _, err := g.Store.InsertInboundEvent(r.Context(), ev); err != nil {
		log.Printf("ingest: audit row %s for receipt %s: %v", ev.Status, ev.ReceiptID, err)
	}
	if g.Notify != nil {
		g.Notify("inbound."+ev.Status, map[string]any{
			"receiptId": ev.ReceiptID, "eventType": ev.EventType, "reason": ev.FailureReason,
		})
	}
}

func rejectReason(err error) string {
	switch err {
	case signature.ErrMissingHeader:
		return "missing signature headers"
	case signature.ErrInvalidTimestamp:
		return "invalid timestamp"
	case signature.ErrExpiredTimestamp:
		return "expired timestamp"
	default:
		return "signature mismatch"
	}
}

func writeBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
