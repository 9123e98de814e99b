package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"eventgate/internal/model"
	"eventgate/internal/webhooks"
)

// DispatchHandler handles POST /v1/events/dispatch: the internal trigger
// surface business handlers call when something notable happened.
func (s *Server) DispatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		TenantID    string         `json:"tenantId"`
		TriggerType string         `json:"triggerType"`
		Data        map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		_, req.TenantID = s.withTenant(r)
	}
	res, err := s.Dispatcher.Dispatch(r.Context(), req.TenantID, req.TriggerType, req.Data)
	if err != nil {
		if err == webhooks.ErrMissingTrigger || err == webhooks.ErrMissingData {
			writeProblem(w, http.StatusBadRequest, "Invalid dispatch request", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Dispatch failed", err.Error(), r.URL.Path)
		return
	}
	s.Broker.Publish(activityChannel, ActivityEvent{Type: "dispatch.completed", Data: map[string]any{
		"triggerType": res.TriggerType, "delivered": res.Delivered, "failed": res.Failed, "skipped": res.Skipped,
	}})
	writeJSON(w, http.StatusOK, res)
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		if req.TriggerType == "" || req.TargetURL == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "triggerType and targetUrl are required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles PATCH/DELETE /v1/subscriptions/{id} (admin).
// PATCH toggles the active flag; there is no other mutable field.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	switch r.Method {
	case http.MethodPatch:
		var patch model.SubscriptionPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.PatchSubscription(r.Context(), p.Tenant, id, patch)
		if err != nil {
			writeProblem(w, 404, "Not Found", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, sub)
	case http.MethodDelete:
		if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
			writeProblem(w, 404, "Not Found", err.Error(), r.URL.Path)
			return
		}
		w.WriteHeader(204)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Admin: delivery attempt audit listing
func (s *Server) DeliveryAttemptsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/delivery-attempts" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(405)
		return
	}
	triggerType := r.URL.Query().Get("triggerType")
	outcome := r.URL.Query().Get("outcome")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListDeliveryAttempts(r.Context(), p.Tenant, triggerType, outcome, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List attempts failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// Admin: inbound ingestion audit listing
func (s *Server) InboundEventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/inbound-events" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(405)
		return
	}
	receiptID := r.URL.Query().Get("receiptId")
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListInboundEvents(r.Context(), receiptID, status, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List inbound events failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// Admin: aggregate delivery stats from the audit trail
func (s *Server) WebhookMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-metrics" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	sinceHours := 24
	if v := r.URL.Query().Get("sinceHours"); v != "" {
		fmt.Sscanf(v, "%d", &sinceHours)
	}
	triggerType := r.URL.Query().Get("triggerType")
	since := time.Now().Add(-time.Duration(sinceHours) * time.Hour)
	items, err := s.Store.DeliveryStats(r.Context(), p.Tenant, since, triggerType)
	if err != nil {
		writeProblem(w, 500, "Metrics failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items})
}

// Admin: revenue ledger rows written by the ingestion processors
func (s *Server) RevenueRecordsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/revenue-records" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListRevenueRecords(r.Context(), p.Tenant, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List revenue records failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// ActivityStreamHandler streams gateway activity over SSE.
func (s *Server) ActivityStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	fl, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(activityChannel)
	defer s.Broker.Unsubscribe(activityChannel, ch)
	fl.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			data, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", data)
			fl.Flush()
		}
	}
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
