package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"eventgate/internal/config"
	"eventgate/internal/signature"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(config.Config{PartnerSecret: "test-secret", SignatureTolerance: signature.Tolerance})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func adminReq(method, path string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "admin")
	return req
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	s := newTestServer(t)

	body := []byte(`{"triggerType":"order.completed","targetUrl":"http://hooks.example/x","secret":"s1","filters":{"venue":"main-hall"}}`)
	rr := httptest.NewRecorder()
	s.SubscriptionsHandler(rr, adminReq(http.MethodPost, "/v1/subscriptions", body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d body %s", rr.Code, rr.Body.String())
	}
	var sub struct {
		ID     string `json:"id"`
		Active bool   `json:"active"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&sub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !sub.Active || sub.ID == "" {
		t.Fatalf("created sub = %+v", sub)
	}

	// List
	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, adminReq(http.MethodGet, "/v1/subscriptions?limit=10", nil))
	if rr.Code != 200 {
		t.Fatalf("list: got %d", rr.Code)
	}

	// Deactivate
	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, adminReq(http.MethodPatch, "/v1/subscriptions/"+sub.ID, []byte(`{"active":false}`)))
	if rr.Code != 200 {
		t.Fatalf("patch: got %d body %s", rr.Code, rr.Body.String())
	}
	var patched struct {
		Active bool `json:"active"`
	}
	_ = json.NewDecoder(rr.Body).Decode(&patched)
	if patched.Active {
		t.Fatal("patch did not deactivate")
	}

	// Delete
	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, adminReq(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != 204 {
		t.Fatalf("delete: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, adminReq(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != 404 {
		t.Fatalf("second delete: got %d", rr.Code)
	}
}

func TestSubscriptionRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "operator")
	rr := httptest.NewRecorder()
	s.SubscriptionsHandler(rr, req)
	if rr.Code != 403 {
		t.Fatalf("got %d, want 403", rr.Code)
	}
}

func TestDispatchEndToEnd(t *testing.T) {
	s := newTestServer(t)

	received := make(chan []byte, 1)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		received <- buf.Bytes()
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	body, _ := json.Marshal(map[string]any{
		"triggerType": "ticket.purchased",
		"targetUrl":   target.URL,
		"secret":      "s1",
	})
	rr := httptest.NewRecorder()
	s.SubscriptionsHandler(rr, adminReq(http.MethodPost, "/v1/subscriptions", body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d", rr.Code)
	}

	dispatch, _ := json.Marshal(map[string]any{
		"triggerType": "ticket.purchased",
		"data":        map[string]any{"order_id": "o-1"},
	})
	rr = httptest.NewRecorder()
	s.DispatchHandler(rr, adminReq(http.MethodPost, "/v1/events/dispatch", dispatch))
	if rr.Code != 200 {
		t.Fatalf("dispatch: %d body %s", rr.Code, rr.Body.String())
	}
	var res struct {
		Delivered int `json:"delivered"`
		Failed    int `json:"failed"`
	}
	_ = json.NewDecoder(rr.Body).Decode(&res)
	if res.Delivered != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("target never received the webhook")
	}

	// The attempt shows up in the admin audit listing.
	rr = httptest.NewRecorder()
	s.DeliveryAttemptsHandler(rr, adminReq(http.MethodGet, "/v1/admin/delivery-attempts?outcome=success", nil))
	if rr.Code != 200 {
		t.Fatalf("attempts: %d", rr.Code)
	}
	var page struct {
		Items []map[string]any `json:"items"`
	}
	_ = json.NewDecoder(rr.Body).Decode(&page)
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(page.Items))
	}

	// And in the aggregate stats.
	rr = httptest.NewRecorder()
	s.WebhookMetricsHandler(rr, adminReq(http.MethodGet, "/v1/admin/webhook-metrics", nil))
	if rr.Code != 200 {
		t.Fatalf("metrics: %d", rr.Code)
	}
}

func TestDispatchRejectsMissingTrigger(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.DispatchHandler(rr, adminReq(http.MethodPost, "/v1/events/dispatch", []byte(`{"data":{"a":1}}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rr.Code)
	}
}

func TestInboundThroughAdminListing(t *testing.T) {
	s := newTestServer(t)

	payload, _ := json.Marshal(map[string]any{
		"event_type":      "event.created",
		"organization_id": "t_test",
		"event_id":        "evt-1",
	})
	ts := time.Now().Unix()
	req := httptest.NewRequest(http.MethodPost, "/v1/partner/webhooks", bytes.NewReader(payload))
	req.Header.Set("X-Partner-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Partner-Signature", signature.Sign("test-secret", ts, payload))
	rr := httptest.NewRecorder()
	s.Gateway.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("partner webhook: %d body %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.InboundEventsHandler(rr, adminReq(http.MethodGet, "/v1/admin/inbound-events?status=processed", nil))
	if rr.Code != 200 {
		t.Fatalf("inbound list: %d", rr.Code)
	}
	var page struct {
		Items []map[string]any `json:"items"`
	}
	_ = json.NewDecoder(rr.Body).Decode(&page)
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 processed row, got %d", len(page.Items))
	}
}

func TestActivityStreamReceivesDispatch(t *testing.T) {
	s := newTestServer(t)

	ch := s.Broker.Subscribe(activityChannel)
	defer s.Broker.Unsubscribe(activityChannel, ch)

	dispatch := []byte(`{"triggerType":"event.updated","data":{"id":"e1"}}`)
	rr := httptest.NewRecorder()
	s.DispatchHandler(rr, adminReq(http.MethodPost, "/v1/events/dispatch", dispatch))
	if rr.Code != 200 {
		t.Fatalf("dispatch: %d", rr.Code)
	}

	select {
	case evt := <-ch:
		if evt.Type != "dispatch.completed" {
			t.Fatalf("event type = %s", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no activity event published")
	}
}

func TestDebugJSON(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.DebugJSON(rr, httptest.NewRequest(http.MethodGet, "/debug", nil))
	if rr.Code != 200 {
		t.Fatalf("debug: %d", rr.Code)
	}
	var info map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info["build"] == nil || info["config"] == nil {
		t.Fatalf("debug body = %v", info)
	}
}
