package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"eventgate/internal/model"
	"eventgate/internal/signature"
	"eventgate/internal/store"
)

func newTestDispatcher(s store.Store) *Dispatcher {
	return NewDispatcher(s, 2*time.Second, 4)
}

func TestDispatchValidation(t *testing.T) {
	d := newTestDispatcher(store.NewMemory())
	if _, err := d.Dispatch(context.Background(), "t1", "", map[string]any{"a": 1}); err != ErrMissingTrigger {
		t.Fatalf("expected ErrMissingTrigger, got %v", err)
	}
	if _, err := d.Dispatch(context.Background(), "t1", model.TriggerEventCreated, nil); err != ErrMissingData {
		t.Fatalf("expected ErrMissingData, got %v", err)
	}
}

func TestDispatchNoSubscribers(t *testing.T) {
	d := newTestDispatcher(store.NewMemory())
	res, err := d.Dispatch(context.Background(), "t1", model.TriggerEventCreated, map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Delivered != 0 || res.Failed != 0 || res.Skipped != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if res.Message == "" {
		t.Fatal("expected a no-subscriber message")
	}
}

func TestDispatchSignsTransmittedBytes(t *testing.T) {
	const secret = "sub-secret"
	var gotBody []byte
	var gotSig, gotTS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Signature")
		gotTS = r.Header.Get("X-Timestamp")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	mem := store.NewMemory()
	if _, err := mem.CreateSubscription(ctx, model.SubscriptionRequest{
		TenantID: "t1", TriggerType: model.TriggerOrderCompleted, TargetURL: srv.URL, Secret: secret,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	d := newTestDispatcher(mem)
	res, err := d.Dispatch(ctx, "t1", model.TriggerOrderCompleted, map[string]any{"order_id": "o-1"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Delivered != 1 || res.Failed != 0 {
		t.Fatalf("expected one delivery, got %+v", res)
	}

	// The receiver must be able to verify the signature over the exact
	// bytes it read off the wire.
	if err := signature.Verify(secret, gotSig, gotTS, gotBody, time.Now().UTC(), signature.Tolerance); err != nil {
		t.Fatalf("receiver-side verify: %v", err)
	}

	var wire struct {
		Trigger   string         `json:"trigger"`
		Timestamp string         `json:"timestamp"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(gotBody, &wire); err != nil {
		t.Fatalf("unmarshal wire payload: %v", err)
	}
	if wire.Trigger != model.TriggerOrderCompleted {
		t.Fatalf("wire trigger = %q", wire.Trigger)
	}
	if wire.Data["order_id"] != "o-1" {
		t.Fatalf("wire data = %v", wire.Data)
	}
	if _, err := time.Parse(time.RFC3339, wire.Timestamp); err != nil {
		t.Fatalf("wire timestamp %q not RFC3339: %v", wire.Timestamp, err)
	}
	if _, err := strconv.ParseInt(gotTS, 10, 64); err != nil {
		t.Fatalf("X-Timestamp %q not unix seconds: %v", gotTS, err)
	}
}

func TestDispatchFanOutAccounting(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer okSrv.Close()
	failSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failSrv.Close()

	// One matching, one failing, one filtered out.
	for _, req := range []model.SubscriptionRequest{
		{TenantID: "t1", TriggerType: model.TriggerTicketPurchased, TargetURL: okSrv.URL, Secret: "s"},
		{TenantID: "t1", TriggerType: model.TriggerTicketPurchased, TargetURL: failSrv.URL, Secret: "s"},
		{TenantID: "t1", TriggerType: model.TriggerTicketPurchased, TargetURL: okSrv.URL, Secret: "s", Filters: map[string]any{"venue": "annex"}},
	} {
		if _, err := mem.CreateSubscription(ctx, req); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	d := newTestDispatcher(mem)
	res, err := d.Dispatch(ctx, "t1", model.TriggerTicketPurchased, map[string]any{"venue": "main-hall"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Delivered != 1 || res.Failed != 1 || res.Skipped != 1 {
		t.Fatalf("accounting = delivered %d failed %d skipped %d", res.Delivered, res.Failed, res.Skipped)
	}
	if len(res.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.Results))
	}

	attempts, _, err := mem.ListDeliveryAttempts(ctx, "t1", "", "", "", 50)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 audit rows, got %d", len(attempts))
	}
	byOutcome := map[string]int{}
	for _, a := range attempts {
		byOutcome[a.Outcome]++
		if a.Outcome == model.OutcomeFailed && a.ResponseCode != http.StatusBadGateway {
			t.Fatalf("failed attempt response code = %d", a.ResponseCode)
		}
		if a.Outcome == model.OutcomeSkipped && a.Error != "filter_mismatch" {
			t.Fatalf("skipped attempt error = %q", a.Error)
		}
	}
	if byOutcome[model.OutcomeSuccess] != 1 || byOutcome[model.OutcomeFailed] != 1 || byOutcome[model.OutcomeSkipped] != 1 {
		t.Fatalf("audit outcomes = %v", byOutcome)
	}
}

func TestDispatchUnreachableTarget(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	if _, err := mem.CreateSubscription(ctx, model.SubscriptionRequest{
		TenantID: "t1", TriggerType: model.TriggerEventCreated,
		TargetURL: "http://127.0.0.1:1", Secret: "s",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	d := newTestDispatcher(mem)
	res, err := d.Dispatch(ctx, "t1", model.TriggerEventCreated, map[string]any{"id": "e1"})
	if err != nil {
		t.Fatalf("a subscriber being down must not error the dispatch: %v", err)
	}
	if res.Failed != 1 || res.Delivered != 0 {
		t.Fatalf("expected one failure, got %+v", res)
	}
	if res.Results[0].Error == "" {
		t.Fatal("expected a transport error on the result")
	}
}

func TestDispatchBoundedParallelism(t *testing.T) {
	const subs = 12
	const maxInFlight = 3

	var inFlight, peak int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	mem := store.NewMemory()
	for i := 0; i < subs; i++ {
		if _, err := mem.CreateSubscription(ctx, model.SubscriptionRequest{
			TenantID: "t1", TriggerType: model.TriggerContractSigned, TargetURL: srv.URL, Secret: "s",
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	d := NewDispatcher(mem, 2*time.Second, maxInFlight)
	res, err := d.Dispatch(ctx, "t1", model.TriggerContractSigned, map[string]any{"contract": "c-9"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Delivered != subs {
		t.Fatalf("delivered %d of %d", res.Delivered, subs)
	}
	if p := atomic.LoadInt64(&peak); p > maxInFlight {
		t.Fatalf("peak in-flight %d exceeds cap %d", p, maxInFlight)
	}
}
