package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"eventgate/internal/metrics"
	"eventgate/internal/model"
	"eventgate/internal/signature"
	"eventgate/internal/store"
)

var ErrMissingTrigger = errors.New("trigger type is required")
var ErrMissingData = errors.New("event data is required")

const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxInFlight = 8
)

// Dispatcher fans one domain event out to every interested, filter-matching,
// active subscriber and records a complete accounting of the outcome. There
// is no retry: a failed delivery is logged and surfaced, never rescheduled.
type Dispatcher struct {
	Registry    *Registry
	Store       store.Store
	HTTP        *http.Client
	MaxInFlight int
}

func NewDispatcher(s store.Store, timeout time.Duration, maxInFlight int) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Dispatcher{
		Registry:    NewRegistry(s),
		Store:       s,
		HTTP:        &http.Client{Timeout: timeout},
		MaxInFlight: maxInFlight,
	}
}

type wirePayload struct {
	Trigger   string         `json:"trigger"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Dispatch delivers one event. Subscriber outcomes are independent facts:
// a subscriber being down never propagates an error to the caller; only
// caller mistakes (missing trigger/data) and store lookup failures do.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID, triggerType string, data map[string]any) (model.DispatchResult, error) {
	if triggerType == "" {
		return model.DispatchResult{}, ErrMissingTrigger
	}
	if data == nil {
		return model.DispatchResult{}, ErrMissingData
	}
	res := model.DispatchResult{TriggerType: triggerType, Results: []model.AttemptResult{}}

	subs, err := d.Registry.FindActive(ctx, tenantID, triggerType)
	if err != nil {
		return model.DispatchResult{}, err
	}
	if len(subs) == 0 {
		res.Message = "no active subscriptions for trigger"
		return res, nil
	}

	now := time.Now().UTC()
	payload := wirePayload{Trigger: triggerType, Timestamp: now.Format(time.RFC3339), Data: data}
	// Marshal once; the same bytes are signed and transmitted so the
	// receiver can verify against the body it actually read.
	body, err := json.Marshal(payload)
	if err != nil {
		return model.DispatchResult{}, err
	}
	ts := now.Unix()

	var matching []model.Subscription
	for _, sub := range subs {
		if !MatchesFilters(sub, data) {
			res.Skipped++
			res.Results = append(res.Results, model.AttemptResult{
				SubscriptionID: sub.ID, TargetURL: sub.TargetURL,
				Outcome: model.OutcomeSkipped, Error: "filter_mismatch",
			})
			d.record(ctx, model.DeliveryAttempt{
				TenantID: tenantID, SubscriptionID: sub.ID, TriggerType: triggerType,
				Payload: body, Outcome: model.OutcomeSkipped, Error: "filter_mismatch",
			})
			continue
		}
		matching = append(matching, sub)
	}

	results := make([]model.AttemptResult, len(matching))
	sem := make(chan struct{}, d.MaxInFlight)
	var wg sync.WaitGroup
	for i, sub := range matching {
		wg.Add(1)
		go func(i int, sub model.Subscription) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = d.deliver(ctx, tenantID, sub, triggerType, ts, body)
		}(i, sub)
	}
	wg.Wait()

	for _, r := range results {
		if r.Outcome == model.OutcomeSuccess {
			res.Delivered++
		} else {
			res.Failed++
		}
		res.Results = append(res.Results, r)
	}
	return res, nil
}

func (d *Dispatcher) deliver(ctx context.Context, tenantID string, sub model.Subscription, triggerType string, ts int64, body []byte) model.AttemptResult {
	out := model.AttemptResult{SubscriptionID: sub.ID, TargetURL: sub.TargetURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		out.Outcome = model.OutcomeFailed
		out.Error = err.Error()
		d.finish(ctx, tenantID, sub, triggerType, body, out, 0)
		return out
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature.Sign(sub.Secret, ts, body))
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Subscription-ID", sub.ID)

	start := time.Now()
	resp, err := d.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		out.Outcome = model.OutcomeFailed
		out.Error = err.Error()
		d.finish(ctx, tenantID, sub, triggerType, body, out, latency)
		return out
	}
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
	out.ResponseCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		out.Outcome = model.OutcomeSuccess
	} else {
		out.Outcome = model.OutcomeFailed
		out.Error = "non-2xx response"
	}
	d.finish(ctx, tenantID, sub, triggerType, body, out, latency)
	return out
}

func (d *Dispatcher) finish(ctx context.Context, tenantID string, sub model.Subscription, triggerType string, body []byte, out model.AttemptResult, latencyMs int) {
	metrics.WebhookDeliveries.WithLabelValues(triggerType, out.Outcome).Inc()
	metrics.WebhookLatency.WithLabelValues(triggerType, out.Outcome).Observe(float64(latencyMs))
	d.record(ctx, model.DeliveryAttempt{
		TenantID: tenantID, SubscriptionID: sub.ID, TriggerType: triggerType,
		Payload: body, Outcome: out.Outcome, ResponseCode: out.ResponseCode,
		Error: out.Error, LatencyMs: latencyMs,
	})
}

func (d *Dispatcher) record(ctx context.Context, a model.DeliveryAttempt) {
	a.AttemptedAt = time.Now().UTC()
	if _, err := d.Store.InsertDeliveryAttempt(ctx, a); err != nil {
		log.Printf("webhooks: record attempt for sub %s: %v", a.SubscriptionID, err)
	}
}
