package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventgate/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	subs     map[string]model.Subscription // id -> subscription
	subsTen  map[string][]string           // tenant -> subscription ids
	attempts []model.DeliveryAttempt
	inbound  []model.InboundEvent
	revenue  []model.RevenueRecord
	links    map[string]model.PlatformLink // tenant|partnerEventID -> link
}

func NewMemory() *Memory {
	return &Memory{
		subs:    map[string]model.Subscription{},
		subsTen: map[string][]string{},
		links:   map[string]model.PlatformLink{},
	}
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := model.Subscription{
		ID:          uuid.New().String(),
		TenantID:    req.TenantID,
		TriggerType: req.TriggerType,
		TargetURL:   req.TargetURL,
		Secret:      req.Secret,
		Filters:     req.Filters,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	m.subs[sub.ID] = sub
	m.subsTen[sub.TenantID] = append(m.subsTen[sub.TenantID], sub.ID)
	return sub, nil
}

func (m *Memory) GetActiveSubscriptions(ctx context.Context, tenantID, triggerType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, id := range m.subsTen[tenantID] {
		s := m.subs[id]
		if s.Active && s.TriggerType == triggerType {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]string(nil), m.subsTen[tenantID]...)
	sort.Strings(ids)
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Subscription{}
	var last string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.subs[ids[i]])
		last = ids[i]
	}
	next := ""
	if len(out) == limit && start+len(out) < len(ids) {
		next = last
	}
	return out, next, nil
}

func (m *Memory) PatchSubscription(ctx context.Context, tenantID, id string, patch model.SubscriptionPatch) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.TenantID != tenantID {
		return model.Subscription{}, ErrNotFound
	}
	if patch.Active != nil {
		s.Active = *patch.Active
	}
	m.subs[id] = s
	return s, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.subs, id)
	ids := m.subsTen[tenantID]
	for i, sid := range ids {
		if sid == id {
			m.subsTen[tenantID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) InsertDeliveryAttempt(ctx context.Context, a model.DeliveryAttempt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now().UTC()
	}
	m.attempts = append(m.attempts, a)
	return a.ID, nil
}

func (m *Memory) ListDeliveryAttempts(ctx context.Context, tenantID, triggerType, outcome, cursor string, limit int) ([]model.DeliveryAttempt, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i, a := range m.attempts {
			if a.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.DeliveryAttempt{}
	var last string
	for i := start; i < len(m.attempts) && len(out) < limit; i++ {
		a := m.attempts[i]
		if a.TenantID != tenantID {
			continue
		}
		if triggerType != "" && a.TriggerType != triggerType {
			continue
		}
		if outcome != "" && a.Outcome != outcome {
			continue
		}
		out = append(out, a)
		last = a.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (m *Memory) DeliveryStats(ctx context.Context, tenantID string, since time.Time, triggerType string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type key struct{ trigger, outcome string }
	counts := map[key]int{}
	latSum := map[key]int{}
	for _, a := range m.attempts {
		if a.TenantID != tenantID || a.AttemptedAt.Before(since) {
			continue
		}
		if triggerType != "" && a.TriggerType != triggerType {
			continue
		}
		k := key{a.TriggerType, a.Outcome}
		counts[k]++
		latSum[k] += a.LatencyMs
	}
	out := []map[string]any{}
	for k, n := range counts {
		avg := 0.0
		if n > 0 {
			avg = float64(latSum[k]) / float64(n)
		}
		out = append(out, map[string]any{"triggerType": k.trigger, "outcome": k.outcome, "count": n, "avgLatencyMs": avg})
	}
	sort.Slice(out, func(i, j int) bool {
		a := out[i]["triggerType"].(string) + out[i]["outcome"].(string)
		b := out[j]["triggerType"].(string) + out[j]["outcome"].(string)
		return strings.Compare(a, b) < 0
	})
	return out, nil
}

func (m *Memory) InsertInboundEvent(ctx context.Context, ev model.InboundEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	m.inbound = append(m.inbound, ev)
	return ev.ID, nil
}

func (m *Memory) ListInboundEvents(ctx context.Context, receiptID, status, cursor string, limit int) ([]model.InboundEvent, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i, e := range m.inbound {
			if e.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.InboundEvent{}
	var last string
	for i := start; i < len(m.inbound) && len(out) < limit; i++ {
		e := m.inbound[i]
		if receiptID != "" && e.ReceiptID != receiptID {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, e)
		last = e.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (m *Memory) LatestInboundEvent(ctx context.Context, receiptID string) (model.InboundEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.inbound) - 1; i >= 0; i-- {
		if m.inbound[i].ReceiptID == receiptID {
			return m.inbound[i], nil
		}
	}
	return model.InboundEvent{}, ErrNotFound
}

func (m *Memory) InsertRevenueRecord(ctx context.Context, rec model.RevenueRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now().UTC()
	}
	m.revenue = append(m.revenue, rec)
	return rec.ID, nil
}

func (m *Memory) ListRevenueRecords(ctx context.Context, tenantID, cursor string, limit int) ([]model.RevenueRecord, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i, r := range m.revenue {
			if r.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.RevenueRecord{}
	var last string
	for i := start; i < len(m.revenue) && len(out) < limit; i++ {
		r := m.revenue[i]
		if r.TenantID != tenantID {
			continue
		}
		out = append(out, r)
		last = r.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (m *Memory) UpsertPlatformLink(ctx context.Context, link model.PlatformLink) (model.PlatformLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := link.TenantID + "|" + link.PartnerEventID
	if prev, ok := m.links[k]; ok {
		link.ID = prev.ID
	} else if link.ID == "" {
		link.ID = uuid.New().String()
	}
	link.UpdatedAt = time.Now().UTC()
	m.links[k] = link
	return link, nil
}

func (m *Memory) GetPlatformLink(ctx context.Context, tenantID, partnerEventID string) (model.PlatformLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[tenantID+"|"+partnerEventID]
	if !ok {
		return model.PlatformLink{}, ErrNotFound
	}
	return l, nil
}
