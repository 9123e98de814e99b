package store

import (
	"context"
	"errors"
	"time"

	"eventgate/internal/model"
)

// Store is the persistence interface used by the gateway. Every delivery
// attempt and inbound transition is an independent insert; no transaction
// spans multiple subscribers.
type Store interface {
	// Subscriptions (created by the admin surface, read-only to dispatch)
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetActiveSubscriptions(ctx context.Context, tenantID, triggerType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	PatchSubscription(ctx context.Context, tenantID, id string, patch model.SubscriptionPatch) (model.Subscription, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Delivery audit (append-only)
	InsertDeliveryAttempt(ctx context.Context, a model.DeliveryAttempt) (string, error)
	ListDeliveryAttempts(ctx context.Context, tenantID, triggerType, outcome, cursor string, limit int) ([]model.DeliveryAttempt, string, error)
	DeliveryStats(ctx context.Context, tenantID string, since time.Time, triggerType string) ([]map[string]any, error)

	// Inbound ingestion audit (append-only, one row per transition)
	InsertInboundEvent(ctx context.Context, ev model.InboundEvent) (string, error)
	ListInboundEvents(ctx context.Context, receiptID, status, cursor string, limit int) ([]model.InboundEvent, string, error)
	LatestInboundEvent(ctx context.Context, receiptID string) (model.InboundEvent, error)

	// Processor write targets
	InsertRevenueRecord(ctx context.Context, rec model.RevenueRecord) (string, error)
	ListRevenueRecords(ctx context.Context, tenantID, cursor string, limit int) ([]model.RevenueRecord, string, error)
	UpsertPlatformLink(ctx context.Context, link model.PlatformLink) (model.PlatformLink, error)
	GetPlatformLink(ctx context.Context, tenantID, partnerEventID string) (model.PlatformLink, error)
}

var ErrNotFound = errors.New("not found")
