package model

import "time"

// Trigger types emitted by the business handlers. Subscriptions reference
// these by name; an unknown name is a valid broadcast with zero subscribers.
const (
	TriggerTicketPurchased = "ticket.purchased"
	TriggerOrderCompleted  = "order.completed"
	TriggerEventCreated    = "event.created"
	TriggerEventUpdated    = "event.updated"
	TriggerContractSigned  = "contract.signed"
)

// Subscription is an outbound webhook registration owned by a tenant.
// All filter keys must match the event data exactly for a delivery to happen;
// an empty filter matches everything.
type Subscription struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenantId"`
	TriggerType string         `json:"triggerType"`
	TargetURL   string         `json:"targetUrl"`
	Secret      string         `json:"secret,omitempty"`
	Filters     map[string]any `json:"filters,omitempty"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"createdAt,omitempty"`
}

type SubscriptionRequest struct {
	TenantID    string         `json:"tenantId"`
	TriggerType string         `json:"triggerType"`
	TargetURL   string         `json:"targetUrl"`
	Secret      string         `json:"secret"`
	Filters     map[string]any `json:"filters,omitempty"`
}

type SubscriptionPatch struct {
	Active *bool `json:"active,omitempty"`
}

// Delivery attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// DeliveryAttempt is the append-only audit record for one (event, subscriber)
// pair. Never mutated after insert.
type DeliveryAttempt struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenantId"`
	SubscriptionID string    `json:"subscriptionId"`
	TriggerType    string    `json:"triggerType"`
	Payload        []byte    `json:"-"`
	Outcome        string    `json:"outcome"`
	ResponseCode   int       `json:"responseCode,omitempty"`
	Error          string    `json:"error,omitempty"`
	LatencyMs      int       `json:"latencyMs,omitempty"`
	AttemptedAt    time.Time `json:"attemptedAt"`
}

// AttemptResult is the per-subscriber entry in a dispatch summary.
type AttemptResult struct {
	SubscriptionID string `json:"subscriptionId"`
	TargetURL      string `json:"targetUrl"`
	Outcome        string `json:"outcome"`
	ResponseCode   int    `json:"responseCode,omitempty"`
	Error          string `json:"error,omitempty"`
}

// DispatchResult is the aggregate accounting for one fan-out.
// Delivered+Failed equals the number of filter-matching active subscriptions;
// Skipped counts filter mismatches.
type DispatchResult struct {
	TriggerType string          `json:"triggerType"`
	Delivered   int             `json:"delivered"`
	Failed      int             `json:"failed"`
	Skipped     int             `json:"skipped"`
	Results     []AttemptResult `json:"results"`
	Message     string          `json:"message,omitempty"`
}

// Inbound event lifecycle statuses.
const (
	InboundReceived  = "received"
	InboundValidated = "validated"
	InboundRejected  = "rejected"
	InboundProcessed = "processed"
)

// InboundEvent is one row of the ingestion audit trail. A single partner call
// writes a row per transition (received, then rejected or validated, then
// processed); rows are immutable facts. The current state of a receipt is the
// latest row for its ReceiptID.
type InboundEvent struct {
	ID            string    `json:"id"`
	ReceiptID     string    `json:"receiptId"`
	TenantID      string    `json:"tenantId,omitempty"`
	EventType     string    `json:"eventType,omitempty"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failureReason,omitempty"`
	Payload       []byte    `json:"-"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

// RevenueRecord is the ledger row written by ticket/order processors.
type RevenueRecord struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	OrderID     string    `json:"orderId"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
	Source      string    `json:"source"`
	IngestedAt  time.Time `json:"ingestedAt"`
}

// PlatformLink connects a partner-side event to an internal event record.
// Upserted by the event.created processor; one link per (tenant, partner id).
type PlatformLink struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenantId"`
	PartnerEventID string    `json:"partnerEventId"`
	InternalID     string    `json:"internalId,omitempty"`
	Platform       string    `json:"platform"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
