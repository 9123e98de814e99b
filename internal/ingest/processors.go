package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"eventgate/internal/model"
	"eventgate/internal/store"
)

// Processor maps one validated inbound payload to datastore writes. Each
// event type has exactly one processor; processors never call each other.
type Processor func(ctx context.Context, s store.Store, payload map[string]any) error

// Platform name recorded on cross-platform link rows.
const partnerPlatform = "tickethub"

// DefaultProcessors is the dispatch table for partner event types. Adding an
// event type means adding one entry here.
func DefaultProcessors() map[string]Processor {
	return map[string]Processor{
		model.TriggerTicketPurchased: processRevenue("ticket"),
		model.TriggerOrderCompleted:  processRevenue("order"),
		model.TriggerEventCreated:    processEventCreated,
	}
}

// processRevenue inserts one ledger-style revenue row from a ticket purchase
// or completed order.
func processRevenue(source string) Processor {
	return func(ctx context.Context, s store.Store, payload map[string]any) error {
		tenantID := stringField(payload, "organization_id")
		if tenantID == "" {
			return errors.New("organization_id is required")
		}
		orderID := stringField(payload, "order_id")
		if orderID == "" {
			return errors.New("order_id is required")
		}
		currency := stringField(payload, "currency")
		if currency == "" {
			return errors.New("currency is required")
		}
		cents, err := amountCents(payload)
		if err != nil {
			return err
		}
		_, err = s.InsertRevenueRecord(ctx, model.RevenueRecord{
			TenantID:    tenantID,
			OrderID:     orderID,
			AmountCents: cents,
			Currency:    currency,
			Source:      source,
		})
		return err
	}
}

// processEventCreated upserts the link between the partner's event record and
// ours. Replays and partner-side updates land on the same row.
func processEventCreated(ctx context.Context, s store.Store, payload map[string]any) error {
	tenantID := stringField(payload, "organization_id")
	if tenantID == "" {
		return errors.New("organization_id is required")
	}
	partnerEventID := stringField(payload, "event_id")
	if partnerEventID == "" {
		return errors.New("event_id is required")
	}
	_, err := s.UpsertPlatformLink(ctx, model.PlatformLink{
		TenantID:       tenantID,
		PartnerEventID: partnerEventID,
		InternalID:     stringField(payload, "internal_event_id"),
		Platform:       partnerPlatform,
	})
	return err
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// amountCents accepts either integer minor units ("amount_cents") or decimal
// major units ("amount").
func amountCents(m map[string]any) (int64, error) {
	if v, ok := m["amount_cents"].(float64); ok {
		return int64(v), nil
	}
	if v, ok := m["amount"].(float64); ok {
		return int64(math.Round(v * 100)), nil
	}
	return 0, fmt.Errorf("amount is required")
}
