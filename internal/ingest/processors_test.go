package ingest

import (
	"context"
	"testing"

	"eventgate/internal/model"
	"eventgate/internal/store"
)

func TestProcessRevenueRequiredFields(t *testing.T) {
	proc := processRevenue("ticket")
	mem := store.NewMemory()
	base := map[string]any{
		"organization_id": "org-1",
		"order_id":        "ord-1",
		"currency":        "NOK",
		"amount_cents":    float64(5500),
	}
	for _, missing := range []string{"organization_id", "order_id", "currency", "amount_cents"} {
		payload := map[string]any{}
		for k, v := range base {
			if k != missing {
				payload[k] = v
			}
		}
		if err := proc(context.Background(), mem, payload); err == nil {
			t.Fatalf("expected error with %s missing", missing)
		}
	}
	if err := proc(context.Background(), mem, base); err != nil {
		t.Fatalf("full payload: %v", err)
	}
	recs, _, _ := mem.ListRevenueRecords(context.Background(), "org-1", "", 10)
	if len(recs) != 1 || recs[0].AmountCents != 5500 || recs[0].Source != "ticket" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestAmountCents(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
		want    int64
		wantErr bool
	}{
		{"minor units", map[string]any{"amount_cents": float64(1999)}, 1999, false},
		{"major units", map[string]any{"amount": 19.99}, 1999, false},
		{"major units rounding", map[string]any{"amount": 0.1}, 10, false},
		{"minor units win over major", map[string]any{"amount_cents": float64(500), "amount": 9.99}, 500, false},
		{"missing", map[string]any{}, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := amountCents(tc.payload)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("amountCents: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestProcessEventCreatedUpsert(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	payload := map[string]any{
		"organization_id": "org-1",
		"event_id":        "evt-1",
	}
	if err := processEventCreated(ctx, mem, payload); err != nil {
		t.Fatalf("first: %v", err)
	}
	first, err := mem.GetPlatformLink(ctx, "org-1", "evt-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Replay with an internal id attached lands on the same row.
	payload["internal_event_id"] = "int-9"
	if err := processEventCreated(ctx, mem, payload); err != nil {
		t.Fatalf("second: %v", err)
	}
	second, err := mem.GetPlatformLink(ctx, "org-1", "evt-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert created a new row: %s vs %s", second.ID, first.ID)
	}
	if second.InternalID != "int-9" {
		t.Fatalf("internal id = %q", second.InternalID)
	}
}

func TestDefaultProcessorsTable(t *testing.T) {
	table := DefaultProcessors()
	for _, typ := range []string{model.TriggerTicketPurchased, model.TriggerOrderCompleted, model.TriggerEventCreated} {
		if table[typ] == nil {
			t.Fatalf("no processor for %s", typ)
		}
	}
	if len(table) != 3 {
		t.Fatalf("table has %d entries", len(table))
	}
}
