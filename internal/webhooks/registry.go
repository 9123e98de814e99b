// Package webhooks implements the outbound delivery side of the gateway:
// subscription lookup, filter matching, and concurrent signed fan-out.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"

	"eventgate/internal/model"
	"eventgate/internal/store"
)

// Registry answers "who should receive event X, given its attributes" as of
// now. It never returns inactive subscriptions.
type Registry struct {
	Store store.Store
}

func NewRegistry(s store.Store) *Registry {
	return &Registry{Store: s}
}

func (r *Registry) FindActive(ctx context.Context, tenantID, triggerType string) ([]model.Subscription, error) {
	return r.Store.GetActiveSubscriptions(ctx, tenantID, triggerType)
}

// MatchesFilters reports whether every filter key is present in the event
// data with an exactly equal value. No filter means broadcast: match all.
func MatchesFilters(sub model.Subscription, data map[string]any) bool {
	if len(sub.Filters) == 0 {
		return true
	}
	for k, want := range sub.Filters {
		got, ok := data[k]
		if !ok || !jsonEqual(want, got) {
			return false
		}
	}
	return true
}

// jsonEqual compares two values by their canonical JSON encoding. Map keys
// are sorted by encoding/json, so equal objects encode identically, and JSON
// numbers of equal value compare equal regardless of Go type.
func jsonEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
