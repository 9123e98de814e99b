package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"eventgate/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                        s.Config.Port,
			"AUTH_MODE":                   os.Getenv("AUTH_MODE"),
			"WEBHOOK_TIMEOUT_SECONDS":     int(s.Config.DeliveryTimeout / time.Second),
			"WEBHOOK_MAX_INFLIGHT":        s.Config.MaxInFlight,
			"SIGNATURE_TOLERANCE_SECONDS": int(s.Config.SignatureTolerance / time.Second),
			"INGEST_RATE_RPS":             s.Config.IngestRateRPS,
			"HAS_DATABASE_URL":            s.Config.DatabaseURL != "",
			"HAS_REDIS_URL":               s.Config.RedisURL != "",
			"HAS_PARTNER_SECRET":          s.Config.PartnerSecret != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
