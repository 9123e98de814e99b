package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"eventgate/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// MigrateDir applies every .sql file in dir in lexical order (dev helper; a
// real deployment would track applied versions).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		b, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, trigger_type, target_url, secret, filters, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,true,$7)`,
		id, req.TenantID, req.TriggerType, req.TargetURL, req.Secret, toJSON(req.Filters), now)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, TenantID: req.TenantID, TriggerType: req.TriggerType, TargetURL: req.TargetURL,
		Secret: req.Secret, Filters: req.Filters, Active: true, CreatedAt: now}, nil
}

func (p *Postgres) GetActiveSubscriptions(ctx context.Context, tenantID, triggerType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, target_url, secret, filters FROM subscriptions
		WHERE tenant_id=$1 AND trigger_type=$2 AND active`, tenantID, triggerType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s := model.Subscription{TenantID: tenantID, TriggerType: triggerType, Active: true}
		var filters []byte
		if err := rows.Scan(&s.ID, &s.TargetURL, &s.Secret, &filters); err != nil {
			return nil, err
		}
		if len(filters) > 0 {
			_ = json.Unmarshal(filters, &s.Filters)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, trigger_type, target_url, secret, filters, active, created_at
			FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, trigger_type, target_url, secret, filters, active, created_at
			FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	var out []model.Subscription
	var last string
	for rows.Next() {
		s := model.Subscription{TenantID: tenantID}
		var filters []byte
		if err := rows.Scan(&s.ID, &s.TriggerType, &s.TargetURL, &s.Secret, &filters, &s.Active, &s.CreatedAt); err != nil {
			return nil, "", err
		}
		if len(filters) > 0 {
			_ = json.Unmarshal(filters, &s.Filters)
		}
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) PatchSubscription(ctx context.Context, tenantID, id string, patch model.SubscriptionPatch) (model.Subscription, error) {
	if patch.Active != nil {
		res, err := p.db.ExecContext(ctx, `UPDATE subscriptions SET active=$3 WHERE tenant_id=$1 AND id=$2`, tenantID, id, *patch.Active)
		if err != nil {
			return model.Subscription{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.Subscription{}, ErrNotFound
		}
	}
	row := p.db.QueryRowContext(ctx, `SELECT id::text, trigger_type, target_url, secret, filters, active, created_at
		FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	s := model.Subscription{TenantID: tenantID}
	var filters []byte
	if err := row.Scan(&s.ID, &s.TriggerType, &s.TargetURL, &s.Secret, &filters, &s.Active, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Subscription{}, ErrNotFound
		}
		return model.Subscription{}, err
	}
	if len(filters) > 0 {
		_ = json.Unmarshal(filters, &s.Filters)
	}
	return s, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delivery attempts are append-only; there is no update path.
func (p *Postgres) InsertDeliveryAttempt(ctx context.Context, a model.DeliveryAttempt) (string, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO delivery_attempts (id, tenant_id, subscription_id, trigger_type, payload, outcome, response_code, error, latency_ms, attempted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.TenantID, nullIfEmpty(a.SubscriptionID), a.TriggerType, a.Payload, a.Outcome, a.ResponseCode, nullIfEmpty(a.Error), a.LatencyMs, a.AttemptedAt)
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

func (p *Postgres) ListDeliveryAttempts(ctx context.Context, tenantID, triggerType, outcome, cursor string, limit int) ([]model.DeliveryAttempt, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, COALESCE(subscription_id::text,''), trigger_type, outcome, response_code, COALESCE(error,''), latency_ms, attempted_at
		FROM delivery_attempts WHERE tenant_id=$1`
	args := []any{tenantID}
	if triggerType != "" {
		args = append(args, triggerType)
		q += ` AND trigger_type=$` + itoa(len(args))
	}
	if outcome != "" {
		args = append(args, outcome)
		q += ` AND outcome=$` + itoa(len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += ` AND id::text > $` + itoa(len(args))
	}
	args = append(args, limit)
	q += ` ORDER BY id LIMIT $` + itoa(len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.DeliveryAttempt{}
	var last string
	for rows.Next() {
		a := model.DeliveryAttempt{TenantID: tenantID}
		if err := rows.Scan(&a.ID, &a.SubscriptionID, &a.TriggerType, &a.Outcome, &a.ResponseCode, &a.Error, &a.LatencyMs, &a.AttemptedAt); err != nil {
			return nil, "", err
		}
		out = append(out, a)
		last = a.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeliveryStats(ctx context.Context, tenantID string, since time.Time, triggerType string) ([]map[string]any, error) {
	q := `SELECT trigger_type, outcome, COUNT(*) AS cnt, COALESCE(AVG(latency_ms),0) AS avg_latency_ms
		FROM delivery_attempts WHERE tenant_id=$1 AND attempted_at >= $2`
	args := []any{tenantID, since}
	if triggerType != "" {
		args = append(args, triggerType)
		q += ` AND trigger_type=$3`
	}
	q += ` GROUP BY trigger_type, outcome ORDER BY trigger_type, outcome`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var trig, outc string
		var cnt int
		var avg float64
		if err := rows.Scan(&trig, &outc, &cnt, &avg); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{"triggerType": trig, "outcome": outc, "count": cnt, "avgLatencyMs": avg})
	}
	return out, rows.Err()
}

func (p *Postgres) InsertInboundEvent(ctx context.Context, ev model.InboundEvent) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO inbound_events (id, receipt_id, tenant_id, event_type, status, failure_reason, payload, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		ev.ID, ev.ReceiptID, nullIfEmpty(ev.TenantID), nullIfEmpty(ev.EventType), ev.Status, nullIfEmpty(ev.FailureReason), ev.Payload, ev.ReceivedAt)
	if err != nil {
		return "", err
	}
	return ev.ID, nil
}

func (p *Postgres) ListInboundEvents(ctx context.Context, receiptID, status, cursor string, limit int) ([]model.InboundEvent, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, receipt_id::text, COALESCE(tenant_id,''), COALESCE(event_type,''), status, COALESCE(failure_reason,''), received_at
		FROM inbound_events WHERE 1=1`
	args := []any{}
	if receiptID != "" {
		args = append(args, receiptID)
		q += ` AND receipt_id=$` + itoa(len(args))
	}
	if status != "" {
		args = append(args, status)
		q += ` AND status=$` + itoa(len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += ` AND id::text > $` + itoa(len(args))
	}
	args = append(args, limit)
	q += ` ORDER BY id LIMIT $` + itoa(len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.InboundEvent{}
	var last string
	for rows.Next() {
		var e model.InboundEvent
		if err := rows.Scan(&e.ID, &e.ReceiptID, &e.TenantID, &e.EventType, &e.Status, &e.FailureReason, &e.ReceivedAt); err != nil {
			return nil, "", err
		}
		out = append(out, e)
		last = e.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) LatestInboundEvent(ctx context.Context, receiptID string) (model.InboundEvent, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id::text, receipt_id::text, COALESCE(tenant_id,''), COALESCE(event_type,''), status, COALESCE(failure_reason,''), received_at
		FROM inbound_events WHERE receipt_id=$1 ORDER BY received_at DESC, id DESC LIMIT 1`, receiptID)
	var e model.InboundEvent
	if err := row.Scan(&e.ID, &e.ReceiptID, &e.TenantID, &e.EventType, &e.Status, &e.FailureReason, &e.ReceivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.InboundEvent{}, ErrNotFound
		}
		return model.InboundEvent{}, err
	}
	return e, nil
}

func (p *Postgres) InsertRevenueRecord(ctx context.Context, rec model.RevenueRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO revenue_records (id, tenant_id, order_id, amount_cents, currency, source, ingested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.TenantID, rec.OrderID, rec.AmountCents, rec.Currency, rec.Source, rec.IngestedAt)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (p *Postgres) ListRevenueRecords(ctx context.Context, tenantID, cursor string, limit int) ([]model.RevenueRecord, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, order_id, amount_cents, currency, source, ingested_at
			FROM revenue_records WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, order_id, amount_cents, currency, source, ingested_at
			FROM revenue_records WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.RevenueRecord{}
	var last string
	for rows.Next() {
		r := model.RevenueRecord{TenantID: tenantID}
		if err := rows.Scan(&r.ID, &r.OrderID, &r.AmountCents, &r.Currency, &r.Source, &r.IngestedAt); err != nil {
			return nil, "", err
		}
		out = append(out, r)
		last = r.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) UpsertPlatformLink(ctx context.Context, link model.PlatformLink) (model.PlatformLink, error) {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	link.UpdatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx, `INSERT INTO platform_links (id, tenant_id, partner_event_id, internal_id, platform, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (tenant_id, partner_event_id) DO UPDATE SET internal_id=EXCLUDED.internal_id, platform=EXCLUDED.platform, updated_at=EXCLUDED.updated_at`,
		link.ID, link.TenantID, link.PartnerEventID, nullIfEmpty(link.InternalID), link.Platform, link.UpdatedAt)
	if err != nil {
		return model.PlatformLink{}, err
	}
	return p.GetPlatformLink(ctx, link.TenantID, link.PartnerEventID)
}

func (p *Postgres) GetPlatformLink(ctx context.Context, tenantID, partnerEventID string) (model.PlatformLink, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id::text, COALESCE(internal_id,''), platform, updated_at
		FROM platform_links WHERE tenant_id=$1 AND partner_event_id=$2`, tenantID, partnerEventID)
	l := model.PlatformLink{TenantID: tenantID, PartnerEventID: partnerEventID}
	if err := row.Scan(&l.ID, &l.InternalID, &l.Platform, &l.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PlatformLink{}, ErrNotFound
		}
		return model.PlatformLink{}, err
	}
	return l, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toJSON(m map[string]any) any {
	if m == nil {
		return nil
	}
	b, _ := json.Marshal(m)
	return b
}

func itoa(n int) string { return strconv.Itoa(n) }
