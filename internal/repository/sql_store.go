package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"SignalHook/internal/domain/models"
	domainrepo "SignalHook/internal/domain/repository"
	applogger "SignalHook/pkg/logger"

	"github.com/shopspring/decimal"
)

// SQLStore implements BotStore, EventStore and TradeIntentStore over database/sql.
// All terminal transitions are conditional updates so concurrent writers cannot
// finalize a record twice.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *applogger.Logger
	now     func() time.Time
}

// NewSQLStore creates a store bound to an opened pool.
func NewSQLStore(db *sql.DB, dialect Dialect, logger *applogger.Logger) *SQLStore {
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &SQLStore{db: db, dialect: dialect, logger: logger, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// ---- bots ----

const botColumns = `id, owner_id, secret, name, symbol, timeframe, signal_mode, status, default_quantity, indicators, created_at, updated_at`

func (s *SQLStore) GetBot(ctx context.Context, id string) (*models.Bot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+botColumns+` FROM bots WHERE id = ?`, id)
	b, err := scanBot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainrepo.ErrBotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bot %s: %w", id, err)
	}
	return b, nil
}

func (s *SQLStore) UpsertBot(ctx context.Context, b *models.Bot) error {
	indicators, err := json.Marshal(b.Indicators)
	if err != nil {
		return fmt.Errorf("encode indicators: %w", err)
	}
	now := s.now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	q := `INSERT INTO bots (` + botColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) `
	if s.dialect == DialectMySQL {
		q += `ON DUPLICATE KEY UPDATE owner_id = VALUES(owner_id), secret = VALUES(secret), name = VALUES(name),
symbol = VALUES(symbol), timeframe = VALUES(timeframe), signal_mode = VALUES(signal_mode), status = VALUES(status),
default_quantity = VALUES(default_quantity), indicators = VALUES(indicators), updated_at = VALUES(updated_at)`
	} else {
		q += `ON CONFLICT(id) DO UPDATE SET owner_id = excluded.owner_id, secret = excluded.secret, name = excluded.name,
symbol = excluded.symbol, timeframe = excluded.timeframe, signal_mode = excluded.signal_mode, status = excluded.status,
default_quantity = excluded.default_quantity, indicators = excluded.indicators, updated_at = excluded.updated_at`
	}

	_, err = s.db.ExecContext(ctx, q,
		b.ID, b.OwnerID, b.Secret, b.Name, b.Symbol, b.Timeframe, string(b.SignalMode), string(b.Status),
		decimalArg(b.DefaultQuantity), string(indicators), toMillis(b.CreatedAt), toMillis(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert bot %s: %w", b.ID, err)
	}
	return nil
}

func scanBot(row rowScanner) (*models.Bot, error) {
	var (
		b                    models.Bot
		mode, status         string
		qty                  decimal.NullDecimal
		indicators           string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&b.ID, &b.OwnerID, &b.Secret, &b.Name, &b.Symbol, &b.Timeframe, &mode, &status,
		&qty, &indicators, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	b.SignalMode = models.SignalMode(mode)
	b.Status = models.BotStatus(status)
	b.DefaultQuantity = decimalPtr(qty)
	b.CreatedAt = fromMillis(createdAt)
	b.UpdatedAt = fromMillis(updatedAt)
	if indicators != "" {
		if err := json.Unmarshal([]byte(indicators), &b.Indicators); err != nil {
			return nil, fmt.Errorf("decode indicators: %w", err)
		}
	}
	return &b, nil
}

// ---- events ----

const eventColumns = `id, bot_id, dedup_key, payload, status, is_test, attempts, outcome, reason, error, created_at, updated_at, started_at, finished_at`

func (s *SQLStore) AppendEvent(ctx context.Context, rec *models.EventRecord) error {
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	if rec.Status == "" {
		rec.Status = models.EventReceived
	}
	outcome, err := encodeOutcome(rec.Outcome)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO webhook_events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.BotID, nullString(rec.DedupKey), string(rec.Payload), string(rec.Status), rec.IsTest, rec.Attempts,
		outcome, rec.Reason, rec.Error, toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
		nullMillis(rec.StartedAt), nullMillis(rec.FinishedAt),
	)
	if isDuplicate(s.dialect, err) {
		s.logger.Debug("event dedup key already recorded",
			applogger.String("bot_id", rec.BotID), applogger.String("dedup_key", rec.DedupKey))
		return domainrepo.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *SQLStore) GetEvent(ctx context.Context, id string) (*models.EventRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM webhook_events WHERE id = ?`, id)
	rec, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainrepo.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLStore) FindEventByDedupKey(ctx context.Context, botID, key string) (*models.EventRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM webhook_events WHERE bot_id = ? AND dedup_key = ?`, botID, key)
	rec, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainrepo.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find event by dedup key: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) MarkProcessing(ctx context.Context, id string) (*models.EventRecord, error) {
	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE webhook_events SET status = ?, attempts = attempts + 1, started_at = COALESCE(started_at, ?), updated_at = ?
WHERE id = ? AND status IN (?, ?)`,
		string(models.EventProcessing), now, now, id, string(models.EventReceived), string(models.EventProcessing))
	if err != nil {
		return nil, fmt.Errorf("mark processing %s: %w", id, err)
	}
	if err := s.checkTransition(ctx, res, id); err != nil {
		return nil, err
	}
	return s.GetEvent(ctx, id)
}

func (s *SQLStore) FinalizeEvent(ctx context.Context, id string, r models.EventResult) error {
	if !r.Status.Terminal() {
		return fmt.Errorf("finalize event %s: status %s is not terminal", id, r.Status)
	}
	outcome, err := encodeOutcome(r.Outcome)
	if err != nil {
		return err
	}
	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE webhook_events SET status = ?, outcome = ?, reason = ?, error = ?, finished_at = ?, updated_at = ?
WHERE id = ? AND status IN (?, ?)`,
		string(r.Status), outcome, r.Reason, r.Error, now, now,
		id, string(models.EventReceived), string(models.EventProcessing))
	if err != nil {
		return fmt.Errorf("finalize event %s: %w", id, err)
	}
	return s.checkTransition(ctx, res, id)
}

// checkTransition maps a zero-row conditional update to not-found or already-final.
func (s *SQLStore) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetEvent(ctx, id); err != nil {
		return err
	}
	return domainrepo.ErrEventFinalized
}

func (s *SQLStore) ListEvents(ctx context.Context, botID string, limit int, since time.Time) ([]*models.EventRecord, error) {
	var sinceMs int64
	if !since.IsZero() {
		sinceMs = toMillis(since)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM webhook_events WHERE bot_id = ? AND created_at >= ?
ORDER BY created_at DESC, id DESC LIMIT ?`, botID, sinceMs, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows)
}

func (s *SQLStore) ListPending(ctx context.Context, limit int) ([]*models.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM webhook_events WHERE status IN (?, ?) ORDER BY created_at ASC LIMIT ?`,
		string(models.EventReceived), string(models.EventProcessing), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]*models.EventRecord, error) {
	defer rows.Close()
	var out []*models.EventRecord
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanEvent(row rowScanner) (*models.EventRecord, error) {
	var (
		rec                   models.EventRecord
		dedup, outcome        sql.NullString
		payload, status       string
		createdAt, updatedAt  int64
		startedAt, finishedAt sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &rec.BotID, &dedup, &payload, &status, &rec.IsTest, &rec.Attempts, &outcome,
		&rec.Reason, &rec.Error, &createdAt, &updatedAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	rec.DedupKey = dedup.String
	rec.Payload = json.RawMessage(payload)
	rec.Status = models.EventStatus(status)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	rec.StartedAt = timePtr(startedAt)
	rec.FinishedAt = timePtr(finishedAt)
	if outcome.Valid && outcome.String != "" {
		var o models.EventOutcome
		if err := json.Unmarshal([]byte(outcome.String), &o); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
		rec.Outcome = &o
	}
	return &rec, nil
}

// ---- trade intents ----

const intentColumns = `id, bot_id, event_id, symbol, side, quantity, price, stop_loss, take_profit, status, order_ref, is_test, created_at, updated_at`

func (s *SQLStore) CreateIntent(ctx context.Context, in *models.TradeIntent) error {
	now := s.now()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = in.CreatedAt
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trade_intents (`+intentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.BotID, in.EventID, in.Symbol, string(in.Side),
		decimalArg(in.Quantity), decimalArg(in.Price), decimalArg(in.StopLoss), decimalArg(in.TakeProfit),
		string(in.Status), in.OrderRef, in.IsTest, toMillis(in.CreatedAt), toMillis(in.UpdatedAt),
	)
	if isDuplicate(s.dialect, err) {
		return domainrepo.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create intent: %w", err)
	}
	return nil
}

func (s *SQLStore) GetIntentByEventID(ctx context.Context, eventID string) (*models.TradeIntent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM trade_intents WHERE event_id = ?`, eventID)
	in, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainrepo.ErrIntentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get intent for event %s: %w", eventID, err)
	}
	return in, nil
}

func (s *SQLStore) MarkIntentSubmitted(ctx context.Context, id string, status models.IntentStatus, orderRef string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trade_intents SET status = ?, order_ref = ?, updated_at = ? WHERE id = ?`,
		string(status), orderRef, toMillis(s.now()), id)
	if err != nil {
		return fmt.Errorf("mark intent %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domainrepo.ErrIntentNotFound
	}
	return nil
}

func (s *SQLStore) ListIntentsByEventIDs(ctx context.Context, eventIDs []string) (map[string]*models.TradeIntent, error) {
	out := make(map[string]*models.TradeIntent, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	args := make([]interface{}, len(eventIDs))
	for i, id := range eventIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(eventIDs)), ", ")
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+intentColumns+` FROM trade_intents WHERE event_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		out[in.EventID] = in
	}
	return out, rows.Err()
}

func scanIntent(row rowScanner) (*models.TradeIntent, error) {
	var (
		in                     models.TradeIntent
		side, status           string
		qty, price, stop, take decimal.NullDecimal
		createdAt, updatedAt   int64
	)
	if err := row.Scan(&in.ID, &in.BotID, &in.EventID, &in.Symbol, &side, &qty, &price, &stop, &take,
		&status, &in.OrderRef, &in.IsTest, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	in.Side = models.SignalAction(side)
	in.Status = models.IntentStatus(status)
	in.Quantity = decimalPtr(qty)
	in.Price = decimalPtr(price)
	in.StopLoss = decimalPtr(stop)
	in.TakeProfit = decimalPtr(take)
	in.CreatedAt = fromMillis(createdAt)
	in.UpdatedAt = fromMillis(updatedAt)
	return &in, nil
}

// ---- helpers ----

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func decimalArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func decimalPtr(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}

func encodeOutcome(o *models.EventOutcome) (interface{}, error) {
	if o == nil {
		return nil, nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode outcome: %w", err)
	}
	return string(b), nil
}
