package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"SignalHook/internal/domain/models"
	domrepo "SignalHook/internal/domain/repository"
	pkgch "SignalHook/pkg/clickhouse"
	applogger "SignalHook/pkg/logger"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// CHMarketData implements MarketData over a ClickHouse candle table
// (bucket, symbol, timeframe, open, high, low, close, volume).
type CHMarketData struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
	now   func() time.Time
}

// NewCHMarketData binds the adapter to a candle table.
func NewCHMarketData(ch *pkgch.Client, table string, l *applogger.Logger) (*CHMarketData, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid candle table name %q", table)
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHMarketData{db: ch.DB(), table: table, l: l, now: time.Now}, nil
}

// GetSnapshot returns the latest closed bars, oldest first. A bucket whose
// interval has not ended yet is still forming and never part of the snapshot.
func (s *CHMarketData) GetSnapshot(ctx context.Context, symbol string, tf domrepo.Timeframe, bars int) (*models.MarketSnapshot, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	if bars <= 0 {
		return nil, fmt.Errorf("bars must be positive, got %d", bars)
	}
	start := time.Now()
	now := s.now()

	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, volume
        FROM %s
        WHERE symbol = ? AND timeframe = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), symbol, string(tf), bars+1)
	if err != nil {
		s.l.Error("clickhouse snapshot query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	defer rows.Close()

	candles := make([]models.Candle, 0, bars)
	for rows.Next() {
		var (
			c      models.Candle
			bucket bucketTime
		)
		if err := rows.Scan(&bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Bucket = bucket.Time
		if c.Bucket.Add(tf.Duration()).After(now) || len(candles) == bars {
			continue
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	s.l.Debug("clickhouse snapshot ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("limit", bars),
		applogger.Int("rows", len(candles)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return &models.MarketSnapshot{Symbol: symbol, Timeframe: string(tf), Candles: candles}, nil
}

// bucketTime accepts DateTime columns as well as epoch seconds or RFC 3339 text.
type bucketTime struct {
	time.Time
}

func (b *bucketTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		b.Time = v.UTC()
	case int64:
		b.Time = time.Unix(v, 0).UTC()
	case []byte:
		return b.parse(string(v))
	case string:
		return b.parse(v)
	case nil:
		b.Time = time.Time{}
	default:
		return fmt.Errorf("unsupported bucket type %T", src)
	}
	return nil
}

func (b *bucketTime) parse(s string) error {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		b.Time = time.Unix(sec, 0).UTC()
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("parse bucket %q: %w", s, err)
	}
	b.Time = t.UTC()
	return nil
}
