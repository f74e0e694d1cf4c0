package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"FinTrade/internal/domain/models"
	pkgch "FinTrade/pkg/clickhouse"
	applogger "FinTrade/pkg/logger"
)

// CHTradeHistory stores realized trades in a ClickHouse MergeTree table.
type CHTradeHistory struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHTradeHistory(ch *pkgch.Client, table string, l *applogger.Logger) *CHTradeHistory {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHTradeHistory{db: ch.DB(), table: table, l: l.Named("trade_history")}
}

// Schema returns the DDL for the history table.
func (h *CHTradeHistory) Schema() []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            ts DateTime64(3, 'UTC'),
            symbol LowCardinality(String),
            ticket Int64,
            action LowCardinality(String),
            lot_size Float64,
            stop_loss Float64,
            take_profit Float64,
            market_volatility Float64,
            profit Float64,
            features String
        ) ENGINE = MergeTree
        ORDER BY (ts, symbol)
    `, h.table)}
}

func (h *CHTradeHistory) Append(ctx context.Context, r models.TradeRecord) error {
	feats, err := json.Marshal(r.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	q := fmt.Sprintf(`INSERT INTO %s (ts, symbol, ticket, action, lot_size, stop_loss, take_profit, market_volatility, profit, features)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, h.table)
	if _, err := h.db.ExecContext(ctx, q,
		ts, r.Symbol, r.Ticket, string(r.Action), r.LotSize, r.StopLoss, r.TakeProfit, r.MarketVolatility, r.Profit, string(feats),
	); err != nil {
		h.l.Error("clickhouse append trade error",
			applogger.String("table", h.table),
			applogger.String("symbol", r.Symbol),
			applogger.Error(err),
		)
		return fmt.Errorf("append trade record: %w", err)
	}
	return nil
}

func (h *CHTradeHistory) Load(ctx context.Context) ([]models.TradeRecord, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT ts, symbol, ticket, action, lot_size, stop_loss, take_profit, market_volatility, profit, features
        FROM %s
        ORDER BY ts ASC
    `, h.table)
	rows, err := h.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load trade history: %w", err)
	}
	defer rows.Close()

	out := make([]models.TradeRecord, 0, 256)
	for rows.Next() {
		var (
			r      models.TradeRecord
			action string
			feats  string
		)
		if err := rows.Scan(&r.Timestamp, &r.Symbol, &r.Ticket, &action, &r.LotSize, &r.StopLoss,
			&r.TakeProfit, &r.MarketVolatility, &r.Profit, &feats); err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}
		r.Action = models.Action(action)
		if feats != "" && feats != "null" {
			if err := json.Unmarshal([]byte(feats), &r.Features); err != nil {
				r.Features = nil
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	h.l.Debug("clickhouse load history ok",
		applogger.String("table", h.table),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}
