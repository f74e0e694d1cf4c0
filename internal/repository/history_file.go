package repository

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"FinTrade/internal/domain/models"
	applogger "FinTrade/pkg/logger"
)

// FileTradeHistory is an append-only JSON-lines trade log. Each Append writes
// one complete line with O_APPEND and fsyncs it, so a concurrent Load sees
// either the whole record or none of it.
type FileTradeHistory struct {
	path string
	mu   sync.Mutex
	l    *applogger.Logger
}

func NewFileTradeHistory(path string, l *applogger.Logger) *FileTradeHistory {
	if l == nil {
		l = applogger.Nop()
	}
	return &FileTradeHistory{path: path, l: l.Named("trade_history")}
}

func (h *FileTradeHistory) Path() string { return h.path }

func (h *FileTradeHistory) Append(ctx context.Context, r models.TradeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode trade record: %w", err)
	}
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	if dir := filepath.Dir(h.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("append trade record: %w", err)
		}
	}
	if err := h.convertLegacy(); err != nil {
		return fmt.Errorf("append trade record: %w", err)
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append trade record: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return fmt.Errorf("append trade record: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("append trade record: %w", err)
	}
	return f.Close()
}

// Load returns every well-formed record in file order. A file holding a
// single JSON array is read as well. Malformed lines are skipped.
func (h *FileTradeHistory) Load(ctx context.Context) ([]models.TradeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trade history: %w", err)
	}

	var out []models.TradeRecord
	rest := bytes.TrimSpace(b)
	if len(rest) > 0 && rest[0] == '[' {
		dec := json.NewDecoder(bytes.NewReader(rest))
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode trade history: %w", err)
		}
		rest = rest[dec.InputOffset():]
	}

	lines, skipped, n, err := decodeLines(rest)
	if err != nil {
		return nil, err
	}
	out = append(out, lines...)
	if skipped > 0 {
		h.l.Warn("skipped malformed trade records",
			applogger.String("path", h.path),
			applogger.Int("skipped", skipped),
			applogger.Int("lines", n),
		)
	}
	return out, nil
}

// decodeLines parses JSON-lines records, skipping blank and malformed lines.
func decodeLines(b []byte) (out []models.TradeRecord, skipped, lines int, err error) {
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var r models.TradeRecord
		if err := json.Unmarshal(raw, &r); err != nil || r.Symbol == "" {
			skipped++
			continue
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, 0, 0, fmt.Errorf("scan trade history: %w", err)
	}
	return out, skipped, lines, nil
}

// convertLegacy rewrites a JSON-array history as JSON lines so later appends
// stay readable. The rewrite goes through a temp file and a rename. Callers
// hold h.mu.
func (h *FileTradeHistory) convertLegacy() error {
	b, err := os.ReadFile(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}
	var legacy []json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&legacy); err != nil {
		return fmt.Errorf("decode legacy trade history: %w", err)
	}

	var buf bytes.Buffer
	for _, raw := range legacy {
		var line bytes.Buffer
		if err := json.Compact(&line, raw); err != nil {
			return fmt.Errorf("compact legacy record: %w", err)
		}
		buf.Write(line.Bytes())
		buf.WriteByte('\n')
	}
	if tail := bytes.TrimSpace(trimmed[dec.InputOffset():]); len(tail) > 0 {
		buf.Write(tail)
		buf.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(filepath.Dir(h.path), ".history-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), h.path); err != nil {
		return err
	}
	h.l.Info("converted legacy trade history to json lines",
		applogger.String("path", h.path),
		applogger.Int("records", len(legacy)))
	return nil
}
