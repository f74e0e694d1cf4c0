package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	applogger "FinTrade/pkg/logger"
	"FinTrade/pkg/scheduler"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// TradeApplier applies a trade signal. LifecycleManager implements it.
type TradeApplier interface {
	Apply(ctx context.Context, sig models.TradeSignal) (models.Position, error)
}

type signalRecord struct {
	Action *string  `json:"action"`
	Symbol *string  `json:"symbol"`
	SL     *float64 `json:"sl"`
	TP     *float64 `json:"tp"`
	Trail  bool     `json:"trail"`
	Ticket int64    `json:"ticket"`
	Lot    *float64 `json:"lot"`
}

// ParseSignalFile decodes a JSON array of signal records. Malformed records
// are skipped and reported per index; the rest are returned in file order.
// The error is non-nil only when the document itself is not an array.
func ParseSignalFile(data []byte) ([]models.TradeSignal, []error, error) {
	entries, err := parseEntries(data)
	if err != nil {
		return nil, nil, err
	}
	signals := make([]models.TradeSignal, 0, len(entries))
	var recErrs []error
	for _, e := range entries {
		if e.err != nil {
			recErrs = append(recErrs, e.err)
			continue
		}
		signals = append(signals, e.sig)
	}
	return signals, recErrs, nil
}

// signalEntry is one record of a signal file. key identifies the record by
// position and content.
type signalEntry struct {
	key string
	sig models.TradeSignal
	err error
}

func parseEntries(data []byte) ([]signalEntry, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errs.Wrap(errs.KindInvalidSignal, "signals.parse", err).WithReason("signal file is not a JSON array")
	}
	out := make([]signalEntry, 0, len(raw))
	for i, r := range raw {
		sum := sha256.Sum256(r)
		e := signalEntry{key: fmt.Sprintf("%d:%x", i, sum[:8])}
		sig, err := parseSignal(r)
		if err != nil {
			e.err = fmt.Errorf("record %d: %w", i, err)
		} else {
			e.sig = sig
		}
		out = append(out, e)
	}
	return out, nil
}

func parseSignal(raw json.RawMessage) (models.TradeSignal, error) {
	var rec signalRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.TradeSignal{}, errs.Wrap(errs.KindInvalidSignal, "signals.parse", err)
	}
	if rec.Action == nil || rec.Symbol == nil || *rec.Symbol == "" {
		return models.TradeSignal{}, errs.New(errs.KindInvalidSignal, "signals.parse", "missing action or symbol")
	}
	action, ok := models.ParseAction(*rec.Action)
	if !ok || action == models.ActionNeutral {
		return models.TradeSignal{}, errs.New(errs.KindInvalidSignal, "signals.parse", "unknown action "+*rec.Action)
	}
	if action.NeedsTicket() && rec.Ticket == 0 {
		return models.TradeSignal{}, errs.New(errs.KindInvalidSignal, "signals.parse", string(action)+" needs a ticket")
	}
	if action == models.ActionModify && rec.SL == nil && rec.TP == nil {
		return models.TradeSignal{}, errs.New(errs.KindInvalidSignal, "signals.parse", "MODIFY needs sl or tp")
	}

	sig := models.TradeSignal{
		Symbol: *rec.Symbol,
		Action: action,
		Trail:  rec.Trail,
		Ticket: rec.Ticket,
		Source: "signal_file",
	}
	if rec.SL != nil {
		sig.StopLoss = *rec.SL
	}
	if rec.TP != nil {
		sig.TakeProfit = *rec.TP
	}
	if rec.Lot != nil {
		sig.LotSize = *rec.Lot
	}
	return sig, nil
}

// SignalDispatcher applies signals written to a file by an upstream
// producer. Each record is applied once per position and content; records
// that failed at the bridge are retried on the next poll.
type SignalDispatcher struct {
	path      string
	interval  time.Duration
	watch     bool
	sizer     *RiskSizer
	lifecycle TradeApplier
	l         *applogger.Logger

	mu   sync.Mutex
	done map[string]struct{}
}

func NewSignalDispatcher(path string, interval time.Duration, watch bool, sizer *RiskSizer, lifecycle TradeApplier, l *applogger.Logger) *SignalDispatcher {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &SignalDispatcher{
		path:      filepath.Clean(path),
		interval:  interval,
		watch:     watch,
		sizer:     sizer,
		lifecycle: lifecycle,
		l:         l.Named("signals"),
		done:      make(map[string]struct{}),
	}
}

// Poll reads the file and applies the records not yet settled. It returns
// the number of signals the lifecycle manager accepted.
func (d *SignalDispatcher) Poll(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read signal file: %w", err)
	}
	entries, err := parseEntries(data)
	if err != nil {
		return 0, err
	}

	done := make(map[string]struct{}, len(entries))
	applied := 0
	for _, e := range entries {
		if _, ok := d.done[e.key]; ok {
			done[e.key] = struct{}{}
			continue
		}
		if e.err != nil {
			d.l.Error("invalid signal skipped",
				applogger.String("op", "signals.parse"),
				applogger.String("kind", string(errs.KindInvalidSignal)),
				applogger.String("reason", e.err.Error()))
			done[e.key] = struct{}{}
			continue
		}
		ok, retry := d.apply(ctx, e.sig)
		if ok {
			applied++
		}
		if !retry {
			done[e.key] = struct{}{}
		}
	}
	d.done = done
	return applied, nil
}

// apply hands one signal to the lifecycle manager. retry is set when the
// bridge failed or the poll was cancelled, so the record stays pending.
func (d *SignalDispatcher) apply(ctx context.Context, sig models.TradeSignal) (ok, retry bool) {
	sig.ID = uuid.NewString()
	sig.CreatedAt = time.Now().UTC()
	if sig.Action.Opens() && sig.LotSize <= 0 {
		sig.LotSize = d.sizer.Lot()
	}
	pos, err := d.lifecycle.Apply(ctx, sig)
	if err != nil {
		d.l.Warn("signal not applied",
			applogger.String("symbol", sig.Symbol),
			applogger.String("op", "signals.apply"),
			applogger.String("action", string(sig.Action)),
			applogger.Int64("ticket", sig.Ticket),
			applogger.String("kind", string(errs.KindOf(err))),
			applogger.String("reason", errs.ReasonOf(err)))
		return false, errs.IsKind(err, errs.KindBridgeFailure) || ctx.Err() != nil
	}
	d.l.Info("signal applied",
		applogger.String("symbol", sig.Symbol),
		applogger.String("action", string(sig.Action)),
		applogger.Int64("ticket", pos.Ticket),
		applogger.String("state", string(pos.State)))
	return true, false
}

// Run polls every interval and, when watching, on every write to the file.
func (d *SignalDispatcher) Run(ctx context.Context) error {
	var trigger chan struct{}
	if d.watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("signal watcher: %w", err)
		}
		defer w.Close()
		// watch the directory so atomic replaces are seen
		if err := w.Add(filepath.Dir(d.path)); err != nil {
			return fmt.Errorf("watch %s: %w", filepath.Dir(d.path), err)
		}
		trigger = make(chan struct{}, 1)
		go d.forward(ctx, w, trigger)
	}

	return scheduler.RunUntilCancelled(ctx, d.interval, func(ctx context.Context) error {
		_, err := d.Poll(ctx)
		return err
	},
		scheduler.WithName("signals"),
		scheduler.WithTrigger(trigger),
		scheduler.WithLogger(d.l),
	)
}

func (d *SignalDispatcher) forward(ctx context.Context, w *fsnotify.Watcher, trigger chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != d.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case trigger <- struct{}{}:
			default:
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			d.l.Warn("signal watcher error", applogger.Error(err))
		}
	}
}
