package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	"FinTrade/pkg/config"
	applogger "FinTrade/pkg/logger"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// TickSink receives validated ticks.
type TickSink interface {
	Observe(t models.Tick)
}

// Stream subscribes to the trade feed over WebSocket and forwards ticks to
// a sink. It reconnects until its context is cancelled.
type Stream struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	maxRate        int

	sink    TickSink
	metrics domrepo.Metrics
	l       *applogger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewStream(cfg config.Quotes, sink TickSink, metrics domrepo.Metrics, l *applogger.Logger) *Stream {
	return &Stream{
		apiKey:         cfg.APIKey,
		websocketURL:   cfg.WebSocketURL,
		symbols:        cfg.Symbols,
		reconnectDelay: cfg.ReconnectDelay,
		pingInterval:   cfg.PingInterval,
		maxRate:        cfg.MaxTickRate,
		sink:           sink,
		metrics:        metrics,
		l:              l.Named("quotes"),
		limiters:       make(map[string]*rate.Limiter),
	}
}

// Run connects, subscribes and reads until ctx is done, reconnecting after
// reconnectDelay on any failure.
func (s *Stream) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.metrics.RecordError("quote_stream")
		s.l.Warn("quote stream interrupted, reconnecting",
			applogger.Error(err),
			applogger.Duration("delay", s.reconnectDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Stream) session(ctx context.Context) error {
	u, err := url.Parse(s.websocketURL)
	if err != nil {
		return fmt.Errorf("parse websocket url: %w", err)
	}
	if s.apiKey != "" {
		q := u.Query()
		q.Set("token", s.apiKey)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()
	s.l.Info("quote stream connected", applogger.Int("symbols", len(s.symbols)))

	for _, sym := range s.symbols {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": sym}); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}

	done := make(chan struct{})
	defer close(done)
	var writeMu sync.Mutex
	go func() {
		select {
		case <-ctx.Done():
			writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			writeMu.Unlock()
			_ = conn.Close()
		case <-done:
		}
	}()
	if s.pingInterval > 0 {
		go func() {
			ticker := time.NewTicker(s.pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					writeMu.Lock()
					err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
					writeMu.Unlock()
					if err != nil {
						return
					}
				}
			}
		}()
	}

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		s.handleFrame(b)
	}
}

type tradePrint struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type tradeFrame struct {
	Type string       `json:"type"`
	Data []tradePrint `json:"data"`
}

// handleFrame decodes a trade frame and forwards accepted ticks. Other
// frame types are ignored. It returns the number of ticks forwarded.
func (s *Stream) handleFrame(b []byte) int {
	var f tradeFrame
	if err := json.Unmarshal(b, &f); err != nil || f.Type != "trade" {
		return 0
	}
	n := 0
	for _, d := range f.Data {
		t := models.Tick{Symbol: d.S, Price: d.P, Volume: d.V, Timestamp: time.UnixMilli(d.T).UTC()}
		if err := validateTick(t); err != nil {
			s.l.Debug("tick rejected", applogger.String("symbol", d.S), applogger.Error(err))
			continue
		}
		if !s.allow(t.Symbol) {
			continue
		}
		s.sink.Observe(t)
		s.metrics.RecordLastPrice(t.Symbol, t.Price)
		n++
	}
	return n
}

func (s *Stream) allow(symbol string) bool {
	if s.maxRate <= 0 {
		return true
	}
	s.mu.Lock()
	lim, ok := s.limiters[symbol]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.maxRate), s.maxRate)
		s.limiters[symbol] = lim
	}
	s.mu.Unlock()
	return lim.Allow()
}

func validateTick(t models.Tick) error {
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Timestamp.Unix() <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Price <= 0 || t.Volume < 0 {
		return fmt.Errorf("invalid price/volume")
	}
	return nil
}
