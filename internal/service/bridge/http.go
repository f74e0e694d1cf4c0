package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"FinTrade/internal/domain/models"
	"FinTrade/internal/domain/service"
	"FinTrade/pkg/config"
	xhttp "FinTrade/pkg/http"
	applogger "FinTrade/pkg/logger"

	"golang.org/x/time/rate"
)

// HTTPBridge talks to a REST gateway in front of the trading terminal.
// Every call waits on a shared rate limiter.
type HTTPBridge struct {
	baseURL string
	client  *xhttp.Client
	limiter *rate.Limiter
	l       *applogger.Logger
}

func NewHTTPBridge(cfg config.Bridge, l *applogger.Logger) (*HTTPBridge, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("bridge url is required for the http bridge")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &HTTPBridge{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		l:       l.Named("http_bridge"),
	}, nil
}

type priceResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func (b *HTTPBridge) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var resp priceResponse
	if err := b.do(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + "/price",
		QueryParams: map[string][]string{"symbol": {symbol}},
	}, &resp); err != nil {
		return 0, err
	}
	if resp.Price <= 0 {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return resp.Price, nil
}

func (b *HTTPBridge) AccountInfo(ctx context.Context) (models.AccountState, error) {
	var acct models.AccountState
	if err := b.do(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    b.baseURL + "/account",
	}, &acct); err != nil {
		return models.AccountState{}, err
	}
	acct.FetchedAt = time.Now().UTC()
	return acct, nil
}

func (b *HTTPBridge) SendTradeAction(ctx context.Context, a models.TradeAction) (models.BridgeResult, error) {
	var res models.BridgeResult
	if err := b.do(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.baseURL + "/trade",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    a,
	}, &res); err != nil {
		return models.BridgeResult{}, err
	}
	if !res.Accepted {
		b.l.Warn("terminal refused action",
			applogger.String("action", string(a.Action)),
			applogger.String("symbol", a.Symbol),
			applogger.Int64("ticket", a.Ticket),
			applogger.String("reason", res.Reason))
	}
	return res, nil
}

func (b *HTTPBridge) do(ctx context.Context, opts *xhttp.RequestOptions, dest interface{}) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("bridge rate limit: %w", err)
	}
	if err := b.client.SendAndParse(ctx, opts, dest); err != nil {
		return fmt.Errorf("bridge %s %s: %w", opts.Method, opts.URL, err)
	}
	return nil
}

var _ service.Bridge = (*HTTPBridge)(nil)
