package api

import (
	"context"

	domrepo "FinTrade/internal/domain/repository"
	"FinTrade/internal/usecase"
	xhttp "FinTrade/pkg/http"
	applogger "FinTrade/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Market reads candle snapshots.
type Market interface {
	Snapshot(ctx context.Context, p usecase.SnapshotParams) (*usecase.Snapshot, error)
}

// Backtester replays stored candles through the decision path.
type Backtester interface {
	Run(ctx context.Context, p usecase.BacktestParams) (*usecase.BacktestReport, error)
}

// MarketEchoHandler serves the candles the feature sources read and
// backtests over them.
type MarketEchoHandler struct {
	logger     *applogger.Logger
	market     Market
	backtester Backtester
}

func NewMarketEchoHandler(logger *applogger.Logger, market Market, backtester Backtester) *MarketEchoHandler {
	return &MarketEchoHandler{logger: logger.Named("api.market"), market: market, backtester: backtester}
}

func (h *MarketEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/candles", h.Candles)
	e.POST("/api/backtest", h.Backtest)
}

// CandlesRequest selects a candle snapshot.
type CandlesRequest struct {
	Symbol string `query:"symbol" validate:"required,symbol"`
	TF     string `query:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	N      int    `query:"n" default:"100" validate:"gte=1,lte=1000"`
}

func (h *MarketEchoHandler) Candles(c echo.Context) error {
	req := &CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.market.Snapshot(c.Request().Context(), usecase.SnapshotParams{
		Symbol:    req.Symbol,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
		N:         req.N,
	})
	if err != nil {
		h.logger.Warn("candle snapshot failed",
			applogger.String("symbol", req.Symbol),
			applogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, res)
}

type BacktestRequest struct {
	Symbol  string  `json:"symbol" validate:"required,symbol"`
	TF      string  `json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	N       int     `json:"n" default:"500" validate:"gte=20,lte=5000"`
	MaxHold int     `json:"max_hold" default:"20" validate:"gte=1,lte=1000"`
	Lot     float64 `json:"lot" validate:"gte=0,lte=100"`
}

func (h *MarketEchoHandler) Backtest(c echo.Context) error {
	req := &BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rep, err := h.backtester.Run(c.Request().Context(), usecase.BacktestParams{
		Symbol:    req.Symbol,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
		N:         req.N,
		MaxHold:   req.MaxHold,
		Lot:       req.Lot,
	})
	if err != nil {
		h.logger.Warn("backtest failed",
			applogger.String("symbol", req.Symbol),
			applogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.SuccessResponse(c, rep)
}
