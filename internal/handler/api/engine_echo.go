package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	xhttp "FinTrade/pkg/http"
	applogger "FinTrade/pkg/logger"
	"FinTrade/pkg/util"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Positions exposes the positions tracked by the lifecycle manager.
type Positions interface {
	Apply(ctx context.Context, sig models.TradeSignal) (models.Position, error)
	Positions() []models.Position
	Position(ticket int64) (models.Position, bool)
}

// Decisions exposes the last decision cycle.
type Decisions interface {
	Decisions() []models.Decision
}

// Model exposes the loaded confidence model.
type Model interface {
	Current() (models.ModelArtifact, bool)
	Reload(ctx context.Context) error
	Layout() []string
}

// Training exposes the retraining loop.
type Training interface {
	RequestTraining(ctx context.Context, reason string) error
	Reports() []models.TrainingReport
	Trend() (loss, accuracy float64)
}

// LotSizer sizes signals submitted without a lot.
type LotSizer interface {
	Lot() float64
}

// EngineEchoHandler serves the operator API of the trading engine.
type EngineEchoHandler struct {
	logger    *applogger.Logger
	positions Positions
	decisions Decisions
	model     Model
	training  Training
	sizer     LotSizer
}

func NewEngineEchoHandler(logger *applogger.Logger, positions Positions, decisions Decisions, model Model, training Training, sizer LotSizer) *EngineEchoHandler {
	return &EngineEchoHandler{
		logger:    logger.Named("api"),
		positions: positions,
		decisions: decisions,
		model:     model,
		training:  training,
		sizer:     sizer,
	}
}

func (h *EngineEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/positions", h.ListPositions)
	g.GET("/positions/:ticket", h.GetPosition)
	g.POST("/signals", h.SubmitSignal)
	g.GET("/decisions", h.ListDecisions)
	g.GET("/model", h.GetModel)
	g.POST("/model/reload", h.ReloadModel)
	g.POST("/model/train", h.TrainModel)
	g.GET("/model/reports", h.ListReports)
}

func (h *EngineEchoHandler) Health(c echo.Context) error {
	_, loaded := h.model.Current()
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":       "ok",
		"model_loaded": loaded,
		"time":         time.Now().UTC(),
	})
}

// PositionsRequest filters the position list.
type PositionsRequest struct {
	State string `query:"state"`
	Limit int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

func (h *EngineEchoHandler) ListPositions(c echo.Context) error {
	req := &PositionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var state models.TicketState
	if req.State != "" {
		st, ok := models.ParseTicketState(req.State)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown state %q", req.State).WithParam("state", req.State))
		}
		state = st
	}

	rows := make([]models.Position, 0)
	for _, p := range h.positions.Positions() {
		if state != "" && p.State != state {
			continue
		}
		rows = append(rows, p)
	}
	total := int64(len(rows))
	if len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}
	return xhttp.ListResponse(c, rows, total)
}

func (h *EngineEchoHandler) GetPosition(c echo.Context) error {
	ticket, ok := util.ParseInt64(c.Param("ticket"))
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid ticket %q", c.Param("ticket")))
	}
	p, ok := h.positions.Position(ticket)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("ticket not found").WithParam("ticket", ticket))
	}
	return xhttp.SuccessResponse(c, p)
}

// SignalRequest is a manually submitted trade signal.
type SignalRequest struct {
	Action     string  `json:"action" validate:"required,trade_action"`
	Symbol     string  `json:"symbol" validate:"required,symbol"`
	Lot        float64 `json:"lot" validate:"gte=0"`
	StopLoss   float64 `json:"sl" validate:"gte=0"`
	TakeProfit float64 `json:"tp" validate:"gte=0"`
	Trail      bool    `json:"trail"`
	Ticket     int64   `json:"ticket"`
}

func (h *EngineEchoHandler) SubmitSignal(c echo.Context) error {
	req := &SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	action, ok := models.ParseAction(req.Action)
	if !ok || action == models.ActionNeutral {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown action %q", req.Action).WithParam("action", req.Action))
	}

	sig := models.TradeSignal{
		ID:         uuid.NewString(),
		Symbol:     strings.TrimSpace(req.Symbol),
		Action:     action,
		LotSize:    req.Lot,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Trail:      req.Trail,
		Ticket:     req.Ticket,
		Source:     "api",
		CreatedAt:  time.Now().UTC(),
	}
	if action.Opens() && sig.LotSize <= 0 {
		sig.LotSize = h.sizer.Lot()
	}

	pos, err := h.positions.Apply(c.Request().Context(), sig)
	if err != nil {
		h.logger.Warn("signal rejected",
			applogger.String("symbol", sig.Symbol),
			applogger.String("action", string(action)),
			applogger.String("kind", string(errs.KindOf(err))),
			applogger.String("reason", errs.ReasonOf(err)))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.SuccessResponse(c, pos)
}

func (h *EngineEchoHandler) ListDecisions(c echo.Context) error {
	rows := h.decisions.Decisions()
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// ModelResponse describes the loaded artifact.
type ModelResponse struct {
	Loaded    bool      `json:"loaded"`
	Version   string    `json:"version,omitempty"`
	TrainedAt time.Time `json:"trained_at,omitempty"`
	Features  []string  `json:"features"`
}

func (h *EngineEchoHandler) GetModel(c echo.Context) error {
	art, ok := h.model.Current()
	res := ModelResponse{Loaded: ok, Features: h.model.Layout()}
	if ok {
		res.Version = art.Version
		res.TrainedAt = art.TrainedAt
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) ReloadModel(c echo.Context) error {
	if err := h.model.Reload(c.Request().Context()); err != nil {
		h.logger.Error("model reload failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return h.GetModel(c)
}

func (h *EngineEchoHandler) TrainModel(c echo.Context) error {
	if err := h.training.RequestTraining(c.Request().Context(), "api"); err != nil {
		h.logger.Error("training request failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("training request not accepted").WithError(err))
	}
	return xhttp.AcceptedResponse(c, map[string]string{"status": "queued"})
}

// ReportsResponse lists recent training runs, newest first.
type ReportsResponse struct {
	Reports       []models.TrainingReport `json:"reports"`
	LossTrend     float64                 `json:"loss_trend"`
	AccuracyTrend float64                 `json:"accuracy_trend"`
}

func (h *EngineEchoHandler) ListReports(c echo.Context) error {
	reports := h.training.Reports()
	for i, j := 0, len(reports)-1; i < j; i, j = i+1, j-1 {
		reports[i], reports[j] = reports[j], reports[i]
	}
	loss, acc := h.training.Trend()
	return xhttp.SuccessResponse(c, ReportsResponse{Reports: reports, LossTrend: loss, AccuracyTrend: acc})
}

// appError maps engine error kinds onto HTTP errors.
func appError(err error) *xhttp.AppError {
	reason := errs.ReasonOf(err)
	var ae *xhttp.AppError
	switch kind := errs.KindOf(err); {
	case errors.Is(err, errs.ErrTicketNotFound):
		ae = xhttp.NotFoundError(reason)
	case kind == errs.KindInvalidSignal, kind == errs.KindInvalidTransition:
		ae = xhttp.BadRequestError(reason)
	case kind == errs.KindRiskRejected:
		ae = xhttp.ConflictError(reason)
	case kind == errs.KindBridgeFailure:
		ae = xhttp.BadGatewayError(reason)
	case kind == errs.KindDataUnavailable, kind == errs.KindModelMissing, kind == errs.KindInsufficientData:
		ae = xhttp.UnavailableError(reason)
	default:
		ae = xhttp.InternalError("Something went wrong")
	}
	ae.Code = ae.Code + "_" + strings.ToUpper(string(errs.KindOf(err)))
	return ae.WithError(err)
}

var _ xhttp.Handler = (*EngineEchoHandler)(nil)
