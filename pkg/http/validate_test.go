package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderRequest struct {
	Action string  `json:"action" validate:"required,trade_action"`
	Symbol string  `json:"symbol" validate:"required,symbol"`
	Lot    float64 `json:"lot" default:"0.1" validate:"gt=0"`
}

func bindOrder(t *testing.T, body string) (*orderRequest, interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := echo.New().NewContext(req, httptest.NewRecorder())
	out := &orderRequest{}
	return out, ReadAndValidateRequest(c, out)
}

func TestReadAndValidateRequestTradeTags(t *testing.T) {
	req, verr := bindOrder(t, `{"action":"close","symbol":"XAUUSDm"}`)
	require.Nil(t, verr)
	assert.Equal(t, 0.1, req.Lot)

	cases := []struct {
		body  string
		field string
		code  string
	}{
		{`{"action":"HOLD","symbol":"EURUSD"}`, "Action", "ERR_TRADE_ACTION"},
		{`{"action":"BUY","symbol":"EUR USD"}`, "Symbol", "ERR_SYMBOL"},
		{`{"action":"BUY","symbol":"` + strings.Repeat("X", 33) + `"}`, "Symbol", "ERR_SYMBOL"},
		{`{"symbol":"EURUSD"}`, "Action", "ERR_REQUIRED"},
	}
	for _, tc := range cases {
		_, verr := bindOrder(t, tc.body)
		errs, ok := verr.([]ValidationError)
		require.True(t, ok, tc.body)
		require.Len(t, errs, 1, tc.body)
		assert.Equal(t, tc.field, errs[0].Field, tc.body)
		assert.Equal(t, tc.code, errs[0].Code, tc.body)
	}

	_, verr = bindOrder(t, `{"action":"HOLD","symbol":"EURUSD"}`)
	errs := verr.([]ValidationError)
	assert.Equal(t, "Action must be one of: BUY, SELL, MODIFY, CLOSE, TRAIL", errs[0].Message)
	assert.Equal(t, TradeActions, errs[0].Params["options"])
}
