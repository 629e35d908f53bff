package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"signal-trading-bot/internal/execution"
	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/risk"
	"signal-trading-bot/internal/types"
)

type parseRequest struct {
	Text string `json:"text" validate:"required,max=8000"`
}

type validateRequest struct {
	Symbol        string         `json:"symbol" validate:"required"`
	Side          string         `json:"side" default:"long" validate:"oneof=long short buy sell LONG SHORT BUY SELL"`
	Entry         float64        `json:"entry"`
	StopLoss      *float64       `json:"stop_loss"`
	TakeProfit    *float64       `json:"take_profit"`
	OpenPositions []openPosition `json:"open_positions" validate:"dive"`
}

type openPosition struct {
	Symbol string `json:"symbol" validate:"required"`
	Side   string `json:"side"`
}

type validateResponse struct {
	types.ValidationResult
	Size *types.PositionSize `json:"size,omitempty"`
}

type killSwitchRequest struct {
	Active bool   `json:"active"`
	Reason string `json:"reason" default:"manual"`
}

type closeRequest struct {
	Price  float64 `json:"price" validate:"gt=0"`
	Reason string  `json:"reason" default:"manual"`
}

type listRequest struct {
	List   string `json:"list" validate:"oneof=whitelist blacklist"`
	Action string `json:"action" validate:"oneof=add remove"`
	Symbol string `json:"symbol" validate:"required"`
}

func (s *Server) health(c echo.Context) error {
	killed, _ := s.sentinel.KillSwitchActive()
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime_s":    int(time.Since(s.started).Seconds()),
		"can_trade":   s.sentinel.CanTrade(c.Request().Context()),
		"kill_switch": killed,
	})
}

func (s *Server) parse(c echo.Context) error {
	var req parseRequest
	if errs := bindAndValidate(c, &req); errs != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request", Errors: errs})
	}
	return c.JSON(http.StatusOK, s.parser.Parse(c.Request().Context(), req.Text))
}

func (s *Server) validateSignal(c echo.Context) error {
	var req validateRequest
	if errs := bindAndValidate(c, &req); errs != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request", Errors: errs})
	}
	side, _ := types.ParseSide(req.Side)
	open := make([]types.Position, 0, len(req.OpenPositions))
	for _, p := range req.OpenPositions {
		ps, _ := types.ParseSide(p.Side)
		open = append(open, types.Position{Symbol: p.Symbol, Side: ps})
	}

	v := s.sentinel.ValidateSignal(c.Request().Context(), risk.SignalCheck{
		Symbol:        req.Symbol,
		Side:          side,
		Entry:         req.Entry,
		StopLoss:      req.StopLoss,
		TakeProfit:    req.TakeProfit,
		OpenPositions: open,
	})
	resp := validateResponse{ValidationResult: v}
	if v.Valid {
		size := s.sentinel.Size(req.Entry, req.StopLoss)
		resp.Size = &size
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) riskMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sentinel.Metrics())
}

func (s *Server) resetBreaker(c echo.Context) error {
	s.sentinel.ResetCircuitBreaker(c.Request().Context())
	return c.JSON(http.StatusOK, s.sentinel.Metrics())
}

func (s *Server) lists(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sentinel.Lists())
}

func (s *Server) editList(c echo.Context) error {
	var req listRequest
	if errs := bindAndValidate(c, &req); errs != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request", Errors: errs})
	}
	var changed bool
	switch req.List + "/" + req.Action {
	case "whitelist/add":
		changed = s.sentinel.AddToWhitelist(req.Symbol)
	case "whitelist/remove":
		changed = s.sentinel.RemoveFromWhitelist(req.Symbol)
	case "blacklist/add":
		changed = s.sentinel.AddToBlacklist(req.Symbol)
	case "blacklist/remove":
		changed = s.sentinel.RemoveFromBlacklist(req.Symbol)
	}
	if changed {
		if err := s.sentinel.SaveLists(); err != nil {
			logger.ErrorWithErr(c.Request().Context(), "Failed to save risk lists", err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"changed": changed, "lists": s.sentinel.Lists()})
}

func (s *Server) killSwitch(c echo.Context) error {
	var req killSwitchRequest
	if errs := bindAndValidate(c, &req); errs != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request", Errors: errs})
	}
	ctx := c.Request().Context()
	var err error
	if req.Active {
		err = s.sentinel.ActivateKillSwitch(ctx, req.Reason)
	} else {
		err = s.sentinel.DeactivateKillSwitch(ctx)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	active, reason := s.sentinel.KillSwitchActive()
	return c.JSON(http.StatusOK, map[string]any{"active": active, "reason": reason})
}

func (s *Server) cacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cache.Stats())
}

func (s *Server) cacheFlush(c echo.Context) error {
	if err := s.cache.Flush(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"flushed": true, "entries": s.cache.Len()})
}

func (s *Server) aiStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"available": s.pool.Available(),
		"providers": s.pool.Status(),
	})
}

func (s *Server) positions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.exec.OpenPositions())
}

func (s *Server) closePosition(c echo.Context) error {
	var req closeRequest
	if errs := bindAndValidate(c, &req); errs != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request", Errors: errs})
	}
	trade, err := s.exec.Close(c.Request().Context(), risk.NormalizeSymbol(c.Param("symbol")), req.Price, req.Reason)
	switch {
	case errors.Is(err, execution.ErrNoPosition):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case err != nil:
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"trade": trade, "equity": s.sentinel.Equity()})
}
