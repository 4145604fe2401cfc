// Package api exposes the control surface: pool status, signal feeds, stake
// and auto-trader settings, trade history and manual execution.
package api

import (
	"context"
	"io"
	"time"

	"github.com/labstack/echo/v4"

	"DigitPulse/internal/analyzer"
	"DigitPulse/internal/bus"
	"DigitPulse/internal/domain/models"
	"DigitPulse/internal/execution"
	"DigitPulse/internal/pool"
	"DigitPulse/internal/repository"
	"DigitPulse/internal/service/cache"
	"DigitPulse/internal/service/ratelimit"
	"DigitPulse/internal/stake"
	xhttp "DigitPulse/pkg/http"
	"DigitPulse/pkg/logger"
)

const statsCacheTTL = 2 * time.Second

// TradingHandler registers every control route on the shared Echo instance.
type TradingHandler struct {
	log     *logger.Logger
	pool    *pool.Pool
	bus     *bus.Bus
	stakes  *stake.Manager
	exec    *execution.Service
	freq    *analyzer.Frequency
	pattern *analyzer.Pattern
	zones   *analyzer.Zones
	cache   *cache.TTLCache
	limiter *ratelimit.Limiter
	archive *repository.Archive
}

func NewTradingHandler(
	log *logger.Logger,
	p *pool.Pool,
	b *bus.Bus,
	stakes *stake.Manager,
	exec *execution.Service,
	freq *analyzer.Frequency,
	pattern *analyzer.Pattern,
	zones *analyzer.Zones,
) *TradingHandler {
	return &TradingHandler{
		log:     log,
		pool:    p,
		bus:     b,
		stakes:  stakes,
		exec:    exec,
		freq:    freq,
		pattern: pattern,
		zones:   zones,
		cache:   cache.NewTTLCache(),
		limiter: ratelimit.New(),
	}
}

func (h *TradingHandler) RegisterRoutes(e *echo.Echo) {
	e.Use(h.rateLimit)

	v1 := e.Group("/api/v1")

	v1.GET("/pool/status", h.poolStatus)
	v1.POST("/pool/redial", h.poolRedial)

	v1.GET("/signals/recent", h.recentSignals)
	v1.GET("/signals/patterns/:market", h.topPatterns)
	v1.DELETE("/signals/patterns/:market", h.clearPatterns)
	v1.GET("/signals/zones/:market", h.zoneData)
	v1.GET("/markets/:market/stats", h.marketStats)

	v1.GET("/stake/settings", h.stakeSettings)
	v1.PUT("/stake/settings", h.updateStakeSettings)
	v1.GET("/stake/next", h.nextStake)
	v1.GET("/session/stats", h.sessionStats)
	v1.POST("/session/reset", h.resetSession)
	v1.GET("/session/performance", h.performance)

	v1.GET("/trades/history", h.tradeHistory)
	v1.DELETE("/trades/history", h.clearTradeHistory)
	v1.GET("/trades/archive", h.archivedTrades)
	v1.GET("/trades/export", h.exportHistory)
	v1.POST("/trades/import", h.importHistory)
	v1.POST("/trades/execute", h.executeManually)
	v1.POST("/trades/stop-all", h.stopAll)

	v1.GET("/autotrader/settings", h.autoTraderSettings)
	v1.PUT("/autotrader/settings", h.updateAutoTraderSettings)
	v1.GET("/autotrader/stats", h.executionStats)

	v1.GET("/logs/recent", h.recentLogs)
}

// rateLimit applies a per-client token bucket across the whole surface.
func (h *TradingHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.limiter.Allow(c.RealIP(), 20, 10) {
			return xhttp.DataResponse(c, 429, "rate limit exceeded")
		}
		return next(c)
	}
}

func (h *TradingHandler) poolStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"overall":     h.pool.OverallStatus(),
		"connections": h.pool.Statuses(),
	})
}

func (h *TradingHandler) poolRedial(c echo.Context) error {
	h.pool.Redial()
	return xhttp.NoContentResponse(c)
}

func (h *TradingHandler) recentSignals(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.bus.RecentSignals())
}

func (h *TradingHandler) topPatterns(c echo.Context) error {
	market := c.Param("market")
	if !validMarket(market) {
		return xhttp.NotFoundResponse(c, "unknown market")
	}
	return xhttp.SuccessResponse(c, h.pattern.TopPatterns(market, 10))
}

func (h *TradingHandler) clearPatterns(c echo.Context) error {
	market := c.Param("market")
	if !validMarket(market) {
		return xhttp.NotFoundResponse(c, "unknown market")
	}
	h.pattern.ClearHistory(market)
	return xhttp.NoContentResponse(c)
}

func (h *TradingHandler) zoneData(c echo.Context) error {
	market := c.Param("market")
	zd := h.zones.ZonesFor(market)
	if zd == nil {
		return xhttp.NotFoundResponse(c, "no zone data for market")
	}
	return xhttp.SuccessResponse(c, zd)
}

// marketStats serves frequency statistics with a short cache in front, the
// underlying computation walks the full digit window.
func (h *TradingHandler) marketStats(c echo.Context) error {
	market := c.Param("market")
	if !validMarket(market) {
		return xhttp.NotFoundResponse(c, "unknown market")
	}

	key := "stats:" + market
	if cached, ok := h.cache.Get(key); ok {
		return xhttp.SuccessResponse(c, cached)
	}

	stats := h.freq.MarketStatistics(market)
	if stats == nil {
		return xhttp.NotFoundResponse(c, "no statistics for market")
	}
	h.cache.Set(key, stats, statsCacheTTL)
	return xhttp.SuccessResponse(c, stats)
}

func (h *TradingHandler) stakeSettings(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.stakes.Settings())
}

type stakeSettingsRequest struct {
	BaseStake            float64 `json:"base_stake" validate:"required,gt=0"`
	MartingaleMultiplier float64 `json:"martingale_multiplier" validate:"required,gte=1"`
	MaxMartingaleSteps   int     `json:"max_martingale_steps" validate:"required,gte=0,lte=10"`
	TakeProfitLimit      float64 `json:"take_profit_limit" validate:"required,gt=0"`
	StopLossLimit        float64 `json:"stop_loss_limit" validate:"required,lt=0"`
	AutoStakeAdjustment  bool    `json:"auto_stake_adjustment"`
}

func (h *TradingHandler) updateStakeSettings(c echo.Context) error {
	var req stakeSettingsRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	h.stakes.UpdateSettings(models.StakeSettings{
		BaseStake:            req.BaseStake,
		MartingaleMultiplier: req.MartingaleMultiplier,
		MaxMartingaleSteps:   req.MaxMartingaleSteps,
		TakeProfitLimit:      req.TakeProfitLimit,
		StopLossLimit:        req.StopLossLimit,
		AutoStakeAdjustment:  req.AutoStakeAdjustment,
	})
	return xhttp.SuccessResponse(c, h.stakes.Settings())
}

func (h *TradingHandler) nextStake(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"next_stake":      h.stakes.CalculateNextStake(),
		"martingale_step": h.stakes.MartingaleStep(),
		"balance":         h.stakes.Balance(),
	})
}

func (h *TradingHandler) sessionStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.stakes.SessionStats())
}

func (h *TradingHandler) resetSession(c echo.Context) error {
	h.stakes.ResetSession()
	return xhttp.SuccessResponse(c, h.stakes.SessionStats())
}

func (h *TradingHandler) performance(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.stakes.PerformanceMetrics())
}

func (h *TradingHandler) tradeHistory(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.stakes.TradeHistory())
}

func (h *TradingHandler) clearTradeHistory(c echo.Context) error {
	h.stakes.ClearTradeHistory()
	return xhttp.NoContentResponse(c)
}

// SetArchive enables the archived-trades route when a long-term trade store
// is configured.
func (h *TradingHandler) SetArchive(a *repository.Archive) { h.archive = a }

func (h *TradingHandler) archivedTrades(c echo.Context) error {
	if h.archive == nil {
		return xhttp.NotFoundResponse(c, "trade archive not configured")
	}
	market := c.QueryParam("market")
	if !validMarket(market) {
		return xhttp.BadRequestResponse(c, "unknown market")
	}
	now := time.Now()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()
	trades, err := h.archive.SettledTrades(ctx, market, from, to, limit)
	if err != nil {
		h.log.Error("trade archive query failed", logger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, trades)
}

func (h *TradingHandler) exportHistory(c echo.Context) error {
	data, err := h.stakes.ExportTradeHistory()
	if err != nil {
		h.log.Error("trade history export failed", logger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return c.Blob(200, "application/json", data)
}

func (h *TradingHandler) importHistory(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return xhttp.BadRequestResponse(c, "unreadable body")
	}
	if err := h.stakes.ImportTradeHistory(body); err != nil {
		return xhttp.BadRequestResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, h.stakes.SessionStats())
}

type executeRequest struct {
	SignalID string `json:"signal_id" validate:"required"`
}

// executeManually places a recently emitted signal immediately, bypassing
// the queue.
func (h *TradingHandler) executeManually(c echo.Context) error {
	var req executeRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	var target *models.Signal
	for _, s := range h.bus.RecentSignals() {
		if s.ID == req.SignalID {
			s := s
			target = &s
			break
		}
	}
	if target == nil {
		return xhttp.NotFoundResponse(c, "signal not found")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()
	result := h.exec.ExecuteManually(ctx, *target)
	if !result.Success {
		return xhttp.BadRequestResponse(c, result)
	}
	return xhttp.SuccessResponse(c, result)
}

func (h *TradingHandler) stopAll(c echo.Context) error {
	h.exec.StopAll()
	return xhttp.NoContentResponse(c)
}

func (h *TradingHandler) autoTraderSettings(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.exec.Settings())
}

type autoTraderRequest struct {
	Enabled             bool   `json:"enabled"`
	MaxConcurrentTrades int    `json:"max_concurrent_trades" validate:"required,gte=1,lte=10"`
	RiskMode            string `json:"risk_mode" validate:"required,oneof=NORMAL LESS_RISKY OVER3_UNDER6"`
	DelayBetweenTrades  int    `json:"delay_between_trades_ms" validate:"gte=0"`
}

func (h *TradingHandler) updateAutoTraderSettings(c echo.Context) error {
	var req autoTraderRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	h.exec.UpdateSettings(models.AutoTraderSettings{
		Enabled:             req.Enabled,
		MaxConcurrentTrades: req.MaxConcurrentTrades,
		RiskMode:            models.RiskMode(req.RiskMode),
		DelayBetweenTrades:  time.Duration(req.DelayBetweenTrades) * time.Millisecond,
	})
	return xhttp.SuccessResponse(c, h.exec.Settings())
}

func (h *TradingHandler) executionStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.exec.ExecutionStats())
}

func (h *TradingHandler) recentLogs(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.log.RecentEvents())
}

func validMarket(market string) bool {
	for _, m := range models.AllMarkets() {
		if m == market {
			return true
		}
	}
	return false
}

var _ xhttp.Handler = (*TradingHandler)(nil)
