package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"DigitPulse/internal/domain/models"
	"DigitPulse/pkg/clock"
	"DigitPulse/pkg/logger"
	"DigitPulse/pkg/metrics"

	"github.com/google/uuid"
)

// Config controls the pooled upstream connections.
type Config struct {
	Endpoint             string
	AppIDs               []string
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	PingInterval         time.Duration
	RequestTimeout       time.Duration
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "wss://ws.derivws.com/websockets/v3"
	}
	if len(c.AppIDs) == 0 {
		c.AppIDs = []string{"1089", "16929", "22168", "23789"}
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
}

// TickHandler receives ticks for a subscribed market.
type TickHandler func(models.Tick)

type pendingResponse struct {
	data json.RawMessage
	err  error
}

// Pool multiplexes market subscriptions and request/response calls over a
// fixed set of redundant upstream connections.
type Pool struct {
	cfg Config
	log *logger.Logger
	rec *metrics.Recorder
	clk clock.Clock

	dialer Dialer

	mu      sync.Mutex
	order   []string
	conns   map[string]*connection
	subs    map[string]map[uint64]TickHandler
	subConn map[string]string // market -> client id carrying the upstream subscription
	pending map[string]chan pendingResponse
	nextSub uint64
	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Option customizes a Pool; tests swap the dialer and clock.
type Option func(*Pool)

func WithDialer(d Dialer) Option { return func(p *Pool) { p.dialer = d } }

func WithClock(c clock.Clock) Option { return func(p *Pool) { p.clk = c } }

func New(cfg Config, log *logger.Logger, rec *metrics.Recorder, opts ...Option) *Pool {
	cfg.applyDefaults()
	p := &Pool{
		cfg:     cfg,
		log:     log,
		rec:     rec,
		clk:     clock.New(),
		dialer:  gorillaDial,
		conns:   make(map[string]*connection),
		subs:    make(map[string]map[uint64]TickHandler),
		subConn: make(map[string]string),
		pending: make(map[string]chan pendingResponse),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start dials every configured client id. Individual dial failures are not
// fatal; each connection keeps its own backoff cycle.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("pool already started")
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	for _, id := range p.cfg.AppIDs {
		c := &connection{
			clientID:       id,
			url:            fmt.Sprintf("%s?app_id=%s", p.cfg.Endpoint, id),
			dialer:         p.dialer,
			clk:            p.clk,
			log:            p.log,
			reconnectDelay: p.cfg.ReconnectDelay,
			maxReconnects:  p.cfg.MaxReconnectAttempts,
			pingInterval:   p.cfg.PingInterval,
			onMessage:      p.handleMessage,
			onOpen:         p.handleOpen,
			onClose:        p.handleClose,
			quality:        models.QualityDisconnected,
		}
		p.conns[id] = c
		p.order = append(p.order, id)
	}
	conns := make([]*connection, 0, len(p.conns))
	for _, id := range p.order {
		conns = append(conns, p.conns[id])
	}
	p.mu.Unlock()

	for _, c := range conns {
		c.connect(p.ctx)
	}
	return nil
}

// SubscribeTicks registers onTick for a market, sharing one upstream
// subscription across all subscribers of that market. The returned closure
// is idempotent; when the last subscriber leaves it sends exactly one
// forget control message upstream.
func (p *Pool) SubscribeTicks(market string, onTick TickHandler) (func(), error) {
	p.mu.Lock()
	handlers, exists := p.subs[market]
	var target *connection
	if !exists {
		target = p.bestLocked()
		if target == nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("no active connection available")
		}
		handlers = make(map[uint64]TickHandler)
		p.subs[market] = handlers
		p.subConn[market] = target.clientID
	}
	p.nextSub++
	token := p.nextSub
	handlers[token] = onTick
	p.mu.Unlock()

	if target != nil {
		msg, _ := json.Marshal(map[string]interface{}{"ticks": market, "subscribe": 1})
		if err := target.write(msg); err != nil {
			p.log.Warn("tick subscribe write failed",
				logger.String("market", market), logger.Error(err))
		}
	}

	return func() {
		p.mu.Lock()
		hs, ok := p.subs[market]
		if !ok {
			p.mu.Unlock()
			return
		}
		if _, ok := hs[token]; !ok {
			p.mu.Unlock()
			return
		}
		delete(hs, token)
		var forget *connection
		if len(hs) == 0 {
			delete(p.subs, market)
			id := p.subConn[market]
			delete(p.subConn, market)
			forget = p.conns[id]
		}
		p.mu.Unlock()
		if forget != nil {
			_ = forget.write([]byte(`{"forget_all":"ticks"}`))
		}
	}, nil
}

// SendRequest attaches a uuid correlation id, sends on the best connection
// and waits for the matching response. Responses for ids that already timed
// out are ignored.
func (p *Pool) SendRequest(ctx context.Context, payload map[string]interface{}) (json.RawMessage, error) {
	p.mu.Lock()
	best := p.bestLocked()
	p.mu.Unlock()
	if best == nil {
		return nil, fmt.Errorf("no active connection available")
	}

	reqID := uuid.NewString()
	req := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		req[k] = v
	}
	req["req_id"] = reqID
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ch := make(chan pendingResponse, 1)
	p.mu.Lock()
	p.pending[reqID] = ch
	p.mu.Unlock()

	start := p.clk.Now()
	if err := best.write(data); err != nil {
		p.dropPending(reqID)
		p.rec.RecordError("request_write")
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case resp := <-ch:
		p.rec.RecordLatency("request", p.clk.Now().Sub(start).Seconds())
		if resp.err != nil {
			p.rec.RecordError("request_upstream")
			return nil, resp.err
		}
		return resp.data, nil
	case <-p.clk.After(p.cfg.RequestTimeout):
		p.dropPending(reqID)
		p.rec.RecordError("request_timeout")
		return nil, fmt.Errorf("request timeout after %s", p.cfg.RequestTimeout)
	case <-ctx.Done():
		p.dropPending(reqID)
		return nil, ctx.Err()
	}
}

func (p *Pool) dropPending(reqID string) {
	p.mu.Lock()
	delete(p.pending, reqID)
	p.mu.Unlock()
}

// Statuses reports per-connection state in configuration order.
func (p *Pool) Statuses() []models.ConnectionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ConnectionStatus, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.conns[id].status())
	}
	return out
}

// OverallStatus is CONNECTED iff every connection is open, DISCONNECTED iff
// none are, DEGRADED otherwise.
func (p *Pool) OverallStatus() models.PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	open := 0
	for _, c := range p.conns {
		if c.isOpen() {
			open++
		}
	}
	switch {
	case open == 0:
		return models.PoolDisconnected
	case open < len(p.conns):
		return models.PoolDegraded
	default:
		return models.PoolConnected
	}
}

// Redial revives dormant connections; exposed for operator intervention.
func (p *Pool) Redial() {
	p.mu.Lock()
	ctx := p.ctx
	conns := make([]*connection, 0, len(p.conns))
	for _, id := range p.order {
		conns = append(conns, p.conns[id])
	}
	p.mu.Unlock()
	for _, c := range conns {
		if !c.isOpen() {
			c.redial(ctx)
		}
	}
}

// Close tears down every connection and fails all pending requests.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cancel := p.cancel
	conns := make([]*connection, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	pending := p.pending
	p.pending = make(map[string]chan pendingResponse)
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, c := range conns {
		c.close()
	}
	for _, ch := range pending {
		ch <- pendingResponse{err: fmt.Errorf("pool closed")}
	}
	p.rec.SetOpenConnections(0)
}

// bestLocked picks the highest-quality open connection: EXCELLENT first,
// then GOOD, then any open one.
func (p *Pool) bestLocked() *connection {
	var good, open *connection
	for _, id := range p.order {
		c := p.conns[id]
		switch c.currentQuality() {
		case models.QualityExcellent:
			return c
		case models.QualityGood:
			if good == nil {
				good = c
			}
		case models.QualityPoor:
			if open == nil {
				open = c
			}
		}
	}
	if good != nil {
		return good
	}
	return open
}

func (p *Pool) handleOpen(clientID string) {
	p.mu.Lock()
	var resub []string
	for market, id := range p.subConn {
		if id == clientID {
			resub = append(resub, market)
		}
	}
	c := p.conns[clientID]
	open := 0
	for _, cc := range p.conns {
		if cc.isOpen() {
			open++
		}
	}
	p.mu.Unlock()

	p.rec.SetOpenConnections(open)

	// restore subscriptions that were riding on this connection
	for _, market := range resub {
		msg, _ := json.Marshal(map[string]interface{}{"ticks": market, "subscribe": 1})
		if err := c.write(msg); err != nil {
			p.log.Warn("tick resubscribe failed",
				logger.String("market", market), logger.Error(err))
		}
	}
}

func (p *Pool) handleClose(clientID string) {
	p.mu.Lock()
	open := 0
	for _, c := range p.conns {
		if c.isOpen() {
			open++
		}
	}
	p.mu.Unlock()
	p.rec.SetOpenConnections(open)
	p.rec.RecordReconnect(clientID)
}

type tickPayload struct {
	Symbol string  `json:"symbol"`
	Quote  float64 `json:"quote"`
	Epoch  int64   `json:"epoch"`
}

type upstreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type inboundMessage struct {
	MsgType string         `json:"msg_type"`
	ReqID   string         `json:"req_id"`
	Tick    *tickPayload   `json:"tick"`
	Error   *upstreamError `json:"error"`
}

func (p *Pool) handleMessage(clientID string, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		p.log.Debug("unparseable frame", logger.String("client_id", clientID))
		return
	}

	switch {
	case msg.MsgType == "tick" && msg.Tick != nil:
		p.deliverTick(clientID, msg.Tick)
	case msg.MsgType == "pong":
		p.mu.Lock()
		c := p.conns[clientID]
		p.mu.Unlock()
		if c != nil {
			c.markPong()
		}
	}

	if msg.ReqID == "" {
		return
	}
	p.mu.Lock()
	ch, ok := p.pending[msg.ReqID]
	if ok {
		delete(p.pending, msg.ReqID)
	}
	p.mu.Unlock()
	if !ok {
		return // stale correlation id
	}
	if msg.Error != nil {
		ch <- pendingResponse{err: fmt.Errorf("upstream: %s", msg.Error.Message)}
		return
	}
	ch <- pendingResponse{data: json.RawMessage(append([]byte(nil), data...))}
}

func (p *Pool) deliverTick(clientID string, t *tickPayload) {
	p.mu.Lock()
	c := p.conns[clientID]
	handlers := make([]TickHandler, 0, 4)
	for _, h := range p.subs[t.Symbol] {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	if c != nil {
		c.recordTick()
	}
	p.rec.RecordTick(t.Symbol)

	tick := models.Tick{Market: t.Symbol, Quote: t.Quote, Timestamp: t.Epoch}
	for _, h := range handlers {
		h(tick)
	}
}
