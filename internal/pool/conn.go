package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"DigitPulse/internal/domain/models"
	"DigitPulse/pkg/clock"
	"DigitPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// Conn is the transport surface one pooled connection needs from a
// websocket implementation. *websocket.Conn satisfies it; tests inject
// fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn against an endpoint URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

func gorillaDial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return c, nil
}

// connection runs an independent lifecycle for one upstream client id:
// CONNECTING -> OPEN -> (CLOSED -> reconnect scheduled -> CONNECTING).
// After maxReconnects failed cycles it goes dormant and is only revived
// by an explicit Redial.
type connection struct {
	clientID string
	url      string

	dialer         Dialer
	clk            clock.Clock
	log            *logger.Logger
	reconnectDelay time.Duration
	maxReconnects  int
	pingInterval   time.Duration

	onMessage func(clientID string, data []byte)
	onOpen    func(clientID string)
	onClose   func(clientID string)

	mu        sync.Mutex
	wmu       sync.Mutex
	ws        Conn
	connected bool
	quality   models.ConnectionQuality
	tickCount int64
	lastPing  time.Time
	attempts  int
	dormant   bool
	shutdown  bool
	gen       int // invalidates read/ping loops of stale sockets
}

func (c *connection) connect(ctx context.Context) {
	ws, err := c.dialer(ctx, c.url)
	if err != nil {
		c.log.Warn("connection dial failed",
			logger.String("client_id", c.clientID), logger.Error(err))
		c.markDisconnected()
		c.scheduleReconnect(ctx)
		return
	}

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.connected = true
	c.quality = models.QualityGood
	c.lastPing = c.clk.Now()
	c.attempts = 0
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.log.Info("connection open", logger.String("client_id", c.clientID))
	if c.onOpen != nil {
		c.onOpen(c.clientID)
	}

	go c.readLoop(ctx, ws, gen)
	go c.pingLoop(ctx, gen)
}

func (c *connection) readLoop(ctx context.Context, ws Conn, gen int) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := gen != c.gen || c.shutdown
			c.mu.Unlock()
			if stale {
				return
			}
			c.log.Warn("connection closed",
				logger.String("client_id", c.clientID), logger.Error(err))
			c.markDisconnected()
			if c.onClose != nil {
				c.onClose(c.clientID)
			}
			c.scheduleReconnect(ctx)
			return
		}
		c.onMessage(c.clientID, data)
	}
}

func (c *connection) pingLoop(ctx context.Context, gen int) {
	ticker := c.clk.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.mu.Lock()
			stale := gen != c.gen || !c.connected
			ws := c.ws
			c.mu.Unlock()
			if stale {
				return
			}
			if err := c.writeTo(ws, []byte(`{"ping":1}`)); err != nil {
				c.markError()
			}
		}
	}
}

func (c *connection) scheduleReconnect(ctx context.Context) {
	c.mu.Lock()
	if c.shutdown || c.dormant {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.maxReconnects {
		c.dormant = true
		c.mu.Unlock()
		c.log.Error("connection dormant after repeated failures",
			logger.String("client_id", c.clientID),
			logger.Int("attempts", c.maxReconnects))
		return
	}
	delay := c.reconnectDelay * (1 << c.attempts)
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	c.log.Info("reconnect scheduled",
		logger.String("client_id", c.clientID),
		logger.Int("attempt", attempt),
		logger.Duration("delay", delay))

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-c.clk.After(delay):
		}
		c.mu.Lock()
		stopped := c.shutdown || c.dormant
		c.mu.Unlock()
		if stopped {
			return
		}
		c.connect(ctx)
	}()
}

// redial clears the dormant flag and forces a fresh connect cycle.
func (c *connection) redial(ctx context.Context) {
	c.mu.Lock()
	c.dormant = false
	c.attempts = 0
	c.mu.Unlock()
	c.connect(ctx)
}

// write serializes outbound frames; gorilla allows one concurrent writer.
func (c *connection) write(data []byte) error {
	c.mu.Lock()
	if !c.connected || c.ws == nil {
		c.mu.Unlock()
		return fmt.Errorf("connection %s not open", c.clientID)
	}
	ws := c.ws
	c.mu.Unlock()
	return c.writeTo(ws, data)
}

func (c *connection) writeTo(ws Conn, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, data)
}

func (c *connection) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.ws = nil
	c.quality = models.QualityDisconnected
}

func (c *connection) markError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		c.quality = models.QualityPoor
	}
}

// markPong records a completed liveness round trip; only here does a
// connection earn EXCELLENT.
func (c *connection) markPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		c.quality = models.QualityExcellent
		c.lastPing = c.clk.Now()
	}
}

func (c *connection) recordTick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickCount++
	c.lastPing = c.clk.Now()
}

func (c *connection) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *connection) currentQuality() models.ConnectionQuality {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return models.QualityDisconnected
	}
	return c.quality
}

func (c *connection) status() models.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.quality
	if !c.connected {
		q = models.QualityDisconnected
	}
	return models.ConnectionStatus{
		ClientID:    c.clientID,
		IsConnected: c.connected,
		Quality:     q,
		TickCount:   c.tickCount,
		LastPing:    c.lastPing.UnixMilli(),
	}
}

func (c *connection) close() {
	c.mu.Lock()
	c.shutdown = true
	c.connected = false
	ws := c.ws
	c.ws = nil
	c.quality = models.QualityDisconnected
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}
