package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrStreamClosed is returned by a closed WSClient.
var ErrStreamClosed = errors.New("log stream closed")

// WSConfig tunes the WebSocket log stream.
type WSConfig struct {
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	SubscribeTimeout  time.Duration
	Commitment        string
	// Buffer is the per-subscription channel capacity. Delivery blocks when full.
	Buffer int
}

// DefaultWSConfig returns conservative settings for public RPC providers.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		Commitment:        CommitmentConfirmed,
		Buffer:            4096,
	}
}

type subscription struct {
	filter LogsFilter
	ch     chan LogNotification
}

// WSClient is a reconnecting logsSubscribe client built on gorilla/websocket.
type WSClient struct {
	endpoint string
	cfg      WSConfig
	log      zerolog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	nextID atomic.Uint64
	closed atomic.Bool

	mu      sync.Mutex
	subs    map[int64]*subscription // keyed by server subscription ID
	pending map[uint64]chan int64   // keyed by request ID

	reconnecting atomic.Bool
	done         chan struct{}
	wg           sync.WaitGroup
}

var _ LogStream = (*WSClient)(nil)

// DialWS connects to endpoint and starts the read and keepalive loops.
func DialWS(ctx context.Context, endpoint string, cfg WSConfig, log zerolog.Logger) (*WSClient, error) {
	def := DefaultWSConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = def.SubscribeTimeout
	}
	if cfg.Commitment == "" {
		cfg.Commitment = def.Commitment
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}

	c := &WSClient{
		endpoint: endpoint,
		cfg:      cfg,
		log:      log.With().Str("component", "ws").Logger(),
		subs:     make(map[int64]*subscription),
		pending:  make(map[uint64]chan int64),
		done:     make(chan struct{}),
	}
	if err := c.dial(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func (c *WSClient) dial(ctx context.Context) error {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := d.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// SubscribeLogs registers filter and returns a channel of matching notifications.
// The channel survives reconnects and is closed by Close.
func (c *WSClient) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	subID, err := c.subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}
	sub := &subscription{filter: filter, ch: make(chan LogNotification, c.cfg.Buffer)}
	c.mu.Lock()
	c.subs[subID] = sub
	c.mu.Unlock()
	return sub.ch, nil
}

// subscribe sends logsSubscribe and waits for the server-assigned ID.
func (c *WSClient) subscribe(ctx context.Context, filter LogsFilter) (int64, error) {
	if c.closed.Load() {
		return 0, ErrStreamClosed
	}

	var mentions map[string]interface{}
	if len(filter.Mentions) > 0 {
		mentions = map[string]interface{}{"mentions": filter.Mentions}
	} else {
		mentions = map[string]interface{}{"all": nil}
	}

	reqID := c.nextID.Add(1)
	wait := make(chan int64, 1)
	c.mu.Lock()
	c.pending[reqID] = wait
	c.mu.Unlock()
	forget := func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}

	err := c.write(wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params:  []interface{}{mentions, map[string]string{"commitment": c.cfg.Commitment}},
	})
	if err != nil {
		forget()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(c.cfg.SubscribeTimeout)
	defer timer.Stop()
	select {
	case id, ok := <-wait:
		if !ok {
			return 0, ErrStreamClosed
		}
		return id, nil
	case <-timer.C:
		forget()
		return 0, fmt.Errorf("subscribe timeout after %s", c.cfg.SubscribeTimeout)
	case <-c.done:
		return 0, ErrStreamClosed
	case <-ctx.Done():
		forget()
		return 0, ctx.Err()
	}
}

func (c *WSClient) write(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// Close terminates the connection and closes every subscription channel.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	for id, s := range c.subs {
		close(s.ch)
		delete(c.subs, id)
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return nil
}

func (c *WSClient) readLoop() {
	defer c.wg.Done()
	backoff := c.cfg.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.sleep(100 * time.Millisecond) {
				return
			}
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.log.Warn().Err(err).Dur("backoff", backoff).Msg("read failed, reconnecting")
			if !c.reconnecting.Swap(true) {
				go c.reconnect(backoff)
			}
			backoff *= 2
			if backoff > c.cfg.MaxReconnectDelay {
				backoff = c.cfg.MaxReconnectDelay
			}
			if !c.sleep(100 * time.Millisecond) {
				return
			}
			continue
		}

		backoff = c.cfg.ReconnectDelay
		c.dispatch(msg)
	}
}

func (c *WSClient) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.done:
		return false
	case <-t.C:
		return true
	}
}

func (c *WSClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)
	if !c.sleep(delay) {
		return
	}

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SubscribeTimeout)
	defer cancel()
	if err := c.dial(ctx); err != nil {
		c.log.Error().Err(err).Msg("reconnect failed")
		return
	}
	c.resubscribe()
}

// resubscribe replays every active filter and rekeys its channel under the new ID.
func (c *WSClient) resubscribe() {
	c.mu.Lock()
	old := make(map[int64]*subscription, len(c.subs))
	for id, s := range c.subs {
		old[id] = s
	}
	c.mu.Unlock()

	for oldID, s := range old {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SubscribeTimeout)
		newID, err := c.subscribe(ctx, s.filter)
		cancel()
		if err != nil {
			c.log.Error().Err(err).Int64("subscription", oldID).Msg("resubscribe failed")
			continue
		}
		c.mu.Lock()
		delete(c.subs, oldID)
		c.subs[newID] = s
		c.mu.Unlock()
		c.log.Info().Int64("old", oldID).Int64("new", newID).Msg("resubscribed")
	}
}

func (c *WSClient) dispatch(msg []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.log.Debug().Err(err).Msg("unparseable frame")
		return
	}

	switch {
	case env.Error != nil:
		c.log.Warn().Int("code", env.Error.Code).Str("message", env.Error.Message).Uint64("id", env.ID).Msg("rpc error frame")
	case env.Method == "logsNotification" && env.Params != nil:
		c.deliver(env.Params)
	case env.ID != 0 && len(env.Result) > 0:
		var subID int64
		if err := json.Unmarshal(env.Result, &subID); err != nil {
			return
		}
		c.mu.Lock()
		wait, ok := c.pending[env.ID]
		delete(c.pending, env.ID)
		c.mu.Unlock()
		if ok {
			wait <- subID
		}
	}
}

func (c *WSClient) deliver(p *wsNotificationParams) {
	c.mu.Lock()
	s, ok := c.subs[p.Subscription]
	c.mu.Unlock()
	if !ok {
		return
	}

	n := LogNotification{
		Signature: p.Result.Value.Signature,
		Logs:      p.Result.Value.Logs,
		Err:       p.Result.Value.Err,
	}
	if p.Result.Context != nil {
		n.Slot = p.Result.Context.Slot
	}

	// Blocking send applies backpressure to the socket instead of dropping.
	select {
	case s.ch <- n:
	case <-c.done:
	}
}

func (c *WSClient) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.log.Debug().Err(err).Msg("ping failed")
				}
			}
			c.connMu.Unlock()
		}
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsEnvelope struct {
	ID     uint64                `json:"id"`
	Method string                `json:"method"`
	Result json.RawMessage       `json:"result"`
	Error  *RPCError             `json:"error"`
	Params *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context *struct {
			Slot int64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string      `json:"signature"`
			Logs      []string    `json:"logs"`
			Err       interface{} `json:"err"`
		} `json:"value"`
	} `json:"result"`
}
