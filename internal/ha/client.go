// Package ha publishes Ring events to Home Assistant over its WebSocket API.
package ha

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Reconnect backoff bounds
const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// DefaultRequestTimeout bounds a request when the context has no deadline
const DefaultRequestTimeout = 10 * time.Second

// ErrNotConnected is returned for requests made while disconnected
var ErrNotConnected = errors.New("ha: not connected")

// HAClient defines the interface for the Home Assistant WebSocket client
type HAClient interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
	CallService(ctx context.Context, domain, service string, data map[string]any) error
	FireEvent(ctx context.Context, eventType string, data map[string]any) error
	SetInputBoolean(ctx context.Context, name string, value bool) error
	SetInputText(ctx context.Context, name string, value string) error
}

// Client implements HAClient
type Client struct {
	url    string
	token  string
	logger *zap.Logger
	dialer *websocket.Dialer

	connMu    sync.RWMutex
	conn      *websocket.Conn
	connected bool
	reconnect bool
	ctx       context.Context
	cancel    context.CancelFunc

	writeMu sync.Mutex

	msgIDMu sync.Mutex
	msgID   int

	pendingMu sync.Mutex
	pending   map[int]chan Message
}

// NewClient creates a new Home Assistant WebSocket client
func NewClient(url, token string, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:     url,
		token:   token,
		logger:  logger.Named("ha"),
		dialer:  websocket.DefaultDialer,
		pending: make(map[int]chan Message),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect dials Home Assistant and completes the auth handshake
func (c *Client) Connect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := c.dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	if err := c.authenticate(conn); err != nil {
		conn.Close()
		return err
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.conn = conn
	c.connected = true
	c.reconnect = true
	c.logger.Info("Connected to Home Assistant", zap.String("url", c.url))

	go c.receiveMessages(c.ctx, conn)
	return nil
}

// authenticate runs auth_required → auth → auth_ok on a fresh connection
func (c *Client) authenticate(conn *websocket.Conn) error {
	var authRequired Message
	if err := conn.ReadJSON(&authRequired); err != nil {
		return fmt.Errorf("failed to read auth_required: %w", err)
	}
	if authRequired.Type != "auth_required" {
		return fmt.Errorf("expected auth_required, got %s", authRequired.Type)
	}

	if err := conn.WriteJSON(AuthMessage{Type: "auth", AccessToken: c.token}); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	var authResponse Message
	if err := conn.ReadJSON(&authResponse); err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}

	switch authResponse.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return fmt.Errorf("authentication failed: invalid token")
	default:
		return fmt.Errorf("expected auth_ok, got %s", authResponse.Type)
	}
}

// Disconnect closes the connection and stops reconnecting
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.reconnect = false
	c.cancel()

	if !c.connected {
		return nil
	}
	c.connected = false

	if c.conn != nil {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.conn.Close()
		c.conn = nil
	}

	c.logger.Info("Disconnected from Home Assistant")
	return nil
}

// IsConnected returns true if client is connected
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

func (c *Client) nextMsgID() int {
	c.msgIDMu.Lock()
	defer c.msgIDMu.Unlock()
	c.msgID++
	return c.msgID
}

// send writes a request and waits for its result
func (c *Client) send(ctx context.Context, req request) (*Message, error) {
	c.connMu.RLock()
	conn, connected, clientCtx := c.conn, c.connected, c.ctx
	c.connMu.RUnlock()
	if !connected {
		return nil, ErrNotConnected
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRequestTimeout)
		defer cancel()
	}

	msgID := req.messageID()
	respChan := make(chan Message, 1)
	c.pendingMu.Lock()
	c.pending[msgID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msgID)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp.Success != nil && !*resp.Success {
			if resp.Error != nil {
				return nil, fmt.Errorf("HA error: %s - %s", resp.Error.Code, resp.Error.Message)
			}
			return nil, fmt.Errorf("request %d failed", msgID)
		}
		return &resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for response to %d: %w", msgID, ctx.Err())
	case <-clientCtx.Done():
		return nil, fmt.Errorf("client disconnected")
	}
}

// receiveMessages routes results to waiting requests until the connection
// fails or the client disconnects
func (c *Client) receiveMessages(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to read message", zap.Error(err))
			c.handleDisconnect(conn)
			return
		}

		if msg.ID == 0 {
			continue
		}

		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.ID]; ok {
			select {
			case ch <- msg:
			default:
				c.logger.Warn("Response channel full", zap.Int("msg_id", msg.ID))
			}
		}
		c.pendingMu.Unlock()
	}
}

// handleDisconnect marks the connection lost and starts reconnecting
func (c *Client) handleDisconnect(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn != conn {
		c.connMu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	conn.Close()
	reconnect := c.reconnect
	ctx := c.ctx
	c.connMu.Unlock()

	c.logger.Warn("Connection lost")
	if reconnect {
		go c.attemptReconnect(ctx)
	}
}

// attemptReconnect retries Connect with exponential backoff
func (c *Client) attemptReconnect(ctx context.Context) {
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Attempting to reconnect...")
		if err := c.Connect(); err != nil {
			c.logger.Error("Reconnection failed", zap.Error(err))
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.logger.Info("Reconnected successfully")
		return
	}
}

// CallService calls a Home Assistant service
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	_, err := c.send(ctx, &CallServiceRequest{
		ID:          c.nextMsgID(),
		Type:        "call_service",
		Domain:      domain,
		Service:     service,
		ServiceData: data,
	})
	return err
}

// FireEvent fires a custom event on the Home Assistant bus
func (c *Client) FireEvent(ctx context.Context, eventType string, data map[string]any) error {
	_, err := c.send(ctx, &FireEventRequest{
		ID:        c.nextMsgID(),
		Type:      "fire_event",
		EventType: eventType,
		EventData: data,
	})
	return err
}

// SetInputBoolean sets the value of an input_boolean
func (c *Client) SetInputBoolean(ctx context.Context, name string, value bool) error {
	service := "turn_off"
	if value {
		service = "turn_on"
	}

	return c.CallService(ctx, "input_boolean", service, map[string]any{
		"entity_id": fmt.Sprintf("input_boolean.%s", name),
	})
}

// SetInputText sets the value of an input_text
func (c *Client) SetInputText(ctx context.Context, name string, value string) error {
	return c.CallService(ctx, "input_text", "set_value", map[string]any{
		"entity_id": fmt.Sprintf("input_text.%s", name),
		"value":     value,
	})
}
