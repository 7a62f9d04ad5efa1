package timer_client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/clients"
	"github.com/mcdev12/focusroom/go/internal/events"
	"github.com/mcdev12/focusroom/go/internal/models"
)

// DefaultFrameInterval is the local render cadence.
const DefaultFrameInterval = 100 * time.Millisecond

type Config struct {
	BaseURL       string // http(s) address of the focusroom server
	RoomID        uuid.UUID
	UserID        uuid.UUID
	FrameInterval time.Duration
	Clock         clockwork.Clock
}

// TimerState mirrors the server's GET /api/rooms/{id}/timer response.
type TimerState struct {
	RoomID        string             `json:"room_id"`
	SessionType   models.SessionType `json:"session_type"`
	StartTime     *time.Time         `json:"start_time,omitempty"`
	EndTime       *time.Time         `json:"end_time,omitempty"`
	Duration      *int               `json:"duration,omitempty"`
	IsRunning     bool               `json:"is_running"`
	LastUpdated   time.Time          `json:"last_updated"`
	TimeRemaining int                `json:"time_remaining_sec"`
	ServerTime    time.Time          `json:"server_time"`
}

// Snapshot converts the REST view back into a timer snapshot.
func (s TimerState) Snapshot() models.TimerSnapshot {
	return models.TimerSnapshot{
		SessionType: s.SessionType,
		StartTime:   s.StartTime,
		Duration:    s.Duration,
		IsRunning:   s.IsRunning,
		LastUpdated: s.LastUpdated,
	}
}

// Client holds one room connection and the reconciler fed by it.
type Client struct {
	*clients.BaseClient
	config     Config
	conn       *websocket.Conn
	writeMu    sync.Mutex
	reconciler *Reconciler

	handlersMu sync.RWMutex
	handlers   []func(events.Envelope)
}

func NewClient(config Config) *Client {
	if config.FrameInterval <= 0 {
		config.FrameInterval = DefaultFrameInterval
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	base := clients.NewBaseClient(strings.TrimRight(config.BaseURL, "/"))
	base.SetHeader("X-User-ID", config.UserID.String())
	return &Client{
		BaseClient: base,
		config:     config,
		reconciler: NewReconciler(),
	}
}

func (c *Client) Reconciler() *Reconciler {
	return c.reconciler
}

// OnEvent registers fn for every event received from the server.
func (c *Client) OnEvent(fn func(events.Envelope)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Connect opens the room's WebSocket.
func (c *Client) Connect(ctx context.Context) error {
	wsURL, err := c.socketURL()
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to room (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to room: %w", err)
	}
	c.conn = conn
	return nil
}

func (c *Client) socketURL() (string, error) {
	u, err := url.Parse(c.BaseURL())
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/room"
	q := url.Values{}
	q.Set("room_id", c.config.RoomID.String())
	q.Set("user_id", c.config.UserID.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run reads events and drives render on every frame until ctx is cancelled
// or the connection drops.
func (c *Client) Run(ctx context.Context, render func(View)) error {
	if c.conn == nil {
		return fmt.Errorf("client is not connected")
	}

	readErr := make(chan error, 1)
	go func() {
		readErr <- c.readLoop()
	}()

	ticker := c.config.Clock.NewTicker(c.config.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			<-readErr
			return nil
		case err := <-readErr:
			return err
		case <-ticker.Chan():
			view := c.reconciler.Frame(c.config.Clock.Now())
			if render != nil {
				render(view)
			}
		}
	}
}

func (c *Client) readLoop() error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Msg("ignoring malformed event")
		return
	}

	c.reconciler.ObserveServerTime(env.Timestamp, c.config.Clock.Now())
	if env.Type == events.EventTypeTimerUpdate {
		payload, err := events.ParsePayload(env)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring malformed timer update")
			return
		}
		c.reconciler.Apply(payload.(*events.TimerUpdatePayload).Snapshot())
	}

	c.handlersMu.RLock()
	handlers := c.handlers
	c.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(env)
	}
}

// FetchState reads the timer over HTTP and feeds it to the reconciler.
func (c *Client) FetchState(ctx context.Context) (*TimerState, error) {
	body, err := c.Get(ctx, fmt.Sprintf("/api/rooms/%s/timer", c.config.RoomID))
	if err != nil {
		return nil, err
	}
	var state TimerState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("failed to decode timer state: %w", err)
	}
	c.reconciler.ObserveServerTime(state.ServerTime, c.config.Clock.Now())
	c.reconciler.Apply(state.Snapshot())
	return &state, nil
}

func (c *Client) Start(sessionType *models.SessionType, durationSeconds *int) error {
	return c.send(events.CommandTypeStart, events.StartCommand{
		RoomID:      c.config.RoomID.String(),
		SessionType: sessionType,
		Duration:    durationSeconds,
	})
}

func (c *Client) Stop() error {
	return c.send(events.CommandTypeStop, events.StopCommand{RoomID: c.config.RoomID.String()})
}

// Skip ends the current break.
func (c *Client) Skip() error {
	return c.send(events.CommandTypeSkip, events.SkipCommand{
		RoomID:      c.config.RoomID.String(),
		SessionType: models.SessionTypeBreak,
	})
}

func (c *Client) SetAutoMode(enabled bool) error {
	return c.send(events.CommandTypeSetAutoMode, events.SetAutoModeCommand{
		RoomID:   c.config.RoomID.String(),
		AutoMode: enabled,
	})
}

// Sync asks the server to resend the current snapshot to this client.
func (c *Client) Sync() error {
	return c.send(events.CommandTypeSync, events.SyncCommand{RoomID: c.config.RoomID.String()})
}

func (c *Client) send(cmdType events.CommandType, data interface{}) error {
	if c.conn == nil {
		return fmt.Errorf("client is not connected")
	}
	frame, err := events.EncodeCommand(cmdType, data)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmdType, err)
	}
	return nil
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
