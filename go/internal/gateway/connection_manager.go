package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mcdev12/focusroom/go/internal/events"
)

// CommandHandler receives the frames a client sends.
type CommandHandler interface {
	HandleCommand(ctx context.Context, conn *Connection, frame []byte)
}

// ConnectionManager manages WebSocket connections for rooms
type ConnectionManager struct {
	// Connection pools organized by room ID
	roomConnections map[uuid.UUID]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage
	dropped     atomic.Uint64
	evicted     atomic.Uint64
}

// Connection represents a WebSocket connection to a room member
type Connection struct {
	ID      string
	UserID  uuid.UUID
	RoomID  uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time

	handler CommandHandler
	limiter *rate.Limiter
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	BroadcastBuffer int
	CommandRate     rate.Limit // commands per second per connection
	CommandBurst    int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	roomID uuid.UUID
	event  events.Envelope
	target *Connection // optional: only this connection receives the event
}

// ConnectionStats is a snapshot of the connection pools.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
	DroppedEvents    uint64         `json:"dropped_events"`
	EvictedClients   uint64         `json:"evicted_clients"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024, // commands are tiny
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		BroadcastBuffer: 1000,
		CommandRate:     5,
		CommandBurst:    10,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 64
	}
	if config.BroadcastBuffer <= 0 {
		config.BroadcastBuffer = 1000
	}
	return &ConnectionManager{
		roomConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, config.BroadcastBuffer),
	}
}

// Start processes broadcast messages until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers
// it with the room. initial, if not nil, is the first frame the client gets.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID, roomID uuid.UUID, handler CommandHandler, initial *events.Envelope) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		handler:     handler,
		limiter:     rate.NewLimiter(cm.config.CommandRate, cm.config.CommandBurst),
	}

	if initial != nil {
		data, err := json.Marshal(initial)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to marshal initial event: %w", err)
		}
		connection.Send <- data
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID.String()).
		Str("room_id", roomID.String()).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID.String()).
		Int("total_connections", len(cm.roomConnections[conn.RoomID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.unregisterLocked(conn)
}

func (cm *ConnectionManager) unregisterLocked(conn *Connection) {
	connections, exists := cm.roomConnections[conn.RoomID]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	close(conn.Send)

	if len(connections) == 0 {
		delete(cm.roomConnections, conn.RoomID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID.String()).
		Str("room_id", conn.RoomID.String()).
		Msg("connection unregistered")
}

// Broadcast queues env for every connection of its room. It never blocks.
func (cm *ConnectionManager) Broadcast(env events.Envelope) {
	roomID, err := uuid.Parse(env.RoomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", env.RoomID).Msg("dropping event with invalid room id")
		return
	}
	cm.enqueue(broadcastMessage{roomID: roomID, event: env})
}

// SendTo queues env for a single connection.
func (cm *ConnectionManager) SendTo(conn *Connection, env events.Envelope) {
	cm.enqueue(broadcastMessage{roomID: conn.RoomID, event: env, target: conn})
}

func (cm *ConnectionManager) enqueue(message broadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		cm.dropped.Add(1)
		log.Warn().
			Str("room_id", message.roomID.String()).
			Str("event_type", string(message.event.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	eventData, err := json.Marshal(message.event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock so a concurrent unregister cannot
	// close a Send channel mid-delivery.
	var slow []*Connection
	delivered := 0
	cm.mu.RLock()
	for conn := range cm.roomConnections[message.roomID] {
		if message.target != nil && conn != message.target {
			continue
		}
		select {
		case conn.Send <- eventData:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID.String()).
			Msg("connection send buffer full, closing connection")
		cm.evicted.Add(1)
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.event.Type)).
		Str("room_id", message.roomID.String()).
		Int("connections", delivered).
		Msg("event broadcasted")

	if message.event.Type == events.EventTypeParticipantLeft && message.target == nil {
		cm.disconnectParticipant(message.roomID, message.event)
	}
}

// disconnectParticipant closes the room connections of a user who left. The
// write pump flushes what is already queued, the departure event included,
// before sending the close frame.
func (cm *ConnectionManager) disconnectParticipant(roomID uuid.UUID, env events.Envelope) {
	payload, err := events.ParsePayload(env)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("invalid participant left event")
		return
	}
	userID, err := uuid.Parse(payload.(*events.ParticipantLeftPayload).UserID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("invalid participant left user id")
		return
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	for conn := range cm.roomConnections[roomID] {
		if conn.UserID == userID {
			cm.unregisterLocked(conn)
		}
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	var all []*Connection
	for _, connections := range cm.roomConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	for _, conn := range all {
		cm.unregisterLocked(conn)
	}
	cm.mu.Unlock()

	for _, conn := range all {
		conn.Conn.Close()
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveRooms:     len(cm.roomConnections),
		RoomConnections: make(map[string]int, len(cm.roomConnections)),
		DroppedEvents:   cm.dropped.Load(),
		EvictedClients:  cm.evicted.Load(),
	}
	for roomID, connections := range cm.roomConnections {
		stats.TotalConnections += len(connections)
		stats.RoomConnections[roomID.String()] = len(connections)
	}
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client commands until the connection fails.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		if !c.limiter.Allow() {
			log.Debug().
				Str("connection_id", c.ID).
				Str("user_id", c.UserID.String()).
				Msg("command rate exceeded, dropping frame")
			continue
		}
		if c.handler == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.Manager.config.WriteTimeout)
		c.handler.HandleCommand(ctx, c, message)
		cancel()
	}
}
