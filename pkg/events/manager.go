package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/edusim/classsim/pkg/graph"
	"github.com/edusim/classsim/pkg/models"
)

// WhisperHandler forwards a supervisor whisper to the orchestrator. Set after
// construction because the orchestrator is built after the manager.
type WhisperHandler func(ctx context.Context, sessionID, hint string) error

// ConnectionManager manages WebSocket connections and session subscriptions.
type ConnectionManager struct {
	// Active connections: connection_id → *Connection
	connections map[string]*Connection
	mu          sync.RWMutex

	// Session subscriptions: ChannelKey → set of connection_ids
	channels  map[string]map[string]bool
	channelMu sync.RWMutex

	whisper   WhisperHandler
	whisperMu sync.RWMutex

	// Write timeout for WebSocket sends
	writeTimeout time.Duration
}

// Connection represents a single WebSocket client.
//
// subscriptions is accessed WITHOUT a lock. This is safe because all reads and
// writes (subscribe, unsubscribe, unregisterConnection) happen on the single
// goroutine that owns this connection (HandleConnection's read loop and its
// deferred cleanup).
type Connection struct {
	ID        string
	Namespace models.Channel
	Conn      *websocket.Conn

	subscriptions map[string]bool // channel keys this connection is subscribed to
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager(writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		connections:  make(map[string]*Connection),
		channels:     make(map[string]map[string]bool),
		writeTimeout: writeTimeout,
	}
}

// SetWhisperHandler wires the supervisor whisper command to the orchestrator.
// Called once during startup.
func (m *ConnectionManager) SetWhisperHandler(h WhisperHandler) {
	m.whisperMu.Lock()
	defer m.whisperMu.Unlock()
	m.whisper = h
}

// HandleConnection manages the lifecycle of a single WebSocket connection on
// the given namespace. Called by the WebSocket HTTP handler after upgrade.
// Blocks until the connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, namespace models.Channel) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		ID:            connID,
		Namespace:     namespace,
		Conn:          conn,
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, map[string]string{
		"type":         TypeConnectionReady,
		"connectionId": connID,
		"namespace":    string(namespace),
	})

	// Read loop — process client messages until connection closes
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message",
				"connection_id", connID, "error", err)
			continue
		}

		m.handleClientMessage(ctx, c, &msg)
	}
}

// Broadcast sends a payload to all connections subscribed to the given channel.
func (m *ConnectionManager) Broadcast(channel string, event []byte) {
	m.channelMu.RLock()
	connIDs, exists := m.channels[channel]
	if !exists {
		m.channelMu.RUnlock()
		return
	}
	// Copy IDs to avoid holding lock during sends
	ids := make([]string, 0, len(connIDs))
	for id := range connIDs {
		ids = append(ids, id)
	}
	m.channelMu.RUnlock()

	// Snapshot connection pointers under the lock, then release before
	// sending. Holding mu.RLock through potentially slow writes (up to
	// writeTimeout per connection) would stall register/unregister.
	m.mu.RLock()
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if conn, ok := m.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		if err := m.sendRaw(conn, event); err != nil {
			slog.Warn("Failed to send to WebSocket client",
				"connection_id", conn.ID, "error", err)
		}
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// subscriberCount returns the number of subscribers for a channel.
// Unexported — used by tests to poll instead of sleeping.
func (m *ConnectionManager) subscriberCount(channel string) int {
	m.channelMu.RLock()
	defer m.channelMu.RUnlock()
	return len(m.channels[channel])
}

// handleClientMessage dispatches a client message to the appropriate handler.
func (m *ConnectionManager) handleClientMessage(ctx context.Context, c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case ActionSubscribe:
		if msg.SessionID == "" {
			m.sendError(c, "sessionId is required for subscribe")
			return
		}
		m.subscribe(c, ChannelKey(c.Namespace, msg.SessionID))
		m.sendJSON(c, map[string]string{
			"type":      TypeSubscriptionConfirmed,
			"sessionId": msg.SessionID,
		})

	case ActionUnsubscribe:
		if msg.SessionID == "" {
			m.sendError(c, "sessionId is required for unsubscribe")
			return
		}
		m.unsubscribe(c, ChannelKey(c.Namespace, msg.SessionID))
		m.sendJSON(c, map[string]string{
			"type":      TypeSubscriptionRemoved,
			"sessionId": msg.SessionID,
		})

	case ActionPing:
		m.sendJSON(c, map[string]string{"type": TypePong})

	case ActionWhisper:
		if c.Namespace != models.ChannelSupervised {
			m.sendError(c, "supervisor.whisper is only available on the supervised namespace")
			return
		}
		if msg.SessionID == "" || msg.Hint == "" {
			m.sendError(c, "sessionId and hint are required for supervisor.whisper")
			return
		}
		m.whisperMu.RLock()
		h := m.whisper
		m.whisperMu.RUnlock()
		if h == nil {
			m.sendError(c, "supervisor.whisper is not available")
			return
		}
		if err := h(ctx, msg.SessionID, msg.Hint); err != nil {
			slog.Warn("Supervisor whisper rejected",
				"connection_id", c.ID, "session_id", msg.SessionID, "error", err)
			m.sendError(c, "whisper rejected: "+err.Error())
		}

	default:
		m.sendError(c, "unknown action: "+msg.Action)
	}
}

// subscribe registers a connection for a channel.
func (m *ConnectionManager) subscribe(c *Connection, channel string) {
	m.channelMu.Lock()
	if _, exists := m.channels[channel]; !exists {
		m.channels[channel] = make(map[string]bool)
	}
	m.channels[channel][c.ID] = true
	m.channelMu.Unlock()

	c.subscriptions[channel] = true
}

// unsubscribe removes a connection from a channel.
func (m *ConnectionManager) unsubscribe(c *Connection, channel string) {
	m.channelMu.Lock()
	if subs, exists := m.channels[channel]; exists {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(m.channels, channel)
		}
	}
	m.channelMu.Unlock()

	delete(c.subscriptions, channel)
}

// registerConnection adds a connection to the tracking map.
func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

// unregisterConnection removes a connection and all its subscriptions.
func (m *ConnectionManager) unregisterConnection(c *Connection) {
	for ch := range c.subscriptions {
		m.unsubscribe(c, ch)
	}

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendError(c *Connection, message string) {
	m.sendJSON(c, map[string]string{"type": TypeError, "message": message})
}

// sendJSON marshals and sends a JSON message to a single connection.
func (m *ConnectionManager) sendJSON(c *Connection, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message",
			"connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message",
			"connection_id", c.ID, "error", err)
	}
}

// sendRaw sends raw bytes to a single connection with a write timeout.
func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}

// ── Emitter implementation ──

var _ Emitter = (*ConnectionManager)(nil)

// EmitEvent implements Emitter.
func (m *ConnectionManager) EmitEvent(namespace models.Channel, evt models.SessionEvent) {
	m.broadcastJSON(ChannelKey(namespace, evt.SessionID), EventEnvelope{
		Type:      EnvelopeType(evt.Type),
		SessionID: evt.SessionID,
		Event:     evt,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// EmitAgentTurn implements Emitter.
func (m *ConnectionManager) EmitAgentTurn(namespace models.Channel, sessionID string, turn models.Turn) {
	m.broadcastJSON(ChannelKey(namespace, sessionID), AgentTurnEnvelope{
		Type:      TypeAgentTurn,
		SessionID: sessionID,
		Turn:      turn,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// EmitAgentToken implements Emitter.
func (m *ConnectionManager) EmitAgentToken(namespace models.Channel, sessionID, agentID, turnID, delta string) {
	m.broadcastJSON(ChannelKey(namespace, sessionID), AgentTokenEnvelope{
		Type:      TypeAgentToken,
		SessionID: sessionID,
		AgentID:   agentID,
		TurnID:    turnID,
		Delta:     delta,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// EmitTurnProcessed implements Emitter.
func (m *ConnectionManager) EmitTurnProcessed(namespace models.Channel, sessionID, turnID string, metrics models.SessionMetrics) {
	m.broadcastJSON(ChannelKey(namespace, sessionID), TurnProcessedEnvelope{
		Type:      TypeTurnProcessed,
		SessionID: sessionID,
		TurnID:    turnID,
		Metrics:   metrics,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// EmitGraphUpdated implements Emitter.
func (m *ConnectionManager) EmitGraphUpdated(namespace models.Channel, sessionID string, g *graph.CommunicationGraph) {
	m.broadcastJSON(ChannelKey(namespace, sessionID), GraphUpdatedEnvelope{
		Type:      TypeGraphUpdated,
		SessionID: sessionID,
		Graph:     g,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// EmitStudentStates implements Emitter.
func (m *ConnectionManager) EmitStudentStates(namespace models.Channel, sessionID string, students []*models.AgentProfile) {
	m.broadcastJSON(ChannelKey(namespace, sessionID), StudentStatesEnvelope{
		Type:      TypeStudentStates,
		SessionID: sessionID,
		Students:  students,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (m *ConnectionManager) broadcastJSON(channel string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal broadcast payload", "channel", channel, "error", err)
		return
	}
	m.Broadcast(channel, data)
}
