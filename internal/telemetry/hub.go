package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/paphko/habpanelviewer/internal/command"
	"github.com/paphko/habpanelviewer/internal/config"
)

// Event types.
const (
	EventReady           = "ready"
	EventHeartbeat       = "heartbeat"
	EventCommandStarted  = "commandStarted"
	EventCommandFinished = "commandFinished"
	EventCommandFailed   = "commandFailed"
)

// Event represents a telemetry event with SSE formatting.
type Event struct {
	ID      int64                  `json:"id,omitempty"`
	Type    string                 `json:"type"`
	Data    map[string]interface{} `json:"data"`
	Command string                 `json:"command,omitempty"`
}

// Client represents an SSE client connection.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Request *http.Request
	Context context.Context
	Cancel  context.CancelFunc
	LastID  int64
	Command string // Only events for this command name; empty for all
	Events  chan Event
	once    sync.Once
	mu      sync.Mutex // Protect Writer access
}

// Hub manages SSE telemetry distribution.
//
// Lock order: h.mu before EventBuffer.mu. Client channels are closed once
// through Client.once.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	nextID  int64      // Monotonic event id, accessed atomically
	seqMu   sync.Mutex // Keeps buffer order equal to id order

	buffer *EventBuffer
	config config.TelemetryConfig

	// Ready returns the snapshot sent to new clients; nil sends an empty one
	ready func() map[string]interface{}

	heartbeatTicker *time.Ticker
	stopHeartbeat   chan struct{}

	dropped atomic.Int64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub creates a new telemetry hub with the specified configuration.
func NewHub(cfg config.TelemetryConfig) *Hub {
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 50
	}
	if cfg.ClientQueueSize <= 0 {
		cfg.ClientQueueSize = 100
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	return &Hub{
		clients: make(map[string]*Client),
		buffer:  NewEventBuffer(cfg.EventBufferSize),
		config:  cfg,
		done:    make(chan struct{}),
	}
}

// SetReadySnapshot sets the function producing the ready event payload.
func (h *Hub) SetReadySnapshot(fn func() map[string]interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = fn
}

// Notify implements command.Reporter. It never blocks on slow clients.
func (h *Hub) Notify(snap command.Snapshot) {
	typ := eventType(snap.State)
	if typ == "" {
		return
	}
	h.Publish(Event{
		Type:    typ,
		Command: snap.Name,
		Data:    snapshotData(snap),
	})
}

// Subscribe handles SSE client subscription with Last-Event-ID resume
// support. It blocks until the client disconnects or the hub stops.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	select {
	case <-h.done:
		return fmt.Errorf("telemetry hub stopped")
	default:
	}

	clientCtx, cancel := context.WithCancel(ctx)

	// Parse Last-Event-ID header for resume
	lastEventID := int64(0)
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if id, err := strconv.ParseInt(lastIDStr, 10, 64); err == nil {
			lastEventID = id
		}
	}

	client := &Client{
		ID:      uuid.NewString(),
		Writer:  w,
		Request: r,
		Context: clientCtx,
		Cancel:  cancel,
		LastID:  lastEventID,
		Command: r.URL.Query().Get("command"),
		Events:  make(chan Event, h.config.ClientQueueSize),
	}

	if err := h.sendReadyEvent(client); err != nil {
		cancel()
		return fmt.Errorf("failed to send ready event: %w", err)
	}

	// Register before replaying so no event falls between replay and live delivery
	h.mu.Lock()
	h.clients[client.ID] = client
	if h.heartbeatTicker == nil {
		h.startHeartbeat()
	}
	h.mu.Unlock()

	if lastEventID > 0 {
		if err := h.replayEvents(client, lastEventID); err != nil {
			h.unregisterClient(client.ID)
			return fmt.Errorf("failed to replay events: %w", err)
		}
	}

	h.handleClient(client)
	return nil
}

// Publish assigns an id to event, buffers command events, and delivers it to
// every matching client. Clients whose queue is full miss the event.
func (h *Hub) Publish(event Event) {
	select {
	case <-h.done:
		return
	default:
	}

	h.seqMu.Lock()
	if event.ID == 0 {
		event.ID = atomic.AddInt64(&h.nextID, 1)
	}
	if event.Type != EventHeartbeat {
		h.buffer.AddEvent(event)
	}
	h.seqMu.Unlock()

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if !client.wants(event) {
			continue
		}
		select {
		case <-client.Context.Done():
		case client.Events <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped returns how many client deliveries were skipped because a client
// queue was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// wants reports whether the client's filter admits event.
func (c *Client) wants(event Event) bool {
	if c.Command == "" || event.Command == "" {
		return true
	}
	return c.Command == event.Command
}

// sendReadyEvent sends the initial ready event to a client.
func (h *Hub) sendReadyEvent(client *Client) error {
	h.mu.RLock()
	ready := h.ready
	h.mu.RUnlock()

	snapshot := map[string]interface{}{}
	if ready != nil {
		snapshot = ready()
	}

	return h.sendEventToClient(client, Event{
		Type: EventReady,
		Data: map[string]interface{}{
			"snapshot": snapshot,
			"lastId":   atomic.LoadInt64(&h.nextID),
		},
	})
}

// replayEvents replays buffered events after lastEventID.
func (h *Hub) replayEvents(client *Client, lastEventID int64) error {
	for _, event := range h.buffer.GetEventsAfter(lastEventID) {
		if !client.wants(event) {
			continue
		}
		if err := h.sendEventToClient(client, event); err != nil {
			return err
		}
		client.LastID = event.ID
	}
	return nil
}

// sendEventToClient sends a single event to a client via SSE.
func (h *Hub) sendEventToClient(client *Client, event Event) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if event.ID > 0 {
		if _, err := fmt.Fprintf(client.Writer, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(client.Writer, "event: %s\n", event.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(client.Writer, "data: %s\n\n", string(data)); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}

	if flusher, ok := client.Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	return nil
}

// handleClient delivers queued events until the client goes away.
func (h *Hub) handleClient(client *Client) {
	defer func() {
		h.unregisterClient(client.ID)
		client.once.Do(func() {
			close(client.Events)
		})
	}()

	for {
		select {
		case <-client.Context.Done():
			return
		case <-h.done:
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			// Already delivered by replay
			if event.ID != 0 && event.ID <= client.LastID {
				continue
			}
			if err := h.sendEventToClient(client, event); err != nil {
				return
			}
		}
	}
}

// unregisterClient removes a client from the hub.
func (h *Hub) unregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.clients[clientID]
	if !exists {
		return
	}
	client.Cancel()
	delete(h.clients, clientID)

	// Stop heartbeat if no clients remain
	if len(h.clients) == 0 {
		h.stopHeartbeatLocked()
	}
}

// startHeartbeat starts the heartbeat ticker. Caller holds h.mu.
func (h *Hub) startHeartbeat() {
	h.heartbeatTicker = time.NewTicker(h.config.HeartbeatInterval)
	h.stopHeartbeat = make(chan struct{})

	ticker := h.heartbeatTicker
	stopChan := h.stopHeartbeat

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ticker.C:
				h.sendHeartbeat()
			case <-stopChan:
				return
			case <-h.done:
				return
			}
		}
	}()
}

// stopHeartbeatLocked stops the heartbeat goroutine. Caller holds h.mu.
func (h *Hub) stopHeartbeatLocked() {
	if h.heartbeatTicker != nil {
		h.heartbeatTicker.Stop()
		h.heartbeatTicker = nil
	}
	if h.stopHeartbeat != nil {
		close(h.stopHeartbeat)
		h.stopHeartbeat = nil
	}
}

// sendHeartbeat sends a heartbeat event to all clients.
func (h *Hub) sendHeartbeat() {
	h.Publish(Event{
		Type: EventHeartbeat,
		Data: map[string]interface{}{
			"ts": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// Stop disconnects all clients and stops the heartbeat. It is safe to call
// more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for _, client := range h.clients {
			client.Cancel()
		}
		h.stopHeartbeatLocked()
		h.mu.Unlock()

		done := make(chan struct{})
		go func() {
			h.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			// Goroutines may be stuck writing to a dead connection
		}
	})
}

// eventType maps a command state to its event type. Queued is never
// reported, since no transition leads into it.
func eventType(state command.State) string {
	switch state {
	case command.StateStarted:
		return EventCommandStarted
	case command.StateFinished:
		return EventCommandFinished
	case command.StateFailed:
		return EventCommandFailed
	default:
		return ""
	}
}

// snapshotData flattens a snapshot into event data.
func snapshotData(snap command.Snapshot) map[string]interface{} {
	data := map[string]interface{}{
		"commandId": snap.ID,
		"command":   snap.Name,
		"state":     snap.State.String(),
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
	}
	if snap.Issuer != "" {
		data["issuer"] = snap.Issuer
	}
	if snap.State.Terminal() {
		data["latencyMs"] = snap.Latency().Milliseconds()
	}
	if snap.Reason != "" {
		data["reason"] = snap.Reason
		data["kind"] = snap.Kind
	}
	if snap.Code != "" {
		data["code"] = snap.Code
	}
	return data
}

// EventBuffer maintains a circular buffer of recent events.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewEventBuffer creates a new event buffer with the specified capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// AddEvent adds an event to the buffer, evicting the oldest when full.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// GetEventsAfter returns events after the specified ID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}
	return result
}

// GetCapacity returns the buffer capacity.
func (b *EventBuffer) GetCapacity() int {
	return b.capacity
}

// GetSize returns the current buffer size.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

var _ command.Reporter = (*Hub)(nil)
