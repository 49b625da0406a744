package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/mediagrab/api/internal/model"
)

const (
	sendBuffer   = 64
	pingInterval = 30 * time.Second

	// DefaultTerminalRetention is how long a finished job's last message is
	// replayed to late subscribers.
	DefaultTerminalRetention = 10 * time.Minute
)

// Client is one subscriber to a job's progress
type Client struct {
	JobID string
	Send  chan []byte
}

// Hub fans job updates out to subscribers. The latest message per job is
// kept so late subscribers see the current state immediately.
type Hub struct {
	// Clients grouped by job ID
	clients map[string]map[*Client]bool

	// Last message sent per job
	last map[string][]byte

	// Terminal messages are dropped from last after this long
	terminalRetention time.Duration

	mu sync.Mutex
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithTerminalRetention sets how long completion and error messages are kept.
func WithTerminalRetention(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.terminalRetention = d
		}
	}
}

// NewHub creates a new Hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:           make(map[string]map[*Client]bool),
		last:              make(map[string][]byte),
		terminalRetention: DefaultTerminalRetention,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a client for jobID and queues the job's last message.
func (h *Hub) Subscribe(jobID string) *Client {
	client := &Client{JobID: jobID, Send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[jobID] == nil {
		h.clients[jobID] = make(map[*Client]bool)
	}
	h.clients[jobID][client] = true
	if msg, ok := h.last[jobID]; ok {
		client.Send <- msg
	}
	return client
}

// Unsubscribe removes a client and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(client)
}

func (h *Hub) drop(client *Client) {
	clients, ok := h.clients[client.JobID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.JobID)
	}
}

// Subscribers returns the number of clients watching jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[jobID])
}

// Forget drops the stored state of a job that has been cleaned up.
func (h *Hub) Forget(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.last, jobID)
}

func (h *Hub) publish(jobID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[jobID] = data
	for client := range h.clients[jobID] {
		select {
		case client.Send <- data:
		default:
			// slow consumer
			h.drop(client)
		}
	}
}

func (h *Hub) marshalAndPublish(jobID string, v interface{}, terminal bool) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to marshal websocket message for job %s: %v", jobID, err)
		return
	}
	h.publish(jobID, data)
	if terminal {
		time.AfterFunc(h.terminalRetention, func() { h.expire(jobID, data) })
	}
}

// expire drops the stored state of jobID if data is still its last message.
func (h *Hub) expire(jobID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.last[jobID]; ok && &last[0] == &data[0] {
		delete(h.last, jobID)
	}
}

// BroadcastProgress sends a progress update to all job subscribers
func (h *Hub) BroadcastProgress(jobID string, progress int, status model.JobStatus, step string) {
	h.marshalAndPublish(jobID, model.WSProgressMessage{
		Type:        model.WSMessageTypeProgress,
		JobID:       jobID,
		Progress:    progress,
		Status:      status,
		CurrentStep: step,
	}, false)
}

// BroadcastComplete sends the download result to all job subscribers
func (h *Hub) BroadcastComplete(jobID string, result *model.DownloadResponse) {
	h.marshalAndPublish(jobID, model.WSCompleteMessage{
		Type:   model.WSMessageTypeComplete,
		JobID:  jobID,
		Result: result,
	}, true)
}

// BroadcastError sends a failure to all job subscribers
func (h *Hub) BroadcastError(jobID string, code, message string) {
	h.marshalAndPublish(jobID, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	}, true)
}

// HandleConnection serves one websocket subscriber until it disconnects
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	client := h.Subscribe(jobID)
	defer h.Unsubscribe(client)

	done := make(chan struct{})
	defer close(done)

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return c.WriteMessage(messageType, data)
	}

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = write(websocket.CloseMessage, []byte{})
					return
				}
				if err := write(websocket.TextMessage, message); err != nil {
					return
				}
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on job %s: %v", jobID, err)
			}
			return
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			if err := write(websocket.TextMessage, pong); err != nil {
				return
			}
		}
	}
}
