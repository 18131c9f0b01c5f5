package live

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mensahub/mensa/internal/config"
)

// EventType represents the type of live event
type EventType string

const (
	EventEntityCreated EventType = "entity_created"
	EventEntityUpdated EventType = "entity_updated"
	EventEntityDeleted EventType = "entity_deleted"

	EventMealPlanGenerated EventType = "meal_plan_generated"
	EventCatalogImported   EventType = "catalog_imported"
	EventLowStock          EventType = "low_stock"
	EventHeartbeat         EventType = "heartbeat"
)

// Event represents a live event pushed to connected clients. The meal-plan
// board listens on these to keep drag-and-drop state in sync.
type Event struct {
	Type     EventType `json:"type"`
	Resource string    `json:"resource,omitempty"`
	Data     any       `json:"data,omitempty"`
}

// Client represents a connected websocket client
type Client struct {
	ID       string
	TenantID string
	Messages chan []byte
}

// Broker manages websocket client connections and event broadcasting.
// Events carry a tenant id; a client only receives its own tenant's events.
type Broker struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan tenantEvent
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

type tenantEvent struct {
	tenantID string
	event    Event
}

// NewBroker creates a new live broker
func NewBroker() *Broker {
	b := &Broker{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan tenantEvent, 100),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API is header-authenticated, not cookie-authenticated,
			// so cross-origin upgrades carry no ambient credentials.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	go b.run()
	return b
}

// run handles client registration and event broadcasting
func (b *Broker) run() {
	heartbeatTicker := time.NewTicker(config.GetTimeouts().WebSocketPing)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-b.done:
			b.mu.Lock()
			for _, client := range b.clients {
				close(client.Messages)
			}
			b.clients = make(map[string]*Client)
			b.mu.Unlock()
			log.Debug().Msg("Live broker stopped")
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client.ID] = client
			total := len(b.clients)
			b.mu.Unlock()
			log.Debug().Str("client_id", client.ID).Str("tenant", client.TenantID).Int("total_clients", total).Msg("Live client connected")

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client.ID]; ok {
				delete(b.clients, client.ID)
				close(client.Messages)
			}
			total := len(b.clients)
			b.mu.Unlock()
			log.Debug().Str("client_id", client.ID).Int("total_clients", total).Msg("Live client disconnected")

		case te := <-b.broadcast:
			data, err := json.Marshal(te.event)
			if err != nil {
				log.Error().Err(err).Msg("Failed to marshal live event")
				continue
			}

			b.mu.RLock()
			for _, client := range b.clients {
				if te.tenantID != "" && client.TenantID != te.tenantID {
					continue
				}
				select {
				case client.Messages <- data:
				default:
					// Client buffer full, skip this message
					log.Warn().Str("client_id", client.ID).Msg("Live client buffer full, dropping message")
				}
			}
			b.mu.RUnlock()

		case <-heartbeatTicker.C:
			b.Broadcast("", Event{Type: EventHeartbeat, Data: map[string]any{"time": time.Now().Unix()}})
		}
	}
}

// Broadcast sends an event to every client of the given tenant. An empty
// tenant id reaches all clients.
func (b *Broker) Broadcast(tenantID string, event Event) {
	select {
	case b.broadcast <- tenantEvent{tenantID: tenantID, event: event}:
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("Live broadcast channel full, dropping event")
	}
}

// Stop gracefully shuts down the broker
func (b *Broker) Stop() {
	close(b.done)
}

// addClient hands a client to the run loop. Returns false when the broker
// has already stopped, so late connections fail instead of blocking.
func (b *Broker) addClient(client *Client) bool {
	select {
	case b.register <- client:
		return true
	case <-b.done:
		return false
	}
}

// removeClient is the counterpart of addClient; a stopped broker has
// already closed every client channel.
func (b *Broker) removeClient(client *Client) {
	select {
	case b.unregister <- client:
	case <-b.done:
	}
}

// ServeHTTP upgrades the connection and streams the tenant's events until
// the client goes away.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request, tenantID string) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	client := &Client{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Messages: make(chan []byte, 32),
	}

	if !b.addClient(client) {
		return
	}
	defer b.removeClient(client)

	// Discard client frames; the stream is server-to-client only. The read
	// loop also surfaces close frames.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	welcome, _ := json.Marshal(Event{Type: "connected", Data: map[string]any{"client_id": client.ID}})
	if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-client.Messages:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected clients
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
