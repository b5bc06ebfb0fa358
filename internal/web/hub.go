package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local dashboard only
	},
}

const writeWait = 5 * time.Second

// Event is one message on the live stream.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type client struct {
	send chan Event
}

// Hub fans events out to websocket clients. Broadcast never blocks; slow
// clients are dropped.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Event
	register   chan *client
	unregister chan *client
	done       chan struct{}
	greeting   func() []Event
}

// NewHub creates a hub. greeting, if set, supplies the events a new client
// receives on connect.
func NewHub(greeting func() []Event) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Event, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		greeting:   greeting,
	}
}

// Run serves the hub until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case event := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- event:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// Broadcast queues event for all clients, dropping it if the hub is backed up.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		log.Printf("web: hub backed up, dropped %s event", event.Type)
	}
}

// HandleConnection upgrades the request and streams events until either
// side goes away.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("web: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	cl := &client{send: make(chan Event, 16)}
	if h.greeting != nil {
		for _, ev := range h.greeting() {
			cl.send <- ev
		}
	}

	select {
	case h.register <- cl:
	case <-h.done:
		return
	case <-c.Request.Context().Done():
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-cl.send:
			if !ok {
				conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("web: write failed: %v", err)
				h.drop(cl)
				return
			}
		case <-closed:
			h.drop(cl)
			return
		}
	}
}

func (h *Hub) drop(cl *client) {
	select {
	case h.unregister <- cl:
	case <-h.done:
	}
}
