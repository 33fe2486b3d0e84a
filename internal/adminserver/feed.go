package adminserver

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/terminal-bench/energymarket/shared/model"
)

// Feed pushes every stored pollution batch to connected WebSocket clients.
type Feed struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[uuid.UUID]*feedClient
	closed  bool
}

type feedClient struct {
	conn *websocket.Conn
	send chan model.PollutionBatch
	done chan struct{}
}

// NewFeed builds an empty feed.
func NewFeed(log zerolog.Logger) *Feed {
	return &Feed{
		log: log.With().Str("component", "pollution_feed").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[uuid.UUID]*feedClient),
	}
}

// Serve upgrades the request and streams batches until the client leaves.
func (f *Feed) Serve(c *gin.Context) {
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &feedClient{
		conn: conn,
		send: make(chan model.PollutionBatch, 16),
		done: make(chan struct{}),
	}
	id := uuid.New()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return
	}
	f.clients[id] = client
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.clients, id)
		f.mu.Unlock()
		conn.Close()
	}()

	// Reader only watches for the client going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(client.done)
				return
			}
		}
	}()

	for {
		select {
		case batch := <-client.send:
			if err := conn.WriteJSON(batch); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}

// Broadcast queues a batch for every connected client. Slow clients drop
// batches rather than stalling the subscriber.
func (f *Feed) Broadcast(batch model.PollutionBatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, client := range f.clients {
		select {
		case client.send <- batch:
		case <-client.done:
		default:
		}
	}
}

// Close disconnects every client and refuses new ones.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, client := range f.clients {
		client.conn.Close()
		delete(f.clients, id)
	}
}
