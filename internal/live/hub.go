// Package live fans mirrored location updates out to connected websocket
// clients, one subscription group per retreat.
package live

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// channelPattern matches the mirror's per-retreat update channels.
const channelPattern = "mirror:retreat:*:updates"

type Hub struct {
	redis   *redis.Client
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	RetreatID int64
	Send      chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[int64]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(retreatID int64) *Client {
	client := &Client{
		RetreatID: retreatID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[retreatID] == nil {
		h.clients[retreatID] = map[*Client]struct{}{}
	}
	h.clients[retreatID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if retreatClients, ok := h.clients[client.RetreatID]; ok {
		delete(retreatClients, client)
		if len(retreatClients) == 0 {
			delete(h.clients, client.RetreatID)
		}
	}
	close(client.Send)
}

// Broadcast delivers a payload to every client watching the retreat. Slow
// clients are skipped rather than blocking the fan out.
func (h *Hub) Broadcast(retreatID int64, payload []byte) {
	h.mu.RLock()
	clients := h.clients[retreatID]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	pubsub := h.redis.PSubscribe(context.Background(), channelPattern)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		retreatID, ok := retreatIDFromChannel(msg.Channel)
		if !ok {
			log.Printf("live: unparseable mirror channel %q", msg.Channel)
			continue
		}
		h.Broadcast(retreatID, []byte(msg.Payload))
	}
}

func retreatIDFromChannel(ch string) (int64, bool) {
	// mirror:retreat:{id}:updates
	const prefix = "mirror:retreat:"
	const suffix = ":updates"
	if !strings.HasPrefix(ch, prefix) || !strings.HasSuffix(ch, suffix) {
		return 0, false
	}
	id, err := strconv.ParseInt(ch[len(prefix):len(ch)-len(suffix)], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
