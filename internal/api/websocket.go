package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for local dashboard
	},
}

// Hub maintains the set of active websocket clients and broadcasts messages.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once
	mutex     sync.Mutex
	log       zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		clients:   make(map[*websocket.Conn]bool),
		log:       log,
	}
}

// Run delivers queued messages until Close is called
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) deliver(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		// Set write deadline to prevent blocked clients from hanging the hub
		_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			h.log.Warn().Err(err).Msg("websocket write failed")
			client.Close()
			delete(h.clients, client)
		}
	}
}

// Close stops Run and disconnects every client. The broadcast queue stays
// open, so alerts raised during shutdown are discarded instead of panicking.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

func (h *Hub) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Subscribe handles incoming websocket connections
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.mutex.Lock()
	if h.closed() {
		h.mutex.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()
	h.log.Info().Int("clients", total).Msg("websocket client connected")

	// We only push down, but must read to notice disconnects
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			total := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			h.log.Info().Int("clients", total).Msg("websocket client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.Warn().Err(err).Msg("websocket read failed")
				}
				return
			}
		}
	}()
}

// Broadcast queues data for every connected client. Messages are dropped
// when the queue is full.
func (h *Hub) Broadcast(data []byte) {
	if h.closed() {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn().Msg("websocket broadcast queue full, dropping message")
	}
}

// ClusterAlert is the stream payload for a suspicious cluster
type ClusterAlert struct {
	Address     string   `json:"address"`
	ClusterID   string   `json:"clusterId"`
	Score       float64  `json:"score"`
	Description string   `json:"description"`
	Wallets     []string `json:"wallets"`
	NumTxs      int      `json:"numTxs"`
	Timestamp   string   `json:"timestamp"`
}

// AlertSuspiciousCluster broadcasts a suspicious cluster found for address
func (h *Hub) AlertSuspiciousCluster(address string, cluster models.Cluster) {
	payload := gin.H{
		"type": "suspicious_cluster",
		"alert": ClusterAlert{
			Address:     address,
			ClusterID:   cluster.ID,
			Score:       cluster.Score,
			Description: cluster.Description,
			Wallets:     cluster.Wallets,
			NumTxs:      len(cluster.Transactions),
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		},
	}
	alertBytes, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("encode cluster alert")
		return
	}
	h.Broadcast(alertBytes)
	h.log.Info().Str("address", address).Str("cluster", cluster.ID).Float64("score", cluster.Score).
		Msg("suspicious cluster alert")
}
