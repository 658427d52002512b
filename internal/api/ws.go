package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-stream/internal/eventbus"
	"github.com/annel0/voxel-stream/internal/logging"
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	clientBuffer = 1024
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// ActivationMessage сообщение потока /ws/chunks
type ActivationMessage struct {
	Type  string   `json:"type"`
	Chunk vec.Vec3 `json:"chunk"`
}

// Hub рассылает события активации чанков подключенным websocket-клиентам.
// Медленный клиент, переполнивший буфер, отключается.
type Hub struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uint64]*wsClient
	nextID  atomic.Uint64
	closed  bool

	sub  eventbus.Subscription
	sent atomic.Uint64
}

type wsClient struct {
	id   uint64
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub создает хаб без подписки
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[uint64]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Attach подписывает хаб на канал активаций диспетчера
func (h *Hub) Attach(d *eventbus.Dispatcher) {
	h.sub = d.Subscribe(h, eventbus.ChunkActivationUpdates)
}

// NotifyOf реализует eventbus.Observer
func (h *Hub) NotifyOf(_ context.Context, ev eventbus.Event) {
	if ev.Type != eventbus.SetChunkActive && ev.Type != eventbus.SetChunkInactive {
		return
	}
	msg, err := json.Marshal(ActivationMessage{Type: string(ev.Type), Chunk: ev.Chunk})
	if err != nil {
		return
	}

	h.mu.RLock()
	var slow []*wsClient
	for _, c := range h.clients {
		select {
		case c.send <- msg:
			h.sent.Add(1)
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("🐢 Клиент ws %d не успевает, отключаем", c.id)
		h.remove(c)
	}
}

// Clients число подключенных клиентов
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Sent число доставленных в буферы клиентов сообщений
func (h *Hub) Sent() uint64 {
	return h.sent.Load()
}

func (h *Hub) add() (*wsClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &wsClient{id: h.nextID.Add(1), send: make(chan []byte, clientBuffer)}
	h.clients[c.id] = c
	return c, true
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
}

// Close отписывает хаб и закрывает всех клиентов
func (h *Hub) Close() {
	if h.sub != nil {
		h.sub.Unsubscribe()
	}
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[uint64]*wsClient)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// Handler апгрейдит запрос до websocket и пишет клиенту события активации
func (h *Hub) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			h.logger.Debug("Не удалось открыть ws: %v", err)
			return
		}
		defer conn.Close()

		c, ok := h.add()
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		}
		h.logger.Info("🔌 Клиент ws %d подключен", c.id)
		defer h.logger.Info("🔌 Клиент ws %d отключен", c.id)

		// Читатель нужен только для контрольных кадров и обнаружения закрытия
		readerDone := make(chan struct{})
		go func() {
			defer close(readerDone)
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(readTimeout))
			})
			for {
				_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingInterval)
		defer ping.Stop()
		defer h.remove(c)

		for {
			select {
			case msg, ok := <-c.send:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			case <-readerDone:
				return
			}
		}
	}
}
