package mockserver

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gradpush/extrapoints/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	subscriberBuffer = 32
	writeWait        = 10 * time.Second
)

// hub fans application events out to websocket subscribers. A
// subscriber that falls behind loses events rather than blocking writes.
type hub struct {
	mu      sync.Mutex
	clients map[string]chan models.Event
	closed  bool
	logger  *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{clients: make(map[string]chan models.Event), logger: logger}
}

func (h *hub) subscribe() (string, <-chan models.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", nil, false
	}
	id := uuid.NewString()
	ch := make(chan models.Event, subscriberBuffer)
	h.clients[id] = ch
	return id, ch, true
}

func (h *hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(ch)
	}
}

func (h *hub) publish(event models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		select {
		case ch <- event:
		default:
			h.logger.Warn("event dropped for slow subscriber", "subscriber", id, "type", event.Type)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.clients {
		delete(h.clients, id)
		close(ch)
	}
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	c := claimsFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	id, events, ok := s.hub.subscribe()
	if !ok {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		return
	}
	defer s.hub.unsubscribe(id)

	s.logger.Info("event subscriber connected", "subscriber", id, "username", c.Username)

	// The reader only detects the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			s.logger.Info("event subscriber disconnected", "subscriber", id)
			return
		case event, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			// Students only see their own applications.
			if !c.Role.IsReviewer() && event.StudentID != c.StudentID {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Warn("failed to write event", "subscriber", id, "error", err)
				return
			}
		}
	}
}
