package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"

	"marketcraft/internal/engine"
	"marketcraft/internal/infra"
)

// Sparkline dimensions served over /spark/{id}.png.
const (
	sparkWidth  = 180
	sparkHeight = 48
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server pushes full market snapshots to WebSocket clients. It subscribes
// to the engine's change notifications and serializes the snapshot once
// per change. Slow clients drop frames instead of blocking the fan-out;
// they catch up on the next change.
type Server struct {
	market *engine.Market
	log    *slog.Logger

	mu      sync.Mutex
	clients map[*client]bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewServer(market *engine.Market, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		market:  market,
		log:     log,
		clients: make(map[*client]bool),
	}
}

// Start serves /ws on addr until ctx is done. It blocks; run it in its
// own goroutine.
func (s *Server) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("GET /spark/{id}", s.serveSparkline)
	srv := &http.Server{Addr: addr, Handler: mux}

	token := s.market.Subscribe(s.broadcastSnapshot)

	go func() {
		<-ctx.Done()
		s.market.Unsubscribe(token)
		srv.Shutdown(context.Background())
		s.closeAll()
	}()

	s.log.Info("broadcast server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) broadcastSnapshot() {
	msg, err := json.Marshal(s.market.Snapshot())
	if err != nil {
		s.log.Error("failed to marshal snapshot", slog.Any("error", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			// Slow client, drop this frame.
		}
	}
}

// serveSparkline renders the instrument's price history as a PNG.
func (s *Server) serveSparkline(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(r.PathValue("id"), ".png")

	history, err := s.market.History(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	img, err := infra.RenderSparkline(history, sparkWidth, sparkHeight)
	if err != nil {
		http.Error(w, "no history", http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		s.log.Warn("failed to encode sparkline", slog.String("stock", id), slog.Any("error", err))
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 16)}

	// New clients get the current snapshot before any live updates.
	msg, err := json.Marshal(s.market.Snapshot())
	if err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			return
		}
	}

	s.mu.Lock()
	s.clients[c] = true
	total := len(s.clients)
	s.mu.Unlock()
	s.log.Info("broadcast client connected", slog.Int("total", total))

	go c.writePump()
	s.readPump(c)
}

func (s *Server) readPump(c *client) {
	defer func() {
		s.drop(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
		s.log.Info("broadcast client disconnected", slog.Int("total", len(s.clients)))
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}
