package webchat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/novahub/nova-gateway/internal/channel"
	"github.com/novahub/nova-gateway/internal/logging"
)

// WebChatAdapter serves a WebSocket endpoint for browser clients. Each
// connection is one user; replies go back over the same socket.
type WebChatAdapter struct {
	port     int
	incoming chan *channel.Message
	upgrader websocket.Upgrader
	logger   *slog.Logger

	connMux sync.RWMutex
	conns   map[string]*websocket.Conn
}

type WSMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	UserID  string `json:"user_id,omitempty"`
}

func NewWebChatAdapter(port int) *WebChatAdapter {
	return &WebChatAdapter{
		port:     port,
		incoming: make(chan *channel.Message, 100),
		upgrader: websocket.Upgrader{
			// TODO: restrict origins once the web client's host is fixed
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:  make(map[string]*websocket.Conn),
		logger: logging.WithComponent("webchat"),
	}
}

func (w *WebChatAdapter) Name() string {
	return "webchat"
}

func (w *WebChatAdapter) IsEnabled() bool {
	return w.port > 0
}

func (w *WebChatAdapter) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", w.wsHandler)
	server := &http.Server{Addr: ":" + strconv.Itoa(w.port), Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			w.logger.Error("webchat server stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	return nil
}

func (w *WebChatAdapter) Stop() error {
	close(w.incoming)
	return nil
}

func (w *WebChatAdapter) SendMessage(userID string, resp *channel.Response) error {
	w.connMux.RLock()
	conn, exists := w.conns[userID]
	w.connMux.RUnlock()
	if !exists {
		// client disconnected before the reply was ready
		return nil
	}

	data, err := json.Marshal(WSMessage{Type: "message", Content: resp.Content})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebChatAdapter) Incoming() <-chan *channel.Message {
	return w.incoming
}

func (w *WebChatAdapter) wsHandler(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anon-" + uuid.NewString()
	}

	w.connMux.Lock()
	w.conns[userID] = conn
	w.connMux.Unlock()

	defer func() {
		w.connMux.Lock()
		delete(w.conns, userID)
		w.connMux.Unlock()
		conn.Close()
	}()

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "message" {
			continue
		}
		w.incoming <- &channel.Message{
			ID:        uuid.NewString(),
			Channel:   "webchat",
			UserID:    userID,
			Content:   msg.Content,
			Timestamp: time.Now().Unix(),
		}
	}
}
