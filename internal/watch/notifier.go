package watch

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	terrors "github.com/apigee/apigee-templater/internal/errors"
)

// Event types sent to clients.
const (
	EventBuilding = "building"
	EventSuccess  = "success"
	EventError    = "error"
)

// Notifier broadcasts generation events to WebSocket clients
type Notifier struct {
	connections map[*websocket.Conn]bool
	broadcast   chan *Event
	register    chan *websocket.Conn
	unregister  chan *websocket.Conn
	done        chan struct{}
	closeOnce   sync.Once
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// Event is one message sent to clients
type Event struct {
	Type      string     `json:"type"`
	Timestamp int64      `json:"timestamp"`
	Files     []string   `json:"files,omitempty"`
	Bundles   []string   `json:"bundles,omitempty"`
	Duration  float64    `json:"duration,omitempty"` // Milliseconds
	Error     *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo describes a failed generation
type ErrorInfo struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Code    string `json:"code,omitempty"`
	Entity  string `json:"entity,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// NewErrorInfo describes err raised while generating file
func NewErrorInfo(file string, err error) *ErrorInfo {
	info := &ErrorInfo{Message: err.Error(), File: file}
	var te *terrors.TemplaterError
	if errors.As(err, &te) {
		info.Code = string(te.Code)
		info.Entity = te.Entity
		info.Stage = te.Stage
	}
	return info
}

// NewNotifier creates a notifier and starts its broadcast loop
func NewNotifier(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{
		connections: make(map[*websocket.Conn]bool),
		broadcast:   make(chan *Event, 256),
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		done:        make(chan struct{}),
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				// localhost only
				return strings.HasPrefix(origin, "http://localhost") ||
					strings.HasPrefix(origin, "https://localhost") ||
					strings.HasPrefix(origin, "http://127.0.0.1") ||
					strings.HasPrefix(origin, "https://127.0.0.1")
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	go n.run()

	return n
}

func (n *Notifier) run() {
	for {
		select {
		case <-n.done:
			return

		case conn := <-n.register:
			n.mutex.Lock()
			n.connections[conn] = true
			count := len(n.connections)
			n.mutex.Unlock()
			n.logger.Debug("client connected", zap.Int("clients", count))

		case conn := <-n.unregister:
			n.mutex.Lock()
			if _, ok := n.connections[conn]; ok {
				delete(n.connections, conn)
				conn.Close()
			}
			count := len(n.connections)
			n.mutex.Unlock()
			n.logger.Debug("client disconnected", zap.Int("clients", count))

		case event := <-n.broadcast:
			n.sendToAll(event)
		}
	}
}

func (n *Notifier) sendToAll(event *Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to marshal event", zap.Error(err))
		return
	}

	n.mutex.RLock()
	var failed []*websocket.Conn
	for conn := range n.connections {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			n.logger.Debug("failed to send event", zap.Error(err))
			failed = append(failed, conn)
		}
	}
	n.mutex.RUnlock()

	if len(failed) > 0 {
		n.mutex.Lock()
		for _, conn := range failed {
			if _, ok := n.connections[conn]; ok {
				conn.Close()
				delete(n.connections, conn)
			}
		}
		n.mutex.Unlock()
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the client
func (n *Notifier) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	select {
	case n.register <- conn:
	case <-n.done:
		conn.Close()
		return
	}

	go n.readMessages(conn)
}

// readMessages keeps the connection alive until the client goes away
func (n *Notifier) readMessages(conn *websocket.Conn) {
	defer func() {
		select {
		case n.unregister <- conn:
		case <-n.done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				n.logger.Debug("websocket error", zap.Error(err))
			}
			return
		}
	}
}

func (n *Notifier) send(event *Event) {
	if n == nil {
		return
	}
	event.Timestamp = time.Now().Unix()
	select {
	case n.broadcast <- event:
	case <-n.done:
	}
}

// NotifyBuilding announces that files changed and generation started
func (n *Notifier) NotifyBuilding(files []string) {
	n.send(&Event{Type: EventBuilding, Files: files})
}

// NotifySuccess announces the bundles written by a generation
func (n *Notifier) NotifySuccess(bundles []string, duration time.Duration) {
	n.send(&Event{
		Type:     EventSuccess,
		Bundles:  bundles,
		Duration: float64(duration.Milliseconds()),
	})
}

// NotifyError announces a failed generation
func (n *Notifier) NotifyError(info *ErrorInfo) {
	n.send(&Event{Type: EventError, Error: info})
}

// ConnectionCount returns the number of active connections
func (n *Notifier) ConnectionCount() int {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return len(n.connections)
}

// Close closes all connections and stops the broadcast loop
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		close(n.done)

		n.mutex.Lock()
		defer n.mutex.Unlock()
		for conn := range n.connections {
			conn.Close()
		}
		n.connections = make(map[*websocket.Conn]bool)
	})
}
