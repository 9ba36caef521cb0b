package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/types"
	"nhooyr.io/websocket"
)

// DefaultPort is the local port the extension connects to.
const DefaultPort = 19292

// DefaultCallTimeout bounds each command round trip to the extension.
const DefaultCallTimeout = 5 * time.Second

var (
	// ErrNotConnected is returned when no extension is connected.
	ErrNotConnected = errors.New("extension not connected")
	// ErrEventsFull is logged when an event is dropped because nothing is
	// draining Messages fast enough.
	ErrEventsFull = errors.New("event buffer full")
	// ErrGone is types.ErrGone, returned when the extension reports a
	// missing tab or group.
	ErrGone = types.ErrGone
)

// IncomingMsg is a message from the extension: either an event (Type set)
// or the response to a command (ID set).
type IncomingMsg struct {
	Type       string          `json:"type,omitempty"`
	Tab        json.RawMessage `json:"tab,omitempty"`
	Tabs       json.RawMessage `json:"tabs,omitempty"`
	Groups     json.RawMessage `json:"groups,omitempty"`
	TabID      int             `json:"tabId,omitempty"`
	WindowID   int             `json:"windowId,omitempty"`
	WindowType string          `json:"windowType,omitempty"`
	Status     string          `json:"status,omitempty"`
	// Command response fields
	ID      string `json:"id,omitempty"`
	OK      *bool  `json:"ok,omitempty"`
	Error   string `json:"error,omitempty"`
	GroupID int    `json:"groupId,omitempty"`
}

// OutgoingMsg is a command to the extension. Pointer fields are omitted when
// nil so that zero indices and ids can still be sent.
type OutgoingMsg struct {
	ID        string  `json:"id"`
	Action    string  `json:"action"`
	TabID     int     `json:"tabId,omitempty"`
	TabIDs    []int   `json:"tabIds,omitempty"`
	GroupID   *int    `json:"groupId,omitempty"`
	WindowID  int     `json:"windowId,omitempty"`
	Index     *int    `json:"index,omitempty"`
	Title     *string `json:"title,omitempty"`
	Color     *string `json:"color,omitempty"`
	Collapsed *bool   `json:"collapsed,omitempty"`
	Pinned    *bool   `json:"pinned,omitempty"`
}

type pendingCall struct {
	conn *websocket.Conn
	ch   chan IncomingMsg
}

// Server manages the WebSocket connection to the extension and doubles as
// the tab/group host for the organizer.
type Server struct {
	port    int
	timeout time.Duration
	msgs    chan IncomingMsg
	control http.Handler

	mu      sync.Mutex
	conn    *websocket.Conn
	connCtx context.Context
	pending map[string]pendingCall
}

// New creates a new Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port:    port,
		timeout: DefaultCallTimeout,
		msgs:    make(chan IncomingMsg, 64),
		pending: make(map[string]pendingCall),
	}
}

// SetCallTimeout changes the per-command timeout. Call before serving.
func (s *Server) SetCallTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// SetControl mounts h under /control/ on the listener. Call before serving.
func (s *Server) SetControl(h http.Handler) {
	s.control = h
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Messages returns the channel of events from the extension.
func (s *Server) Messages() <-chan IncomingMsg {
	return s.msgs
}

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send writes a command without waiting for a response.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn := s.conn
	ctx := s.connCtx
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return write(ctx, conn, msg)
}

func write(ctx context.Context, conn *websocket.Conn, msg OutgoingMsg) error {
	applog.Info("ws.send", "action", msg.Action, "id", msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Call sends a command and waits for the matching response. A response with
// ok=false is turned into an error; errors naming a missing tab or group wrap
// ErrGone.
func (s *Server) Call(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	msg.ID = uuid.NewString()
	ch := make(chan IncomingMsg, 1)

	s.mu.Lock()
	conn := s.conn
	connCtx := s.connCtx
	if conn == nil {
		s.mu.Unlock()
		return IncomingMsg{}, fmt.Errorf("%s: %w", msg.Action, ErrNotConnected)
	}
	s.pending[msg.ID] = pendingCall{conn: conn, ch: ch}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, msg.ID)
		s.mu.Unlock()
	}()

	if err := write(connCtx, conn, msg); err != nil {
		return IncomingMsg{}, fmt.Errorf("%s: send: %w", msg.Action, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	select {
	case resp, ok := <-ch:
		if !ok {
			return IncomingMsg{}, fmt.Errorf("%s: %w", msg.Action, ErrNotConnected)
		}
		if resp.OK != nil && !*resp.OK {
			return resp, responseError(msg.Action, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return IncomingMsg{}, fmt.Errorf("%s: %w", msg.Action, ctx.Err())
	}
}

// goneMarkers are substrings of browser errors for vanished tabs and groups.
var goneMarkers = []string{"no tab with id", "no group with id", "tab not found", "group not found"}

func responseError(action, text string) error {
	lower := strings.ToLower(text)
	for _, m := range goneMarkers {
		if strings.Contains(lower, m) {
			return fmt.Errorf("%s: %s: %w", action, text, ErrGone)
		}
	}
	if text == "" {
		text = "extension reported failure"
	}
	return fmt.Errorf("%s: %s", action, text)
}

// deliver routes a response to its waiting Call. It reports false when no
// call is waiting for msg.ID.
func (s *Server) deliver(msg IncomingMsg) bool {
	s.mu.Lock()
	p, ok := s.pending[msg.ID]
	if ok {
		delete(s.pending, msg.ID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	p.ch <- msg
	return true
}

// failPending aborts every call waiting on conn.
func (s *Server) failPending(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.pending {
		if p.conn == conn {
			close(p.ch)
			delete(s.pending, id)
		}
	}
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(16 << 20) // 16 MB, a full tab query can be large

		ctx := r.Context()
		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.CloseNow()
		}
		s.conn = conn
		s.connCtx = ctx
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.connCtx = nil
			}
			s.mu.Unlock()
			s.failPending(conn)
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			if msg.ID != "" && s.deliver(msg) {
				continue
			}
			if msg.Type == "" {
				applog.Info("ws.orphan", "id", msg.ID)
				continue
			}
			applog.Info("ws.recv", "type", msg.Type, "tab", msg.TabID)
			select {
			case s.msgs <- msg:
			default:
				applog.Warn("ws.dropped", ErrEventsFull, "type", msg.Type, "tab", msg.TabID)
			}
		}
	})
}

// ListenAndServe starts the WebSocket server on the configured port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	if s.control != nil {
		mux.Handle("/control/", s.control)
	}
	mux.Handle("/", s.Handler())

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
