package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn is one accepted connection on a WSServer.
type WSConn struct {
	*websocket.Conn
	// Token is the token query parameter sent by the client.
	Token string
	mu    sync.Mutex
}

// Send writes v as a JSON text message.
func (c *WSConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.WriteJSON(v)
}

// CloseWith sends a close frame with code and closes the connection.
func (c *WSConn) CloseWith(code int, reason string) {
	c.mu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.mu.Unlock()
	c.Close()
}

// Receive reads the next JSON message into v within timeout.
func (c *WSConn) Receive(v any, timeout time.Duration) error {
	_ = c.SetReadDeadline(time.Now().Add(timeout))
	return c.ReadJSON(v)
}

// WSServer accepts websocket upgrades on /api/v1/ws and hands each
// connection to the test through Conns.
type WSServer struct {
	Server *httptest.Server
	Conns  chan *WSConn

	mu       sync.Mutex
	requests int
	accepted int
	reject   bool
	upgrader websocket.Upgrader
}

// NewWSServer starts a WSServer that is closed by t.Cleanup.
func NewWSServer(t interface{ Cleanup(func()) }) *WSServer {
	s := &WSServer{
		Conns: make(chan *WSConn, 16),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ws", s.handle)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

// SetReject makes the server refuse upgrades with 503 while on is true.
func (s *WSServer) SetReject(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = on
}

// Accepted returns the number of connections upgraded so far.
func (s *WSServer) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// URL returns the http:// base URL of the server.
func (s *WSServer) URL() string { return s.Server.URL }

// Requests returns the number of upgrade attempts, accepted or not.
func (s *WSServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *WSServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	reject := s.reject
	s.mu.Unlock()
	if reject {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.accepted++
	s.mu.Unlock()
	s.Conns <- &WSConn{Conn: conn, Token: r.URL.Query().Get("token")}
}

// NextConn waits for the next accepted connection.
func (s *WSServer) NextConn(timeout time.Duration) (*WSConn, bool) {
	select {
	case c := <-s.Conns:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}
