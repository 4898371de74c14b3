package devserver

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"cipherchat/internal/domain"
	"cipherchat/internal/logging"
)

const (
	codeOK    = "200"
	codeError = "-1"
)

type user struct {
	name      string
	publicKey string
	enabled   bool
}

type storedMessage struct {
	domain.WireMessage
}

// Server is an in-memory chat backend. The zero value is not usable; call New.
type Server struct {
	log      *logrus.Entry
	clock    clock.Clock
	upgrader websocket.Upgrader

	mu       sync.Mutex
	users    map[domain.UserID]*user
	messages []*storedMessage
	nextID   int64
	conns    map[domain.UserID]map[*peer]struct{}
	noPong   bool
}

// New returns an empty server. A nil clock selects the wall clock.
func New(log *logrus.Entry, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.New()
	}
	return &Server{
		log:   logging.OrDiscard(log, "devserver"),
		clock: clk,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		users: make(map[domain.UserID]*user),
		conns: make(map[domain.UserID]map[*peer]struct{}),
	}
}

// AddUser registers a user. Unknown ids are registered on first use, so
// this only matters for display names.
func (s *Server) AddUser(id domain.UserID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userLocked(id).name = name
}

// DropPongs makes the server ignore heartbeat pings.
func (s *Server) DropPongs(drop bool) {
	s.mu.Lock()
	s.noPong = drop
	s.mu.Unlock()
}

// Online reports whether id has at least one open connection.
func (s *Server) Online(id domain.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns[id]) > 0
}

// Handler returns the REST and WebSocket routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /e2ee/settings", s.authed(s.handleSettings))
	mux.HandleFunc("GET /e2ee/public-key/{userId}", s.authed(s.handlePublicKey))
	mux.HandleFunc("GET /e2ee/status/{a}/{b}", s.authed(s.handleStatus))
	mux.HandleFunc("POST /e2ee/send-encrypted", s.authed(s.handleSendEncrypted))
	mux.HandleFunc("POST /messages/send", s.authed(s.handleSend))
	mux.HandleFunc("GET /messages/conversations", s.authed(s.handleConversations))
	mux.HandleFunc("GET /messages/conversation/{friendId}", s.authed(s.handleConversation))
	mux.HandleFunc("POST /messages/mark-read/{senderId}", s.authed(s.handleMarkRead))
	mux.HandleFunc("GET /messages/unread-count/{senderId}", s.authed(s.handleUnreadCount))
	mux.HandleFunc("GET /chat", s.handleChat)
	return s.accessLog(mux)
}

func (s *Server) userLocked(id domain.UserID) *user {
	u, ok := s.users[id]
	if !ok {
		u = &user{name: "user" + id.String()}
		s.users[id] = u
	}
	return u
}

type authedHandler func(w http.ResponseWriter, r *http.Request, self domain.UserID)

// authed resolves the bearer token, which on this server is the user id.
func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		id, err := domain.ParseUserID(strings.TrimSpace(tok))
		if err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		h(w, r, id)
	}
}

type result struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, result{Code: codeOK, Message: "success", Data: data})
}

// writeError answers with the error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, result{Code: codeError, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathUserID(r *http.Request, name string) (domain.UserID, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return domain.UserID(id), err == nil && id > 0
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Hijack lets the WebSocket upgrade through the access log wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"remote":     r.RemoteAddr,
			"status":     rec.status,
			"bytes":      rec.bytes,
			"duration":   time.Since(start),
			"request_id": r.Header.Get("X-Request-ID"),
		}).Debug("request")
	})
}
