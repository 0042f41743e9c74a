package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thruflo/remoteui/internal/auth"
	"github.com/thruflo/remoteui/internal/control"
	"github.com/thruflo/remoteui/internal/protocol"
	"github.com/thruflo/remoteui/web"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 << 10,
	WriteBufferSize: 64 << 10,
	// The page is served by this listener; token auth guards everything else.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// routes configures the web viewer endpoint.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("/auth", s.handleAuth)
	mux.Handle("/", http.FileServer(http.FS(web.GetAssets(""))))

	// Protected endpoints
	mux.HandleFunc("/ws", s.withAuth(s.handleWebsocket))
	mux.HandleFunc("/state", s.withAuth(s.handleState))
	mux.HandleFunc("/control", s.withAuth(s.handleControl))
	mux.HandleFunc("/stats", s.withAuth(s.handleStats))
	return mux
}

// withAuth requires a valid token when a password hash is configured. Browsers
// cannot set headers on websocket requests, so the token may also be passed as
// the token query parameter.
func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.PasswordHash == "" {
			handler(w, r)
			return
		}

		token := r.URL.Query().Get("token")
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				http.Error(w, "invalid authorization format", http.StatusUnauthorized)
				return
			}
			token = strings.TrimPrefix(authHeader, bearerPrefix)
		}
		if token == "" {
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}
		if !s.tokens.Valid(token) {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}
}

// handleAuth handles POST /auth: password in, bearer token out.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.PasswordHash == "" {
		http.Error(w, "authentication is not enabled", http.StatusNotFound)
		return
	}

	ip := clientIP(r, s.cfg.TrustProxy)
	if result := s.limiter.check(ip); !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds()+0.5)))
		http.Error(w, result.Reason, http.StatusTooManyRequests)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	password := r.FormValue("password")
	if password == "" {
		http.Error(w, "password required", http.StatusBadRequest)
		return
	}

	valid, err := auth.VerifyPassword(password, s.cfg.PasswordHash)
	if err != nil {
		s.log.Error("password verification failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !valid {
		s.limiter.recordFailure(ip)
		http.Error(w, "invalid password", http.StatusUnauthorized)
		return
	}
	s.limiter.recordSuccess(ip)

	token, err := s.tokens.Issue()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleWebsocket upgrades GET /ws and serves it like a TCP viewer.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	wc := protocol.NewWebsocketConn(conn)
	if !s.track(func() { s.serveViewer(wc, "websocket") }) {
		wc.Close()
	}
}

type stateResponse struct {
	State   control.State `json:"state"`
	Version uint64        `json:"version"`
	Changed bool          `json:"changed"`
}

// handleState handles GET /state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse())
}

func (s *Server) stateResponse() stateResponse {
	return stateResponse{
		State:   s.state.Peek(),
		Version: s.state.Version(),
		Changed: s.state.Changed(),
	}
}

// handleControl handles POST /control with a JSON edit.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var edit control.Edit
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&edit); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.applyEdit(edit); err != nil {
		if errors.Is(err, control.ErrInvalidSteps) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse())
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sweepAuth expires tokens and rate limiter entries.
func (s *Server) sweepAuth(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.tokens.Sweep(); n > 0 {
				s.log.Debug("expired tokens removed", "count", n)
			}
			s.limiter.cleanup()
		}
	}
}
