package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/seedhantkalra/caremind/internal/auth"
	"github.com/seedhantkalra/caremind/internal/chat"
	"github.com/seedhantkalra/caremind/internal/config"
	"github.com/seedhantkalra/caremind/internal/memory"
	"github.com/seedhantkalra/caremind/internal/observability"
	"github.com/seedhantkalra/caremind/internal/session"
)

type Server struct {
	cfg      config.Config
	verifier *auth.Verifier
	service  *chat.Service
	sessions *session.Manager
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, verifier *auth.Verifier, service *chat.Service, sessions *session.Manager, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		verifier: verifier,
		service:  service,
		sessions: sessions,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so another site cannot drive a clinician's chat
				// session if the service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireIdentity)
		r.Post("/api/users", s.handleCreateUser)
		r.Post("/api/chat", s.handleChat)
		r.Get("/api/chat/ws", s.handleChatWS)
		r.Post("/api/session/end", s.handleEndSession)
	})

	return r
}

type identityContextKey struct{}

// requireIdentity verifies the bearer credential and stashes the resulting
// identity in the request context. The credential is the only identity
// source; handlers never read a user id from the request body.
func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.verifier.VerifyRequest(r)
		if err != nil {
			if errors.Is(err, auth.ErrMissingCredential) {
				respondError(w, http.StatusUnauthorized, "missing_credential", "authorization header with a bearer token is required")
				return
			}
			respondError(w, http.StatusUnauthorized, "invalid_credential", "bearer token is invalid or expired")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityContextKey{}, id)))
	})
}

func identityFrom(r *http.Request) auth.Identity {
	id, _ := r.Context().Value(identityContextKey{}).(auth.Identity)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type createUserResponse struct {
	UserID  string `json:"user_id"`
	Created bool   `json:"created"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)

	_, created, err := s.service.EnsureUser(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_failure", err.Error())
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, createUserResponse{UserID: id.UserID, Created: created})
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	reply, err := s.service.HandleTurn(r.Context(), id, req.Message, nil)
	if err != nil {
		switch {
		case errors.Is(err, memory.ErrNotFound):
			respondError(w, http.StatusNotFound, "user_not_provisioned", "no memory record exists for this user")
		case errors.Is(err, chat.ErrUpstream):
			respondError(w, http.StatusBadGateway, "upstream_error", "completion service failed")
		default:
			respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

type wsClientFrame struct {
	Message string `json:"message"`
}

type wsServerFrame struct {
	Type  string `json:"type"`
	Delta string `json:"delta,omitempty"`
	Reply string `json:"reply,omitempty"`
	Code  string `json:"code,omitempty"`
}

// handleChatWS runs a streaming variant of the chat endpoint over a
// websocket. Each inbound frame carries one user message; the reply is
// streamed back as delta frames followed by a done frame with the full text.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	defer s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.SessionInactivityTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.SessionInactivityTimeout))
		return nil
	})

	writeFrame := func(frame wsServerFrame) error {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(frame); err != nil {
			return err
		}
		s.metrics.WSMessages.WithLabelValues("outbound", frame.Type).Inc()
		return nil
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.SessionInactivityTimeout))

		var frame wsClientFrame
		if err := json.Unmarshal(data, &frame); err != nil || strings.TrimSpace(frame.Message) == "" {
			if writeFrame(wsServerFrame{Type: "error", Code: "invalid_client_message"}) != nil {
				return
			}
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", "message").Inc()

		reply, err := s.service.HandleTurn(r.Context(), id, frame.Message, func(delta string) error {
			return writeFrame(wsServerFrame{Type: "delta", Delta: delta})
		})
		if err != nil {
			code := "internal_error"
			switch {
			case errors.Is(err, memory.ErrNotFound):
				code = "user_not_provisioned"
			case errors.Is(err, chat.ErrUpstream):
				code = "upstream_error"
			}
			if writeFrame(wsServerFrame{Type: "error", Code: code}) != nil {
				return
			}
			continue
		}
		if writeFrame(wsServerFrame{Type: "done", Reply: reply}) != nil {
			return
		}
	}
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)

	if err := s.service.EndSession(id.UserID); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, map[string]any{"status": "ended"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
