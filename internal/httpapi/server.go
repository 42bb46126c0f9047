package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/trunkline/internal/bridge"
	"github.com/antoniostano/trunkline/internal/config"
	"github.com/antoniostano/trunkline/internal/observability"
	"github.com/antoniostano/trunkline/internal/transcript"
)

type Server struct {
	cfg      config.Config
	bridge   *bridge.Bridge
	store    transcript.Store
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, b *bridge.Bridge, store transcript.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		bridge:  b,
		store:   store,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// The telephony provider connects without an Origin header;
				// browser observers are held to same-origin unless overridden.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
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

	r.Post("/v1/calls/incoming", s.handleIncomingCall)
	r.Get("/v1/calls/stream", s.handleTelephonyWS)
	r.Get("/v1/calls/observer", s.handleObserverWS)
	r.Get("/v1/calls/active", s.handleActiveCall)
	r.Get("/v1/calls/{id}/transcript", s.handleTranscript)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"model_leg_auth": strings.TrimSpace(s.cfg.ModelAPIKey) != "",
	})
}

// handleIncomingCall hands the telephony provider its connection
// instructions: an XML document pointing the media stream at our
// websocket endpoint.
func (s *Server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	host := strings.TrimSpace(s.cfg.PublicHost)
	if host == "" {
		host = r.Host
	}
	streamURL := fmt.Sprintf("wss://%s/v1/calls/stream", host)

	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="%s" />
    </Connect>
</Response>`, streamURL)

	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(twiml))
}

// handleTelephonyWS runs the telephony leg: one websocket per live call,
// attached for the lifetime of the read loop.
func (s *Server) handleTelephonyWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)

	s.bridge.AttachTelephony(conn, s.cfg.ModelAPIKey)
	defer s.bridge.DetachTelephony(conn)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.bridge.HandleTelephonyMessage(conn, data)
	}
}

// handleObserverWS runs the observer leg: configuration in, mirrored
// model events and usage snapshots out.
func (s *Server) handleObserverWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)

	s.bridge.AttachObserver(conn)
	defer s.bridge.DetachObserver(conn)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.bridge.HandleObserverMessage(conn, data)
	}
}

func (s *Server) handleActiveCall(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.bridge.Snapshot())
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "id")
	if strings.TrimSpace(callID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_call_id", "missing call id")
		return
	}

	lines, err := s.store.RecentLines(r.Context(), callID, 200)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"call_id": callID,
		"lines":   lines,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
