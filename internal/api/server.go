// Package api provides the local HTTP status and telemetry surface.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
)

// Stats is the telemetry snapshot served over the API.
type Stats struct {
	Enabled            bool   `json:"enabled"`
	Paused             bool   `json:"paused"`
	Mappings           int    `json:"mappings"`
	Workers            int    `json:"workers"`
	DroppedActivations uint64 `json:"dropped_activations"`
	StuckKeyCorrected  uint64 `json:"stuck_key_corrected"`
	CooldownSuppressed uint64 `json:"cooldown_suppressed"`
}

// Control lets the API flip runtime bits.
type Control interface {
	Stats() Stats
	SetEnabled(bool)
	SetPaused(bool)
}

// Server serves status queries and the telemetry websocket on loopback.
type Server struct {
	ctrl  Control
	wsMgr *wsManager
}

// NewServer creates the API server.
func NewServer(ctrl Control) *Server {
	s := &Server{ctrl: ctrl}
	s.wsMgr = newWSManager(s)
	return s
}

// Start listens on 127.0.0.1:port and serves until the process exits.
// Blocking.
func (s *Server) Start(port int) error {
	go s.wsMgr.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/enable", s.handleEnable)
	mux.HandleFunc("/api/pause", s.handlePause)
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", addr, err)
	}
	log.Printf("api server on %s", addr)

	server := &http.Server{Handler: s.recoverMiddleware(mux)}
	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("api: panic recovered: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.ctrl.Stats())
}

type toggleRequest struct {
	On bool `json:"on"`
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.ctrl.SetEnabled(req.On)
	s.handleStatus(w, r)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.ctrl.SetPaused(req.On)
	s.handleStatus(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}
