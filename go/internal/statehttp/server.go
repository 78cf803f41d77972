package statehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/webwizzz/chess-sub000/go/internal/session"
)

// StateProvider is what the endpoint needs from the session engine.
type StateProvider interface {
	DerivedState() session.View
}

// Server exposes the session's derived state to a local UI process as
// read-only JSON. It lives and dies with the session.
type Server struct {
	provider StateProvider
	httpSrv  *http.Server
}

// New builds a state server listening on addr.
func New(addr string, provider StateProvider) *Server {
	s := &Server{provider: provider}

	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/healthz", s.handleHealth)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet},
	})

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      c.Handler(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown. Blocking; callers run it on its own
// goroutine.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpSrv.Addr).Msg("state endpoint listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.provider.DerivedState()); err != nil {
		log.Error().Err(err).Msg("failed to encode state view")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
