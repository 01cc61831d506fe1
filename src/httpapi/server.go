// Package httpapi exposes a broker gateway over HTTP/JSON and provides the
// matching client.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"creek/src/contracts"
	"creek/src/logger"
)

const maxBodyBytes = 32 << 20

// Server routes HTTP requests to a gateway and its admin surface.
type Server struct {
	gw    contracts.Gateway
	admin contracts.Admin
	log   logger.Logger
	mux   *http.ServeMux
}

// NewServer creates a Server.
func NewServer(gw contracts.Gateway, admin contracts.Admin, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	s := &Server{gw: gw, admin: admin, log: log, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /publish", s.handlePublish)
	s.mux.HandleFunc("POST /poll", s.handlePoll)
	s.mux.HandleFunc("POST /unsubscribe", s.handleUnsubscribe)
	s.mux.HandleFunc("POST /topics", s.handleCreateTopic)
	s.mux.HandleFunc("GET /topics", s.handleTopics)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("POST /clear", s.handleClear)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("[HTTP] Listening on %s", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req contracts.PublishRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.gw.Publish(r.Context(), req); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	var req contracts.PollRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.gw.Poll(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if resp.Records == nil {
		resp.Records = []contracts.ShardRecords{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req contracts.PollRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.gw.Unsubscribe(r.Context(), req); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	var req contracts.CreateTopicRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.admin.CreateTopic(r.Context(), req); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contracts.TopicInfo{Topic: req.Topic, Shards: req.Shards})
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.admin.Topics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if topics == nil {
		topics = []contracts.TopicInfo{}
	}
	writeJSON(w, http.StatusOK, topics)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.admin.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.Clear(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid request body: %v", err),
			Code:  "invalid_argument",
		})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code, status := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("[HTTP] %v", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
