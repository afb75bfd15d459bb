// Package api serves the status of a running session over HTTP: progress,
// the transcript so far, a server-sent event stream of appended segments,
// engine health and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/houzhh15/minutes/cmd/minutes/internal/orchestrator"
	"github.com/houzhh15/minutes/cmd/minutes/internal/transcript"
	"github.com/houzhh15/minutes/pkg/logger"
)

// Status is the read side of the orchestrator.
type Status interface {
	Progress() orchestrator.ProgressInfo
	Segments() []transcript.Segment
	Subscribe() (<-chan transcript.Segment, func())
	EngineStatus() orchestrator.EngineStatus
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(st Status, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = logger.Discard()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))

	r.GET("/healthz", handleHealthz())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/session", handleSession(st))
	v1.GET("/transcript", handleTranscript(st))
	v1.GET("/transcript/events", handleEvents(st))
	v1.GET("/engine/health", handleEngineHealth(st))
	return r
}

// Server is a running status server.
type Server struct {
	srv  *http.Server
	addr string
	done chan error
	log  *slog.Logger
}

// Start listens on addr and serves h in the background. Listen errors are
// returned immediately.
func Start(addr string, h http.Handler, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = logger.Discard()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv:  &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second},
		addr: ln.Addr().String(),
		done: make(chan error, 1),
		log:  log,
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	log.Info("status server listening", "addr", s.addr)
	return s, nil
}

// Addr is the bound address, useful with port 0.
func (s *Server) Addr() string { return s.addr }

// Shutdown stops accepting requests and waits for open ones up to ctx.
// Event streams end when the orchestrator closes its subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}
