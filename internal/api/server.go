package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/tracing"
)

// Server serves the site pages and the API on one listener.
type Server struct {
	server   *http.Server
	listener net.Listener
	port     int
}

// ServerConfig configures the server.
type ServerConfig struct {
	// Addr is the listen address. Port 0 picks a free port.
	Addr string
	// API serves /api and /metrics (required).
	API *Handler
	// Site serves every other path.
	Site http.Handler
	// Tracer records a span per request when set.
	Tracer trace.Tracer
	// ReadTimeout defaults to 30s.
	ReadTimeout time.Duration
	// WriteTimeout is zero by default so event streams stay open.
	WriteTimeout time.Duration
}

// NewServer binds the listener. Call Start to serve.
func NewServer(cfg ServerConfig) (*Server, error) {
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}
	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	return &Server{
		listener: listener,
		port:     port,
		server: &http.Server{
			Handler:           tracing.Middleware(cfg.Tracer, Mount(cfg.API, cfg.Site)),
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
	}, nil
}

// Mount routes /api and /metrics to api and everything else to site.
func Mount(api *Handler, site http.Handler) http.Handler {
	apiRoutes := api.Routes()
	if site == nil {
		return apiRoutes
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/metrics" {
			apiRoutes.ServeHTTP(w, r)
			return
		}
		site.ServeHTTP(w, r)
	})
}

// Start serves until Stop. It returns http.ErrServerClosed after Stop.
func (s *Server) Start() error {
	log.Info(log.CatHTTP, "Starting server", "addr", s.listener.Addr().String(), "port", s.port)
	return s.server.Serve(s.listener)
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatHTTP, "Stopping server")
	return s.server.Shutdown(ctx)
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}
