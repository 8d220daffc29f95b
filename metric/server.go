package metric

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Siddamnn/SpeakMind/errors"
)

// Server is the status HTTP server. It always serves /metrics; other
// endpoints (health, session summary) are attached with Handle before Start.
type Server struct {
	port     int
	path     string
	registry *MetricsRegistry
	logger   *slog.Logger

	mu       sync.Mutex // protects everything below
	mux      *http.ServeMux
	routes   []string
	mounted  bool
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewServer creates a status server on port. A port of 0 picks a free port.
func NewServer(port int, registry *MetricsRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		port:     port,
		path:     "/metrics",
		registry: registry,
		logger:   logger.With("component", "status-server"),
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/", s.handleIndex)
	return s
}

// Handle attaches an extra endpoint.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mux.Handle(pattern, h)
	s.routes = append(s.routes, pattern)
}

// Handler returns the server's routes, for tests and embedding.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted && s.registry != nil {
		s.mux.Handle(s.path, promhttp.HandlerFor(
			s.registry.PrometheusRegistry(),
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		))
		s.routes = append(s.routes, s.path)
		s.mounted = true
	}
	return s.mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	routes := append([]string(nil), s.routes...)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, "<html><head><title>EEG bridge</title></head><body><h1>EEG bridge status</h1>\n")
	for _, route := range routes {
		_, _ = fmt.Fprintf(w, "<p><a href=%q>%s</a></p>\n", route, route)
	}
	_, _ = fmt.Fprint(w, "</body></html>")
}

// Start binds the port and serves in the background.
func (s *Server) Start(_ context.Context) error {
	handler := s.Handler()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "start status server")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.WrapFatal(err, "Server", "Start",
			fmt.Sprintf("listen on port %d", s.port))
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Status server stopped", "error", err)
		}
	}(s.server, s.done)

	s.logger.Info("Status server listening", "address", s.address())
	return nil
}

// Stop shuts the server down, waiting up to timeout for open requests.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	<-done
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown status server")
	}
	return nil
}

// Address returns the metrics URL.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address()
}

func (s *Server) address() string {
	port := s.port
	if s.listener != nil {
		port = s.listener.Addr().(*net.TCPAddr).Port
	}
	return fmt.Sprintf("http://localhost:%d%s", port, s.path)
}
