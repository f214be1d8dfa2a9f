package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on the default mux
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/fishannotator/reel/internal/config"
	apperrors "github.com/fishannotator/reel/internal/errors"
	"github.com/fishannotator/reel/internal/health"
	"github.com/fishannotator/reel/internal/logger"
)

// Server serves the control API over HTTP/1.1 and, when enabled, HTTP/3.
type Server struct {
	config       *config.ServerConfig
	router       *mux.Router
	httpServer   *http.Server
	http3Server  *http3.Server
	logger       *logrus.Logger
	healthMgr    *health.Manager
	errorHandler *apperrors.ErrorHandler
	limiter      *rate.Limiter

	routesOnce       sync.Once
	additionalRoutes []func(*mux.Router)
}

func New(cfg *config.ServerConfig, log *logrus.Logger) *Server {
	s := &Server{
		config:       cfg,
		router:       mux.NewRouter(),
		logger:       log,
		healthMgr:    health.NewManager(log),
		errorHandler: apperrors.NewErrorHandler(log),
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return s
}

// RegisterHealthChecker adds a checker to /health.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	s.healthMgr.Register(c)
}

// RegisterRoutes adds route handlers; call before Start or Handler.
func (s *Server) RegisterRoutes(registerFunc func(*mux.Router)) {
	s.additionalRoutes = append(s.additionalRoutes, registerFunc)
}

// ErrorHandler is shared with the API handlers so every error renders alike.
func (s *Server) ErrorHandler() *apperrors.ErrorHandler {
	return s.errorHandler
}

// Handler returns the fully configured router.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(s.setupRoutes)
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	handler := s.Handler()

	go s.healthMgr.StartPeriodicChecks(ctx, 30*time.Second)

	addr := net.JoinHostPort(s.config.ListenAddr, strconv.Itoa(s.config.HTTPPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("Starting HTTP server")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.config.HTTP3.Enabled {
		if err := s.startHTTP3(handler, errCh); err != nil {
			_ = s.httpServer.Close()
			return err
		}
	}

	select {
	case err := <-errCh:
		s.Shutdown()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

func (s *Server) startHTTP3(handler http.Handler, errCh chan<- error) error {
	cert, err := tls.LoadX509KeyPair(s.config.HTTP3.TLSCertFile, s.config.HTTP3.TLSKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS certificates: %w", err)
	}
	tlsConfig := http3.ConfigureTLSConfig(&tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
	})

	quicConfig := &quic.Config{
		MaxIdleTimeout: s.config.HTTP3.MaxIdleTimeout,
	}

	addr := net.JoinHostPort(s.config.ListenAddr, strconv.Itoa(s.config.HTTP3.Port))
	ln, err := quic.ListenAddrEarly(addr, tlsConfig, quicConfig)
	if err != nil {
		return fmt.Errorf("failed to listen on %s/udp: %w", addr, err)
	}

	s.http3Server = &http3.Server{Handler: handler}
	go func() {
		s.logger.WithField("addr", addr).Info("Starting HTTP/3 server")
		if err := s.http3Server.ServeListener(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return nil
}

// Shutdown drains the HTTP server within the configured timeout and closes
// the HTTP/3 listener.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if s.httpServer != nil {
		// Event streams never finish on their own.
		if err := s.httpServer.Shutdown(ctx); err != nil {
			_ = s.httpServer.Close()
			if !errors.Is(err, context.DeadlineExceeded) {
				errs = append(errs, err)
			}
		}
	}
	if s.http3Server != nil {
		if err := s.http3Server.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info("Server shutdown complete")
	return nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.rateLimitMiddleware)

	healthHandler := health.NewHandler(s.healthMgr)
	s.router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")
	s.router.HandleFunc("/ready", healthHandler.HandleReady).Methods("GET")
	s.router.HandleFunc("/live", healthHandler.HandleLive).Methods("GET")

	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")

	if s.config.DebugEndpoints {
		s.setupDebugEndpoints()
	}

	for _, registerFunc := range s.additionalRoutes {
		registerFunc(s.router)
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.errorHandler.HandleMethodNotAllowed)
}

func (s *Server) setupDebugEndpoints() {
	s.logger.Info("Enabling debug endpoints")

	s.router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	s.router.HandleFunc("/debug/info", func(w http.ResponseWriter, r *http.Request) {
		info := map[string]interface{}{
			"listen_addr": s.config.ListenAddr,
			"ports": map[string]int{
				"http":  s.config.HTTPPort,
				"http3": s.config.HTTP3.Port,
			},
			"http3_enabled": s.config.HTTP3.Enabled,
			"rate_limit":    s.config.RateLimit,
		}
		_ = s.writeJSON(w, http.StatusOK, info)
	}).Methods("GET")
}

// GetRouter returns the router for testing.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// NewMetricsServer exposes the Prometheus registry on its own port so the
// scrape endpoint is never rate limited with the control API.
func NewMetricsServer(cfg config.MetricsConfig, listenAddr string) *http.Server {
	m := http.NewServeMux()
	m.Handle(cfg.Path, promhttp.Handler())
	return &http.Server{
		Addr:              net.JoinHostPort(listenAddr, strconv.Itoa(cfg.Port)),
		Handler:           m,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}
