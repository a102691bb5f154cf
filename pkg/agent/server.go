// Package agent serves device health over HTTPS with mutual TLS and talks
// to remote agents.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Server represents the agent server
type Server struct {
	config     Config
	httpServer *http.Server
	handler    *Handler
	logger     *logrus.Logger
	logFile    *os.File
	errorLog   *io.PipeWriter
}

// NewServer validates config, loads the TLS material and builds the routes.
func NewServer(config Config, opts ...Option) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	server := &Server{config: config}

	if config.LogFile != "" {
		f, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		base := baseLogger(opts)
		logger := logrus.New()
		logger.SetFormatter(base.Formatter)
		logger.SetLevel(base.GetLevel())
		logger.SetOutput(f)
		// The metrics handler keeps the logger it is built with.
		opts = append(opts[:len(opts):len(opts)], WithLogger(logger))
		server.logFile = f
	}

	server.handler = NewHandler(opts...)
	server.logger = server.handler.logger

	tlsConfig, err := config.LoadTLSConfig()
	if err != nil {
		server.closeLog()
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}

	server.errorLog = server.logger.WriterLevel(logrus.WarnLevel)
	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      server.handler,
		TLSConfig:    tlsConfig,
		ErrorLog:     log.New(server.errorLog, "", 0),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return server, nil
}

// baseLogger returns the logger opts select, before any log file applies.
func baseLogger(opts []Option) *logrus.Logger {
	h := &Handler{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(h)
	}
	return h.logger
}

// Handler returns the routed handler without TLS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithField("port", s.config.Port).Info("Starting agent server with mTLS")

	// certificates are already in TLSConfig
	err := s.httpServer.ListenAndServeTLS("", "")
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down agent server")
	defer s.closeLog()
	err := s.httpServer.Shutdown(ctx)
	_ = s.errorLog.Close()
	return err
}

func (s *Server) closeLog() {
	if s.logFile != nil {
		_ = s.logFile.Close()
		s.logFile = nil
	}
}

// loggingMiddleware logs every request with the client certificate name.
func loggingMiddleware(logger *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientCert := "none"
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			clientCert = r.TLS.PeerCertificates[0].Subject.CommonName
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.statusCode,
			"remote":   r.RemoteAddr,
			"client":   clientCert,
			"duration": time.Since(start),
		}).Info("request")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
