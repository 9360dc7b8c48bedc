package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/offer-goat/offer-goat/internal/engine"
	"github.com/offer-goat/offer-goat/internal/logger"
	"github.com/offer-goat/offer-goat/internal/store"
)

type Config struct {
	Port int
	// Token guards the admin endpoints. A random token is generated when empty.
	Token string
	// TokenFile, when set, receives the admin token so `og token` can show it.
	TokenFile string
}

type Server struct {
	engine    *engine.Engine
	store     *store.SQLiteStore
	log       *logger.Logger
	port      int
	token     string
	tokenFile string
	router    *http.ServeMux
	startTime time.Time
}

func New(eng *engine.Engine, s *store.SQLiteStore, cfg Config, log *logger.Logger) *Server {
	token := cfg.Token
	if token == "" {
		token = generateToken()
	}
	if log == nil {
		log = logger.Nop()
	}

	srv := &Server{
		engine:    eng,
		store:     s,
		log:       log.Named("http"),
		port:      cfg.Port,
		token:     token,
		tokenFile: cfg.TokenFile,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.Handle("GET /metrics", promhttp.Handler())

	// Offer-serving endpoints
	s.router.HandleFunc("POST /v1/assign", s.handleAssign)
	s.router.HandleFunc("POST /v1/events/impression", s.handleImpression)
	s.router.HandleFunc("POST /v1/events/{id}/click", s.handleClick)
	s.router.HandleFunc("POST /v1/events/{id}/conversion", s.handleConversion)

	// Admin endpoints (protected)
	s.router.Handle("GET /v1/experiments", s.authMiddleware(http.HandlerFunc(s.handleListExperiments)))
	s.router.Handle("POST /v1/experiments", s.authMiddleware(http.HandlerFunc(s.handleCreateExperiment)))
	s.router.Handle("GET /v1/experiments/{id}", s.authMiddleware(http.HandlerFunc(s.handleGetExperiment)))
	s.router.Handle("POST /v1/experiments/{id}/{action}", s.authMiddleware(http.HandlerFunc(s.handleExperimentAction)))
	s.router.Handle("GET /v1/experiments/{id}/events", s.authMiddleware(http.HandlerFunc(s.handleListEvents)))
	s.router.Handle("POST /v1/auto-winner", s.authMiddleware(http.HandlerFunc(s.handleAutoWinner)))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.log.Warn("failed to write token file", "path", s.tokenFile, "error", err)
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "port", s.port)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(bytes)
}
