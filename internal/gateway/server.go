// Package gateway serves a service's HTTP triggers: it builds the route
// table once, dispatches requests to the handlers published by the latest
// rebuild and translates between HTTP and the invocation contract.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/watzon/localgw/internal/config"
	"github.com/watzon/localgw/internal/metrics"
)

// InternalPrefix is reserved for the gateway's own endpoints.
const InternalPrefix = "/__localgw/"

type Server struct {
	cfg        *config.Config
	table      *RouteTable
	router     *Router
	handler    http.Handler
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New registers every route of table and returns a server ready to listen.
// Internal endpoints are matched before user routes.
func New(cfg *config.Config, table *RouteTable) (*Server, error) {
	srv := &Server{
		cfg:    cfg,
		table:  table,
		router: NewRouter(),
	}

	srv.setupMiddleware()
	if err := srv.setupRoutes(); err != nil {
		return nil, err
	}

	srv.handler = srv.router
	if size := table.Service().Provider.APIGateway.MinimumCompressionSize; size != nil {
		h, err := compress(*size, srv.router)
		if err != nil {
			return nil, err
		}
		srv.handler = h
		log.Debug().Int("min_size", *size).Msg("Response compression enabled")
	}

	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(RequestIDMiddleware)
	s.router.Use(ObserveMiddleware)
	s.router.Use(RecoveryMiddleware)
}

func (s *Server) setupRoutes() error {
	if err := s.router.HandleFunc(http.MethodGet, InternalPrefix+"health", s.health); err != nil {
		return err
	}
	if err := s.router.HandleFunc(http.MethodGet, InternalPrefix+"routes", s.routes); err != nil {
		return err
	}
	if s.cfg.Server.Metrics {
		if err := s.router.Handle(http.MethodGet, InternalPrefix+"metrics", metrics.Handler()); err != nil {
			return err
		}
	}

	iv := &invoker{
		table: s.table,
		opts: InvokeOptions{
			MaxBodySize:       s.cfg.Server.MaxBodySize,
			DefaultMemorySize: s.cfg.Service.DefaultMemorySize,
			DefaultTimeout:    s.cfg.Service.DefaultTimeout,
		},
	}

	for _, e := range s.table.Entries() {
		if err := s.router.Handle(http.MethodOptions, e.Path, withCORS(e.CORS, http.HandlerFunc(optionsHandler))); err != nil {
			return err
		}
		if err := s.router.Handle(e.Method, e.Path, withCORS(e.CORS, iv.entryHandler(e))); err != nil {
			return err
		}

		log.Info().
			Str("function", e.FunctionName()).
			Msgf("%s - http://%s%s", e.Method, s.cfg.Server.Address(), e.Path)
	}

	return nil
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen binds the listening socket without serving.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Start serves until Shutdown. It listens first if Listen was not called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	log.Info().
		Str("addr", s.Addr()).
		Int("routes", len(s.table.Entries())).
		Msg("Starting gateway")

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	s.httpServer.BaseContext = func(net.Listener) context.Context { return context.WithoutCancel(ctx) }

	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down gateway")
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
	Cycle  uint64 `json:"cycle"`
	Routes int    `json:"routes"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status: "starting",
		Ready:  s.table.Ready(),
		Cycle:  s.table.Cycle(),
		Routes: len(s.table.Entries()),
	}
	status := http.StatusServiceUnavailable
	if resp.Ready {
		resp.Status = "ok"
		status = http.StatusOK
	}
	JSON(w, status, resp)
}

func (s *Server) routes(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, s.table.Describe())
}
