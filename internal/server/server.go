package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"PortfolioLedger/internal/observability"
	"PortfolioLedger/internal/query"
	"PortfolioLedger/internal/refdata"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server exposes the query service over HTTP/JSON and the gRPC health
// protocol.
type Server struct {
	grpcServer    *grpc.Server
	healthServer  *health.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	handler       http.Handler
	healthChecker *observability.HealthChecker
	metrics       *observability.Metrics
	log           zerolog.Logger
}

// Deps holds everything the handlers need.
type Deps struct {
	Query         *query.Service
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	Log           zerolog.Logger
}

// New builds the gRPC server and the HTTP handler tree.
func New(grpcAddr, httpAddr string, deps Deps) (*Server, error) {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	s := &Server{
		grpcServer:    grpcServer,
		healthServer:  healthServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		healthChecker: deps.HealthChecker,
		metrics:       deps.Metrics,
		log:           deps.Log.With().Str("component", "server").Logger(),
	}

	gw := runtime.NewServeMux()
	h := &handlers{qs: deps.Query}
	routes := []struct {
		pattern  string
		endpoint string
		fn       func(r *http.Request, params map[string]string) (any, error)
	}{
		{"/v1/summary", "summary", h.summary},
		{"/v1/balances", "balances", h.balances},
		{"/v1/books/{book}/accounts", "accounts", h.accounts},
		{"/v1/entries", "entries", h.entries},
		{"/v1/assets", "assets", h.assets},
		{"/v1/assets/{id}", "asset", h.asset},
		{"/v1/assets/{id}/events", "events", h.events},
	}
	for _, rt := range routes {
		if err := gw.HandlePath(http.MethodGet, rt.pattern, s.instrument(rt.endpoint, rt.fn)); err != nil {
			return nil, fmt.Errorf("register %s: %w", rt.pattern, err)
		}
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", gw)
	s.handler = httpMux

	return s, nil
}

// Handler is the HTTP handler tree.
func (s *Server) Handler() http.Handler { return s.handler }

// StartGRPC serves the health and reflection services (blocking).
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("gRPC server shutting down")
		s.healthServer.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.log.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTP serves the JSON API and health endpoints (blocking).
func (s *Server) StartHTTP(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpAddr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

var marshaler = &runtime.JSONBuiltin{}

// instrument adapts fn to the gateway, writing JSON and recording metrics.
func (s *Server) instrument(endpoint string, fn func(*http.Request, map[string]string) (any, error)) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		body, err := fn(r, params)
		code := codes.OK
		if err != nil {
			code = codeOf(err)
			body = map[string]any{"code": int(code), "message": err.Error()}
			if code == codes.Internal {
				s.log.Error().Err(err).Str("endpoint", endpoint).Msg("query failed")
			}
		}

		httpStatus := runtime.HTTPStatusFromCode(code)
		if s.metrics != nil {
			s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(httpStatus)).Inc()
			s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}

		data, merr := marshaler.Marshal(body)
		if merr != nil {
			http.Error(w, merr.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", marshaler.ContentType(body))
		w.WriteHeader(httpStatus)
		w.Write(data)
	}
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, query.ErrInvalidArgument):
		return codes.InvalidArgument
	case errors.Is(err, query.ErrNotFound), errors.Is(err, refdata.ErrNotFound):
		return codes.NotFound
	}
	return codes.Internal
}

// ============================================================================
// Handlers
// ============================================================================

type handlers struct {
	qs *query.Service
}

func (h *handlers) summary(r *http.Request, _ map[string]string) (any, error) {
	return h.qs.Summary(), nil
}

func (h *handlers) balances(r *http.Request, _ map[string]string) (any, error) {
	q := r.URL.Query()
	return h.qs.Balances(query.BalanceRequest{
		Book:        q.Get("book"),
		On:          q.Get("on"),
		AccountType: q.Get("account_type"),
		Portfolio:   q.Get("portfolio"),
		GroupBy:     query.GroupBy(q.Get("group_by")),
	})
}

func (h *handlers) accounts(r *http.Request, params map[string]string) (any, error) {
	return h.qs.Accounts(params["book"])
}

func (h *handlers) entries(r *http.Request, _ map[string]string) (any, error) {
	q := r.URL.Query()
	if q.Get("account") == "" {
		return nil, fmt.Errorf("account is required: %w", query.ErrInvalidArgument)
	}
	return h.qs.Entries(q.Get("book"), q.Get("account"), q.Get("on"))
}

func (h *handlers) assets(r *http.Request, _ map[string]string) (any, error) {
	q := r.URL.Query()
	all := false
	if v := q.Get("all"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("all=%q: %w", v, query.ErrInvalidArgument)
		}
		all = b
	}
	return h.qs.Assets(q.Get("portfolio"), q.Get("on"), all)
}

func (h *handlers) asset(r *http.Request, params map[string]string) (any, error) {
	return h.qs.Asset(params["id"], r.URL.Query().Get("on"))
}

func (h *handlers) events(r *http.Request, params map[string]string) (any, error) {
	return h.qs.Events(params["id"], r.URL.Query().Get("on"))
}
