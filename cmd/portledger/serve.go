package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"PortfolioLedger/internal/observability"
	"PortfolioLedger/internal/query"
	"PortfolioLedger/internal/server"

	"github.com/google/subcommands"
)

// serveCmd replays once and serves the result until interrupted.
type serveCmd struct {
	app
	export  bool
	publish bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "replay, then serve the query API, gRPC health and metrics" }
func (*serveCmd) Usage() string {
	return `portledger serve [-data <file>] [-end <date>] [-export] [-publish]

  Replays the log and serves the read-only JSON API on PLEDGER_HTTP_ADDR, the
  gRPC health service on PLEDGER_GRPC_ADDR and /metrics on PLEDGER_METRICS_ADDR.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	c.setLedgerFlags(f)
	f.BoolVar(&c.export, "export", c.cfg.PostgresURL != "", "write committed operations to Postgres")
	f.BoolVar(&c.publish, "publish", c.cfg.NATSURL != "", "publish committed operations to NATS JetStream")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()
	errChan := make(chan error, 4)

	// Metrics and liveness are up while the replay runs.
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsMux.HandleFunc("/healthz", health.LivenessHandler)
		metricsMux.HandleFunc("/readyz", health.ReadinessHandler)
		metricsServer := &http.Server{
			Addr:              c.cfg.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(shutCtx)
		}()
		c.log.Info().Str("addr", c.cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	engine, res, err := c.replay(ctx, metrics, sinks{export: c.export, publish: c.publish})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error replaying ledger: %v\n", err)
		return subcommands.ExitFailure
	}

	srv, err := server.New(c.cfg.GRPCAddr, c.cfg.HTTPAddr, server.Deps{
		Query:         query.NewService(engine, res),
		HealthChecker: health,
		Metrics:       metrics,
		Log:           c.log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building server: %v\n", err)
		return subcommands.ExitFailure
	}

	go func() {
		errChan <- srv.StartGRPC(ctx)
	}()
	go func() {
		errChan <- srv.StartHTTP(ctx)
	}()
	health.MarkReplayed(res.Transactions)

	c.log.Info().
		Str("grpc", c.cfg.GRPCAddr).
		Str("http", c.cfg.HTTPAddr).
		Str("metrics", c.cfg.MetricsAddr).
		Str("state_hash", res.StateHash).
		Msg("portledger ready")

	select {
	case <-ctx.Done():
		c.log.Info().Msg("shutting down")
	case err := <-errChan:
		if err != nil {
			c.log.Error().Err(err).Msg("server failed")
			return subcommands.ExitFailure
		}
	}
	health.SetReady(false)

	// Wait for the gRPC and HTTP servers to drain.
	for i := 0; i < 2; i++ {
		select {
		case <-errChan:
		case <-time.After(6 * time.Second):
			return subcommands.ExitSuccess
		}
	}
	return subcommands.ExitSuccess
}
