package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mediadex/internal/logging"
	"github.com/Aman-CERP/mediadex/internal/mcp"
	"github.com/Aman-CERP/mediadex/internal/telemetry"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		transport   string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index to MCP clients",
		Long: `Start an MCP server over stdio exposing the search, search_grouped,
get_variants, list_sources and index_stats tools.

Stdout carries the protocol, so logs go only to the log file. With
--metrics-addr, Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, transport, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "MCP transport (default: server.transport)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (default: server.metrics_addr)")
	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, transport, metricsAddr string) error {
	_, cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if opts.debug {
		level = "debug"
	}
	cleanup, err := logging.SetupServeMode(level, opts.logFile)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()

	if err := verifyStdinForMCP(); err != nil {
		slog.Warn("serve_stdin_terminal", slog.String("error", err.Error()))
		return err
	}

	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if transport == "" {
		transport = a.cfg.Server.Transport
	}
	if metricsAddr == "" {
		metricsAddr = a.cfg.Server.MetricsAddr
	}

	if metricsAddr != "" {
		srv, err := startMetricsServer(a, metricsAddr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	server, err := mcp.NewServer(a.engine,
		mcp.WithLogger(a.logger),
		mcp.WithInsights(a.insights),
		mcp.WithBackend(a.backend))
	if err != nil {
		return err
	}
	return server.Serve(ctx, transport)
}

// startMetricsServer serves /metrics from the app registry in the background.
func startMetricsServer(a *app, addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	telemetry.RegisterMetricsEndpoint(mux, a.registry)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()
	a.logger.Info("metrics_server_started", slog.String("addr", ln.Addr().String()))
	return srv, nil
}

// verifyStdinForMCP fails when stdin is a terminal: an MCP client must
// connect through a pipe.
func verifyStdinForMCP() error {
	fd := os.Stdin.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return errors.New("stdin is a terminal; 'mediadex serve' expects an MCP client on a pipe")
	}
	return nil
}
