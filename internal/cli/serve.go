package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/localgw/internal/build"
	"github.com/watzon/localgw/internal/bundler"
	"github.com/watzon/localgw/internal/config"
	"github.com/watzon/localgw/internal/gateway"
	"github.com/watzon/localgw/internal/lambda"
)

const shutdownTimeout = 5 * time.Second

var (
	servePort        int
	serveHost        string
	serveStage       string
	serveStagePrefix bool
	serveService     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local gateway",
	Long: `Start the local HTTP gateway with hot reload.

The gateway will:
  - Load functions and HTTP triggers from serverless.yml
  - Register one route per trigger, plus an OPTIONS route at the same path
  - Run the build command and watch sources for changes
  - Rebind every route to the freshly built handlers after each rebuild

Requests answer 503 until the first build completes. A build with
compilation errors keeps the previous handlers; a handler that cannot be
loaded stops the gateway.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", config.DefaultHost, "Host to bind to")
	serveCmd.Flags().StringVar(&serveStage, "stage", "", "Stage name (default: provider stage, then dev)")
	serveCmd.Flags().BoolVar(&serveStagePrefix, "stage-prefix", false, "Prefix every route with /<stage>")
	serveCmd.Flags().StringVar(&serveService, "service", "", "Path to the service file (default: serverless.yml)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("stage") {
		cfg.Server.Stage = serveStage
	}
	if cmd.Flags().Changed("stage-prefix") {
		cfg.Server.StagePrefix = serveStagePrefix
	}
	if cmd.Flags().Changed("service") {
		cfg.Service.Path = serveService
	}

	svc, err := loadService(cfg)
	if err != nil {
		return err
	}

	table, err := gateway.NewRouteTable(svc, gateway.RouteOptions{
		StagePrefix: cfg.Server.StagePrefix,
		Stage:       cfg.Server.Stage,
	})
	if err != nil {
		return err
	}

	srv, err := gateway.New(cfg, table)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	loader, err := lambda.NewProcessLoader("", nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := loader.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to remove module snapshots")
		}
	}()

	reloader := build.NewReloader(table, loader)
	defer func() { _ = reloader.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("service", svc.Name).
		Str("stage", table.Stage()).
		Str("url", "http://"+srv.Addr()).
		Msg("Gateway listening, building handlers")

	return serve(ctx, srv, newBundler(cfg, svc), reloader)
}

// serve runs the listener and the watch loop until ctx is done or either of
// them fails. The first failure is returned.
func serve(ctx context.Context, srv *gateway.Server, b bundler.Bundler, reloader *build.Reloader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start(ctx) }()
	go func() { errCh <- b.Watch(ctx, reloader.Callback(ctx)) }()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			log.Error().Err(runErr).Msg("Gateway stopped")
		}
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Err(err).Msg("Error shutting down gateway")
	}

	return runErr
}
