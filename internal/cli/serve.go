package cli

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/safehome/safehome/internal/auth"
	"github.com/safehome/safehome/internal/controlpanel"
	"github.com/safehome/safehome/internal/server"
	"github.com/safehome/safehome/internal/storage/sqlite"
	"github.com/safehome/safehome/internal/system"
)

const (
	shutdownTimeout    = 10 * time.Second
	healthSyncInterval = time.Second
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	HTTPAddr string
	GRPCAddr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SafeHome appliance",
		Long: `Open the database (loading the initial data into an empty one), turn the
system on and serve the JSON API, the control panel and gRPC health checks
until interrupted.

Example:
  safehome serve --db ./safehome.db
  safehome serve --config ./safehome.yaml --http :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.HTTPAddr, "http", "", "HTTP listen address (overrides the configuration)")
	cmd.Flags().StringVar(&opts.GRPCAddr, "grpc", "", "gRPC listen address (overrides the configuration)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.HTTPAddr != "" {
		cfg.HTTPAddr = opts.HTTPAddr
	}
	if opts.GRPCAddr != "" {
		cfg.GRPCAddr = opts.GRPCAddr
	}

	store, err := sqlite.New(sqlite.Config{Path: cfg.DBPath, SeedIfEmpty: true})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer store.Close()

	logger, logFile, err := serviceLogger(cmd.ErrOrStderr(), opts.Verbose, cfg, store)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up logging", err)
	}
	defer logFile.Close()
	prev := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(prev)

	logger.Info("database opened", "path", cfg.DBPath)

	sysOpts := cfg.SystemOptions()
	sysOpts.Logger = logger
	sys := system.New(store, sysOpts)
	panel := controlpanel.New(sys)

	secret := cfg.JWTSecret
	if secret == "" {
		secret = rand.Text()
		logger.Warn("no jwt secret configured, tokens will not survive a restart")
	}
	sessions := auth.NewSessionStore(store.DB(), cfg.SessionDuration)
	api := server.NewHTTPServer(sys, panel, sessions, auth.NewTokenIssuer(secret), cfg)
	retention := server.NewRetentionWorker(store, sessions, cfg)
	api.SetRetention(retention)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sys.TurnOn(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to turn the system on", err)
	}

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = sys.TurnOff(context.Background())
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	var grpcLis net.Listener
	if cfg.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			httpLis.Close()
			_ = sys.TurnOff(context.Background())
			return WrapExitError(ExitCommandError, "failed to listen", err)
		}
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		retention.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		panel.Run(ctx, controlpanel.DefaultTickInterval)
	}()

	httpSrv := &http.Server{
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server starting", "address", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var grpcSrv *server.GRPCServer
	if grpcLis != nil {
		grpcSrv = server.NewGRPCServer(sys)
		wg.Add(1)
		go func() {
			defer wg.Done()
			grpcSrv.Watch(ctx, healthSyncInterval)
		}()
		go func() {
			logger.Info("grpc server starting", "address", grpcLis.Addr().String())
			if err := grpcSrv.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "SafeHome running on %s. Press Ctrl-C to stop.\n", httpLis.Addr())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("server error", "error", runErr)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	wg.Wait()

	if err := sys.TurnOff(shutdownCtx); err != nil {
		logger.Error("failed to turn the system off", "error", err)
	}
	logger.Info("server stopped")

	if runErr != nil {
		return WrapExitError(ExitFailure, "server error", runErr)
	}
	return nil
}
