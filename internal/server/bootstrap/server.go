package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"storybook/internal/async"
	"storybook/internal/config"
	"storybook/internal/executor"
	"storybook/internal/logging"
	"storybook/internal/observability"
	serverApp "storybook/internal/server/app"
	serverHTTP "storybook/internal/server/http"
)

// Options selects the configuration the server starts from.
type Options struct {
	ConfigPath string
	Overrides  config.Overrides
	Version    string
}

// RunServer starts the HTTP server and blocks until a shutdown signal is received.
func RunServer(opts Options) error {
	logger := logging.NewComponentLogger("Main")

	loadOpts := []config.Option{config.WithOverrides(opts.Overrides)}
	if opts.ConfigPath != "" {
		loadOpts = append(loadOpts, config.WithConfigPath(opts.ConfigPath))
	}
	cfg, meta, err := config.Load(loadOpts...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The observability section lives in the same file as the rest.
	obs, cleanupObs := InitObservability(meta.ConfigFile(), logger)
	if cleanupObs != nil {
		defer cleanupObs()
	}

	logger.Info("Starting storybook server %s...", opts.Version)
	LogServerConfiguration(logger, cfg, meta)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := BuildServer(cfg, obs, opts.Version)
	if err != nil {
		return err
	}
	return serveUntilSignal(server, cfg.Server.ShutdownTimeout, logger)
}

// BuildExecutor creates the executor selected by cfg and the name it reports
// in metrics.
func BuildExecutor(cfg config.ExecutorConfig) (executor.Executor, string, error) {
	switch cfg.Kind {
	case config.ExecutorGPTScript, "":
		return executor.NewGPTScript(executor.GPTScriptConfig{
			Binary:    cfg.Binary,
			Script:    cfg.Script,
			WorkDir:   cfg.WorkDir,
			ExtraArgs: cfg.ExtraArgs,
		}, logging.NewComponentLogger("GPTScript")), config.ExecutorGPTScript, nil
	case config.ExecutorReplay:
		return executor.NewReplay(executor.ReplayConfig{
			Path:  cfg.ReplayFile,
			Delay: cfg.ReplayDelay,
		}, logging.NewComponentLogger("Replay")), config.ExecutorReplay, nil
	default:
		return nil, "", fmt.Errorf("unknown executor kind %q", cfg.Kind)
	}
}

// BuildServer wires the executor, run service and router into an http.Server.
func BuildServer(cfg config.Config, obs *observability.Observability, version string) (*http.Server, error) {
	exec, name, err := BuildExecutor(cfg.Executor)
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}

	runs := serverApp.NewRunService(exec, serverApp.RunServiceConfig{
		ExecutorName:      name,
		MaxPages:          cfg.Stream.MaxPages,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		IdleTimeout:       cfg.Stream.IdleTimeout,
	}, serverApp.WithRunObservability(obs))

	health := serverApp.NewHealthChecker()
	health.RegisterProbe(serverApp.NewExecutorProbe(cfg.Executor))

	router := serverHTTP.NewRouter(serverHTTP.RouterDeps{
		Runs:          runs,
		HealthChecker: health,
		Obs:           obs,
		Version:       version,
	}, serverHTTP.RouterConfig{
		Environment:    cfg.Server.Environment,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		StreamGuard: serverHTTP.StreamGuardConfig{
			MaxDuration:   cfg.Stream.MaxDuration,
			MaxConcurrent: cfg.Stream.MaxConcurrent,
		},
		RateLimit: serverHTTP.RateLimitConfig{
			RequestsPerMinute: cfg.Server.RateLimitPerMinute,
			Burst:             cfg.Server.RateLimitBurst,
		},
	})

	// No WriteTimeout: streams stay open for the whole run and the stream
	// guard bounds them. Shutdown cancels in-flight runs so their executors
	// are stopped.
	baseCtx, cancelRuns := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelRuns)
	return server, nil
}

func serveUntilSignal(server *http.Server, shutdownTimeout time.Duration, logger logging.Logger) error {
	logger = logging.OrNop(logger)
	if shutdownTimeout <= 0 {
		shutdownTimeout = config.DefaultShutdownTimeout
	}

	errCh := make(chan error, 1)
	async.Go(logger, "server.listen", func() {
		logger.Info("Server listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-quit:
		logger.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr := server.Shutdown(ctx)

		serveErr := <-errCh
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}

		if shutdownErr != nil {
			return fmt.Errorf("shutdown: %w", shutdownErr)
		}
		if serveErr != nil {
			return fmt.Errorf("server error: %w", serveErr)
		}

		logger.Info("Server stopped")
		return nil
	}
}
