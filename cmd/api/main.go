package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/interview-orchestrator/internal/config"
	"github.com/zhouzirui/interview-orchestrator/internal/handler"
	"github.com/zhouzirui/interview-orchestrator/internal/service/ai"
	"github.com/zhouzirui/interview-orchestrator/internal/service/chat"
)

type options struct {
	envFile  string
	addr     string
	logLevel string
	provider string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "orchestrator",
		Short:         "AI Mock Interviewer - LLM Orchestrator",
		Long:          "Serves chat sessions with conversation context against a hosted language model.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(cmd.Context(), opts); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address, overrides PORT")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error), overrides LOG_LEVEL")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "completion provider (openai, ark, langchain, mock), overrides LLM_PROVIDER")

	return cmd
}

func run(parent context.Context, opts *options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load(opts.envFile)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.provider != "" {
		cfg.AI.Provider = opts.provider
	}

	logger, closeLog, err := config.SetupLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLog(); err != nil {
			logger.Warn("failed to close log file", "error", err)
		}
	}()
	slog.SetDefault(logger)

	if envErr != nil {
		logger.Warn("failed to load env file, continuing with system environment variables only", "file", opts.envFile, "error", envErr)
	}

	logger.Info("starting up LLM orchestrator", "provider", cfg.AI.Provider, "default_model", cfg.AI.DefaultModel())

	// A nil provider keeps the service up; turns answer 503 until it is configured.
	var provider ai.Provider
	if p, err := ai.NewProvider(ctx, cfg.AI); err != nil {
		logger.Error("failed to initialize chat provider, continuing without it", "provider", cfg.AI.Provider, "error", err)
	} else {
		provider = p
		logger.Info("chat provider initialized", "provider", cfg.AI.Provider)
	}

	chatClient := chat.NewClient(chat.NewStore(), provider, cfg.AI.Timeout, logger)
	router := handler.NewRouter(chatClient, cfg.AI.DefaultModel(), cfg.Server.CORSOrigins, logger)

	return startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("LLM orchestrator listening", "addr", serverCfg.Addr)
	if err := runServer(ctx, srv, serverCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutting down LLM orchestrator")
	return nil
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
