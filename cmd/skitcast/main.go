package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/skitcast/internal/bot"
	"github.com/cuongbtq/skitcast/internal/config"
	"github.com/cuongbtq/skitcast/internal/delivery"
	"github.com/cuongbtq/skitcast/internal/generation"
	"github.com/cuongbtq/skitcast/internal/pipeline"
	"github.com/cuongbtq/skitcast/internal/prompt"
	"github.com/cuongbtq/skitcast/internal/scheduler"
	"github.com/cuongbtq/skitcast/shared/logger"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("SKITCAST_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/skitcast/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		stop()
		log.Fatal(err)
	}
}

// run serves until ctx is canceled
func run(ctx context.Context, configPath string) error {
	// Load configuration
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting bot",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("mode", cfg.Telegram.Mode),
		slog.Bool("scheduler", cfg.Scheduler.Enabled),
	)

	// Initialize Telegram session
	botAPI, err := initBotAPI(&cfg.Telegram, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telegram bot: %w", err)
	}

	appLogger.Info("Telegram session established",
		slog.String("username", botAPI.Self.UserName),
	)

	// Job pipeline: prompt -> generation -> delivery
	jobs, err := initPipeline(cfg, botAPI, appLogger.Logger)
	if err != nil {
		return err
	}

	if err := bot.RegisterCommands(botAPI); err != nil {
		appLogger.Warn("Failed to register bot commands",
			slog.Any("error", err),
		)
	}

	deps := &bot.Dependencies{
		Logger:   appLogger.Logger,
		Sender:   botAPI,
		Runner:   jobs,
		Messages: cfg.Messages,
		Token:    cfg.Telegram.BotToken,
		Service:  cfg.App.Name,
		Version:  cfg.App.Version,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(&scheduler.Config{
			Logger:   appLogger.Logger,
			Runner:   jobs,
			Interval: cfg.Scheduler.Interval,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize scheduler: %w", err)
		}
		g.Go(func() error {
			return sched.Start(gctx)
		})
	}

	switch cfg.Telegram.Mode {
	case config.ModeWebhook:
		if err := bot.RegisterWebhook(botAPI, cfg.Telegram.WebhookURL, appLogger.Logger); err != nil {
			appLogger.Error("Failed to register webhook",
				slog.Any("error", err),
			)
		}
		startWebhookServer(gctx, g, cfg, initRouter(cfg.App.Environment, deps), appLogger.Logger)
	case config.ModePolling:
		if err := bot.DeleteWebhook(botAPI); err != nil {
			appLogger.Error("Failed to delete webhook",
				slog.Any("error", err),
			)
		}
		poller := bot.NewPoller(botAPI, bot.NewHandler(deps), cfg.Telegram.PollTimeout, appLogger.Logger)
		g.Go(func() error {
			return poller.Run(gctx)
		})
	}

	appLogger.Info("Bot is running")

	if err := g.Wait(); err != nil {
		appLogger.Error("Bot stopped with error",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Bot shutdown complete")
	return nil
}

// loadConfig reads the config file, overlays the environment and validates.
// A missing file falls back to the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("Config file %s not found, using defaults", path)
		cfg = config.Default()
	case err != nil:
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initBotAPI opens the Telegram session. The client timeout leaves room for
// the long-poll timeout.
func initBotAPI(cfg *config.TelegramConfig, log *slog.Logger) (*tgbotapi.BotAPI, error) {
	if err := tgbotapi.SetLogger(slog.NewLogLogger(log.Handler(), slog.LevelDebug)); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: time.Duration(cfg.PollTimeout)*time.Second + 30*time.Second,
	}
	endpoint := strings.TrimRight(cfg.APIBaseURL, "/") + "/bot%s/%s"

	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, client)
	if err != nil {
		return nil, err
	}
	api.Debug = cfg.Debug

	return api, nil
}

// initPipeline wires the prompt source, the provider client and the delivery
// transport into the job pipeline
func initPipeline(cfg *config.Config, botAPI *tgbotapi.BotAPI, log *slog.Logger) (*pipeline.Pipeline, error) {
	prompts, err := prompt.FromConfig(cfg.Prompts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prompts: %w", err)
	}

	// Per-request deadlines come from contexts
	httpClient := &http.Client{}

	gen, err := generation.NewClientFromConfig(cfg, httpClient, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation client: %w", err)
	}

	transport, err := delivery.NewTransportFromConfig(cfg, botAPI, httpClient, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize delivery transport: %w", err)
	}

	jobs, err := pipeline.NewFromConfig(cfg, prompts, gen, transport, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	return jobs, nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *bot.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return bot.SetupRouter(deps)
}

// startWebhookServer serves the webhook until ctx is done, then shuts the
// server down within the configured timeout
func startWebhookServer(ctx context.Context, g *errgroup.Group, cfg *config.Config, handler http.Handler, log *slog.Logger) {
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return shutdownServer(srv, cfg.Server.ShutdownTimeout, log)
	})
}

// shutdownServer drains the server. Requests still running after timeout
// (a manual generation) are abandoned with a warning.
func shutdownServer(srv *http.Server, timeout time.Duration, log *slog.Logger) error {
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	switch {
	case err == nil:
		log.Info("Server shutdown complete")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("Server forced to shutdown, abandoning in-flight requests",
			slog.Duration("timeout", timeout),
		)
		srv.Close()
	default:
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
