package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/support-router/server/internal/agent"
	"github.com/support-router/server/internal/agent/graph"
	"github.com/support-router/server/internal/agent/graph/nodes"
	"github.com/support-router/server/internal/agent/memory"
	"github.com/support-router/server/internal/agent/model"
	"github.com/support-router/server/internal/agent/repo"
	"github.com/support-router/server/internal/core"
	"github.com/support-router/server/internal/server"
	logx "github.com/support-router/server/pkg/logger"
	pkgredis "github.com/support-router/server/pkg/redis"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis pkgredis.Config
	Store model.StoreConfig

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	Completion   model.CompletionModelConfig
	Routing      model.RoutingConfig
	Server       model.ServerConfig
	BusinessName string `envconfig:"BUSINESS_NAME" default:"our store"`
}

// LoadConfig reads envFile when present and processes the environment.
func LoadConfig(envFile string) (AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logx.Debug().Err(err).Str("file", envFile).Msg("no env file loaded")
		}
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("process environment config: %w", err)
	}
	return cfg, nil
}

// InitLogger configures logx from the config.
func (c AppConfig) InitLogger() {
	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(c.Environment),
		Level:       c.LogLevel,
	})
}

// App owns the long-lived components of the process.
type App struct {
	Config  AppConfig
	Store   *memory.Store
	Service *agent.Service

	closers []func() error
}

// OpenStore builds the configured document repository and loads the store.
func OpenStore(ctx context.Context, cfg AppConfig) (*memory.Store, func() error, error) {
	closeFn := func() error { return nil }

	var docs model.DocumentRepository
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "file":
		docs = repo.NewFileDocumentRepository(cfg.Store.FilePath)
	case "redis":
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialise Redis client: %w", err)
		}
		closeFn = rdb.Close
		docs = repo.NewRedisDocumentRepository(rdb, cfg.Store.RedisKey)
		logx.Info().Str("key", cfg.Store.RedisKey).Msg("Connected to Redis successfully")
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	store, err := memory.Open(ctx, docs)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

// New opens the store and builds the Gemini-backed support graph.
func New(ctx context.Context, cfg AppConfig) (*App, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}

	store, closeStore, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Store: store, closers: []func() error{closeStore}}

	completer, err := nodes.NewGeminiCompleter(ctx, nodes.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   &cfg.Completion,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	runner, err := graph.BuildSupportGraph(ctx, graph.Config{
		Store:             store,
		Completer:         completer,
		DefaultCategories: cfg.Routing.DefaultCategories,
		BusinessName:      cfg.BusinessName,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Service, err = agent.NewService(runner)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases external connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	shutdownTimeout, err := time.ParseDuration(a.Config.Server.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT %q: %w", a.Config.Server.ShutdownTimeout, err)
	}
	requestTimeout, err := time.ParseDuration(a.Config.Server.RequestTimeout)
	if err != nil {
		return fmt.Errorf("invalid SERVER_REQUEST_TIMEOUT %q: %w", a.Config.Server.RequestTimeout, err)
	}

	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           server.New(a.Service, a.Store, requestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logx.Info().Str("addr", srv.Addr).Msg("support API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logx.Info().Msg("shutting down support API")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
