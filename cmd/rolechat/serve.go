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

	"github.com/spf13/cobra"

	"github.com/easeaico/rolechat/internal/affinity"
	"github.com/easeaico/rolechat/internal/backend"
	"github.com/easeaico/rolechat/internal/callback"
	"github.com/easeaico/rolechat/internal/character"
	"github.com/easeaico/rolechat/internal/chat"
	"github.com/easeaico/rolechat/internal/config"
	"github.com/easeaico/rolechat/internal/conversation"
	"github.com/easeaico/rolechat/internal/httpapi"
	"github.com/easeaico/rolechat/internal/memory"
	"github.com/easeaico/rolechat/internal/models"
	"github.com/easeaico/rolechat/internal/observability"
	"github.com/easeaico/rolechat/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conversation HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.BindAddr = addr
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides BIND_ADDR)")
}

// resources holds the long-lived stores opened for a process.
type resources struct {
	pg     *storage.Store
	sqlite *storage.SQLiteMemoryRepo
	rows   memory.RowStore
}

func (r *resources) Close() {
	if r.sqlite != nil {
		if err := r.sqlite.Close(); err != nil {
			slog.Warn("failed to close sqlite memory store", "error", err)
		}
	}
	if r.pg != nil {
		r.pg.Close()
	}
}

func openResources(ctx context.Context, cfg config.Config) (*resources, error) {
	res := &resources{}
	if cfg.NeedsPostgres() {
		// 初始化数据库连接
		pg, err := storage.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		res.pg = pg
	}

	switch cfg.MemoryStore {
	case config.MemoryStorePostgres:
		res.rows = res.pg.Memories
	case config.MemoryStoreSQLite:
		repo, err := storage.OpenSQLiteMemoryRepo(cfg.SQLitePath)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("failed to open sqlite memory store: %w", err)
		}
		res.sqlite = repo
		res.rows = repo
	}
	return res, nil
}

func newDirectory(cfg config.Config, res *resources) (character.Directory, error) {
	switch cfg.CharacterSource {
	case config.CharacterSourceDatabase:
		return res.pg.Characters, nil
	case config.CharacterSourceFile:
		return character.LoadFile(cfg.CharactersFile)
	default:
		return character.NewHTTPDirectory(character.HTTPOptions{
			BaseURL: cfg.FrontendAPIURL,
			APIKey:  cfg.BackendAPIKey,
			Timeout: cfg.CharacterTimeout,
		}), nil
	}
}

func newRegistry(cfg config.Config, factory *models.Factory, logger *slog.Logger) *backend.Registry {
	registry := backend.NewRegistry(logger)
	registry.Register(backend.NewGeminiBackend(backend.GeminiConfig{
		Model:   factory.ModelName("gemini"),
		Timeout: cfg.BackendTimeout,
		BaseURL: cfg.BaseURLs["gemini"],
		Logger:  logger,
	}), "Google Gemini", "Gemini 2.0 Flash, fast and multilingual")

	chatBackend := func(c backend.ChatConfig) *backend.ChatBackend {
		c.Logger = logger
		return backend.NewChatBackend(factory, c)
	}
	registry.Register(chatBackend(backend.OpenAIConfig("openai", cfg.BackendTimeout)),
		"OpenAI GPT", "GPT-4o mini through the OpenAI API")
	registry.Register(chatBackend(backend.ClaudeConfig(cfg.BackendTimeout)),
		"Anthropic Claude", "Claude through the Anthropic Messages API")
	registry.Register(chatBackend(backend.OpenAIConfig("grok", cfg.BackendTimeout)),
		"xAI Grok", "Grok through the xAI OpenAI-compatible API")
	registry.Register(chatBackend(backend.OpenAIConfig("openrouter", cfg.BackendTimeout)),
		"OpenRouter", "Any OpenRouter-hosted model")
	return registry
}

func serve(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.Default()
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	res, err := openResources(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	source, err := newDirectory(cfg, res)
	if err != nil {
		return fmt.Errorf("failed to load characters: %w", err)
	}
	characters := character.NewCache(source, logger)
	if list, err := characters.List(ctx); err != nil {
		logger.Warn("character catalog not reachable at startup", "error", err)
	} else {
		logger.Info("character catalog loaded", "count", len(list))
	}

	factory := models.NewFactory(cfg.ModelNames)
	for provider, baseURL := range cfg.BaseURLs {
		factory.SetBaseURL(provider, baseURL)
	}
	registry := newRegistry(cfg, factory, logger)

	store := memory.NewStore(res.rows, memory.StoreOptions{
		Timeout:          cfg.StoreTimeout,
		Logger:           logger,
		OnPersistFailure: metrics.ObservePersistFailure,
	})
	var extractor memory.Extractor = memory.KeywordExtractor{}
	if cfg.MemoryExtractor == config.ExtractorModel {
		extractor = memory.NewModelExtractor(factory, memory.KeywordExtractor{}, cfg.EvaluatorTimeout, logger)
	}

	evaluator := affinity.NewEvaluator(factory,
		affinity.WithTimeout(cfg.EvaluatorTimeout),
		affinity.WithLogger(logger),
		affinity.WithFailureHook(metrics.ObserveEvaluatorFailure),
	)

	tasks := callback.NewQueue(callback.QueueOptions{
		Workers:     cfg.MemoryWorkers,
		Size:        cfg.MemoryQueueSize,
		TaskTimeout: cfg.MemoryTaskTimeout,
		Logger:      logger,
		OnDone: func(name string, err error) {
			if err != nil {
				metrics.ObserveMemoryTask("failed")
				return
			}
			metrics.ObserveMemoryTask("ok")
		},
	})

	orch, err := chat.New(chat.Config{
		Characters:    characters,
		Backends:      registry,
		Conversations: conversation.NewStore(cfg.HistoryLimit),
		Memory:        memory.NewService(store, extractor),
		Evaluator:     evaluator,
		Tasks:         tasks,
		Metrics:       metrics,
		Logger:        logger,
		Debug:         cfg.Debug,
	})
	if err != nil {
		return err
	}

	var ready func(context.Context) error
	if res.pg != nil {
		ready = res.pg.Ping
	}
	api := httpapi.New(httpapi.Options{
		Orchestrator: orch,
		Characters:   characters,
		Models:       registry,
		Metrics:      metrics,
		Ready:        ready,
		Status: httpapi.Status{
			FrontendURL:      cfg.FrontendAPIURL,
			BackendKeyIsSet:  cfg.BackendAPIKey != "",
			CharacterSource:  cfg.CharacterSource,
			MemoryStoreKind:  cfg.MemoryStore,
			MemoryExtraction: cfg.MemoryExtractor,
		},
		Logger: logger,
	})

	srv := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 优雅关闭处理
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-sigCtx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := orch.Close(shutdownCtx); err != nil {
		logger.Warn("memory tasks did not drain", "error", err)
	}
	return nil
}
