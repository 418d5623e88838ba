package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/scene-studio/backend/internal/agent"
	"github.com/zhouzirui/scene-studio/backend/internal/config"
	"github.com/zhouzirui/scene-studio/backend/internal/handler"
	"github.com/zhouzirui/scene-studio/backend/internal/logging"
	"github.com/zhouzirui/scene-studio/backend/internal/model/tool"
	"github.com/zhouzirui/scene-studio/backend/internal/provider"
	chatService "github.com/zhouzirui/scene-studio/backend/internal/service/chat"
	"github.com/zhouzirui/scene-studio/backend/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	tools, err := loadTools(cfg, logger)
	if err != nil {
		store.Close()
		return err
	}

	registry := buildRegistry(ctx, cfg, logger)
	if !registry.Has(agent.DefaultID) {
		logger.Warn().Msg("默认智能体未配置，聊天接口将返回 503，请检查 ARK_API_KEY 与模型 ID")
	}

	dispatcher := chatService.NewDispatcher(store, tools, registry, logger)
	router := handler.NewRouter(tools, store, dispatcher, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", srv.Addr).Strs("agents", registry.IDs()).Msg("Scene Studio backend listening")
	return runServer(ctx, srv, store, cfg.Server.ShutdownTimeout, logger)
}

// setup loads configuration and builds the root logger.
func setup() (*config.Config, zerolog.Logger, error) {
	dotenvErr := config.LoadDotEnv(envFile)

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Pretty, os.Stderr)
	if dotenvErr != nil {
		logger.Warn().Err(dotenvErr).Msg("failed to load .env file, continuing with system environment variables only")
	}
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (chatService.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBadger:
		store, err := chatService.NewBadgerStore(chatService.BadgerOptions{Dir: cfg.Store.BadgerDir, Logger: logger})
		if err != nil {
			return nil, err
		}
		logger.Info().Str("dir", cfg.Store.BadgerDir).Msg("using badger conversation store")
		return store, nil

	case config.StorePostgres:
		db, err := chatService.OpenPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		n, err := chatService.Migrate(ctx, db, migrate.Up)
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.Info().Int("applied", n).Msg("using postgres conversation store")
		return chatService.NewPostgresStore(db), nil

	default:
		logger.Info().Msg("using in-memory conversation store")
		return chatService.NewMemoryStore(), nil
	}
}

func loadTools(cfg *config.Config, logger zerolog.Logger) (tool.Store, error) {
	if cfg.ToolsFile == "" {
		return tool.NewMemoryStore(tool.Seed()), nil
	}
	items, err := tool.LoadFile(cfg.ToolsFile)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("file", cfg.ToolsFile).Int("tools", len(items)).Msg("tool catalog loaded")
	return tool.NewMemoryStore(items), nil
}

// buildRegistry registers every agent whose credentials and models are
// configured. Each agent gets its own provider client.
func buildRegistry(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *agent.Registry {
	registry := agent.NewRegistry(agent.DefaultID)

	var rehoster agent.Rehoster
	if s3cfg := cfg.Storage.S3(); s3cfg.Enabled() {
		rehoster = storage.NewRehoster(storage.NewS3(storage.NewS3Client(s3cfg), s3cfg), nil)
		logger.Info().Str("bucket", s3cfg.Bucket).Msg("generated images will be rehosted")
	}

	entries := []struct {
		id       string
		build    agent.Constructor
		models   config.AgentModels
		rehoster agent.Rehoster
	}{
		{agent.SceneGeneratorID, agent.NewSceneGenerator, cfg.Scene(), nil},
		{agent.MuseumGeneratorID, agent.NewMuseumGenerator, cfg.Museum(), rehoster},
		{agent.ResearchAssistantID, agent.NewResearchAssistant, cfg.Research(), nil},
	}

	for _, e := range entries {
		log := logging.Component(logger, e.id)
		client, err := newProviderClient(ctx, cfg, e.id, e.models)
		if err != nil {
			log.Warn().Err(err).Msg("agent disabled")
			continue
		}
		registry.Register(e.id, e.build, agent.Deps{
			Provider:      client,
			Logger:        log,
			ChatModel:     e.models.ChatModel,
			ImageModel:    e.models.ImageModel,
			StreamTimeout: cfg.Agents.StreamTimeout,
			ImageTimeout:  cfg.Agents.ImageTimeout,
			Rehoster:      e.rehoster,
		})
		log.Info().Str("chat_model", e.models.ChatModel).Str("backend", cfg.Ark.ChatBackend).Msg("agent registered")
	}
	return registry
}

func newProviderClient(ctx context.Context, cfg *config.Config, name string, models config.AgentModels) (*provider.Client, error) {
	if !cfg.Ark.Enabled(models.APIKey) || models.ChatModel == "" {
		return nil, errors.New("Ark 凭证或模型 ID 未配置")
	}

	oaCfg := provider.OpenAIConfig{APIKey: models.APIKey, BaseURL: cfg.Ark.BaseURL}

	var chat provider.ChatStreamer
	switch cfg.Ark.ChatBackend {
	case config.ChatBackendOpenAI:
		chat = provider.NewOpenAIChat(oaCfg, models.ChatModel)
	default:
		cm, err := cfg.Ark.NewChatModel(ctx, models.APIKey, models.ChatModel)
		if err != nil {
			return nil, fmt.Errorf("create ark chat model: %w", err)
		}
		chat = cm
	}

	var images provider.ImageGenerator
	if models.ImageModel != "" {
		images = provider.NewOpenAIImages(oaCfg)
	}
	return provider.NewClient(name, chat, images), nil
}

func runServer(ctx context.Context, srv *http.Server, store chatService.Store, shutdownTimeout time.Duration, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	var result *multierror.Error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			result = multierror.Append(result, fmt.Errorf("shutdown server: %w", err))
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			result = multierror.Append(result, err)
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			result = multierror.Append(result, err)
		}
	}

	if err := store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close store: %w", err))
	}
	return result.ErrorOrNil()
}
