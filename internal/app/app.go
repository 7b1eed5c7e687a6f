// Package app assembles the application: config, logger, model gateway,
// memory store, tool registry, checkpoint store, workflow, orchestrator.
// All wiring lives here; the components themselves take their dependencies
// through constructors.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomlabs/loom/db"
	"github.com/loomlabs/loom/internal/checkpoint"
	"github.com/loomlabs/loom/internal/config"
	"github.com/loomlabs/loom/internal/llm"
	"github.com/loomlabs/loom/internal/log"
	"github.com/loomlabs/loom/internal/memory"
	"github.com/loomlabs/loom/internal/orchestrator"
	"github.com/loomlabs/loom/internal/react"
	"github.com/loomlabs/loom/internal/reminder"
	"github.com/loomlabs/loom/internal/tools"
	"github.com/loomlabs/loom/internal/workflow"
)

// ConversationWorkflow is the routing name of the default workflow.
const ConversationWorkflow = "conversation"

// memoryTopK is how many records a memory search returns.
const memoryTopK = 5

// App is the application container. Build it with Setup and release it
// with Close.
type App struct {
	Config       *config.Config
	Logger       log.Logger
	Gateway      *llm.Gateway
	Pool         *pgxpool.Pool
	Memory       *memory.Store
	Registry     *tools.Registry
	Checkpoints  checkpoint.Store
	Workflow     *workflow.Workflow
	Orchestrator *orchestrator.Orchestrator

	reminder *reminder.Scheduler
	closers  []io.Closer
}

// Setup initializes every component. On failure it releases whatever was
// already initialized before returning the error.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.Gateway = llm.NewGateway(llm.Config{
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GoogleAPIKey:    cfg.GoogleAPIKey,
		OllamaHost:      cfg.OllamaHost,
		Temperature:     cfg.Temperature,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
	}, logger)

	store, err := provideMemory(ctx, a, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Memory = store

	a.Registry = tools.NewRegistry()
	for _, t := range memory.Tools(store) {
		if err := a.Registry.Register(t); err != nil {
			return nil, fmt.Errorf("registering tool: %w", err)
		}
	}

	cp, err := provideCheckpoints(cfg)
	if err != nil {
		return nil, err
	}
	a.Checkpoints = cp
	if closer, ok := cp.(io.Closer); ok {
		a.closers = append(a.closers, closer)
	}

	assistant := workflow.NewAssistant(
		react.NewLoop(a.Gateway, logger),
		store, a.Registry, cfg.Model, cfg.MaxIterations, logger)
	a.Workflow = workflow.New(ConversationWorkflow, assistant, cp, logger)
	a.Orchestrator = orchestrator.New(a.Workflow)

	logger.Info("application ready",
		"model", cfg.Model, "checkpoint_backend", cfg.CheckpointBackend)
	return a, nil
}

// StartReminders launches the background reminder scheduler over the given
// event source and notifier. Stopped by Close.
func (a *App) StartReminders(ctx context.Context, source reminder.EventSource, notifier reminder.Notifier) {
	a.reminder = reminder.NewScheduler(source, notifier,
		a.Config.ReminderInterval, a.Config.ReminderLookahead, a.Logger)
	a.reminder.Start(ctx)
}

// Close releases resources in reverse initialization order.
func (a *App) Close() error {
	if a.reminder != nil {
		a.reminder.Stop()
		a.reminder = nil
	}
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	if a.Pool != nil {
		a.Pool.Close()
		a.Pool = nil
	}
	return firstErr
}

func provideMemory(ctx context.Context, a *App, cfg *config.Config, logger log.Logger) (*memory.Store, error) {
	conn := cfg.ConnString()
	if err := db.Migrate(conn, logger); err != nil {
		return nil, fmt.Errorf("migrating memory schema: %w", err)
	}

	pool, err := pgxpool.New(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	a.Pool = pool

	index, err := memory.NewPGIndex(pool, logger)
	if err != nil {
		return nil, err
	}
	embedder := &memory.GatewayEmbedder{Gateway: a.Gateway, Model: cfg.EmbedderModel}
	return memory.NewStore(index, embedder, memoryTopK, logger)
}

func provideCheckpoints(cfg *config.Config) (checkpoint.Store, error) {
	switch cfg.CheckpointBackend {
	case config.CheckpointBolt:
		return checkpoint.NewBolt(cfg.CheckpointPath)
	case config.CheckpointMemory, "":
		return checkpoint.NewInMemory(), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.CheckpointBackend)
	}
}
