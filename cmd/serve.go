package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/datalens/internal/agent"
	"github.com/nextlevelbuilder/datalens/internal/config"
	"github.com/nextlevelbuilder/datalens/internal/gateway"
	"github.com/nextlevelbuilder/datalens/internal/mcp"
	"github.com/nextlevelbuilder/datalens/internal/providers"
	"github.com/nextlevelbuilder/datalens/internal/session"
	"github.com/nextlevelbuilder/datalens/internal/store"
	"github.com/nextlevelbuilder/datalens/internal/tools"
	"github.com/nextlevelbuilder/datalens/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg := loadConfig()
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	var db *sqlx.DB
	if cfg.Database.DSN != "" {
		db, err = store.OpenDB(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
	} else {
		slog.Warn("no database configured, SQL tools disabled")
	}

	checkpoint, err := openCheckpointer(ctx, cfg.Sessions)
	if err != nil {
		return err
	}
	sessions := session.NewStore(checkpoint)
	defer sessions.Close()

	registry := tools.NewRegistry(cfg.Agent.ToolTimeout())
	if cfg.Agent.ToolRateLimit > 0 {
		registry.SetRateLimiter(tools.NewRateLimiter(cfg.Agent.ToolRateLimit, 3))
	}
	if err := registerBuiltins(registry, db); err != nil {
		return err
	}

	mcpMgr, err := mcp.Connect(ctx, cfg.MCP, registry)
	if err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	defer mcpMgr.Close()
	slog.Info("tools registered", "count", registry.Count())

	provider := providers.NewOpenAIProvider("openai", cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Provider.Model)
	loop := agent.NewLoop(provider, registry, sessions, schemaFunc(db), cfg.Agent,
		cfg.Provider.Model, cfg.Provider.Temperature)

	srv := gateway.NewServer(cfg.Server, loop, sessions)

	// Hot reload covers policy knobs; structural changes (ports, stores)
	// need a restart and are only logged.
	watcher, err := config.NewWatcher(resolveConfigPath())
	if err == nil {
		watcher.OnChange(func(next *config.Config) {
			slog.Info("config change detected; restart to apply structural changes")
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config watcher unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })

	slog.Info("datalens started", "version", version)
	return g.Wait()
}

func openCheckpointer(ctx context.Context, cfg config.SessionsConfig) (session.Checkpointer, error) {
	if cfg.RedisURL != "" {
		cp, err := session.NewRedisCheckpointer(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis sessions: %w", err)
		}
		return cp, nil
	}
	if cfg.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		cp, err := session.NewSQLiteCheckpointer(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite sessions: %w", err)
		}
		return cp, nil
	}
	return nil, nil
}

func registerBuiltins(registry *tools.Registry, db *sqlx.DB) error {
	var list []tools.Tool
	if db != nil {
		list = append(list,
			tools.NewQueryTool(db),
			tools.NewSchemaTool(db),
			tools.NewChartTool(db),
			tools.NewTableTool(db),
			tools.NewHistogramTool(db),
		)
	}
	list = append(list, tools.NewSandboxTool())

	for _, t := range list {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Name(), err)
		}
	}
	return nil
}

// schemaFunc caches the schema summary so every turn does not hit
// information_schema. The cache expires after five minutes.
func schemaFunc(db *sqlx.DB) agent.SchemaFunc {
	if db == nil {
		return nil
	}
	var (
		mu      sync.Mutex
		cached  string
		fetched time.Time
	)
	return func(ctx context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if cached != "" && time.Since(fetched) < 5*time.Minute {
			return cached, nil
		}
		summary, err := tools.SchemaSummary(ctx, db)
		if err != nil {
			return "", err
		}
		cached, fetched = summary, time.Now()
		return cached, nil
	}
}
