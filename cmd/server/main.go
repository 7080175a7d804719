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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/architecture"
	"github.com/agenthands/eventgraph/internal/core/summary"
	"github.com/agenthands/eventgraph/internal/driver"
	"github.com/agenthands/eventgraph/internal/llm"
	"github.com/agenthands/eventgraph/internal/logging"
	"github.com/agenthands/eventgraph/internal/scheduler"
	"github.com/agenthands/eventgraph/internal/server"
	"github.com/agenthands/eventgraph/internal/storage"
	"github.com/agenthands/eventgraph/internal/vector"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envErr := godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	log, err := logging.New(cfg.Server.Env)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()
	if envErr != nil {
		log.Debug("no .env file found, using environment and config file")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func loadConfig() (*config.Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.toml"
	}
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	var arch *architecture.Architecture
	defer func() {
		if arch == nil {
			_ = store.Close(context.Background())
		}
	}()

	opts := []architecture.Option{architecture.WithMetrics(reg)}

	provider, err := llm.NewProvider(ctx, cfg.LLM, log)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}
	if provider != nil {
		defer func() { _ = provider.Close() }()
		if cfg.LLM.DescribePatterns {
			opts = append(opts, architecture.WithDescriber(summary.NewDescriber(provider.Generate, log)))
		}
		if cfg.LLM.RerankSearch {
			opts = append(opts, architecture.WithReranker(llm.NewSimpleLLMReranker(provider.Generate, log)))
		}
	} else {
		opts = append(opts, architecture.WithDescriber(summary.NewDescriber(nil, log)))
	}

	if cfg.Vector.Enabled {
		var embed vector.Embedder = vector.NewHashEmbedder(0)
		if provider != nil && provider.Embed != nil {
			embed = provider.Embed
		}
		idx, err := vector.NewChromemIndex(cfg.Vector, embed, log)
		if err != nil {
			return fmt.Errorf("vector index: %w", err)
		}
		opts = append(opts, architecture.WithVectorIndex(idx))
	}

	if cfg.Mapping.SQLitePath != "" {
		ms, err := storage.NewSQLiteMappingStore(cfg.Mapping.SQLitePath)
		if err != nil {
			return fmt.Errorf("mapping store: %w", err)
		}
		opts = append(opts, architecture.WithMappingStore(ms))
	}

	arch, err = architecture.New(ctx, store, cfg, log, opts...)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := arch.Close(closeCtx); err != nil {
			log.Error("failed to close stores", zap.Error(err))
		}
	}()

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(arch, cfg.Scheduler, log)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.NewServer(arch, log, server.WithRegistry(reg)).SetupRouter(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Storage.Backend == "memory" {
		log.Warn("using in-memory storage, data is lost on exit")
		return storage.NewMemoryStore(), nil
	}
	d, err := driver.NewNeo4jDriver(ctx, cfg.Storage.URI, cfg.Storage.User, cfg.Storage.Password, cfg.Storage.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect to neo4j: %w", err)
	}
	if err := d.BuildIndices(ctx); err != nil {
		_ = d.Close(ctx)
		return nil, err
	}
	return storage.NewNeo4jStore(d, log), nil
}
