// Command riggerd is the process entrypoint wiring config, storage,
// providers, the artifact engine, and the orchestration graph into a single
// rpc.Service. The RPC surface itself has no transport (spec §1, §6): this
// binary builds the service once to prove the wiring, logs that it is ready,
// and exits; it does not keep the service running or speak a wire protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rigger/core/internal/artifact"
	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/logging"
	"github.com/rigger/core/internal/orchestrate"
	"github.com/rigger/core/internal/provider"
	"github.com/rigger/core/internal/rpc"
	"github.com/rigger/core/internal/store"
)

func main() {
	var (
		root    = flag.String("root", ".", "project root containing .rigger/")
		dbPath  = flag.String("db", "", "sqlite database path (default: <root>/.rigger/rigger.db)")
		verbose = flag.Bool("verbose", false, "enable debug-level logging")
		maxRuns = flag.Int("max-concurrent-runs", 4, "maximum orchestration runs in flight at once")
	)
	flag.Parse()

	zapCfg := zap.NewProductionConfig()
	if *verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	logging.Initialize(level)

	if err := run(*root, *dbPath, *maxRuns, logger); err != nil {
		logger.Error("riggerd exited with error", zap.Error(err))
		os.Exit(1)
	}
}

// run performs the config → store → providers → artifact engine →
// orchestrator → rpc.Service wiring (spec §6), logs that it is ready, and
// returns; the store is closed on return and svc is not kept.
func run(root, dbPath string, maxRuns int, logger *zap.Logger) error {
	ctx := context.Background()

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if dbPath == "" {
		dbPath = filepath.Join(root, ".rigger", "rigger.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create .rigger directory: %w", err)
	}
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	providers := provider.NewSet(cfg)
	registerProviders(ctx, providers, cfg, logger)

	artifacts := artifact.NewEngine(st, providers)
	orchestrator := orchestrate.NewEngine(st, providers, artifacts, cfg, maxRuns)
	svc := rpc.New(st, providers, artifacts, orchestrator, cfg)

	logger.Info("riggerd wired and ready",
		zap.String("root", root),
		zap.String("db", dbPath),
		zap.Int("max_concurrent_runs", maxRuns),
	)

	_ = svc // held by whatever embeds riggerd; this binary's job ends at wiring
	return nil
}

// registerProviders wires the genai-backed adapters when an API key is
// configured, and a local embedding adapter otherwise. A deployment with no
// API key still starts: every provider call has a deterministic fallback
// (spec §8 scenario 6), so an unregistered adapter degrades capability
// rather than blocking startup.
func registerProviders(ctx context.Context, set *provider.Set, cfg config.Config, logger *zap.Logger) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	model := cfg.DefaultModel.Model

	if apiKey == "" {
		logger.Warn("GEMINI_API_KEY not set; text enhancement, extraction, and vision will run on fallback only")
	} else {
		if te, err := provider.NewGenAITextEnhancement(ctx, apiKey, model); err != nil {
			logger.Warn("text enhancement adapter unavailable", zap.Error(err))
		} else {
			set.RegisterTextEnhancement(model, te)
		}
		if se, err := provider.NewGenAIStructuredExtraction(ctx, apiKey, model); err != nil {
			logger.Warn("structured extraction adapter unavailable", zap.Error(err))
		} else {
			set.RegisterExtraction(model, se)
		}
		if v, err := provider.NewGenAIVision(ctx, apiKey, model); err != nil {
			logger.Warn("vision adapter unavailable", zap.Error(err))
		} else {
			set.RegisterVision(model, v)
		}
		if em, err := provider.NewGenAIEmbedding(ctx, apiKey, model, cfg.VectorDimension); err != nil {
			logger.Warn("genai embedding adapter unavailable, falling back to local embedding", zap.Error(err))
			set.RegisterEmbedding(model, provider.NewLocalEmbedding("http://localhost:11434", "nomic-embed-text", cfg.VectorDimension))
		} else {
			set.RegisterEmbedding(model, em)
		}
		return
	}

	set.RegisterEmbedding(model, provider.NewLocalEmbedding("http://localhost:11434", "nomic-embed-text", cfg.VectorDimension))
}
