package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pw-Chen-km/Twin3-algo/internal/affinity"
	"github.com/pw-Chen-km/Twin3-algo/internal/config"
	"github.com/pw-Chen-km/Twin3-algo/internal/embedding"
	"github.com/pw-Chen-km/Twin3-algo/internal/engine"
	"github.com/pw-Chen-km/Twin3-algo/internal/evolve"
	"github.com/pw-Chen-km/Twin3-algo/internal/matcher"
	"github.com/pw-Chen-km/Twin3-algo/internal/oracle"
	"github.com/pw-Chen-km/Twin3-algo/internal/registry"
	"github.com/pw-Chen-km/Twin3-algo/internal/store"
)

// app bundles the wired components every command works against.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	closeLog func() error
	db       *store.DB
	reg      *registry.Registry
	engine   *engine.Engine
	miner    *evolve.Miner
	mapper   *affinity.Mapper // nil without a taxonomy file
	embedder embedding.Embedder
}

// setup loads config, opens the store and wires the pipeline. The
// oracle degrades to the heuristic provider when the configured one
// cannot start, so local use works without an API key.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, closeLog := config.SetupLogger(cfg.Logging)

	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	orc, err := oracle.New(ctx, cfg.Oracle, reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: oracle %q unavailable (%v), using heuristic\n", cfg.Oracle.Provider, err)
		log.Warn("oracle unavailable, using heuristic", "provider", cfg.Oracle.Provider, "error", err)
		orc = oracle.NewHeuristic(reg)
	}

	var embedder embedding.Embedder
	if embedding.ProbeOllama(ctx, cfg.Embedding.OllamaURL, cfg.Embedding.Model) {
		embedTimeout := time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second
		embedder = embedding.NewOllamaEmbedder(cfg.Embedding.OllamaURL, cfg.Embedding.Model, cfg.Embedding.Dims, embedTimeout)
		fmt.Fprintf(os.Stderr, "  embedder: ollama (%s)\n", cfg.Embedding.Model)
	} else {
		embedder = embedding.NewTFIDFEmbedder(reg, 512)
		fmt.Fprintf(os.Stderr, "  embedder: tfidf (fallback)\n")
	}

	var matchEmbedder embedding.Embedder
	if cfg.Matcher.Mode == "embedding" {
		matchEmbedder = embedder
	}
	m := matcher.New(reg, orc, matchEmbedder, cfg.Matcher, log)

	timeout := time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second
	eng := engine.New(db, reg, m, orc, cfg.Update, timeout, log)
	miner := evolve.NewMiner(db, reg, embedder, cfg.Evolution, log)

	var mapper *affinity.Mapper
	if cfg.Affinity.TaxonomyPath != "" {
		tax, err := affinity.Load(cfg.Affinity.TaxonomyPath)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("load taxonomy: %w", err)
		}
		mapper = affinity.NewMapper(db, reg, tax, embedder, cfg.Affinity, log)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		closeLog: closeLog,
		db:       db,
		reg:      reg,
		engine:   eng,
		miner:    miner,
		mapper:   mapper,
		embedder: embedder,
	}, nil
}

func (a *app) Close() {
	a.db.Close()
	a.closeLog()
}
