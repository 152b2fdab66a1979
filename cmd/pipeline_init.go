package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/clearclaim/docintel/internal/extract"
	"github.com/clearclaim/docintel/internal/gate"
	"github.com/clearclaim/docintel/internal/knowledge"
	"github.com/clearclaim/docintel/internal/pipeline"
	"github.com/clearclaim/docintel/internal/store"
	anthropicpkg "github.com/clearclaim/docintel/pkg/anthropic"
)

// pipelineEnv holds the initialized store, catalog, and runner needed by the
// process/batch/serve commands.
type pipelineEnv struct {
	Store   store.Store
	Matcher *knowledge.Matcher
	Runner  *pipeline.Runner
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "docintel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, loads the rule catalog, and builds the
// Runner. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (DOCINTEL_ANTHROPIC_KEY)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	catalog, err := knowledge.Load()
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load rule catalog")
	}
	matcher, err := knowledge.NewMatcher(catalog)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "build rule matcher")
	}

	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	extractor := extract.New(client, matcher, extract.Config{
		Model:             cfg.Anthropic.Model,
		MaxTokens:         cfg.Extract.MaxTokens,
		RequestsPerSecond: cfg.Extract.RequestsPerSecond,
		MaxAttempts:       cfg.Extract.MaxAttempts,
		PolicyMaxAttempts: cfg.Extract.PolicyMaxAttempts,
	})

	billing := gate.New(st, time.Duration(cfg.Gate.CacheTTLMinutes)*time.Minute)
	runner := pipeline.New(st, extractor, matcher, billing)

	return &pipelineEnv{
		Store:   st,
		Matcher: matcher,
		Runner:  runner,
	}, nil
}
