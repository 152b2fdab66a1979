// Package gate answers billing eligibility questions for the pipeline.
package gate

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"

	"github.com/clearclaim/docintel/internal/store"
)

const (
	defaultTTL     = 10 * time.Minute
	cleanupEvery   = 30 * time.Minute
	completedValue = true
)

// Gate decides whether a tenant's next run is billable. The first completed
// run per tenant is free; every run after that is charged. The actual charge
// is raised by the caller, the gate only reports eligibility.
type Gate struct {
	store store.Store
	memo  *gocache.Cache
}

// New builds a Gate over the given store. ttl bounds how long a positive
// "has completed" answer is memoized; zero uses the default.
func New(s store.Store, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Gate{
		store: s,
		memo:  gocache.New(ttl, cleanupEvery),
	}
}

// FirstUseFree reports whether the tenant's next completed run should be
// free of charge. Only positive completion answers are cached: a tenant that
// has completed a run stays billable forever, while a fresh tenant is
// re-checked on every call so a just-finished run flips the answer promptly.
func (g *Gate) FirstUseFree(ctx context.Context, tenantID string) (bool, error) {
	if tenantID == "" {
		return false, eris.New("gate: empty tenant id")
	}

	if _, found := g.memo.Get(tenantID); found {
		return false, nil
	}

	completed, err := g.store.HasCompletedRun(ctx, tenantID)
	if err != nil {
		return false, eris.Wrap(err, "gate: completion lookup")
	}
	if completed {
		g.memo.Set(tenantID, completedValue, gocache.DefaultExpiration)
		return false, nil
	}
	return true, nil
}

// MarkCompleted records a completion locally so the next FirstUseFree call
// does not need a store round trip. Called by the pipeline after SaveFinal.
func (g *Gate) MarkCompleted(tenantID string) {
	if tenantID == "" {
		return
	}
	g.memo.Set(tenantID, completedValue, gocache.DefaultExpiration)
}
