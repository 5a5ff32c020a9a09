// Package store puts the primary persistent store and the local SQLite
// fallback behind one contract, selecting between them with a health
// probe so callers stay agnostic to which backend served them.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/castlegate-ai/castlegate/pkg/models"
)

// Provider identifies which backend served a request.
type Provider string

const (
	ProviderPrimary  Provider = "primary"
	ProviderFallback Provider = "fallback"
)

// Store is the read/write contract both backends implement.
type Store interface {
	// Ping is the lightweight liveness read used by the failover probe.
	Ping(ctx context.Context) error

	SaveGame(ctx context.Context, g models.Game) (int64, error)
	ListGames(ctx context.Context, identity string, limit int) ([]models.Game, error)
	SaveAnalysis(ctx context.Context, rec models.AnalysisRecord) (int64, error)
	ListAnalyses(ctx context.Context, identity string, limit int) ([]models.AnalysisRecord, error)
	GetSettings(ctx context.Context, identity string) (*models.Settings, error)
	SaveSettings(ctx context.Context, s models.Settings) error
	ListPuzzles(ctx context.Context, limit int) ([]models.Puzzle, error)
	SavePuzzleAttempt(ctx context.Context, a models.PuzzleAttempt) (int64, error)
	Close() error
}

// FailoverOptions tunes the probe. ReprobeAfter of zero keeps failover
// sticky until process restart; a positive value lets the primary be
// probed again once the interval has elapsed since the failure.
type FailoverOptions struct {
	ProbeTimeout time.Duration
	ReprobeAfter time.Duration
	Now          func() time.Time // nil for time.Now
}

// Failover selects between the primary and fallback stores. The health
// flag is process-wide: once flipped unhealthy, requests go straight to
// the fallback without probing (until ReprobeAfter, if configured).
type Failover struct {
	mu       sync.Mutex
	primary  Store
	fallback Store
	healthy  bool
	failedAt time.Time

	probeTimeout time.Duration
	reprobeAfter time.Duration
	now          func() time.Time
}

// NewFailover wraps the two backends. primary may be nil when no primary
// store is configured, in which case the fallback always serves.
func NewFailover(primary, fallback Store, opts FailoverOptions) *Failover {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Failover{
		primary:      primary,
		fallback:     fallback,
		healthy:      true,
		probeTimeout: opts.ProbeTimeout,
		reprobeAfter: opts.ReprobeAfter,
		now:          opts.Now,
	}
}

// Get returns the store to use for this request and which provider it
// is. While healthy, every call probes the primary; a failed probe flips
// the flag and serves the fallback.
func (f *Failover) Get(ctx context.Context) (Store, Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.primary == nil {
		return f.fallback, ProviderFallback
	}

	if !f.healthy {
		if f.reprobeAfter <= 0 || f.now().Sub(f.failedAt) < f.reprobeAfter {
			return f.fallback, ProviderFallback
		}
		log.Info("re-probing primary store", "after", f.reprobeAfter)
	}

	pctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	if err := f.primary.Ping(pctx); err != nil {
		if f.healthy {
			log.Warn("primary store unhealthy, switching to fallback", "err", err)
		}
		f.healthy = false
		f.failedAt = f.now()
		return f.fallback, ProviderFallback
	}

	if !f.healthy {
		log.Info("primary store recovered")
	}
	f.healthy = true
	return f.primary, ProviderPrimary
}

// Current reports the last-known provider without probing.
func (f *Failover) Current() Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.primary == nil || !f.healthy {
		return ProviderFallback
	}
	return ProviderPrimary
}

// Close releases both backends.
func (f *Failover) Close() error {
	var err error
	if f.primary != nil {
		err = f.primary.Close()
	}
	if cerr := f.fallback.Close(); err == nil {
		err = cerr
	}
	return err
}
