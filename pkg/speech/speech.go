// Package speech selects between two synthesis backends: a premium
// cloned-voice provider raced against a hard timeout, and a budget
// provider used directly or as the fallback. Synthesized audio is kept
// in the byte-budgeted audio cache so identical text is never paid for
// twice.
package speech

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/castlegate-ai/castlegate/pkg/blobcache"
	"github.com/castlegate-ai/castlegate/pkg/models"
)

// Paths taken by a synthesis request, recorded in the audit log.
const (
	PathCached         = "cached"
	PathPremium        = "premium"
	PathBudget         = "budget"
	PathBudgetFallback = "budget_fallback"
	PathFailed         = "failed"
)

// ErrSynthesisFailed is returned when every applicable provider failed.
// Callers treat missing audio as soft degradation.
var ErrSynthesisFailed = errors.New("speech synthesis failed")

// Provider is one downstream synthesis backend.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string, opts Options) ([]byte, error)
}

// Options carry per-request synthesis parameters.
type Options struct {
	Language string
	Mode     string // audience mode, selects voice register
}

// Selector drives provider choice, the timeout race, and the audio cache.
// premium may be nil (missing credentials), forcing budget-only behavior.
type Selector struct {
	premium Provider
	budget  Provider
	audio   *blobcache.Cache
	timeout time.Duration
	maxText int
}

// New creates a Selector. audio may be nil to disable caching.
func New(premium, budget Provider, audio *blobcache.Cache, timeout time.Duration, maxTextChars int) *Selector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if maxTextChars <= 0 {
		maxTextChars = 300
	}
	return &Selector{
		premium: premium,
		budget:  budget,
		audio:   audio,
		timeout: timeout,
		maxText: maxTextChars,
	}
}

// CacheKey builds the audio cache key. It includes the provider name so
// outputs from different providers are never conflated.
func CacheKey(provider, language, mode, text string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(mode))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return fmt.Sprintf("audio:%x", h.Sum(nil))
}

// Synthesize produces audio for text under the plan's provider kind.
// It returns the audio, the cache key it was stored under, and the path
// taken. Text is truncated before any cache lookup or provider call.
func (s *Selector) Synthesize(ctx context.Context, text string, kind models.SpeechProviderKind, opts Options) (audio []byte, key, path string, err error) {
	text = truncate(text, s.maxText)

	provider := s.budget
	if kind == models.SpeechPremium && s.premium != nil {
		provider = s.premium
	}
	if provider == nil {
		return nil, "", PathFailed, ErrSynthesisFailed
	}

	key = CacheKey(provider.Name(), opts.Language, opts.Mode, text)
	if s.audio != nil {
		if b, ok := s.audio.Get(key); ok {
			return b, key, PathCached, nil
		}
	}

	if provider == s.premium {
		audio, err = s.racePremium(ctx, text, opts)
		path = PathPremium
		if err != nil {
			log.Warn("premium synthesis failed, falling back", "provider", s.premium.Name(), "err", err)
			if s.budget == nil {
				return nil, "", PathFailed, ErrSynthesisFailed
			}
			key = CacheKey(s.budget.Name(), opts.Language, opts.Mode, text)
			if s.audio != nil {
				if b, ok := s.audio.Get(key); ok {
					return b, key, PathCached, nil
				}
			}
			audio, err = s.budget.Synthesize(ctx, text, opts)
			path = PathBudgetFallback
		}
	} else {
		audio, err = provider.Synthesize(ctx, text, opts)
		path = PathBudget
	}

	if err != nil {
		log.Warn("speech synthesis failed", "path", path, "err", err)
		return nil, "", PathFailed, ErrSynthesisFailed
	}

	if s.audio != nil {
		if err := s.audio.Set(key, audio); err != nil {
			log.Warn("audio cache store failed", "err", err)
		}
	}
	return audio, key, path, nil
}

// racePremium runs the premium provider against the hard timeout; the
// first to settle wins. A timeout is the fallback signal, never an error
// surfaced to the caller.
func (s *Selector) racePremium(ctx context.Context, text string, opts Options) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		audio []byte
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		audio, err := s.premium.Synthesize(cctx, text, opts)
		ch <- result{audio, err}
	}()

	select {
	case r := <-ch:
		return r.audio, r.err
	case <-cctx.Done():
		return nil, fmt.Errorf("premium synthesis timed out after %v", s.timeout)
	}
}

// truncate limits text to max runes, bounding synthesis cost
// deterministically.
func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
