// Package commentary produces move commentary while keeping generation
// costs bounded: canned templates and a triviality classifier short-
// circuit easy positions, a two-tier memo avoids repeat calls, and a
// trailing-window rate limiter caps what remains.
package commentary

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/castlegate-ai/castlegate/pkg/blobcache"
	"github.com/castlegate-ai/castlegate/pkg/memo"
	"github.com/castlegate-ai/castlegate/pkg/models"
)

// Resolution paths, recorded in the audit log.
const (
	PathCanned      = "canned"
	PathTrivial     = "trivial"
	PathMemo        = "memo"
	PathRateLimited = "rate_limited"
	PathGenerated   = "generated"
	PathFallback    = "generation_failed"
)

// Client calls the external text-generation capability.
type Client interface {
	Complete(ctx context.Context, model string, messages []models.ChatMessage) (string, error)
}

// Request describes one commentary lookup.
type Request struct {
	FEN      string
	Move     string
	Language string
	Mode     string // audience mode: beginner or expert
	Score    *int   // centipawns, from the engine
	Mate     *int   // moves to mate, when forced
	Model    string // generation model for the caller's plan
}

// Result is commentary text plus the path that produced it.
type Result struct {
	Text string
	Path string
}

// Options tunes a Generator.
type Options struct {
	RatePerMinute int              // generation-call ceiling per trailing 60s
	MaxChars      int              // truncation limit for generated text
	Now           func() time.Time // nil for time.Now
}

// Generator resolves commentary requests through the documented decision
// order. It never returns an error: every failure degrades to a usable
// fallback string.
type Generator struct {
	client   Client
	memo     *memo.Store
	text     *blobcache.Cache
	window   *RateWindow
	maxChars int

	mu          sync.Mutex
	fallbackIdx int
}

// rateLimitedFallback is returned when the trailing window is at its
// ceiling; it consumes no slot.
const rateLimitedFallback = "A reasonable continuation. Keep an eye on piece activity and king safety."

// fallbacks rotate across failed generation calls so repeated outages do
// not read as a stuck UI.
var fallbacks = []string{
	"A solid practical choice in this position.",
	"This keeps the position balanced and flexible.",
	"A reasonable move; the plans for both sides stay intact.",
	"Playable. Watch the central tension on the next few moves.",
}

// New creates a Generator. memoStore and textCache may each be nil, in
// which case that memo tier is skipped.
func New(client Client, memoStore *memo.Store, textCache *blobcache.Cache, opts Options) *Generator {
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 2
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 400
	}
	return &Generator{
		client:   client,
		memo:     memoStore,
		text:     textCache,
		window:   NewRateWindow(opts.RatePerMinute, time.Minute, opts.Now),
		maxChars: opts.MaxChars,
	}
}

// Window exposes the trailing rate window, for stats and tests.
func (g *Generator) Window() *RateWindow {
	return g.window
}

// Commentary resolves a request, stopping at the first applicable step:
// canned template, triviality, memo, rate ceiling, generation call.
func (g *Generator) Commentary(ctx context.Context, req Request) Result {
	fp := Fingerprint(req.FEN)

	if text, ok := cannedFor(fp, req.Language, req.Mode); ok {
		return Result{Text: text, Path: PathCanned}
	}

	if trivial(req) {
		return Result{Text: trivialText(req), Path: PathTrivial}
	}

	key := memo.Key(fp, req.Language, req.Mode, req.Move)
	if text, ok := g.memoGet(key); ok {
		return Result{Text: text, Path: PathMemo}
	}

	// Reserve the call slot before dispatch so interleaved requests see it.
	if !g.window.Reserve() {
		return Result{Text: rateLimitedFallback, Path: PathRateLimited}
	}

	text, err := g.client.Complete(ctx, req.Model, buildMessages(req))
	if err != nil {
		log.Warn("commentary generation failed, serving fallback", "err", err)
		return Result{Text: g.nextFallback(), Path: PathFallback}
	}

	text = truncate(scrubEvaluations(text), g.maxChars)
	g.memoPut(key, text)
	return Result{Text: text, Path: PathGenerated}
}

// memoGet checks the hot text cache first, then the durable store,
// re-warming the hot tier on a durable hit.
func (g *Generator) memoGet(key string) (string, bool) {
	cacheKey := "memo:" + key
	if g.text != nil {
		if b, ok := g.text.Get(cacheKey); ok {
			return string(b), true
		}
	}
	if g.memo != nil {
		if text, ok := g.memo.Get(key); ok {
			if g.text != nil {
				_ = g.text.Set(cacheKey, []byte(text))
			}
			return text, true
		}
	}
	return "", false
}

func (g *Generator) memoPut(key, text string) {
	if g.text != nil {
		_ = g.text.Set("memo:"+key, []byte(text))
	}
	if g.memo != nil {
		if err := g.memo.Put(key, text); err != nil {
			log.Warn("memo write failed", "err", err)
		}
	}
}

func (g *Generator) nextFallback() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	text := fallbacks[g.fallbackIdx%len(fallbacks)]
	g.fallbackIdx++
	return text
}

func buildMessages(req Request) []models.ChatMessage {
	system := "You are a chess coach. Comment on the move in one or two sentences for a beginner. Plain language, no engine numbers."
	if req.Mode == "expert" {
		system = "You are a chess commentator for strong players. One or two dense sentences on the move's idea. No engine numbers."
	}
	if req.Language != "" && req.Language != "en" {
		system += " Respond in language code: " + req.Language + "."
	}

	user := fmt.Sprintf("Position (FEN): %s\nRecommended move: %s", req.FEN, req.Move)
	return []models.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}
