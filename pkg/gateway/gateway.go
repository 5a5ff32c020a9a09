// Package gateway is the HTTP request path: plan resolution, trial
// gating, engine calls, commentary, speech, and persistence glue.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/castlegate-ai/castlegate/pkg/audit"
	"github.com/castlegate-ai/castlegate/pkg/blobcache"
	"github.com/castlegate-ai/castlegate/pkg/commentary"
	"github.com/castlegate-ai/castlegate/pkg/config"
	"github.com/castlegate-ai/castlegate/pkg/engine"
	"github.com/castlegate-ai/castlegate/pkg/models"
	"github.com/castlegate-ai/castlegate/pkg/speech"
	"github.com/castlegate-ai/castlegate/pkg/store"
	"github.com/castlegate-ai/castlegate/pkg/trial"
)

// Deps bundles the backends the server is wired with. Engine, Speech
// and Auditor may be nil; the corresponding features degrade quietly.
type Deps struct {
	Trials    *trial.Manager
	Generator *commentary.Generator
	Speech    *speech.Selector
	Stores    *store.Failover
	Engine    engine.Analyzer
	Auditor   *audit.Logger
	Audio     *blobcache.Cache
}

// Server is the castlegate HTTP gateway.
type Server struct {
	cfg  *config.Config
	deps Deps
	sems map[models.PlanTier]chan struct{}
	mux  *http.ServeMux
}

// New creates a gateway Server wired with all dependencies.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		sems: make(map[models.PlanTier]chan struct{}),
		mux:  http.NewServeMux(),
	}
	for _, tier := range []models.PlanTier{models.PlanFree, models.PlanPro, models.PlanElite} {
		if n := cfg.PlanFor(tier).MaxConcurrentAnalysis; n > 0 {
			s.sems[tier] = make(chan struct{}, n)
		}
	}
	s.mux.HandleFunc("/plan", s.handlePlan)
	s.mux.HandleFunc("/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/analysis/move", s.handleMove)
	s.mux.HandleFunc("/trial/start", s.handleTrialStart)
	s.mux.HandleFunc("/audio/", s.handleAudio)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the gateway with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("castlegate gateway listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	plan, ok := planParam(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "unknown plan")
		return
	}
	identity := extractIdentity(r)

	writeJSON(w, http.StatusOK, models.PlanResponse{
		Plan:   plan,
		Trial:  s.deps.Trials.Info(identity),
		Config: s.cfg.PlanFor(plan),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	reqStart := time.Now()

	identity := extractIdentity(r)

	plan, ok := planParam(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "unknown plan")
		s.audit(r, "/analyze", identity, plan, "invalid_request", "", "", http.StatusBadRequest, reqStart)
		return
	}

	var req models.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		s.audit(r, "/analyze", identity, plan, "invalid_request", "", "", http.StatusBadRequest, reqStart)
		return
	}
	if strings.TrimSpace(req.FEN) == "" {
		writeJSONError(w, http.StatusBadRequest, "fen is required")
		s.audit(r, "/analyze", identity, plan, "invalid_request", "", "", http.StatusBadRequest, reqStart)
		return
	}

	planCfg := s.cfg.PlanFor(plan)
	depth := planCfg.EngineDepth
	model := planCfg.GenerationModel

	var overPlan models.PlanTier
	if req.Depth != nil && *req.Depth > 0 && *req.Depth != planCfg.EngineDepth {
		required, ok := s.cfg.RequiredTierForDepth(*req.Depth)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "requested depth exceeds every plan")
			s.audit(r, "/analyze", identity, plan, "invalid_request", "", "", http.StatusBadRequest, reqStart)
			return
		}
		if tierRank(required) > tierRank(plan) {
			overPlan = required
		}
		depth = *req.Depth
	}

	// The concurrency slot is taken before the trial is touched so a
	// 429 never spends the caller's once-per-day trial.
	release, ok := s.acquire(plan)
	if !ok {
		writeJSONError(w, http.StatusTooManyRequests, "too many concurrent analyses for plan")
		s.audit(r, "/analyze", identity, plan, "over_capacity", "", "", http.StatusTooManyRequests, reqStart)
		return
	}
	defer release()

	trialUsed := false
	if overPlan != "" {
		// A higher-tier depth consumes today's trial in full.
		if !s.deps.Trials.IsEligible(identity) {
			writeJSON(w, http.StatusPaymentRequired, models.TrialDenied{
				Reason:       "TRIAL_ENDED",
				Message:      fmt.Sprintf("depth %d requires the %s plan", depth, overPlan),
				CurrentPlan:  plan,
				RequiredPlan: overPlan,
			})
			s.audit(r, "/analyze", identity, plan, "trial_denied", "", "", http.StatusPaymentRequired, reqStart)
			return
		}
		s.deps.Trials.Start(identity)
		s.deps.Trials.MarkUsed(identity)
		trialUsed = true
		model = s.cfg.PlanFor(overPlan).GenerationModel
	}

	resp := models.AnalyzeResponse{
		Plan:      plan,
		Depth:     depth,
		Model:     model,
		TrialUsed: trialUsed,
	}

	if s.deps.Engine != nil {
		analysis, err := s.deps.Engine.Analyze(r.Context(), req.FEN, depth)
		if err != nil {
			log.Warn("engine analysis failed", "err", err)
		} else {
			resp.BestMove = analysis.BestMove
			resp.Score = analysis.Score
			resp.Mate = analysis.Mate
		}
	}

	writeJSON(w, http.StatusOK, resp)
	s.audit(r, "/analyze", identity, plan, "engine", "", "", http.StatusOK, reqStart)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	reqStart := time.Now()
	identity := extractIdentity(r)

	var req models.MoveAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.FEN) == "" || strings.TrimSpace(req.Move) == "" {
		writeJSONError(w, http.StatusBadRequest, "move and fen are required")
		return
	}

	plan := req.Settings.Plan
	if plan == "" {
		plan = models.PlanFree
	}
	if !plan.Valid() {
		writeJSONError(w, http.StatusBadRequest, "unknown plan")
		return
	}
	planCfg := s.cfg.PlanFor(plan)

	language := req.Settings.Language
	if language == "" {
		language = "en"
	}
	mode := req.Settings.Mode
	if mode == "" {
		mode = "beginner"
	}

	resp := models.MoveAnalysisResponse{
		MoveNumber: req.MoveNumber,
		Move:       req.Move,
		FEN:        req.FEN,
	}

	// Engine first; commentary degrades to templates when it is down.
	if s.deps.Engine != nil {
		analysis, err := s.deps.Engine.Analyze(r.Context(), req.FEN, planCfg.EngineDepth)
		if err != nil {
			log.Warn("engine analysis failed", "err", err)
		} else {
			resp.Score = analysis.Score
			resp.Mate = analysis.Mate
			resp.BestMove = analysis.BestMove
		}
	}

	result := s.deps.Generator.Commentary(r.Context(), commentary.Request{
		FEN:      req.FEN,
		Move:     req.Move,
		Language: language,
		Mode:     mode,
		Score:    resp.Score,
		Mate:     resp.Mate,
		Model:    planCfg.GenerationModel,
	})
	resp.Analysis = result.Text

	speechPath := "none"
	if !req.Muted && s.deps.Speech != nil {
		_, key, path, err := s.deps.Speech.Synthesize(r.Context(), result.Text, planCfg.SpeechProvider, speech.Options{
			Language: language,
			Mode:     mode,
		})
		speechPath = path
		if err != nil {
			log.Warn("speech synthesis failed", "err", err)
		} else {
			resp.AudioURL = "/audio/" + strings.TrimPrefix(key, "audio:")
		}
	}

	storeProvider := s.persistMove(r.Context(), identity, req, resp)

	writeJSON(w, http.StatusOK, resp)
	s.audit(r, "/analysis/move", identity, plan, result.Path, speechPath, storeProvider, http.StatusOK, reqStart)
}

// persistMove saves the analysis through the failover. Persistence
// failures never fail the request.
func (s *Server) persistMove(ctx context.Context, identity string, req models.MoveAnalysisRequest, resp models.MoveAnalysisResponse) string {
	if s.deps.Stores == nil {
		return ""
	}
	st, provider := s.deps.Stores.Get(ctx)
	_, err := st.SaveAnalysis(ctx, models.AnalysisRecord{
		Identity:   identity,
		MoveNumber: req.MoveNumber,
		Move:       req.Move,
		FEN:        req.FEN,
		Commentary: resp.Analysis,
		Score:      resp.Score,
		Mate:       resp.Mate,
		BestMove:   resp.BestMove,
	})
	if err != nil {
		log.Warn("saving analysis failed", "provider", provider, "err", err)
	}
	return string(provider)
}

func (s *Server) handleTrialStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	identity := extractIdentity(r)

	if !s.deps.Trials.Start(identity) {
		writeJSON(w, http.StatusConflict, models.TrialDenied{
			Reason:       "TRIAL_ENDED",
			Message:      "trial already used today",
			CurrentPlan:  models.PlanFree,
			RequiredPlan: models.PlanPro,
		})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Trials.Info(identity))
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Audio == nil {
		writeJSONError(w, http.StatusNotFound, "audio not found")
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/audio/")
	data, ok := s.deps.Audio.Get("audio:" + key)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "audio not found")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(data)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.deps.Stores != nil {
		status["store"] = string(s.deps.Stores.Current())
	}
	writeJSON(w, http.StatusOK, status)
}

// acquire takes a concurrency slot for the tier. The returned release
// is a no-op when the tier has no cap.
func (s *Server) acquire(tier models.PlanTier) (func(), bool) {
	sem, ok := s.sems[tier]
	if !ok {
		return func() {}, true
	}
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, true
	default:
		return nil, false
	}
}

func (s *Server) audit(r *http.Request, route, identity string, plan models.PlanTier, path, speechPath, storeProvider string, status int, start time.Time) {
	if s.deps.Auditor == nil {
		return
	}
	hash, prefix := audit.HashIdentity(identity)
	entry := models.AuditEntry{
		RequestID:      requestID(r),
		IdentityHash:   hash,
		IdentityPrefix: prefix,
		Route:          route,
		Plan:           plan,
		Path:           path,
		SpeechPath:     speechPath,
		StoreProvider:  storeProvider,
		StatusCode:     status,
		LatencyMs:      time.Since(start).Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	go func() {
		if err := s.deps.Auditor.Log(context.Background(), entry); err != nil {
			log.Warn("audit log error", "err", err)
		}
	}()
}

func tierRank(t models.PlanTier) int {
	switch t {
	case models.PlanElite:
		return 2
	case models.PlanPro:
		return 1
	default:
		return 0
	}
}

func planParam(r *http.Request) (models.PlanTier, bool) {
	raw := r.URL.Query().Get("plan")
	if raw == "" {
		return models.PlanFree, true
	}
	plan := models.PlanTier(raw)
	return plan, plan.Valid()
}

// extractIdentity resolves the caller identity from the session header,
// falling back to the remote address.
func extractIdentity(r *http.Request) string {
	if session := r.Header.Get("X-Chess-Session"); session != "" {
		return session
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"code":%d}}`, message, code)
}
