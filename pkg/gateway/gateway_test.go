package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/castlegate-ai/castlegate/pkg/audit"
	"github.com/castlegate-ai/castlegate/pkg/blobcache"
	"github.com/castlegate-ai/castlegate/pkg/commentary"
	"github.com/castlegate-ai/castlegate/pkg/config"
	"github.com/castlegate-ai/castlegate/pkg/models"
	"github.com/castlegate-ai/castlegate/pkg/speech"
	"github.com/castlegate-ai/castlegate/pkg/trial"
)

const midgameFEN = "r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R b KQkq - 3 3"

type stubEngine struct {
	analysis *models.Analysis
	err      error
	entered  chan struct{} // closed/sent when Analyze is called, optional
	release  chan struct{} // Analyze blocks until this is closed, optional
}

func (e *stubEngine) Analyze(ctx context.Context, fen string, depth int) (*models.Analysis, error) {
	if e.entered != nil {
		e.entered <- struct{}{}
	}
	if e.release != nil {
		<-e.release
	}
	if e.err != nil {
		return nil, e.err
	}
	a := *e.analysis
	a.Depth = depth
	return &a, nil
}

type stubSpeech struct {
	name string
}

func (p *stubSpeech) Name() string { return p.name }
func (p *stubSpeech) Synthesize(ctx context.Context, text string, opts speech.Options) ([]byte, error) {
	return []byte("audio:" + text), nil
}

type stubCommentaryClient struct{}

func (c *stubCommentaryClient) Complete(ctx context.Context, model string, messages []models.ChatMessage) (string, error) {
	return "A solid developing move.", nil
}

func newTestServer(t *testing.T, mutate func(*config.Config, *Deps)) *Server {
	t.Helper()
	cfg := config.Default()

	trials, err := trial.New("", trial.Options{Enabled: true, Duration: 30 * time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = trials.Close() })

	audio := blobcache.New(1 << 20)
	text := blobcache.New(64 << 10)
	gen := commentary.New(&stubCommentaryClient{}, nil, text, commentary.Options{RatePerMinute: 100, MaxChars: 400})

	deps := Deps{
		Trials:    trials,
		Generator: gen,
		Speech:    speech.New(&stubSpeech{name: "premium"}, &stubSpeech{name: "budget"}, audio, time.Second, 300),
		Engine:    &stubEngine{analysis: &models.Analysis{BestMove: "g8f6", Score: intp(15)}},
		Audio:     audio,
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}
	return New(cfg, deps)
}

func intp(v int) *int { return &v }

func doJSON(t *testing.T, s *Server, method, path string, body any, session string) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, r)
	if session != "" {
		req.Header.Set("X-Chess-Session", session)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestPlanEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodGet, "/plan?plan=pro", nil, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}

	var resp models.PlanResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Plan != models.PlanPro {
		t.Errorf("expected pro, got %s", resp.Plan)
	}
	if resp.Config.EngineDepth != 22 {
		t.Errorf("expected depth 22, got %d", resp.Config.EngineDepth)
	}
	if !resp.Trial.Eligible {
		t.Error("fresh identity should be trial eligible")
	}
}

func TestPlanUnknownTier(t *testing.T) {
	s := newTestServer(t, nil)
	w := doJSON(t, s, http.MethodGet, "/plan?plan=platinum", nil, "alice")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// Free caller asks for pro depth: the first request consumes the daily
// trial, the second is refused, a plain request still works.
func TestAnalyzeTrialFlow(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodPost, "/analyze?plan=free",
		models.AnalyzeRequest{FEN: midgameFEN, Depth: intp(22)}, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var resp models.AnalyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.TrialUsed {
		t.Error("expected trialUsed on first deep analysis")
	}
	if resp.Depth != 22 {
		t.Errorf("expected depth 22, got %d", resp.Depth)
	}
	if resp.BestMove != "g8f6" {
		t.Errorf("expected engine best move, got %q", resp.BestMove)
	}

	w = doJSON(t, s, http.MethodPost, "/analyze?plan=free",
		models.AnalyzeRequest{FEN: midgameFEN, Depth: intp(22)}, "alice")
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", w.Code, w.Body)
	}
	var denied models.TrialDenied
	if err := json.Unmarshal(w.Body.Bytes(), &denied); err != nil {
		t.Fatal(err)
	}
	if denied.Reason != "TRIAL_ENDED" {
		t.Errorf("expected TRIAL_ENDED, got %q", denied.Reason)
	}
	if denied.RequiredPlan != models.PlanPro {
		t.Errorf("expected required plan pro, got %s", denied.RequiredPlan)
	}

	w = doJSON(t, s, http.MethodPost, "/analyze?plan=free",
		models.AnalyzeRequest{FEN: midgameFEN}, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for plan-depth analysis, got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TrialUsed {
		t.Error("plan-depth analysis must not consume the trial")
	}
	if resp.Depth != 12 {
		t.Errorf("expected free depth 12, got %d", resp.Depth)
	}
}

func TestAnalyzeDepthWithinPlan(t *testing.T) {
	s := newTestServer(t, nil)

	// Pro callers get pro depth without touching the trial.
	w := doJSON(t, s, http.MethodPost, "/analyze?plan=pro",
		models.AnalyzeRequest{FEN: midgameFEN, Depth: intp(18)}, "bob")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var resp models.AnalyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TrialUsed {
		t.Error("within-plan depth must not consume the trial")
	}
	if resp.Depth != 18 {
		t.Errorf("expected requested depth 18, got %d", resp.Depth)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodPost, "/analyze", models.AnalyzeRequest{}, "alice")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing fen, got %d", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/analyze",
		models.AnalyzeRequest{FEN: midgameFEN, Depth: intp(99)}, "alice")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for impossible depth, got %d", w.Code)
	}
}

func TestAnalyzeEngineDownStillResponds(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config, deps *Deps) {
		deps.Engine = &stubEngine{err: context.DeadlineExceeded}
	})

	w := doJSON(t, s, http.MethodPost, "/analyze",
		models.AnalyzeRequest{FEN: midgameFEN}, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite engine failure, got %d", w.Code)
	}
	var resp models.AnalyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.BestMove != "" || resp.Score != nil {
		t.Error("expected no engine fields when engine is down")
	}
}

func TestAnalyzeConcurrencyCap(t *testing.T) {
	eng := &stubEngine{
		analysis: &models.Analysis{BestMove: "e7e5"},
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	s := newTestServer(t, func(cfg *config.Config, deps *Deps) {
		cfg.Plans.Free.MaxConcurrentAnalysis = 1
		deps.Engine = eng
	})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- doJSON(t, s, http.MethodPost, "/analyze",
			models.AnalyzeRequest{FEN: midgameFEN}, "alice")
	}()
	<-eng.entered // first request holds the slot inside the engine call

	w := doJSON(t, s, http.MethodPost, "/analyze",
		models.AnalyzeRequest{FEN: midgameFEN}, "bob")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 while slot held, got %d", w.Code)
	}

	close(eng.release)
	if first := <-done; first.Code != http.StatusOK {
		t.Errorf("expected first request to finish with 200, got %d", first.Code)
	}
}

// A deep request rejected for concurrency must leave the caller's daily
// trial untouched; the retry after the slot frees still gets the trial.
func TestRejectedAnalysisKeepsTrial(t *testing.T) {
	eng := &stubEngine{
		analysis: &models.Analysis{BestMove: "e7e5"},
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	var trials *trial.Manager
	s := newTestServer(t, func(cfg *config.Config, deps *Deps) {
		cfg.Plans.Free.MaxConcurrentAnalysis = 1
		deps.Engine = eng
		trials = deps.Trials
	})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- doJSON(t, s, http.MethodPost, "/analyze",
			models.AnalyzeRequest{FEN: midgameFEN}, "bob")
	}()
	<-eng.entered

	w := doJSON(t, s, http.MethodPost, "/analyze?plan=free",
		models.AnalyzeRequest{FEN: midgameFEN, Depth: intp(22)}, "alice")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 while slot held, got %d", w.Code)
	}
	if !trials.IsEligible("alice") {
		t.Fatal("429 response must not consume the trial")
	}

	close(eng.release)
	<-done

	w = doJSON(t, s, http.MethodPost, "/analyze?plan=free",
		models.AnalyzeRequest{FEN: midgameFEN, Depth: intp(22)}, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after slot freed, got %d: %s", w.Code, w.Body)
	}
	var resp models.AnalyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.TrialUsed {
		t.Error("expected the retry to consume the trial")
	}
}

func TestRejectionsAreAudited(t *testing.T) {
	auditor, err := audit.New(models.AuditConfig{
		Enabled: true,
		DBPath:  filepath.Join(t.TempDir(), "audit.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = auditor.Close() })

	s := newTestServer(t, func(cfg *config.Config, deps *Deps) {
		deps.Auditor = auditor
	})

	w := doJSON(t, s, http.MethodPost, "/analyze", models.AnalyzeRequest{}, "alice")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	// The audit write is fire-and-forget; poll briefly for it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := auditor.Query(context.Background(), models.AuditQueryOpts{Path: "invalid_request"})
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) == 1 {
			if entries[0].StatusCode != http.StatusBadRequest {
				t.Errorf("expected status 400 in audit entry, got %d", entries[0].StatusCode)
			}
			if entries[0].Route != "/analyze" {
				t.Errorf("expected /analyze route, got %q", entries[0].Route)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("rejected request never reached the audit log")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMoveAnalysis(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodPost, "/analysis/move", models.MoveAnalysisRequest{
		MoveNumber: 3,
		Move:       "c6e5",
		FEN:        midgameFEN,
		Settings:   models.MoveSettings{Plan: models.PlanPro, Language: "en", Mode: "beginner"},
	}, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}

	var resp models.MoveAnalysisResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Analysis == "" {
		t.Error("expected commentary text")
	}
	if resp.AudioURL == "" {
		t.Fatal("expected an audio URL")
	}
	if !strings.HasPrefix(resp.AudioURL, "/audio/") {
		t.Fatalf("unexpected audio URL %q", resp.AudioURL)
	}

	// The audio URL serves the synthesized payload back.
	aw := doJSON(t, s, http.MethodGet, resp.AudioURL, nil, "alice")
	if aw.Code != http.StatusOK {
		t.Fatalf("expected 200 from audio endpoint, got %d", aw.Code)
	}
	if aw.Header().Get("Content-Type") != "audio/mpeg" {
		t.Errorf("unexpected content type %q", aw.Header().Get("Content-Type"))
	}
	if aw.Body.Len() == 0 {
		t.Error("expected audio bytes")
	}
}

func TestMoveAnalysisMuted(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodPost, "/analysis/move", models.MoveAnalysisRequest{
		MoveNumber: 3,
		Move:       "c6e5",
		FEN:        midgameFEN,
		Muted:      true,
	}, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp models.MoveAnalysisResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.AudioURL != "" {
		t.Errorf("muted request must not carry an audio URL, got %q", resp.AudioURL)
	}
}

func TestMoveAnalysisValidation(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodPost, "/analysis/move",
		models.MoveAnalysisRequest{Move: "e2e4"}, "alice")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing fen, got %d", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/analysis/move", models.MoveAnalysisRequest{
		Move: "e2e4", FEN: midgameFEN,
		Settings: models.MoveSettings{Plan: "diamond"},
	}, "alice")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown plan, got %d", w.Code)
	}
}

func TestTrialStartEndpoint(t *testing.T) {
	var trials *trial.Manager
	s := newTestServer(t, func(cfg *config.Config, deps *Deps) { trials = deps.Trials })

	w := doJSON(t, s, http.MethodPost, "/trial/start", nil, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var info models.TrialInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.StartTime == nil {
		t.Error("expected a start time after starting the trial")
	}

	// Restarting an active window overwrites today's record and is
	// still a 200; only an exhausted trial is refused.
	w = doJSON(t, s, http.MethodPost, "/trial/start", nil, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for restart of active window, got %d", w.Code)
	}

	trials.MarkUsed("alice")
	w = doJSON(t, s, http.MethodPost, "/trial/start", nil, "alice")
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 once the trial is spent, got %d", w.Code)
	}
}

func TestAudioMissing(t *testing.T) {
	s := newTestServer(t, nil)
	w := doJSON(t, s, http.MethodGet, "/audio/deadbeef", nil, "alice")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	w := doJSON(t, s, http.MethodGet, "/healthz", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status["status"] != "ok" {
		t.Errorf("unexpected status %q", status["status"])
	}
}

func TestIdentityFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/plan", nil)
	req.RemoteAddr = "203.0.113.7:4921"
	if id := extractIdentity(req); id != "203.0.113.7" {
		t.Errorf("expected remote host identity, got %q", id)
	}

	req.Header.Set("X-Chess-Session", "sess-1")
	if id := extractIdentity(req); id != "sess-1" {
		t.Errorf("expected session identity, got %q", id)
	}
}
