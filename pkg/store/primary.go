package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/castlegate-ai/castlegate/pkg/models"
)

// PrimaryStore is the REST client for the hosted storage service.
type PrimaryStore struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewPrimary creates a client for the storage service at baseURL.
// It returns nil when no URL is configured.
func NewPrimary(baseURL, apiKey string) *PrimaryStore {
	if baseURL == "" {
		return nil
	}
	return &PrimaryStore{baseURL: baseURL, apiKey: apiKey, httpc: http.DefaultClient}
}

// savedID is the response shape of every save endpoint.
type savedID struct {
	ID int64 `json:"id"`
}

// doJSON issues one request against the storage service. out may be nil
// for calls whose body is ignored.
func (p *PrimaryStore) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal store request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create store request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("storage service returned %d for %s %s", resp.StatusCode, method, path)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode store response: %w", err)
	}
	return nil
}

var errNotFound = fmt.Errorf("not found")

// Ping performs the lightweight liveness read.
func (p *PrimaryStore) Ping(ctx context.Context) error {
	return p.doJSON(ctx, http.MethodGet, "/v1/health", nil, nil)
}

func (p *PrimaryStore) SaveGame(ctx context.Context, g models.Game) (int64, error) {
	var saved savedID
	if err := p.doJSON(ctx, http.MethodPost, "/v1/games", g, &saved); err != nil {
		return 0, fmt.Errorf("save game: %w", err)
	}
	return saved.ID, nil
}

func (p *PrimaryStore) ListGames(ctx context.Context, identity string, limit int) ([]models.Game, error) {
	var games []models.Game
	path := "/v1/games?identity=" + url.QueryEscape(identity) + "&limit=" + strconv.Itoa(limit)
	if err := p.doJSON(ctx, http.MethodGet, path, nil, &games); err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

func (p *PrimaryStore) SaveAnalysis(ctx context.Context, rec models.AnalysisRecord) (int64, error) {
	var saved savedID
	if err := p.doJSON(ctx, http.MethodPost, "/v1/analyses", rec, &saved); err != nil {
		return 0, fmt.Errorf("save analysis: %w", err)
	}
	return saved.ID, nil
}

func (p *PrimaryStore) ListAnalyses(ctx context.Context, identity string, limit int) ([]models.AnalysisRecord, error) {
	var recs []models.AnalysisRecord
	path := "/v1/analyses?identity=" + url.QueryEscape(identity) + "&limit=" + strconv.Itoa(limit)
	if err := p.doJSON(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return recs, nil
}

func (p *PrimaryStore) GetSettings(ctx context.Context, identity string) (*models.Settings, error) {
	var s models.Settings
	err := p.doJSON(ctx, http.MethodGet, "/v1/settings/"+url.PathEscape(identity), nil, &s)
	if err == errNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &s, nil
}

func (p *PrimaryStore) SaveSettings(ctx context.Context, s models.Settings) error {
	if err := p.doJSON(ctx, http.MethodPut, "/v1/settings/"+url.PathEscape(s.Identity), s, nil); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (p *PrimaryStore) ListPuzzles(ctx context.Context, limit int) ([]models.Puzzle, error) {
	var puzzles []models.Puzzle
	if err := p.doJSON(ctx, http.MethodGet, "/v1/puzzles?limit="+strconv.Itoa(limit), nil, &puzzles); err != nil {
		return nil, fmt.Errorf("list puzzles: %w", err)
	}
	return puzzles, nil
}

func (p *PrimaryStore) SavePuzzleAttempt(ctx context.Context, a models.PuzzleAttempt) (int64, error) {
	var saved savedID
	if err := p.doJSON(ctx, http.MethodPost, "/v1/attempts", a, &saved); err != nil {
		return 0, fmt.Errorf("save attempt: %w", err)
	}
	return saved.ID, nil
}

// Close is a no-op for the HTTP client.
func (p *PrimaryStore) Close() error { return nil }
