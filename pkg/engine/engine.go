// Package engine talks to the external chess analysis service. The
// service owns move legality and position semantics; callers here only
// ask for an evaluation at a given depth.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/castlegate-ai/castlegate/pkg/models"
)

// Analyzer evaluates a position to a given search depth.
type Analyzer interface {
	Analyze(ctx context.Context, fen string, depth int) (*models.Analysis, error)
}

// HTTPAnalyzer calls a remote engine service over its REST API.
type HTTPAnalyzer struct {
	baseURL string
	client  *http.Client
}

// NewHTTP returns an analyzer for the engine at baseURL. Returns nil
// when no URL is configured.
func NewHTTP(baseURL string, timeout time.Duration) *HTTPAnalyzer {
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPAnalyzer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	FEN   string `json:"fen"`
	Depth int    `json:"depth"`
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, fen string, depth int) (*models.Analysis, error) {
	body, err := json.Marshal(analyzeRequest{FEN: fen, Depth: depth})
	if err != nil {
		return nil, fmt.Errorf("marshaling engine request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, string(data))
	}

	var analysis models.Analysis
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return nil, fmt.Errorf("decoding engine response: %w", err)
	}
	return &analysis, nil
}
