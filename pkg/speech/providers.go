package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// PremiumProvider calls the cloned-voice synthesis API.
type PremiumProvider struct {
	url     string
	apiKey  string
	voiceID string
	httpc   *http.Client
}

// NewPremiumProvider returns nil when the API key is missing, which
// silently forces budget-provider-only behavior.
func NewPremiumProvider(url, apiKey, voiceID string) *PremiumProvider {
	if apiKey == "" {
		return nil
	}
	return &PremiumProvider{url: url, apiKey: apiKey, voiceID: voiceID, httpc: http.DefaultClient}
}

func (p *PremiumProvider) Name() string { return "premium" }

// Synthesize posts text to the cloned-voice endpoint and returns raw
// audio bytes.
func (p *PremiumProvider) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"text":     text,
		"voice_id": p.voiceID,
		"language": opts.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal premium request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/v1/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create premium request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("premium provider returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// BudgetProvider calls the plain TTS API.
type BudgetProvider struct {
	url   string
	httpc *http.Client
}

// NewBudgetProvider creates the budget synthesis client.
func NewBudgetProvider(url string) *BudgetProvider {
	return &BudgetProvider{url: url, httpc: http.DefaultClient}
}

func (p *BudgetProvider) Name() string { return "budget" }

// Synthesize posts text to the budget TTS endpoint and returns raw audio
// bytes.
func (p *BudgetProvider) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"text": text,
		"lang": opts.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal budget request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/tts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create budget request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("budget provider returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
