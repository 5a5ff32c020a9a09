package commentary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/castlegate-ai/castlegate/pkg/models"
)

// HTTPClient calls an OpenAI-compatible chat completion endpoint.
type HTTPClient struct {
	url    string
	apiKey string
	httpc  *http.Client
}

// NewHTTPClient creates a client for the given base URL and API key.
func NewHTTPClient(url, apiKey string) *HTTPClient {
	return &HTTPClient{url: url, apiKey: apiKey, httpc: http.DefaultClient}
}

// Complete sends a chat completion request and returns the first choice's
// content.
func (c *HTTPClient) Complete(ctx context.Context, model string, messages []models.ChatMessage) (string, error) {
	body, err := json.Marshal(models.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation upstream returned %d", resp.StatusCode)
	}

	var parsed models.ChatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse generation response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("generation response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
