package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProvider delegates chat completion to an opaque HTTP endpoint: the
// daemon sees text in, text out, and never a provider wire format.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
}

// NewHTTPProvider creates a provider posting to the given endpoint.
func NewHTTPProvider(endpoint string) *HTTPProvider {
	return &HTTPProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

type chatRequest struct {
	System      string  `json:"system,omitempty"`
	User        string  `json:"user"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// ChatWithSystem implements Provider.
func (p *HTTPProvider) ChatWithSystem(ctx context.Context, system, user, model string, temperature float64) (string, error) {
	payload, err := json.Marshal(chatRequest{
		System:      system,
		User:        user,
		Model:       model,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", p.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned %d", resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("provider error: %s", decoded.Error)
	}
	return decoded.Text, nil
}
