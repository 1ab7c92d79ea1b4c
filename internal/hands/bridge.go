package hands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ExecutionRequest is the payload delegated to the external agent endpoint.
// The endpoint is opaque to this core; it runs the agent loop and reports
// back.
type ExecutionRequest struct {
	Request string `json:"request"`
	Agent   string `json:"agent,omitempty"`
	Config  struct {
		AutonomyLevel  AutonomyLevel  `json:"autonomyLevel"`
		Unattended     bool           `json:"unattended"`
		ResourceBudget ResourceBudget `json:"resourceBudget"`
		EvolutionLoop  bool           `json:"enableEvolutionLoop"`
		WebSearch      bool           `json:"enableWebSearch"`
		MaxIterations  int            `json:"maxIterations,omitempty"`
	} `json:"config"`
	Context *ExecutionContext  `json:"context,omitempty"`
	Approve *AutoApproveConfig `json:"autoApproveConfig,omitempty"`
}

// ExecutionContext carries Hand identity and previous-run context to the
// endpoint.
type ExecutionContext struct {
	HandID          string           `json:"handId"`
	HandName        string           `json:"handName,omitempty"`
	PreviousResults []PreviousResult `json:"previousResults,omitempty"`
}

// PreviousResult is one prior execution outcome fed back as context.
type PreviousResult struct {
	Timestamp string `json:"timestamp"`
	Output    string `json:"output"`
	Success   bool   `json:"success"`
}

// ExecutionResult is the endpoint's report of one run.
type ExecutionResult struct {
	Success    bool    `json:"success"`
	Output     string  `json:"output"`
	DurationMs uint64  `json:"duration"`
	TokensUsed int     `json:"tokensUsed"`
	CostUSD    float64 `json:"costUSD"`
	Iterations int     `json:"iterationsCompleted"`
	Paused     bool    `json:"paused"`
	Error      string  `json:"error,omitempty"`
}

// ExecutionResponse is the endpoint's envelope.
type ExecutionResponse struct {
	Success   bool             `json:"success"`
	SessionID string           `json:"sessionId"`
	Result    *ExecutionResult `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Bridge is the HTTP client for the agent execution endpoint.
type Bridge struct {
	baseURL string
	client  *http.Client
}

// NewBridge creates a bridge to the endpoint at baseURL.
func NewBridge(baseURL string) *Bridge {
	return &Bridge{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Minute},
	}
}

// maxContentChars truncates Hand content in the delegated prompt.
const maxContentChars = 4000

// BuildRequest assembles the execution request for one Hand.
func BuildRequest(hand *Hand, previous []PreviousResult) *ExecutionRequest {
	content := hand.Content
	if len(content) > maxContentChars {
		content = content[:maxContentChars] + "\n[content truncated]"
	}

	prompt := hand.Name
	if content != "" {
		prompt = fmt.Sprintf("%s\n\n%s", hand.Name, content)
	}

	req := &ExecutionRequest{
		Request: prompt,
		Agent:   hand.Agent,
	}
	req.Config.AutonomyLevel = hand.Autonomy.Level
	req.Config.Unattended = hand.Autonomy.Unattended
	req.Config.ResourceBudget = hand.Budget
	req.Config.EvolutionLoop = hand.EvolutionLoop
	req.Config.WebSearch = hand.WebSearch
	req.Config.MaxIterations = hand.Autonomy.MaxIterations

	req.Context = &ExecutionContext{
		HandID:          hand.ID,
		HandName:        hand.Name,
		PreviousResults: previous,
	}

	approve := hand.Autonomy.AutoApprove
	req.Approve = &approve
	return req
}

// Execute posts the request and decodes the response envelope.
func (b *Bridge) Execute(ctx context.Context, req *ExecutionRequest) (*ExecutionResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal execution request: %w", err)
	}

	url := b.baseURL + "/api/autonomous/execute"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build execution request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read execution response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent endpoint returned %d: %s", httpResp.StatusCode, truncateBody(body))
	}

	var resp ExecutionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode execution response: %w", err)
	}
	return &resp, nil
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
