package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kjstillabower/trail-transit-service/internal/observability"
)

const geminiKeyHeader = "x-goog-api-key"

// GeminiClient sends single-turn prompts to the Generative Language API.
type GeminiClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	breaker Breaker
}

// NewGeminiClient returns a client for model rooted at baseURL,
// e.g. https://generativelanguage.googleapis.com/v1.
func NewGeminiClient(apiKey, baseURL, model string, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: Gemini API key is required", ErrInvalidAPIKey)
	}
	if model == "" {
		return nil, errors.New("gemini model is required")
	}
	return &GeminiClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// SetCircuitBreaker installs an optional breaker around every call.
func (c *GeminiClient) SetCircuitBreaker(b Breaker) {
	c.breaker = b
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// GenerateContent returns the text of the first part of the first candidate.
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	var text string
	err := guarded(ctx, c.breaker, func() error {
		var err error
		text, err = c.generate(ctx, prompt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return text, nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	reqBody, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		observe(observability.UpstreamGemini, "error", start)
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(geminiKeyHeader, c.apiKey)
	setCorrelationID(ctx, req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		observe(observability.UpstreamGemini, "error", start)
		err = redactKey(err, c.apiKey)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("request timeout: %w", err)
		}
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	observe(observability.UpstreamGemini, statusLabel(resp.StatusCode), start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	if err := checkStatus(resp.StatusCode); err != nil {
		return "", fmt.Errorf("%w: %s", err, truncate(string(body), 200))
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}
	return apiResp.Candidates[0].Content.Parts[0].Text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
