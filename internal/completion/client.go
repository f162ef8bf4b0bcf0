// Package completion wraps the model completion endpoint. All capability
// executions funnel through here so retries, pricing fallbacks, and
// circuit breaking live in one place.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marketbeam/orchestrator/internal/circuitbreaker"
	"github.com/marketbeam/orchestrator/internal/metrics"
	"github.com/marketbeam/orchestrator/internal/pricing"
	"github.com/marketbeam/orchestrator/internal/tracing"
)

// Request is the payload sent to the completion endpoint.
type Request struct {
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	APIKey           string  `json:"apiKey"`
	BaseURL          string  `json:"baseUrl,omitempty"`
	Prompt           string  `json:"prompt"`
	MaxTokens        int     `json:"maxTokens,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	TopP             float64 `json:"topP,omitempty"`
	FrequencyPenalty float64 `json:"frequencyPenalty,omitempty"`
	PresencePenalty  float64 `json:"presencePenalty,omitempty"`
	TenantID         string  `json:"tenantId"`
	CapabilityID     string  `json:"capabilityId,omitempty"`
}

// Response is the completion endpoint's reply. Cost may be omitted by the
// endpoint, in which case the local pricing table fills it in.
type Response struct {
	Content    string                 `json:"content"`
	Data       map[string]interface{} `json:"data,omitempty"`
	TokensUsed int                    `json:"tokensUsed"`
	Cost       float64                `json:"cost"`
}

// Client calls the completion endpoint over HTTP with circuit breaking.
type Client struct {
	baseURL string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

// NewClient creates a completion client against baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http: circuitbreaker.NewHTTPWrapper(
			&http.Client{Timeout: timeout},
			"completion-http",
			"completion",
			logger,
		),
		logger: logger,
	}
}

// Complete sends a completion request and returns the parsed response.
// A non-2xx status is an error; the body is included for diagnosis.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracing.StartSpan(ctx, "completion.complete")
	defer span.End()

	start := time.Now()
	resp, err := c.do(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordCompletionMetrics(req.Provider, status, time.Since(start).Seconds())

	if err != nil {
		c.logger.Warn("Completion request failed",
			zap.String("provider", req.Provider),
			zap.String("model", req.Model),
			zap.String("tenant_id", req.TenantID),
			zap.Error(err))
		return nil, err
	}

	if resp.Cost == 0 && resp.TokensUsed > 0 {
		resp.Cost = pricing.CostForTokens(req.Model, resp.TokensUsed)
	}

	c.logger.Debug("Completion request succeeded",
		zap.String("provider", req.Provider),
		zap.String("model", req.Model),
		zap.Int("tokens_used", resp.TokensUsed),
		zap.Float64("cost_usd", resp.Cost),
		zap.Duration("duration", time.Since(start)))
	return resp, nil
}

func (c *Client) do(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, httpReq)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion endpoint: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion endpoint returned %d: %s", httpResp.StatusCode, truncate(string(respBody), 512))
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	return &resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
