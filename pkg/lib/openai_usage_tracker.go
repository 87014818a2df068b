package lib

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// UsageMetrics holds token usage and estimated cost for one API call.
type UsageMetrics struct {
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	PromptCost       float64   `json:"promptCost"`
	CompletionCost   float64   `json:"completionCost"`
	TotalCost        float64   `json:"totalCost"`
	Model            string    `json:"model"`
	Timestamp        time.Time `json:"timestamp"`
}

// UsageTracker accumulates token usage across OpenAI-compatible API calls.
// Costs are estimated from a static pricing table; unknown models are
// tracked with zero cost rather than rejected.
type UsageTracker struct {
	logger  *zerolog.Logger
	metrics []UsageMetrics
	mu      sync.RWMutex
	pricing map[string]ModelPricing
}

// ModelPricing defines the cost per token for a model.
type ModelPricing struct {
	InputCostPer1MTokens  float64
	OutputCostPer1MTokens float64
}

func NewUsageTracker(logger *zerolog.Logger) *UsageTracker {
	return &UsageTracker{
		logger:  logger,
		metrics: make([]UsageMetrics, 0),
		pricing: getDefaultPricing(),
	}
}

// Response docs: https://platform.openai.com/docs/api-reference/completions/object#completions/object-usage
type usageResponse struct {
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

// TrackUsage extracts usage metrics from an API response body.
// The body is restored afterwards so the caller can still read it.
func (ut *UsageTracker) TrackUsage(resp *http.Response) (*UsageMetrics, error) {
	if resp == nil || resp.Body == nil {
		return nil, fmt.Errorf("response or response body is nil")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var apiResponse usageResponse
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if apiResponse.Usage.TotalTokens == 0 {
		// Streaming chunks and non-completion payloads carry no usage block.
		return nil, nil
	}

	metrics := ut.calculateCosts(apiResponse)

	ut.mu.Lock()
	ut.metrics = append(ut.metrics, metrics)
	ut.mu.Unlock()

	ut.logger.Debug().
		Str("model", metrics.Model).
		Int("prompt_tokens", metrics.PromptTokens).
		Int("completion_tokens", metrics.CompletionTokens).
		Int("total_tokens", metrics.TotalTokens).
		Float64("total_cost", metrics.TotalCost).
		Msg("LLM API usage tracked")

	return &metrics, nil
}

// TotalUsage returns aggregated usage across all tracked calls.
func (ut *UsageTracker) TotalUsage() UsageMetrics {
	ut.mu.RLock()
	defer ut.mu.RUnlock()

	var total UsageMetrics
	for _, metric := range ut.metrics {
		total.PromptTokens += metric.PromptTokens
		total.CompletionTokens += metric.CompletionTokens
		total.TotalTokens += metric.TotalTokens
		total.PromptCost += metric.PromptCost
		total.CompletionCost += metric.CompletionCost
		total.TotalCost += metric.TotalCost
	}

	return total
}

func (ut *UsageTracker) calculateCosts(res usageResponse) UsageMetrics {
	pricing := ut.pricing[res.Model]

	promptCost := float64(res.Usage.PromptTokens) * pricing.InputCostPer1MTokens / 1e6
	completionCost := float64(res.Usage.CompletionTokens) * pricing.OutputCostPer1MTokens / 1e6

	return UsageMetrics{
		PromptTokens:     res.Usage.PromptTokens,
		CompletionTokens: res.Usage.CompletionTokens,
		TotalTokens:      res.Usage.TotalTokens,
		PromptCost:       promptCost,
		CompletionCost:   completionCost,
		TotalCost:        promptCost + completionCost,
		Model:            res.Model,
		Timestamp:        time.Now(),
	}
}

func getDefaultPricing() map[string]ModelPricing {
	// Docs: https://openai.com/api/pricing
	return map[string]ModelPricing{
		"gpt-4o-mini": {
			InputCostPer1MTokens:  0.15,
			OutputCostPer1MTokens: 0.6,
		},
		"text-embedding-3-small": {
			InputCostPer1MTokens:  0.02,
			OutputCostPer1MTokens: 0.0,
		},
		"text-embedding-3-large": {
			InputCostPer1MTokens:  0.13,
			OutputCostPer1MTokens: 0.0,
		},
	}
}
