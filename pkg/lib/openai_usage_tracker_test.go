package lib

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
)

func TestUsageTracker(t *testing.T) {
	logger := zerolog.Nop()
	tracker := NewUsageTracker(&logger)

	mockResponse := &http.Response{
		StatusCode: 200,
		Body: createMockResponseBody(map[string]interface{}{
			"usage": map[string]interface{}{
				"prompt_tokens":     100,
				"completion_tokens": 50,
				"total_tokens":      150,
			},
			"model": "gpt-4o-mini",
		}),
	}

	metrics, err := tracker.TrackUsage(mockResponse)
	if err != nil {
		t.Fatalf("TrackUsage: %v", err)
	}

	if metrics.PromptTokens != 100 {
		t.Errorf("expected prompt tokens 100, got %d", metrics.PromptTokens)
	}
	if metrics.CompletionTokens != 50 {
		t.Errorf("expected completion tokens 50, got %d", metrics.CompletionTokens)
	}
	if metrics.TotalTokens != 150 {
		t.Errorf("expected total tokens 150, got %d", metrics.TotalTokens)
	}
	if metrics.Model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %s", metrics.Model)
	}

	expectedPromptCost := float64(100) * 0.15 / 1e6
	expectedCompletionCost := float64(50) * 0.6 / 1e6

	if math.Abs(metrics.PromptCost-expectedPromptCost) > 1e-12 {
		t.Errorf("expected prompt cost %f, got %f", expectedPromptCost, metrics.PromptCost)
	}
	if math.Abs(metrics.CompletionCost-expectedCompletionCost) > 1e-12 {
		t.Errorf("expected completion cost %f, got %f", expectedCompletionCost, metrics.CompletionCost)
	}

	// The body must still be readable after tracking.
	body, err := io.ReadAll(mockResponse.Body)
	if err != nil {
		t.Fatalf("read body after tracking: %v", err)
	}
	if len(body) == 0 {
		t.Error("expected response body to be restored after tracking")
	}
}

func TestUsageTrackerAggregation(t *testing.T) {
	logger := zerolog.Nop()
	tracker := NewUsageTracker(&logger)

	for _, promptTokens := range []int{100, 200} {
		resp := &http.Response{
			StatusCode: 200,
			Body: createMockResponseBody(map[string]interface{}{
				"usage": map[string]interface{}{
					"prompt_tokens":     promptTokens,
					"completion_tokens": 0,
					"total_tokens":      promptTokens,
				},
				"model": "text-embedding-3-small",
			}),
		}
		if _, err := tracker.TrackUsage(resp); err != nil {
			t.Fatalf("TrackUsage: %v", err)
		}
	}

	totalUsage := tracker.TotalUsage()
	if totalUsage.PromptTokens != 300 {
		t.Errorf("expected total prompt tokens 300, got %d", totalUsage.PromptTokens)
	}
	if totalUsage.TotalTokens != 300 {
		t.Errorf("expected total tokens 300, got %d", totalUsage.TotalTokens)
	}
}

func TestUsageTrackerUnknownModel(t *testing.T) {
	logger := zerolog.Nop()
	tracker := NewUsageTracker(&logger)

	mockResponse := &http.Response{
		StatusCode: 200,
		Body: createMockResponseBody(map[string]interface{}{
			"usage": map[string]interface{}{
				"prompt_tokens":     100,
				"completion_tokens": 50,
				"total_tokens":      150,
			},
			"model": "some-local-model",
		}),
	}

	metrics, err := tracker.TrackUsage(mockResponse)
	if err != nil {
		t.Fatalf("TrackUsage: %v", err)
	}

	// Unknown models are tracked with zero cost, not rejected.
	if metrics.TotalTokens != 150 {
		t.Errorf("expected total tokens 150, got %d", metrics.TotalTokens)
	}
	if metrics.TotalCost != 0 {
		t.Errorf("expected zero cost for unknown model, got %f", metrics.TotalCost)
	}
}

func TestUsageTrackerNoUsageBlock(t *testing.T) {
	logger := zerolog.Nop()
	tracker := NewUsageTracker(&logger)

	mockResponse := &http.Response{
		StatusCode: 200,
		Body:       createMockResponseBody(map[string]interface{}{"model": "gpt-4o-mini"}),
	}

	metrics, err := tracker.TrackUsage(mockResponse)
	if err != nil {
		t.Fatalf("TrackUsage: %v", err)
	}
	if metrics != nil {
		t.Errorf("expected nil metrics for payload without usage, got %+v", metrics)
	}
	if tracker.TotalUsage().TotalTokens != 0 {
		t.Errorf("expected no tracked usage, got %+v", tracker.TotalUsage())
	}
}

func createMockResponseBody(data map[string]interface{}) io.ReadCloser {
	jsonData, _ := json.Marshal(data)
	return io.NopCloser(bytes.NewReader(jsonData))
}
