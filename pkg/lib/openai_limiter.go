package lib

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// OpenAILimiter is a retrying HTTP client for OpenAI-compatible APIs.
// It implements the openaiclient.Doer interface expected by langchaingo,
// retrying rate-limited (429) and overloaded (5xx) responses with
// header-informed backoff.
type OpenAILimiter struct {
	client  *http.Client
	logger  *zerolog.Logger
	tracker *UsageTracker
}

const maxRequestRetries = 5

func NewOpenAILimiter(logger *zerolog.Logger) *OpenAILimiter {
	return &OpenAILimiter{
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// NewOpenAILimiterWithTracker also records token usage from successful
// responses into the given tracker.
func NewOpenAILimiterWithTracker(logger *zerolog.Logger, tracker *UsageTracker) *OpenAILimiter {
	limiter := NewOpenAILimiter(logger)
	limiter.tracker = tracker
	return limiter
}

func (r *OpenAILimiter) Do(req *http.Request) (*http.Response, error) {
	for attempt := range maxRequestRetries {
		if attempt > 0 {
			clonedReq, err := r.cloneRequest(req)
			if err != nil {
				return nil, fmt.Errorf("clone request: %w", err)
			}
			req = clonedReq
		}

		resp, err := r.client.Do(req)
		if err != nil {
			r.logger.Error().
				Err(err).
				Int("attempt", attempt).
				Msg("LLM provider request failed")
			return nil, err
		}

		if resp.StatusCode == http.StatusOK {
			// Never buffer event streams; usage tracking would stall them.
			if r.tracker != nil && strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
				if _, err := r.tracker.TrackUsage(resp); err != nil {
					r.logger.Debug().Err(err).Msg("usage tracking failed")
				}
			}
			return resp, nil
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("read response body: %w", readErr)
		}

		headers := parseRateLimitHeaders(resp)
		event := r.logger.Debug().
			Int("status_code", resp.StatusCode).
			Int("remaining_requests", headers.RemainingRequests).
			Int("remaining_tokens", headers.RemainingTokens).
			Str("body", string(body)).
			Int("attempt", attempt)

		// See: https://platform.openai.com/docs/guides/error-codes#api-errors
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := backoffWithJitter(headers, attempt)
			event.
				Dur("delay", delay).
				Msg("LLM provider throttled, retrying with backoff")

			time.Sleep(delay)
			continue
		}

		// Client errors (e.g. 400) are not retryable; hand the response
		// back so the caller sees the provider's error payload.
		event.Msg("LLM provider returned non-ok response")
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded for rate limited request")
}

// backoffWithJitter prefers the reset durations advertised by the provider
// and falls back to exponential delay when headers are absent.
func backoffWithJitter(headers *rateLimitHeaders, attempt int) time.Duration {
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond

	if headers.RemainingRequests >= 0 && headers.RemainingRequests <= 1 && headers.ResetRequests > 0 {
		return headers.ResetRequests + jitter
	}
	if headers.RemainingTokens >= 0 && headers.RemainingTokens <= 1 && headers.ResetTokens > 0 {
		return headers.ResetTokens + jitter
	}

	return time.Duration(1<<attempt)*500*time.Millisecond + jitter
}

func (r *OpenAILimiter) cloneRequest(req *http.Request) (*http.Request, error) {
	clonedReq := req.Clone(req.Context())
	if req.Body != nil {
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		clonedReq.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}
	return clonedReq, nil
}

type rateLimitHeaders struct {
	RemainingRequests int
	// Time until the request rate limit resets.
	ResetRequests   time.Duration
	RemainingTokens int
	// Time until the token rate limit resets.
	ResetTokens time.Duration
}

// See: https://platform.openai.com/docs/guides/rate-limits#rate-limits-in-headers
func parseRateLimitHeaders(resp *http.Response) *rateLimitHeaders {
	return &rateLimitHeaders{
		RemainingRequests: parseIntHeader(resp.Header.Get("x-ratelimit-remaining-requests")),
		ResetRequests:     parseResetHeader(resp.Header.Get("x-ratelimit-reset-requests")),
		RemainingTokens:   parseIntHeader(resp.Header.Get("x-ratelimit-remaining-tokens")),
		ResetTokens:       parseResetHeader(resp.Header.Get("x-ratelimit-reset-tokens")),
	}
}

// parseIntHeader converts a numeric header string to int; returns -1 on failure.
func parseIntHeader(s string) int {
	if s == "" {
		return -1
	}

	if i, err := strconv.Atoi(s); err == nil {
		return i
	}

	return -1
}

// parseResetHeader accepts both bare seconds ("1.5") and Go-style
// durations ("1m30s"), which is what the provider actually sends.
func parseResetHeader(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	return 0
}
