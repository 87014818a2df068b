package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// OllamaModel is a minimal client for the Ollama generate API that
// satisfies the llms.Model interface. The langchaingo ollama package is
// not used so the context window size can be set per request.
type OllamaModel struct {
	baseURL     string
	model       string
	client      *http.Client
	contextSize int
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllamaModel(baseURL, model string, client *http.Client, contextSize int) *OllamaModel {
	if client == nil {
		client = http.DefaultClient
	}
	if contextSize == 0 {
		contextSize = 32768
	}
	return &OllamaModel{
		baseURL:     baseURL,
		model:       model,
		client:      client,
		contextSize: contextSize,
	}
}

func (o *OllamaModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	resp, err := o.generate(ctx, prompt, &opts, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var ollamaResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return ollamaResp.Response, nil
}

func (o *OllamaModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	prompt := flattenMessages(messages)

	if opts.StreamingFunc == nil {
		text, err := o.Call(ctx, prompt, options...)
		if err != nil {
			return nil, err
		}
		return &llms.ContentResponse{
			Choices: []*llms.ContentChoice{{Content: text}},
		}, nil
	}

	resp, err := o.generate(ctx, prompt, &opts, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Streaming responses arrive as one JSON object per line.
	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaGenerateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}

		if chunk.Response != "" {
			full.WriteString(chunk.Response)
			if err := opts.StreamingFunc(ctx, []byte(chunk.Response)); err != nil {
				return nil, fmt.Errorf("streaming func: %w", err)
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: full.String()}},
	}, nil
}

func (o *OllamaModel) generate(ctx context.Context, prompt string, opts *llms.CallOptions, stream bool) (*http.Response, error) {
	apiURL, err := url.JoinPath(o.baseURL, "api", "generate")
	if err != nil {
		return nil, fmt.Errorf("construct API URL: %w", err)
	}

	reqBody := ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  stream,
		Options: map[string]any{"num_ctx": o.contextSize},
	}
	if opts.Temperature != 0 {
		reqBody.Options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens != 0 {
		reqBody.Options["num_predict"] = opts.MaxTokens
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

func flattenMessages(messages []llms.MessageContent) string {
	var sb strings.Builder
	for _, m := range messages {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				if sb.Len() > 0 {
					sb.WriteString("\n\n")
				}
				sb.WriteString(t.Text)
			}
		}
	}
	return sb.String()
}
