package llms

import (
	"context"
	"fmt"
	"strings"

	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/tmc/langchaingo/llms"
)

type embedderModel interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// CachedEmbedderModel memoizes per-text embeddings so re-indexing runs
// don't pay for unchanged articles twice.
type CachedEmbedderModel struct {
	model   embedderModel
	modelID string
	cache   *lib.Cache
}

func NewCachedEmbedderModel(model embedderModel, modelID string, cache *lib.Cache) *CachedEmbedderModel {
	return &CachedEmbedderModel{
		model:   model,
		modelID: modelID,
		cache:   cache,
	}
}

func (cm *CachedEmbedderModel) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	// Each text element is cached separately.
	results := make([][]float32, len(texts))
	uncachedIndices := make([]int, 0)
	uncachedTexts := make([]string, 0)

	for i, text := range texts {
		key := embeddingCacheKey(cm.modelID, text)
		if response, found := cm.cache.Get(key); found {
			if embedding, ok := response.([]float32); ok {
				results[i] = embedding
				continue
			}
		}
		uncachedIndices = append(uncachedIndices, i)
		uncachedTexts = append(uncachedTexts, text)
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	uncachedEmbeddings, err := cm.model.CreateEmbedding(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}

	for i, embedding := range uncachedEmbeddings {
		originalIndex := uncachedIndices[i]
		originalText := uncachedTexts[i]

		cm.cache.Set(embeddingCacheKey(cm.modelID, originalText), embedding)
		results[originalIndex] = embedding
	}

	return results, nil
}

// CachedCompletionModel memoizes non-streaming generations keyed by the
// rendered prompt. Streaming calls bypass the cache.
type CachedCompletionModel struct {
	model   llms.Model
	modelID string
	cache   *lib.Cache
}

func NewCachedCompletionModel(model llms.Model, modelID string, cache *lib.Cache) *CachedCompletionModel {
	return &CachedCompletionModel{
		model:   model,
		modelID: modelID,
		cache:   cache,
	}
}

func (cm *CachedCompletionModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	key := completionCacheKey(cm.modelID, prompt)

	if response, found := cm.cache.Get(key); found {
		if value, ok := response.(string); ok {
			return value, nil
		}
	}

	response, err := cm.model.Call(ctx, prompt, options...)
	if err != nil {
		return "", err
	}

	cm.cache.Set(key, response)
	return response, nil
}

func (cm *CachedCompletionModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.StreamingFunc != nil {
		return cm.model.GenerateContent(ctx, messages, options...)
	}

	key := completionCacheKey(cm.modelID, renderMessages(messages))
	if response, found := cm.cache.Get(key); found {
		if value, ok := response.(*llms.ContentResponse); ok {
			return value, nil
		}
	}

	response, err := cm.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, err
	}

	cm.cache.Set(key, response)
	return response, nil
}

func renderMessages(messages []llms.MessageContent) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(string(m.Role))
		sb.WriteString(":")
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				sb.WriteString(t.Text)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func embeddingCacheKey(modelID, text string) string {
	return fmt.Sprintf("embedding:%s", lib.HashParams(modelID, text))
}

func completionCacheKey(modelID, prompt string) string {
	return fmt.Sprintf("completion:%s", lib.HashParams(modelID, prompt))
}
