package llms

type Config struct {
	// Embedding
	EmbeddingProvider string `env:"LLM_EMBEDDING_PROVIDER,default=openai" validate:"oneof=openai"`
	EmbeddingModel    string `env:"LLM_EMBEDDING_MODEL,default=text-embedding-3-small"`
	// EmbeddingDim overrides the dimension derived from the model name.
	// The native vector index table is created at this dimension.
	EmbeddingDim int `env:"LLM_EMBEDDING_DIM,default=0"`

	// Completion
	CompletionProvider string `env:"LLM_COMPLETION_PROVIDER,default=openai" validate:"oneof=openai ollama"`
	CompletionModel    string `env:"LLM_COMPLETION_MODEL,default=gpt-4o-mini"`

	// OpenAI-compatible endpoint overrides. Leave empty to use the
	// OPENAI_API_KEY / OPENAI_BASE_URL environment the client reads itself.
	OpenAIAPIKey  string `env:"OPENAI_API_KEY,default="`
	OpenAIBaseURL string `env:"OPENAI_API_BASE,default="`

	// Provider specific configurations
	OllamaBaseURL     string `env:"OLLAMA_BASE_URL,default=http://localhost:11434"`
	OllamaContextSize int    `env:"OLLAMA_CONTEXT_SIZE,default=32768"` // context window size in tokens
}

// Dimensions of known embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// EmbeddingDimension resolves the vector dimension for the configured
// embedding model. Explicit config wins over the model table.
func (c *Config) EmbeddingDimension() int {
	if c.EmbeddingDim > 0 {
		return c.EmbeddingDim
	}
	if dim, ok := modelDimensions[c.EmbeddingModel]; ok {
		return dim
	}
	return 1536
}
