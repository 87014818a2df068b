package qa

// Config tunes grounded question answering.
type Config struct {
	// TopK is the default number of articles retrieved per question.
	TopK int `env:"QA_TOP_K,default=5"`
	// Temperature keeps answers close to the retrieved material.
	Temperature float64 `env:"QA_TEMPERATURE,default=0.3"`
	// MaxTokens bounds the generated answer length.
	MaxTokens int `env:"QA_MAX_TOKENS,default=2000"`
}
