package auth

import (
	"fmt"
	"strings"
)

type Config struct {
	// APIKeys is a comma-separated list of accepted bearer keys. A key may
	// carry an owner label as key=owner; bare keys get an empty owner.
	// Example: "k-prod=ops,k-local"
	APIKeys string `env:"AUTH_API_KEYS,default="`
}

// ParseAPIKeys returns the key-to-owner map. An empty configuration means
// authentication is disabled.
func (c *Config) ParseAPIKeys() (map[string]string, error) {
	keys := make(map[string]string)

	for pair := range strings.SplitSeq(c.APIKeys, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		key, owner, _ := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid api key entry: %q", pair)
		}

		keys[key] = strings.TrimSpace(owner)
	}

	return keys, nil
}
