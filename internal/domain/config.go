package domain

// KeyPrefix namespaces every key kindred writes to Redis/Valkey.
const KeyPrefix = "kindred:"

// VectorConfig holds internal vectorization settings, not exposed to clients.
type VectorConfig struct {
	Model          string
	Dimensions     int
	MaxTokens      int // token budget applied before embedding
	MaxSparseTerms int
}

// DefaultVectorConfig returns the default configuration tuned for text-embedding-3-small.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:          "text-embedding-3-small",
		Dimensions:     1536,
		MaxTokens:      512,
		MaxSparseTerms: 256,
	}
}
