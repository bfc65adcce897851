package model

// EmbeddingKey addresses one cached vector. Hash is the hex sha256 of the
// embedded text.
type EmbeddingKey struct {
	Model    string
	TaskType string
	Hash     string
}

// CachedEmbedding is a row of embedding_cache.
type CachedEmbedding struct {
	EmbeddingKey
	Vector []float32
	Ctime  int64
}
