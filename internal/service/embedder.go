package service

import "context"

// EmbeddingClient produces vectors from text. Query and document embeddings
// must come from the same model version so their distances stay comparable.
type EmbeddingClient interface {
	// EmbedQuery embeds search text (retrieval-query mode).
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds documents in one round trip (retrieval-document
	// mode). A single document is a batch of one.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
