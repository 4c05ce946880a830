package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/snipara/rlm/engine/scoring"
)

// Embedder produces dense vectors for texts. The production implementation
// is the OpenAI-compatible endpoint behind langchaingo.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// NewOpenAIEmbedder builds the default embedder. Model and endpoint come
// from the standard OPENAI_* environment variables unless overridden.
func NewOpenAIEmbedder(model string, opts ...openai.Option) (Embedder, error) {
	if model != "" {
		opts = append(opts, openai.WithEmbeddingModel(model))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return llm, nil
}

// SemanticScorer runs nearest-neighbor search over precomputed chunks and
// embeds ad-hoc texts for the on-the-fly fallback. Embedding calls go
// through a circuit breaker so a degraded provider cannot stall queries;
// callers treat errors here as a signal to fall back to keyword ranking.
type SemanticScorer struct {
	db       *gorm.DB
	embedder Embedder
	breaker  *gobreaker.CircuitBreaker
	log      *zap.Logger
}

func NewSemanticScorer(db *gorm.DB, embedder Embedder, log *zap.Logger) *SemanticScorer {
	if log == nil {
		log = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "embeddings",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("embedding breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &SemanticScorer{db: db, embedder: embedder, breaker: breaker, log: log}
}

type chunkRow struct {
	Path       string
	StartLine  int
	EndLine    int
	Similarity float64
}

// ChunkHits embeds the query and returns the nearest chunks mapped back to
// their source files.
func (s *SemanticScorer) ChunkHits(ctx context.Context, projectID, query string) ([]scoring.ChunkHit, error) {
	vecs, err := s.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	qvec := pgvector.NewVector(vecs[0])

	var rows []chunkRow
	err = s.db.WithContext(ctx).Raw(`
		SELECT d.path, c.start_line, c.end_line,
		       1 - (c.embedding <=> ?) AS similarity
		FROM rlm.document_chunks c
		JOIN rlm.documents d ON d.id = c.document_id
		WHERE c.project_id = ?
		ORDER BY c.embedding <=> ?
		LIMIT ?`, qvec, projectID, qvec, scoring.ChunkTopK).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]scoring.ChunkHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, scoring.ChunkHit{
			File:       r.Path,
			StartLine:  r.StartLine,
			EndLine:    r.EndLine,
			Similarity: r.Similarity,
		})
	}
	return hits, nil
}

// EmbedTexts embeds texts through the circuit breaker.
func (s *SemanticScorer) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.embedder.CreateEmbedding(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed texts: %w", err)
	}
	vecs := out.([][]float32)
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
