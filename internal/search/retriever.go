// Package search ranks a client's chunks against a query by cosine similarity.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/vector"
)

// ChunkSource loads the chunks a client may search.
type ChunkSource interface {
	ListChunksByOwner(ctx context.Context, clientID string) ([]*models.OwnedChunk, error)
}

// Retriever scores every chunk owned by a client against a query.
type Retriever struct {
	source ChunkSource
	config config.SearchConfig
	logger *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRetriever creates a retriever over source. cfg may be nil for defaults.
func NewRetriever(source ChunkSource, cfg *config.SearchConfig, opts ...RetrieverOption) *Retriever {
	r := &Retriever{source: source, logger: zap.NewNop()}
	if cfg != nil {
		r.config = *cfg
	}
	if r.config.DefaultLimit <= 0 {
		r.config.DefaultLimit = models.DefaultSearchLimit
	}
	if r.config.MaxLimit <= 0 {
		r.config.MaxLimit = models.MaxSearchLimit
	}
	if r.config.Weighting == "" {
		r.config.Weighting = config.WeightingDocument
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Weighting returns the term weighting scheme in use.
func (r *Retriever) Weighting() string {
	return r.config.Weighting
}

// Search returns up to limit chunks of clientID's documents ordered by similarity to
// queryText. A non-positive limit uses the configured default. A client without chunks
// yields an empty result.
func (r *Retriever) Search(ctx context.Context, clientID, queryText string, limit int) ([]*models.ChunkResult, error) {
	resp, err := r.Run(ctx, &models.SearchQuery{ClientID: clientID, Query: queryText, Limit: limit})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Run validates query, applies the configured limits and returns ranked results with timing.
func (r *Retriever) Run(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := query.Validate(r.config.DefaultLimit, r.config.MaxLimit); err != nil {
		return nil, err
	}

	chunks, err := r.source.ListChunksByOwner(ctx, query.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	results := r.score(vector.Vectorize(query.Query), chunks)
	rank(results)
	total := len(results)
	if len(results) > query.Limit {
		results = results[:query.Limit]
	}
	for i, res := range results {
		res.Rank = i + 1
	}

	resp := &models.SearchResponse{
		Results:   results,
		Total:     total,
		QueryTime: time.Since(start).Milliseconds(),
		Query:     query.Query,
		ClientID:  query.ClientID,
		Weighting: r.config.Weighting,
	}
	r.logger.Debug("search completed",
		zap.String("client_id", query.ClientID),
		zap.Int("chunks", total),
		zap.Int("results", len(results)),
		zap.Int64("query_time_ms", resp.QueryTime),
	)
	return resp, nil
}

// score computes the similarity of every chunk to the query vector. In corpus
// weighting both sides are re-weighted with IDF over the loaded chunks first.
func (r *Retriever) score(query vector.SparseVector, chunks []*models.OwnedChunk) []*models.ChunkResult {
	var corpus *vector.Corpus
	if r.config.Weighting == config.WeightingCorpus && len(chunks) > 0 {
		vectors := make([]vector.SparseVector, len(chunks))
		for i, c := range chunks {
			vectors[i] = c.Vector
		}
		corpus = vector.NewCorpus(vectors)
		query = corpus.Reweight(query)
	}

	results := make([]*models.ChunkResult, len(chunks))
	for i, c := range chunks {
		v := c.Vector
		if corpus != nil {
			v = corpus.Reweight(v)
		}
		results[i] = &models.ChunkResult{
			DocumentID:    c.DocumentID,
			ChunkIndex:    c.ChunkIndex,
			ChunkText:     c.Text,
			DocumentTitle: c.DocumentTitle,
			Similarity:    vector.CosineSimilarity(query, v),
		}
	}
	return results
}

// rank orders results by similarity, highest first. Ties go to the lower chunk
// index, then to the lower document ID, so equal scores always rank the same way.
func rank(results []*models.ChunkResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return a.DocumentID < b.DocumentID
	})
}
