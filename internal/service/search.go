package service

import (
	"context"
	"log"
	"sort"

	"github.com/eachPassingDay/ainote/internal/domain"
	"github.com/eachPassingDay/ainote/internal/rerank"
	"github.com/eachPassingDay/ainote/internal/telemetry"
)

// SearchResult is one note matching a search query
type SearchResult struct {
	Note  *domain.Note `json:"note"`
	Score float64      `json:"score"`
}

// TagStats aggregates classification metadata across all live notes
type TagStats struct {
	ContentTypes map[string]int `json:"content_types"`
	Domains      map[string]int `json:"domains"`
	Entities     map[string]int `json:"entities"`
}

// SearchService answers semantic queries over the note corpus
type SearchService struct {
	decision  *DecisionEngine
	store     NoteStore
	reranker  rerank.Reranker
	threshold float64
}

// NewSearchService creates a SearchService. The threshold applies when the
// caller does not override it per query.
func NewSearchService(decision *DecisionEngine, store NoteStore, reranker rerank.Reranker, threshold float64) *SearchService {
	if threshold <= 0 {
		threshold = DefaultMergeThreshold
	}
	return &SearchService{
		decision:  decision,
		store:     store,
		reranker:  reranker,
		threshold: threshold,
	}
}

// Search returns live notes relevant to the query ordered by descending
// score. threshold <= 0 selects the service default. When a reranker is
// configured its scores replace the retrieval scores; a rerank failure falls
// back to the retrieval scores rather than failing the search.
func (s *SearchService) Search(ctx context.Context, query string, threshold float64, limit int) ([]SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		Operation: "search",
	})
	defer span.End()

	if threshold <= 0 {
		threshold = s.threshold
	}
	if limit <= 0 {
		limit = DefaultRetrieveTopK
	}

	candidates, err := s.decision.Candidates(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, SearchResult{Note: c.Note, Score: c.Score})
	}

	if s.reranker != nil {
		// Score the retrieved record text, matching the decision engine
		documents := make([]string, len(candidates))
		for i, c := range candidates {
			documents[i] = c.Record.Content
		}
		reranked, err := s.reranker.Rerank(ctx, query, documents)
		if err != nil {
			log.Printf("rerank failed, using retrieval scores: %v", err)
		} else {
			for _, r := range reranked {
				results[r.Index].Score = r.RelevanceScore
			}
		}
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Score >= threshold {
			filtered = append(filtered, r)
		}
	}
	results = filtered

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Tags aggregates content types, domains and entities over all live analyzed
// notes
func (s *SearchService) Tags(ctx context.Context) (*TagStats, error) {
	notes, err := s.store.ListAllNotes(ctx)
	if err != nil {
		return nil, err
	}

	stats := &TagStats{
		ContentTypes: make(map[string]int),
		Domains:      make(map[string]int),
		Entities:     make(map[string]int),
	}
	for _, note := range notes {
		if note.Analysis == nil {
			continue
		}
		if note.Analysis.ContentType != "" {
			stats.ContentTypes[note.Analysis.ContentType]++
		}
		if note.Analysis.PrimaryDomain != "" {
			stats.Domains[note.Analysis.PrimaryDomain]++
		}
		for _, entity := range note.Analysis.Entities {
			stats.Entities[entity]++
		}
	}
	return stats, nil
}
