package service

import (
	"context"
	"errors"
	"log"

	"github.com/eachPassingDay/ainote/internal/domain"
	"github.com/eachPassingDay/ainote/internal/index"
	"github.com/eachPassingDay/ainote/internal/rerank"
)

// DefaultMergeThreshold is the relevance score at which a segment is merged
// into an existing note rather than stored as a new one. The comparison is
// inclusive: a score of exactly 0.6 merges.
const DefaultMergeThreshold = 0.6

// DefaultRetrieveTopK is the number of index records pulled per decision
const DefaultRetrieveTopK = 10

// Decision names the note a segment should merge into
type Decision struct {
	NoteID string
	Score  float64
	Record index.Record
}

// DecisionEngine decides merge-versus-new for a segment. Retrieval failures
// are hard errors (the segment cannot be safely deduplicated without the
// index); rerank failures fail open to "new note" so a scoring outage never
// blocks ingestion.
type DecisionEngine struct {
	idx       index.Index
	store     NoteStore
	reranker  rerank.Reranker
	topK      int
	threshold float64
}

// NewDecisionEngine creates a DecisionEngine. A nil reranker selects the
// embedding-score path: the top retrieval candidate alone is compared against
// the threshold.
func NewDecisionEngine(idx index.Index, store NoteStore, reranker rerank.Reranker, topK int, threshold float64) *DecisionEngine {
	if topK < DefaultRetrieveTopK {
		topK = DefaultRetrieveTopK
	}
	if threshold <= 0 {
		threshold = DefaultMergeThreshold
	}
	return &DecisionEngine{
		idx:       idx,
		store:     store,
		reranker:  reranker,
		topK:      topK,
		threshold: threshold,
	}
}

// Decide returns the merge target for a segment, or ok=false when the segment
// should become a new note. The error is non-nil only for index
// unavailability.
func (e *DecisionEngine) Decide(ctx context.Context, segment string) (*Decision, bool, error) {
	candidates, err := e.Candidates(ctx, segment)
	if err != nil {
		return nil, false, err
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}

	if e.reranker == nil {
		return e.decideByEmbedding(candidates)
	}

	// Rerank against the retrieved record text, not the owning note: a long
	// note's full content would drown the chunk that actually matched
	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Record.Content
	}

	results, err := e.reranker.Rerank(ctx, segment, documents)
	if err != nil {
		log.Printf("rerank failed, treating segment as new note: %v", err)
		return nil, false, nil
	}
	if len(results) == 0 {
		return nil, false, nil
	}

	// Explicit scan for the maximum; the service's ordering is not trusted
	best := results[0]
	for _, r := range results[1:] {
		if r.RelevanceScore > best.RelevanceScore {
			best = r
		}
	}

	if best.RelevanceScore < e.threshold {
		return nil, false, nil
	}

	chosen := candidates[best.Index]
	return &Decision{
		NoteID: chosen.Note.ID,
		Score:  best.RelevanceScore,
		Record: chosen.Record,
	}, true, nil
}

// decideByEmbedding compares the single best retrieval candidate against the
// threshold. Candidates arrive in descending retrieval order, so the first
// one is the top; anything below threshold means a new note, with no
// fallthrough to weaker candidates.
func (e *DecisionEngine) decideByEmbedding(candidates []RankedNote) (*Decision, bool, error) {
	top := candidates[0]
	if top.Score < e.threshold {
		return nil, false, nil
	}
	return &Decision{
		NoteID: top.Note.ID,
		Score:  top.Score,
		Record: top.Record,
	}, true, nil
}

// RankedNote pairs a live note with the index record that surfaced it and its
// retrieval score
type RankedNote struct {
	Note   *domain.Note
	Record index.Record
	Score  float64
}

// Candidates searches the index and resolves each record's owning note,
// keeping the best record per live note in descending retrieval order.
// Records whose owner is missing or soft-deleted are orphans: they are purged
// from the index on the spot (best-effort) and never become candidates.
func (e *DecisionEngine) Candidates(ctx context.Context, segment string) ([]RankedNote, error) {
	matches, err := e.idx.Search(ctx, segment, e.topK)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeTransient, "similarity search failed", err)
	}

	var candidates []RankedNote
	seen := make(map[string]bool)
	var orphans []string

	for _, m := range matches {
		if seen[m.Record.NoteID] {
			continue
		}

		note, err := e.store.GetNote(ctx, m.Record.NoteID)
		if err != nil {
			if errors.Is(err, domain.ErrNoteNotFound) {
				orphans = append(orphans, m.Record.ID)
				continue
			}
			return nil, err
		}
		if note.Deleted {
			orphans = append(orphans, m.Record.ID)
			continue
		}

		seen[m.Record.NoteID] = true
		candidates = append(candidates, RankedNote{Note: note, Record: m.Record, Score: m.Score})
	}

	if len(orphans) > 0 {
		if err := e.idx.Delete(ctx, orphans); err != nil {
			log.Printf("failed to purge %d orphaned index records: %v", len(orphans), err)
		} else {
			log.Printf("purged %d orphaned index records", len(orphans))
		}
	}

	return candidates, nil
}
