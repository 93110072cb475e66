package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/eachPassingDay/ainote/internal/domain"
	"github.com/eachPassingDay/ainote/internal/index"
	"github.com/eachPassingDay/ainote/internal/jobs"
	"github.com/eachPassingDay/ainote/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// IngestPolicy selects how a submitted note is processed
type IngestPolicy string

const (
	// IngestPolicyDeferred persists the note immediately and processes it in
	// the background (segmentation, enrichment, indexing)
	IngestPolicyDeferred IngestPolicy = "deferred"
	// IngestPolicyImmediate segments synchronously and merges each segment
	// into existing notes before returning
	IngestPolicyImmediate IngestPolicy = "immediate"
)

// DefaultCallTimeout bounds each external call made during ingestion
const DefaultCallTimeout = 60 * time.Second

// SegmentOutcome reports what happened to one segment under the immediate
// policy
type SegmentOutcome struct {
	Segment string  `json:"segment"`
	Action  string  `json:"action"` // "merged" or "created"
	NoteID  string  `json:"note_id"`
	Score   float64 `json:"score,omitempty"`
}

// IngestReport is the result of an immediate ingestion
type IngestReport struct {
	Outcomes []SegmentOutcome `json:"outcomes"`
	NewNote  *domain.Note     `json:"new_note,omitempty"`
}

// IngestService orchestrates note ingestion under both policies
type IngestService struct {
	store       NoteStore
	segmenter   *Segmenter
	analyzer    *Analyzer
	decision    *DecisionEngine
	merger      *MergeExecutor
	idx         index.Index
	queue       *jobs.Queue
	uuidGen     UUIDGenerator
	callTimeout time.Duration
}

// NewIngestService creates an IngestService
func NewIngestService(
	store NoteStore,
	segmenter *Segmenter,
	analyzer *Analyzer,
	decision *DecisionEngine,
	merger *MergeExecutor,
	idx index.Index,
	queue *jobs.Queue,
) *IngestService {
	return &IngestService{
		store:       store,
		segmenter:   segmenter,
		analyzer:    analyzer,
		decision:    decision,
		merger:      merger,
		idx:         idx,
		queue:       queue,
		uuidGen:     &DefaultUUIDGenerator{},
		callTimeout: DefaultCallTimeout,
	}
}

// WithUUIDGenerator overrides ID generation (for testing)
func (s *IngestService) WithUUIDGenerator(gen UUIDGenerator) *IngestService {
	s.uuidGen = gen
	return s
}

// WithCallTimeout overrides the per-call timeout
func (s *IngestService) WithCallTimeout(d time.Duration) *IngestService {
	s.callTimeout = d
	return s
}

// Accept persists content as a new processing note and queues it for
// background processing. When the queue is full the note is still returned
// alongside ErrQueueFull: the content is durable, only its processing is
// delayed until resubmission.
func (s *IngestService) Accept(ctx context.Context, title, content string) (*domain.Note, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Accept", telemetry.SpanAttributes{
		Operation: "accept",
	})
	defer span.End()

	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}

	now := time.Now().UTC()
	note := domain.NewNote(s.uuidGen.NewString(), title, content, now)
	if err := domain.ValidateNote(note); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid note", err)
	}

	rev := domain.SnapshotOf(note, 1, domain.ChangeKindCreate, now)
	if err := s.store.CreateNote(ctx, note, rev); err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(jobs.Task{NoteID: note.ID, Title: note.Title, Content: note.Content}); err != nil {
		return note, err
	}
	return note, nil
}

// ProcessTask runs the background pipeline for one accepted note:
// segmentation (required), then summary and analysis in parallel
// (best-effort), then indexing (required). Success flips the note to
// completed with an update revision; a required failure flips it to failed.
func (s *IngestService) ProcessTask(ctx context.Context, task jobs.Task) error {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.ProcessTask", telemetry.SpanAttributes{
		NoteID:    task.NoteID,
		Operation: "process",
	})
	defer span.End()

	note, err := s.store.GetNote(ctx, task.NoteID)
	if err != nil {
		return err
	}

	segments, err := s.segment(ctx, note.Content)
	if err != nil {
		s.markFailed(ctx, note.ID)
		return err
	}

	summary, analysis := s.enrich(ctx, note.Content)

	records := segmentRecords(s.uuidGen, note.ID, note.Title, segments)
	if err := s.indexRecords(ctx, records); err != nil {
		s.markFailed(ctx, note.ID)
		return domain.NewDomainErrorWithCause(domain.ErrCodeTransient, "indexing failed", err)
	}

	s.reportSimilar(ctx, note)

	expected := note.Version
	note.Status = domain.NoteStatusCompleted
	note.Summary = summary
	note.Analysis = analysis
	note.Version++

	now := time.Now().UTC()
	rev := domain.SnapshotOf(note, note.Version, domain.ChangeKindUpdate, now)
	return s.store.UpdateNote(ctx, note, expected, rev)
}

// IngestImmediate segments content synchronously and merges each segment into
// its closest existing note. Segments without a close-enough match are joined
// with the segment delimiter into one new completed note, so the new note's
// content round-trips through segmentation unchanged.
func (s *IngestService) IngestImmediate(ctx context.Context, title, content string) (*IngestReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.IngestImmediate", telemetry.SpanAttributes{
		Operation: "ingest_immediate",
	})
	defer span.End()

	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}

	segments, err := s.segment(ctx, content)
	if err != nil {
		return nil, err
	}

	report := &IngestReport{}
	var unmatched []string

	for _, segment := range segments {
		decision, ok, err := s.decision.Decide(ctx, segment)
		if err != nil {
			return nil, err
		}
		if !ok {
			unmatched = append(unmatched, segment)
			continue
		}

		merged, err := s.merger.Merge(ctx, decision.NoteID, segment)
		if err != nil {
			return nil, err
		}
		report.Outcomes = append(report.Outcomes, SegmentOutcome{
			Segment: segment,
			Action:  "merged",
			NoteID:  merged.ID,
			Score:   decision.Score,
		})
	}

	if len(unmatched) > 0 {
		note, err := s.createCompleted(ctx, title, strings.Join(unmatched, " "+SegmentDelimiter+" "))
		if err != nil {
			return nil, err
		}
		report.NewNote = note
		for _, segment := range unmatched {
			report.Outcomes = append(report.Outcomes, SegmentOutcome{
				Segment: segment,
				Action:  "created",
				NoteID:  note.ID,
			})
		}
	}

	return report, nil
}

// createCompleted stores enriched content directly as a completed note and
// indexes it
func (s *IngestService) createCompleted(ctx context.Context, title, content string) (*domain.Note, error) {
	now := time.Now().UTC()
	note := domain.NewNote(s.uuidGen.NewString(), title, content, now)
	note.Status = domain.NoteStatusCompleted
	note.Summary, note.Analysis = s.enrich(ctx, content)

	rev := domain.SnapshotOf(note, 1, domain.ChangeKindCreate, now)
	if err := s.store.CreateNote(ctx, note, rev); err != nil {
		return nil, err
	}

	records := index.ChunkNote(note.ID, note.Title, note.Content, index.DefaultChunkConfig())
	if err := s.indexRecords(ctx, records); err != nil {
		log.Printf("failed to index note %s: %v", note.ID, err)
	}
	return note, nil
}

func (s *IngestService) segment(ctx context.Context, content string) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.segmenter.Segment(callCtx, content)
}

// indexRecords adds records under the per-call timeout. Indexing embeds the
// content through the embedding API, so a hung call here would otherwise pin
// a worker consumer forever.
func (s *IngestService) indexRecords(ctx context.Context, records []index.Record) error {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.idx.Add(callCtx, records)
}

// enrich runs summary and analysis concurrently. Both are best-effort: a
// failure logs and leaves the field empty.
func (s *IngestService) enrich(ctx context.Context, content string) (string, *domain.NoteAnalysis) {
	var summary string
	var analysis *domain.NoteAnalysis

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(groupCtx, s.callTimeout)
		defer cancel()
		result, err := s.analyzer.Summarize(callCtx, content)
		if err != nil {
			log.Printf("summary generation failed: %v", err)
			return nil
		}
		summary = result
		return nil
	})
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(groupCtx, s.callTimeout)
		defer cancel()
		if result, ok := s.analyzer.Analyze(callCtx, content); ok {
			analysis = result
		}
		return nil
	})
	_ = g.Wait()

	return summary, analysis
}

// reportSimilar logs the closest existing notes, purely informational
func (s *IngestService) reportSimilar(ctx context.Context, note *domain.Note) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	matches, err := s.idx.Search(callCtx, note.Content, 3)
	if err != nil {
		return
	}
	for _, m := range matches {
		if m.Record.NoteID == note.ID {
			continue
		}
		log.Printf("note %s resembles note %s (score %.3f)", note.ID, m.Record.NoteID, m.Score)
	}
}

// markFailed flips a note to failed against its freshest version. Best-effort:
// an error here only logs, the original processing error is what surfaces.
func (s *IngestService) markFailed(ctx context.Context, noteID string) {
	fresh, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		log.Printf("failed to load note %s for failure marking: %v", noteID, err)
		return
	}
	expected := fresh.Version
	fresh.Status = domain.NoteStatusFailed
	fresh.Version++
	if err := s.store.UpdateNote(ctx, fresh, expected, nil); err != nil {
		log.Printf("failed to mark note %s as failed: %v", noteID, err)
	}
}

// segmentRecords builds one index record per segment
func segmentRecords(gen UUIDGenerator, noteID, title string, segments []string) []index.Record {
	records := make([]index.Record, 0, len(segments))
	for i, segment := range segments {
		records = append(records, index.Record{
			ID:       gen.NewString(),
			NoteID:   noteID,
			Title:    title,
			Content:  segment,
			Position: i,
			Length:   len(segment),
		})
	}
	return records
}
