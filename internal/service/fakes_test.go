package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/eachPassingDay/ainote/internal/domain"
	"github.com/eachPassingDay/ainote/internal/index"
	"github.com/eachPassingDay/ainote/internal/pagination"
	"github.com/eachPassingDay/ainote/internal/rerank"
)

// memStore is an in-memory NoteStore for service tests.
type memStore struct {
	mu        sync.Mutex
	notes     map[string]*domain.Note
	revisions map[string][]*domain.Revision
}

func newMemStore() *memStore {
	return &memStore{
		notes:     make(map[string]*domain.Note),
		revisions: make(map[string][]*domain.Revision),
	}
}

func (s *memStore) CreateNote(_ context.Context, note *domain.Note, rev *domain.Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[note.ID]; ok {
		return errors.New("duplicate note")
	}
	n := *note
	s.notes[note.ID] = &n
	if rev != nil {
		r := *rev
		s.revisions[note.ID] = append(s.revisions[note.ID], &r)
	}
	return nil
}

func (s *memStore) GetNote(_ context.Context, id string) (*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[id]
	if !ok {
		return nil, domain.ErrNoteNotFound
	}
	n := *note
	return &n, nil
}

func (s *memStore) ListNotes(_ context.Context, _ *pagination.Cursor, limit int) (*NotePageResult, error) {
	all, _ := s.ListAllNotes(context.Background())
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return &NotePageResult{Items: all}, nil
}

func (s *memStore) ListAllNotes(_ context.Context) ([]*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Note
	for _, note := range s.notes {
		if !note.Deleted {
			n := *note
			out = append(out, &n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) UpdateNote(_ context.Context, note *domain.Note, expectedVersion int64, rev *domain.Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.notes[note.ID]
	if !ok {
		return domain.ErrNoteNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	note.UpdatedAt = time.Now().UTC()
	n := *note
	s.notes[note.ID] = &n
	if rev != nil {
		r := *rev
		s.revisions[note.ID] = append(s.revisions[note.ID], &r)
	}
	return nil
}

func (s *memStore) ListRevisions(_ context.Context, noteID string) ([]*domain.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.revisions[noteID]
	out := make([]*domain.Revision, 0, len(stored))
	for _, r := range stored {
		dup := *r
		out = append(out, &dup)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RevisionNumber > out[j].RevisionNumber })
	return out, nil
}

func (s *memStore) GetRevision(_ context.Context, noteID string, number int64) (*domain.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.revisions[noteID] {
		if r.RevisionNumber == number {
			dup := *r
			return &dup, nil
		}
	}
	return nil, domain.ErrRevisionNotFound
}

// fakeIndex returns canned matches and records mutations.
type fakeIndex struct {
	mu        sync.Mutex
	matches   []index.Match
	searchErr error
	added     []index.Record
	addErr    error
	deleted   []string
	deleteErr error
}

func (f *fakeIndex) Add(_ context.Context, records []index.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, records...)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, topK int) ([]index.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	matches := f.matches
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (f *fakeIndex) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeIndex) addedRecords() []index.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]index.Record(nil), f.added...)
}

// hangingIndex blocks every call until the caller's context expires.
type hangingIndex struct{}

func (hangingIndex) Add(ctx context.Context, _ []index.Record) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hangingIndex) Search(ctx context.Context, _ string, _ int) ([]index.Match, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingIndex) Delete(ctx context.Context, _ []string) error {
	<-ctx.Done()
	return ctx.Err()
}

// fakeReranker returns canned results or an error.
type fakeReranker struct {
	results []rerank.Result
	err     error
	lastDoc []string
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, documents []string) ([]rerank.Result, error) {
	f.lastDoc = documents
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// seqUUIDGen yields deterministic ids for tests.
type seqUUIDGen struct {
	prefix string
	n      int
}

func (g *seqUUIDGen) NewString() string {
	g.n++
	return g.prefix + string(rune('0'+g.n))
}

func storeNote(s *memStore, id, title, content string, opts ...func(*domain.Note)) *domain.Note {
	now := time.Now().UTC()
	note := domain.NewNote(id, title, content, now)
	note.Status = domain.NoteStatusCompleted
	for _, opt := range opts {
		opt(note)
	}
	rev := domain.SnapshotOf(note, note.Version, domain.ChangeKindCreate, now)
	if err := s.CreateNote(context.Background(), note, rev); err != nil {
		panic(err)
	}
	return note
}
