package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/eachPassingDay/ainote/internal/domain"
	"github.com/eachPassingDay/ainote/internal/pagination"
	"github.com/eachPassingDay/ainote/internal/service"
)

// NoteFileStore persists notes and revisions to a single JSON snapshot file.
// A process-wide mutex serializes every operation, which makes the
// note-plus-revision mutations atomic without a transaction log. The snapshot
// is rewritten after each mutation via a temp file rename.
type NoteFileStore struct {
	path string

	mu    sync.Mutex
	state fileState
}

type fileState struct {
	Notes     map[string]*domain.Note       `json:"notes"`
	Revisions map[string][]*domain.Revision `json:"revisions"`
}

// NewNoteFileStore opens the store at path, loading an existing snapshot.
// A missing file starts an empty store.
func NewNoteFileStore(path string) (*NoteFileStore, error) {
	s := &NoteFileStore{
		path: path,
		state: fileState{
			Notes:     make(map[string]*domain.Note),
			Revisions: make(map[string][]*domain.Revision),
		},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading note store: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("parsing note store: %w", err)
	}
	if s.state.Notes == nil {
		s.state.Notes = make(map[string]*domain.Note)
	}
	if s.state.Revisions == nil {
		s.state.Revisions = make(map[string][]*domain.Revision)
	}
	return s, nil
}

// persist rewrites the snapshot. Caller must hold the mutex.
func (s *NoteFileStore) persist() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing note store: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *NoteFileStore) CreateNote(_ context.Context, note *domain.Note, rev *domain.Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.Notes[note.ID]; exists {
		return fmt.Errorf("note %s already exists", note.ID)
	}

	s.state.Notes[note.ID] = copyNote(note)
	if rev != nil {
		s.state.Revisions[note.ID] = append(s.state.Revisions[note.ID], copyRevision(rev))
	}
	return s.persist()
}

func (s *NoteFileStore) GetNote(_ context.Context, id string) (*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.state.Notes[id]
	if !ok {
		return nil, domain.ErrNoteNotFound
	}
	return copyNote(note), nil
}

func (s *NoteFileStore) ListNotes(_ context.Context, cursor *pagination.Cursor, limit int) (*service.NotePageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	items := s.liveNotesSorted()
	s.mu.Unlock()

	if cursor != nil {
		filtered := items[:0]
		for _, n := range items {
			if n.UpdatedAt.Before(cursor.Timestamp) ||
				(n.UpdatedAt.Equal(cursor.Timestamp) && n.ID < cursor.LastID) {
				filtered = append(filtered, n)
			}
		}
		items = filtered
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.UpdatedAt)
	}

	return &service.NotePageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func (s *NoteFileStore) ListAllNotes(_ context.Context) ([]*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveNotesSorted(), nil
}

// liveNotesSorted returns copies of non-deleted notes ordered by updated_at
// descending, id descending as tie-break. Caller must hold the mutex.
func (s *NoteFileStore) liveNotesSorted() []*domain.Note {
	notes := make([]*domain.Note, 0, len(s.state.Notes))
	for _, n := range s.state.Notes {
		if !n.Deleted {
			notes = append(notes, copyNote(n))
		}
	}
	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].UpdatedAt.Equal(notes[j].UpdatedAt) {
			return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
		}
		return notes[i].ID > notes[j].ID
	})
	return notes
}

func (s *NoteFileStore) UpdateNote(_ context.Context, note *domain.Note, expectedVersion int64, rev *domain.Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.state.Notes[note.ID]
	if !ok {
		return domain.ErrNoteNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}

	note.UpdatedAt = time.Now().UTC()
	s.state.Notes[note.ID] = copyNote(note)
	if rev != nil {
		s.state.Revisions[note.ID] = append(s.state.Revisions[note.ID], copyRevision(rev))
	}
	return s.persist()
}

func (s *NoteFileStore) ListRevisions(_ context.Context, noteID string) ([]*domain.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.state.Revisions[noteID]
	revisions := make([]*domain.Revision, 0, len(stored))
	for _, r := range stored {
		revisions = append(revisions, copyRevision(r))
	}
	sort.Slice(revisions, func(i, j int) bool {
		return revisions[i].RevisionNumber > revisions[j].RevisionNumber
	})
	if len(revisions) == 0 {
		return nil, nil
	}
	return revisions, nil
}

func (s *NoteFileStore) GetRevision(_ context.Context, noteID string, number int64) (*domain.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.state.Revisions[noteID] {
		if r.RevisionNumber == number {
			return copyRevision(r), nil
		}
	}
	return nil, domain.ErrRevisionNotFound
}

func copyNote(n *domain.Note) *domain.Note {
	dup := *n
	if n.Analysis != nil {
		analysis := *n.Analysis
		analysis.Entities = append([]string(nil), n.Analysis.Entities...)
		dup.Analysis = &analysis
	}
	return &dup
}

func copyRevision(r *domain.Revision) *domain.Revision {
	dup := *r
	return &dup
}
