// Package repository implements the note stores. NotePgStore persists to
// Postgres through pgx; NoteFileStore keeps everything in a JSON snapshot
// file for deployments without a database.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eachPassingDay/ainote/internal/domain"
	"github.com/eachPassingDay/ainote/internal/pagination"
	"github.com/eachPassingDay/ainote/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotePgStore struct {
	pool *pgxpool.Pool
}

func NewNotePgStore(pool *pgxpool.Pool) *NotePgStore {
	return &NotePgStore{pool: pool}
}

func (s *NotePgStore) CreateNote(ctx context.Context, note *domain.Note, rev *domain.Revision) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		analysis, err := marshalAnalysis(note.Analysis)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO notes (id, title, content, summary, status, version, deleted, analysis, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			note.ID, note.Title, note.Content, note.Summary, note.Status, note.Version, note.Deleted, analysis, note.CreatedAt, note.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if rev != nil {
			return insertRevision(ctx, tx, rev)
		}
		return nil
	})
}

func (s *NotePgStore) GetNote(ctx context.Context, id string) (*domain.Note, error) {
	var n domain.Note
	var analysis []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, content, summary, status, version, deleted, analysis, created_at, updated_at
		 FROM notes WHERE id = $1`,
		id,
	).Scan(&n.ID, &n.Title, &n.Content, &n.Summary, &n.Status, &n.Version, &n.Deleted, &analysis, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoteNotFound
		}
		return nil, err
	}
	if n.Analysis, err = unmarshalAnalysis(analysis); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *NotePgStore) ListNotes(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.NotePageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = s.pool.Query(ctx,
			`SELECT id, title, content, summary, status, version, deleted, analysis, created_at, updated_at
			 FROM notes
			 WHERE deleted = FALSE AND (updated_at, id) < ($1, $2)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, title, content, summary, status, version, deleted, analysis, created_at, updated_at
			 FROM notes
			 WHERE deleted = FALSE
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanNoteRows(rows)
	if err != nil {
		return nil, err
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

func (s *NotePgStore) ListAllNotes(ctx context.Context) ([]*domain.Note, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, content, summary, status, version, deleted, analysis, created_at, updated_at
		 FROM notes WHERE deleted = FALSE ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNoteRows(rows)
}

func (s *NotePgStore) UpdateNote(ctx context.Context, note *domain.Note, expectedVersion int64, rev *domain.Revision) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		analysis, err := marshalAnalysis(note.Analysis)
		if err != nil {
			return err
		}
		note.UpdatedAt = time.Now().UTC()
		cmdTag, err := tx.Exec(ctx,
			`UPDATE notes SET title = $1, content = $2, summary = $3, status = $4, version = $5, deleted = $6, analysis = $7, updated_at = $8
			 WHERE id = $9 AND version = $10`,
			note.Title, note.Content, note.Summary, note.Status, note.Version, note.Deleted, analysis, note.UpdatedAt, note.ID, expectedVersion,
		)
		if err != nil {
			return err
		}
		if cmdTag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM notes WHERE id = $1)`, note.ID).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return domain.ErrVersionConflict
			}
			return domain.ErrNoteNotFound
		}
		if rev != nil {
			return insertRevision(ctx, tx, rev)
		}
		return nil
	})
}

func (s *NotePgStore) ListRevisions(ctx context.Context, noteID string) ([]*domain.Revision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT note_id, revision_number, title, content, summary, status, change_kind, created_at
		 FROM note_revisions WHERE note_id = $1 ORDER BY revision_number DESC`,
		noteID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revisions []*domain.Revision
	for rows.Next() {
		var r domain.Revision
		if err := rows.Scan(&r.NoteID, &r.RevisionNumber, &r.Title, &r.Content, &r.Summary, &r.Status, &r.ChangeKind, &r.CreatedAt); err != nil {
			return nil, err
		}
		revisions = append(revisions, &r)
	}
	return revisions, rows.Err()
}

func (s *NotePgStore) GetRevision(ctx context.Context, noteID string, number int64) (*domain.Revision, error) {
	var r domain.Revision
	err := s.pool.QueryRow(ctx,
		`SELECT note_id, revision_number, title, content, summary, status, change_kind, created_at
		 FROM note_revisions WHERE note_id = $1 AND revision_number = $2`,
		noteID, number,
	).Scan(&r.NoteID, &r.RevisionNumber, &r.Title, &r.Content, &r.Summary, &r.Status, &r.ChangeKind, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRevisionNotFound
		}
		return nil, err
	}
	return &r, nil
}

func insertRevision(ctx context.Context, tx pgx.Tx, rev *domain.Revision) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO note_revisions (note_id, revision_number, title, content, summary, status, change_kind, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rev.NoteID, rev.RevisionNumber, rev.Title, rev.Content, rev.Summary, rev.Status, rev.ChangeKind, rev.CreatedAt,
	)
	return err
}

func scanNoteRows(rows pgx.Rows) ([]*domain.Note, error) {
	var results []*domain.Note
	for rows.Next() {
		var n domain.Note
		var analysis []byte
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.Summary, &n.Status, &n.Version, &n.Deleted, &analysis, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		parsed, err := unmarshalAnalysis(analysis)
		if err != nil {
			return nil, err
		}
		n.Analysis = parsed
		results = append(results, &n)
	}
	return results, rows.Err()
}

func marshalAnalysis(a *domain.NoteAnalysis) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshaling note analysis: %w", err)
	}
	return data, nil
}

func unmarshalAnalysis(data []byte) (*domain.NoteAnalysis, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var a domain.NoteAnalysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing note analysis: %w", err)
	}
	return &a, nil
}
