package domain

import (
	"fmt"
	"time"
)

// ChangeKind tags the mutation that produced a revision
type ChangeKind string

const (
	ChangeKindCreate   ChangeKind = "create"
	ChangeKindUpdate   ChangeKind = "update"
	ChangeKindMerge    ChangeKind = "merge"
	ChangeKindRollback ChangeKind = "rollback"
)

// Revision is an immutable snapshot of a note's fields at one point in time.
// Revisions are append-only: never mutated or deleted, keyed by
// (note_id, revision_number) with numbers strictly increasing from 1.
type Revision struct {
	NoteID         string
	RevisionNumber int64
	Title          string
	Content        string
	Summary        string
	Status         NoteStatus
	ChangeKind     ChangeKind
	CreatedAt      time.Time
}

// SnapshotOf builds a revision from a note's current fields
func SnapshotOf(n *Note, number int64, kind ChangeKind, now time.Time) *Revision {
	return &Revision{
		NoteID:         n.ID,
		RevisionNumber: number,
		Title:          n.Title,
		Content:        n.Content,
		Summary:        n.Summary,
		Status:         n.Status,
		ChangeKind:     kind,
		CreatedAt:      now,
	}
}

// ValidateRevision validates a Revision instance
func ValidateRevision(r *Revision) error {
	if r == nil {
		return fmt.Errorf("revision cannot be nil")
	}

	if r.NoteID == "" {
		return fmt.Errorf("revision NoteID is required")
	}

	if r.RevisionNumber <= 0 {
		return fmt.Errorf("revision RevisionNumber must be greater than 0")
	}

	if !isValidChangeKind(r.ChangeKind) {
		return fmt.Errorf("revision ChangeKind is invalid: %s", r.ChangeKind)
	}

	return nil
}

// isValidChangeKind checks if a ChangeKind is valid
func isValidChangeKind(k ChangeKind) bool {
	switch k {
	case ChangeKindCreate, ChangeKindUpdate, ChangeKindMerge, ChangeKindRollback:
		return true
	}
	return false
}
