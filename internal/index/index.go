// Package index provides the embedding-backed nearest-neighbor search used
// for merge candidate retrieval. Records are chunks of note content tagged
// with their owning note.
package index

import "context"

// Record is one indexed chunk of a note's content
type Record struct {
	ID       string `json:"id"`
	NoteID   string `json:"note_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Position int    `json:"position"`
	Length   int    `json:"length"`
}

// Match pairs a record with its retrieval similarity score
type Match struct {
	Record Record
	Score  float64
}

// Index is the similarity index contract. Search returns matches ordered by
// descending similarity, ties broken by insertion order. Implementations must
// serialize writes; an unavailable backend surfaces as an error, never as
// silently dropped data.
type Index interface {
	Add(ctx context.Context, records []Record) error
	Search(ctx context.Context, query string, topK int) ([]Match, error)
	Delete(ctx context.Context, ids []string) error
}

// Embedder turns text into a vector
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}
