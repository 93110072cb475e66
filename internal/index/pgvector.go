package index

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgvectorIndex stores records in the note_chunks table with a pgvector
// embedding column. Postgres serializes concurrent writers.
type PgvectorIndex struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

// NewPgvectorIndex creates a Postgres-backed similarity index
func NewPgvectorIndex(pool *pgxpool.Pool, embedder Embedder) *PgvectorIndex {
	return &PgvectorIndex{pool: pool, embedder: embedder}
}

// Add embeds and inserts the given records
func (p *PgvectorIndex) Add(ctx context.Context, records []Record) error {
	for _, rec := range records {
		vec, err := p.embedder.GenerateEmbedding(ctx, rec.Content)
		if err != nil {
			return fmt.Errorf("embedding record for note %s: %w", rec.NoteID, err)
		}

		_, err = p.pool.Exec(ctx,
			`INSERT INTO note_chunks (id, note_id, title, position, length, content, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.ID, rec.NoteID, rec.Title, rec.Position, rec.Length, rec.Content,
			pgvector.NewVector(vec), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting index record: %w", err)
		}
	}
	return nil
}

// Search returns up to topK matches ordered by descending cosine similarity.
// Equal distances fall back to insertion order via created_at.
func (p *PgvectorIndex) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryVec, err := p.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, note_id, title, position, length, content,
		        1 - (embedding <=> $1) AS score
		 FROM note_chunks
		 ORDER BY embedding <=> $1 ASC, created_at ASC
		 LIMIT $2`,
		pgvector.NewVector(queryVec), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Record.ID, &m.Record.NoteID, &m.Record.Title,
			&m.Record.Position, &m.Record.Length, &m.Record.Content, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Delete removes records by id
func (p *PgvectorIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, `DELETE FROM note_chunks WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("deleting index records: %w", err)
	}
	return nil
}
