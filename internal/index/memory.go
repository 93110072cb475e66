package index

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
)

// MemoryIndex is an in-process vector index with an optional JSON snapshot
// file. All mutations are serialized behind a single writer lock; when a
// snapshot path is configured the file is rewritten after every mutation and
// loaded on startup. Reads see the last committed state.
type MemoryIndex struct {
	embedder Embedder
	path     string

	mu      sync.RWMutex
	entries []memoryEntry
	nextSeq int64
}

type memoryEntry struct {
	Record    Record    `json:"record"`
	Embedding []float32 `json:"embedding"`
	Seq       int64     `json:"seq"`
}

// NewMemoryIndex creates an index backed by memory only
func NewMemoryIndex(embedder Embedder) *MemoryIndex {
	return &MemoryIndex{embedder: embedder}
}

// NewFileIndex creates an index that checkpoints to a JSON snapshot file.
// An existing snapshot is loaded; a missing one is not an error.
func NewFileIndex(embedder Embedder, path string) (*MemoryIndex, error) {
	idx := &MemoryIndex{embedder: embedder, path: path}
	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (m *MemoryIndex) load() error {
	if m.path == "" {
		return nil
	}
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading index snapshot: %w", err)
	}
	var entries []memoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsing index snapshot: %w", err)
	}
	m.entries = entries
	for _, e := range entries {
		if e.Seq >= m.nextSeq {
			m.nextSeq = e.Seq + 1
		}
	}
	return nil
}

// persist rewrites the snapshot file. Caller must hold the write lock.
func (m *MemoryIndex) persist() error {
	if m.path == "" {
		return nil
	}
	data, err := json.Marshal(m.entries)
	if err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing index snapshot: %w", err)
	}
	return os.Rename(tmp, m.path)
}

// Add embeds and stores the given records
func (m *MemoryIndex) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	embedded := make([]memoryEntry, 0, len(records))
	for _, rec := range records {
		vec, err := m.embedder.GenerateEmbedding(ctx, rec.Content)
		if err != nil {
			return fmt.Errorf("embedding record for note %s: %w", rec.NoteID, err)
		}
		embedded = append(embedded, memoryEntry{Record: rec, Embedding: vec})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range embedded {
		embedded[i].Seq = m.nextSeq
		m.nextSeq++
	}
	m.entries = append(m.entries, embedded...)
	return m.persist()
}

// Search returns up to topK matches ordered by descending cosine similarity,
// ties broken by insertion order
func (m *MemoryIndex) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryVec, err := m.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	m.mu.RLock()
	scored := make([]struct {
		match Match
		seq   int64
	}, 0, len(m.entries))
	for _, e := range m.entries {
		scored = append(scored, struct {
			match Match
			seq   int64
		}{
			match: Match{Record: e.Record, Score: cosineSimilarity(queryVec, e.Embedding)},
			seq:   e.Seq,
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].match.Score != scored[j].match.Score {
			return scored[i].match.Score > scored[j].match.Score
		}
		return scored[i].seq < scored[j].seq
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}

	matches := make([]Match, len(scored))
	for i, s := range scored {
		matches[i] = s.match
	}
	return matches, nil
}

// Delete removes records by id
func (m *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if _, gone := drop[e.Record.ID]; !gone {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return m.persist()
}

// Len returns the number of indexed records
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
