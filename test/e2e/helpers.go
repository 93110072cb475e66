//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eachPassingDay/ainote/internal/ai"
	"github.com/eachPassingDay/ainote/internal/api/handlers"
	"github.com/eachPassingDay/ainote/internal/index"
	"github.com/eachPassingDay/ainote/internal/jobs"
	"github.com/eachPassingDay/ainote/internal/repository"
	"github.com/eachPassingDay/ainote/internal/server"
	"github.com/eachPassingDay/ainote/internal/service"
	"github.com/eachPassingDay/ainote/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestEnv holds all resources for an end-to-end run: a pgvector container,
// a stub model server standing in for the OpenAI API, and the full HTTP
// stack served in-process.
type TestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	Pool       *pgxpool.Pool
	ModelSrv   *httptest.Server
	APISrv     *httptest.Server
	HTTPClient *http.Client
	worker     *jobs.Worker
}

// SetupEnv starts the containers, the stub model server and the API server
func SetupEnv(t *testing.T) *TestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	modelSrv := newStubModelServer()

	aiClient := ai.NewClientWithConfig(ai.Config{
		APIKey:  "test-key",
		BaseURL: modelSrv.URL + "/v1",
	})

	store := repository.NewNotePgStore(pool)
	idx := index.NewPgvectorIndex(pool, aiClient)

	segmenter := service.NewSegmenter(aiClient)
	analyzer := service.NewAnalyzer(aiClient)
	decision := service.NewDecisionEngine(idx, store, nil, service.DefaultRetrieveTopK, service.DefaultMergeThreshold)
	merger := service.NewMergeExecutor(store, aiClient, idx)
	history := service.NewHistoryService(store, idx)
	searchSvc := service.NewSearchService(decision, store, nil, service.DefaultMergeThreshold)
	chatSvc := service.NewChatService(decision, aiClient)

	queue := jobs.NewQueue(16)
	ingest := service.NewIngestService(store, segmenter, analyzer, decision, merger, idx, queue).
		WithCallTimeout(10 * time.Second)

	worker := jobs.NewWorker(queue, ingest, 1)
	go worker.Start(ctx)

	noteHandler := handlers.NewNoteHandler(ingest, store, merger, history, searchSvc, chatSvc, analyzer)
	router := server.NewRouter(server.RouterConfig{NoteHandler: noteHandler})
	apiSrv := httptest.NewServer(router)

	return &TestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		Pool:       pool,
		ModelSrv:   modelSrv,
		APISrv:     apiSrv,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		worker:     worker,
	}
}

// Cleanup releases all resources
func (e *TestEnv) Cleanup() {
	if e.worker != nil {
		e.worker.Stop()
	}
	if e.APISrv != nil {
		e.APISrv.Close()
	}
	if e.ModelSrv != nil {
		e.ModelSrv.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// Truncate clears all tables between tests
func (e *TestEnv) Truncate() {
	if err := testutil.TruncateAll(e.Ctx, e.Pool); err != nil {
		e.T.Fatalf("failed to truncate: %v", err)
	}
}

// Envelope mirrors the API success envelope
type Envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// Post sends a JSON POST and decodes the envelope
func (e *TestEnv) Post(path string, body interface{}) (int, *Envelope) {
	e.T.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.T.Fatalf("failed to encode body: %v", err)
		}
	}
	resp, err := e.HTTPClient.Post(e.APISrv.URL+path, "application/json", &buf)
	if err != nil {
		e.T.Fatalf("POST %s failed: %v", path, err)
	}
	return e.decode(resp)
}

// Get sends a GET and decodes the envelope
func (e *TestEnv) Get(path string) (int, *Envelope) {
	e.T.Helper()

	resp, err := e.HTTPClient.Get(e.APISrv.URL + path)
	if err != nil {
		e.T.Fatalf("GET %s failed: %v", path, err)
	}
	return e.decode(resp)
}

func (e *TestEnv) decode(resp *http.Response) (int, *Envelope) {
	e.T.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		e.T.Fatalf("failed to read response: %v", err)
	}
	var env Envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			e.T.Fatalf("failed to decode response %q: %v", raw, err)
		}
	}
	return resp.StatusCode, &env
}

// WaitForStatus polls a note until it reaches the wanted status
func (e *TestEnv) WaitForStatus(noteID, want string) map[string]interface{} {
	e.T.Helper()

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		status, env := e.Get("/notes/" + noteID)
		if status == http.StatusOK {
			var note map[string]interface{}
			if err := json.Unmarshal(env.Data, &note); err != nil {
				e.T.Fatalf("failed to decode note: %v", err)
			}
			if note["status"] == want {
				return note
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	e.T.Fatalf("note %s never reached status %s", noteID, want)
	return nil
}

// newStubModelServer serves an OpenAI-compatible API with canned behavior:
// segmentation echoes the input, classification and summaries are fixed,
// fusion appends the new content, and embeddings are deterministic per text
// so identical strings always land at similarity 1.
func newStubModelServer() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var system, user string
		for _, m := range req.Messages {
			switch m.Role {
			case "system":
				system = m.Content
			case "user":
				user = m.Content
			}
		}

		content := stubCompletion(system, user)
		writeJSON(w, map[string]interface{}{
			"id":      "chatcmpl-stub",
			"object":  "chat.completion",
			"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
		})
	})

	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data := make([]map[string]interface{}, 0, len(req.Input))
		for i, text := range req.Input {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": stubEmbedding(text),
			})
		}
		writeJSON(w, map[string]interface{}{"object": "list", "data": data})
	})

	return httptest.NewServer(mux)
}

func stubCompletion(system, user string) string {
	switch {
	case strings.Contains(system, "split free-form notes"):
		return user
	case strings.Contains(system, "classify notes"):
		return `{"content_type":"todo","primary_domain":"life","entities":["milk"]}`
	case strings.Contains(system, "one-sentence summaries"):
		return "a concise summary"
	case strings.Contains(system, "merge new information"):
		return "fused: " + user
	default:
		return "answer grounded in notes"
	}
}

// stubEmbedding derives a unit vector from the text hash. Identical texts
// embed identically; distinct texts are near-orthogonal at this dimension.
func stubEmbedding(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	vec := make([]float32, ai.DefaultEmbeddingDimensions)
	var norm float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Println("stub model server encode error:", err)
	}
}
