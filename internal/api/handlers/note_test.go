package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eachPassingDay/ainote/internal/domain"
	"github.com/eachPassingDay/ainote/internal/pagination"
	"github.com/eachPassingDay/ainote/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIngestService struct {
	mock.Mock
}

func (m *MockIngestService) Accept(ctx context.Context, title, content string) (*domain.Note, error) {
	args := m.Called(ctx, title, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Note), args.Error(1)
}

func (m *MockIngestService) IngestImmediate(ctx context.Context, title, content string) (*service.IngestReport, error) {
	args := m.Called(ctx, title, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestReport), args.Error(1)
}

type MockNoteReader struct {
	mock.Mock
}

func (m *MockNoteReader) GetNote(ctx context.Context, id string) (*domain.Note, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Note), args.Error(1)
}

func (m *MockNoteReader) ListNotes(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.NotePageResult, error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.NotePageResult), args.Error(1)
}

type MockMergeService struct {
	mock.Mock
}

func (m *MockMergeService) MergeNotes(ctx context.Context, sourceID, targetID string) (*domain.Note, error) {
	args := m.Called(ctx, sourceID, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Note), args.Error(1)
}

type MockHistoryService struct {
	mock.Mock
}

func (m *MockHistoryService) History(ctx context.Context, noteID string) ([]*domain.Revision, error) {
	args := m.Called(ctx, noteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Revision), args.Error(1)
}

func (m *MockHistoryService) GetRevision(ctx context.Context, noteID string, number int64) (*domain.Revision, error) {
	args := m.Called(ctx, noteID, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Revision), args.Error(1)
}

func (m *MockHistoryService) Rollback(ctx context.Context, noteID string, number int64) (*domain.Note, error) {
	args := m.Called(ctx, noteID, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Note), args.Error(1)
}

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Search(ctx context.Context, query string, threshold float64, limit int) ([]service.SearchResult, error) {
	args := m.Called(ctx, query, threshold, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.SearchResult), args.Error(1)
}

func (m *MockSearchService) Tags(ctx context.Context) (*service.TagStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.TagStats), args.Error(1)
}

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Chat(ctx context.Context, question string, filter service.ChatFilter) (string, error) {
	args := m.Called(ctx, question, filter)
	return args.String(0), args.Error(1)
}

type MockSummaryService struct {
	mock.Mock
}

func (m *MockSummaryService) Summarize(ctx context.Context, content string) (string, error) {
	args := m.Called(ctx, content)
	return args.String(0), args.Error(1)
}

type handlerMocks struct {
	ingest  *MockIngestService
	notes   *MockNoteReader
	merge   *MockMergeService
	history *MockHistoryService
	search  *MockSearchService
	chat    *MockChatService
	summary *MockSummaryService
}

func newTestHandler() (*NoteHandler, *handlerMocks) {
	mocks := &handlerMocks{
		ingest:  new(MockIngestService),
		notes:   new(MockNoteReader),
		merge:   new(MockMergeService),
		history: new(MockHistoryService),
		search:  new(MockSearchService),
		chat:    new(MockChatService),
		summary: new(MockSummaryService),
	}
	h := NewNoteHandler(mocks.ingest, mocks.notes, mocks.merge, mocks.history, mocks.search, mocks.chat, mocks.summary)
	return h, mocks
}

func newTestRouter(h *NoteHandler) chi.Router {
	r := chi.NewRouter()
	r.Route("/notes", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Post("/summarize", h.Summarize)
		r.Get("/search", h.Search)
		r.Post("/merge", h.Merge)
		r.Get("/tags", h.Tags)
		r.Post("/chat", h.Chat)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Get("/history", h.History)
			r.Get("/history/{rev}", h.GetRevision)
			r.Post("/rollback/{rev}", h.Rollback)
		})
	})
	return r
}

func newTestNote() *domain.Note {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Note{
		ID:        "n-123",
		Title:     "groceries",
		Content:   "buy milk",
		Summary:   "a shopping list",
		Status:    domain.NoteStatusCompleted,
		Version:   2,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestNoteHandler_CreateDeferred(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	note := newTestNote()
	mocks.ingest.On("Accept", mock.Anything, "groceries", "buy milk").Return(note, nil)

	rec := doRequest(t, router, http.MethodPost, "/notes", CreateNoteRequest{Title: "groceries", Content: "buy milk"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp CreateNoteResponse
	decodeData(t, rec, &resp)
	assert.True(t, resp.Queued)
	assert.Equal(t, "n-123", resp.Note.ID)
	mocks.ingest.AssertExpectations(t)
}

func TestNoteHandler_CreateQueueFull(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	note := newTestNote()
	mocks.ingest.On("Accept", mock.Anything, "", "buy milk").Return(note, domain.ErrQueueFull)

	rec := doRequest(t, router, http.MethodPost, "/notes", CreateNoteRequest{Content: "buy milk"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp CreateNoteResponse
	decodeData(t, rec, &resp)
	assert.False(t, resp.Queued)
	assert.Equal(t, "n-123", resp.Note.ID)
	assert.NotEmpty(t, resp.Detail)
}

func TestNoteHandler_CreateImmediate(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	note := newTestNote()
	report := &service.IngestReport{
		Outcomes: []service.SegmentOutcome{
			{Segment: "buy milk", Action: "merged", NoteID: "n-9", Score: 0.8},
		},
		NewNote: note,
	}
	mocks.ingest.On("IngestImmediate", mock.Anything, "", "buy milk").Return(report, nil)

	rec := doRequest(t, router, http.MethodPost, "/notes", CreateNoteRequest{Content: "buy milk", Policy: "immediate"})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp IngestReportResponse
	decodeData(t, rec, &resp)
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, "merged", resp.Outcomes[0].Action)
	require.NotNil(t, resp.NewNote)
	assert.Equal(t, "n-123", resp.NewNote.ID)
	mocks.ingest.AssertNotCalled(t, "Accept", mock.Anything, mock.Anything, mock.Anything)
}

func TestNoteHandler_CreateValidation(t *testing.T) {
	h, _ := newTestHandler()
	router := newTestRouter(h)

	tests := []struct {
		name string
		req  CreateNoteRequest
	}{
		{"missing content", CreateNoteRequest{Title: "t"}},
		{"unknown policy", CreateNoteRequest{Content: "c", Policy: "sometime"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/notes", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestNoteHandler_CreateInvalidBody(t *testing.T) {
	h, _ := newTestHandler()
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoteHandler_Get(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	note := newTestNote()
	mocks.notes.On("GetNote", mock.Anything, "n-123").Return(note, nil)

	rec := doRequest(t, router, http.MethodGet, "/notes/n-123", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp NoteResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "n-123", resp.ID)
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, int64(2), resp.Version)
}

func TestNoteHandler_GetNotFound(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	mocks.notes.On("GetNote", mock.Anything, "missing").Return(nil, domain.ErrNoteNotFound)

	rec := doRequest(t, router, http.MethodGet, "/notes/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoteHandler_GetDeletedHidden(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	note := newTestNote()
	note.Deleted = true
	mocks.notes.On("GetNote", mock.Anything, "n-123").Return(note, nil)

	rec := doRequest(t, router, http.MethodGet, "/notes/n-123", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoteHandler_List(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	page := &service.NotePageResult{
		Items:      []*domain.Note{newTestNote()},
		NextCursor: "abc",
		HasMore:    true,
	}
	mocks.notes.On("ListNotes", mock.Anything, (*pagination.Cursor)(nil), 20).Return(page, nil)

	rec := doRequest(t, router, http.MethodGet, "/notes", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp ListNotesResponse
	decodeData(t, rec, &resp)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "abc", resp.NextCursor)
	assert.True(t, resp.HasMore)
}

func TestNoteHandler_ListInvalidCursor(t *testing.T) {
	h, _ := newTestHandler()
	router := newTestRouter(h)

	rec := doRequest(t, router, http.MethodGet, "/notes?cursor=%21%21not-base64", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoteHandler_ListWithCursorAndLimit(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	encoded := pagination.EncodeCursor("n-9", ts)
	page := &service.NotePageResult{Items: nil}
	mocks.notes.On("ListNotes", mock.Anything, mock.MatchedBy(func(c *pagination.Cursor) bool {
		return c != nil && c.LastID == "n-9" && c.Timestamp.Equal(ts)
	}), 5).Return(page, nil)

	rec := doRequest(t, router, http.MethodGet, "/notes?cursor="+encoded+"&limit=5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	mocks.notes.AssertExpectations(t)
}

func TestNoteHandler_Summarize(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	mocks.summary.On("Summarize", mock.Anything, "long note text").Return("short", nil)

	rec := doRequest(t, router, http.MethodPost, "/notes/summarize", SummarizeRequest{Content: "long note text"})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp SummarizeResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "long note text", resp.OriginalContent)
	assert.Equal(t, "short", resp.Summary)
}

func TestNoteHandler_SummarizeMissingContent(t *testing.T) {
	h, _ := newTestHandler()
	router := newTestRouter(h)

	rec := doRequest(t, router, http.MethodPost, "/notes/summarize", SummarizeRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoteHandler_Search(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	results := []service.SearchResult{{Note: newTestNote(), Score: 0.87}}
	mocks.search.On("Search", mock.Anything, "milk", 0.7, 5).Return(results, nil)

	rec := doRequest(t, router, http.MethodGet, "/notes/search?query=milk&threshold=0.7&limit=5", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp []SearchResultResponse
	decodeData(t, rec, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, "n-123", resp[0].Note.ID)
	assert.InDelta(t, 0.87, resp[0].Score, 1e-9)
}

func TestNoteHandler_SearchParamValidation(t *testing.T) {
	h, _ := newTestHandler()
	router := newTestRouter(h)

	tests := []struct {
		name string
		path string
	}{
		{"missing query", "/notes/search"},
		{"bad threshold", "/notes/search?query=q&threshold=2"},
		{"bad limit", "/notes/search?query=q&limit=zero"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodGet, tt.path, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestNoteHandler_Merge(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	merged := newTestNote()
	mocks.merge.On("MergeNotes", mock.Anything, "src", "dst").Return(merged, nil)

	rec := doRequest(t, router, http.MethodPost, "/notes/merge", MergeNotesRequest{SourceID: "src", TargetID: "dst"})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp NoteResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "n-123", resp.ID)
}

func TestNoteHandler_MergeSelfTarget(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	mocks.merge.On("MergeNotes", mock.Anything, "a", "a").Return(nil, domain.ErrMergeSelfTarget)

	rec := doRequest(t, router, http.MethodPost, "/notes/merge", MergeNotesRequest{SourceID: "a", TargetID: "a"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoteHandler_MergeMissingIDs(t *testing.T) {
	h, _ := newTestHandler()
	router := newTestRouter(h)

	rec := doRequest(t, router, http.MethodPost, "/notes/merge", MergeNotesRequest{SourceID: "a"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoteHandler_History(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	revisions := []*domain.Revision{
		{NoteID: "n-123", RevisionNumber: 2, ChangeKind: domain.ChangeKindMerge, CreatedAt: time.Now().UTC()},
		{NoteID: "n-123", RevisionNumber: 1, ChangeKind: domain.ChangeKindCreate, CreatedAt: time.Now().UTC()},
	}
	mocks.history.On("History", mock.Anything, "n-123").Return(revisions, nil)

	rec := doRequest(t, router, http.MethodGet, "/notes/n-123/history", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp []*RevisionResponse
	decodeData(t, rec, &resp)
	require.Len(t, resp, 2)
	assert.Equal(t, int64(2), resp[0].RevisionNumber)
	assert.Equal(t, "merge", resp[0].ChangeKind)
}

func TestNoteHandler_GetRevision(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	rev := &domain.Revision{NoteID: "n-123", RevisionNumber: 1, ChangeKind: domain.ChangeKindCreate, CreatedAt: time.Now().UTC()}
	mocks.history.On("GetRevision", mock.Anything, "n-123", int64(1)).Return(rev, nil)

	rec := doRequest(t, router, http.MethodGet, "/notes/n-123/history/1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp RevisionResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, int64(1), resp.RevisionNumber)
}

func TestNoteHandler_GetRevisionBadNumber(t *testing.T) {
	h, _ := newTestHandler()
	router := newTestRouter(h)

	rec := doRequest(t, router, http.MethodGet, "/notes/n-123/history/zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoteHandler_Rollback(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	note := newTestNote()
	note.Version = 3
	mocks.history.On("Rollback", mock.Anything, "n-123", int64(1)).Return(note, nil)

	rec := doRequest(t, router, http.MethodPost, "/notes/n-123/rollback/1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp NoteResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, int64(3), resp.Version)
}

func TestNoteHandler_RollbackRevisionNotFound(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	mocks.history.On("Rollback", mock.Anything, "n-123", int64(9)).Return(nil, domain.ErrRevisionNotFound)

	rec := doRequest(t, router, http.MethodPost, "/notes/n-123/rollback/9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoteHandler_Tags(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	stats := &service.TagStats{
		ContentTypes: map[string]int{"todo": 2},
		Domains:      map[string]int{"life": 1},
		Entities:     map[string]int{"milk": 2},
	}
	mocks.search.On("Tags", mock.Anything).Return(stats, nil)

	rec := doRequest(t, router, http.MethodGet, "/notes/tags", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp service.TagStats
	decodeData(t, rec, &resp)
	assert.Equal(t, 2, resp.ContentTypes["todo"])
}

func TestNoteHandler_Chat(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	filter := service.ChatFilter{Domain: "work", ContentType: "meeting"}
	mocks.chat.On("Chat", mock.Anything, "what did we decide?", filter).Return("the rollout plan", nil)

	rec := doRequest(t, router, http.MethodPost, "/notes/chat", ChatRequest{
		Question:    "what did we decide?",
		Domain:      "work",
		ContentType: "meeting",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp ChatResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "the rollout plan", resp.Answer)
}

func TestNoteHandler_ChatMissingQuestion(t *testing.T) {
	h, _ := newTestHandler()
	router := newTestRouter(h)

	rec := doRequest(t, router, http.MethodPost, "/notes/chat", ChatRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoteHandler_TransientErrorsMapToBadGateway(t *testing.T) {
	h, mocks := newTestHandler()
	router := newTestRouter(h)

	mocks.search.On("Search", mock.Anything, "q", 0.0, 0).Return(nil, domain.ErrIndexUnavailable)

	rec := doRequest(t, router, http.MethodGet, "/notes/search?query=q", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
