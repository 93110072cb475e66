package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/eachPassingDay/ainote/internal/api"
	"github.com/eachPassingDay/ainote/internal/domain"
	"github.com/eachPassingDay/ainote/internal/pagination"
	"github.com/eachPassingDay/ainote/internal/service"
	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type IngestService interface {
	Accept(ctx context.Context, title, content string) (*domain.Note, error)
	IngestImmediate(ctx context.Context, title, content string) (*service.IngestReport, error)
}

type NoteReader interface {
	GetNote(ctx context.Context, id string) (*domain.Note, error)
	ListNotes(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.NotePageResult, error)
}

type MergeService interface {
	MergeNotes(ctx context.Context, sourceID, targetID string) (*domain.Note, error)
}

type HistoryService interface {
	History(ctx context.Context, noteID string) ([]*domain.Revision, error)
	GetRevision(ctx context.Context, noteID string, number int64) (*domain.Revision, error)
	Rollback(ctx context.Context, noteID string, number int64) (*domain.Note, error)
}

type SearchService interface {
	Search(ctx context.Context, query string, threshold float64, limit int) ([]service.SearchResult, error)
	Tags(ctx context.Context) (*service.TagStats, error)
}

type ChatService interface {
	Chat(ctx context.Context, question string, filter service.ChatFilter) (string, error)
}

type SummaryService interface {
	Summarize(ctx context.Context, content string) (string, error)
}

type NoteHandler struct {
	ingest  IngestService
	notes   NoteReader
	merge   MergeService
	history HistoryService
	search  SearchService
	chat    ChatService
	summary SummaryService
}

func NewNoteHandler(
	ingest IngestService,
	notes NoteReader,
	merge MergeService,
	history HistoryService,
	search SearchService,
	chat ChatService,
	summary SummaryService,
) *NoteHandler {
	return &NoteHandler{
		ingest:  ingest,
		notes:   notes,
		merge:   merge,
		history: history,
		search:  search,
		chat:    chat,
		summary: summary,
	}
}

type CreateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Policy  string `json:"policy"`
}

func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
		validation.Field(&r.Policy, validation.In("", string(service.IngestPolicyDeferred), string(service.IngestPolicyImmediate))),
	)
}

type MergeNotesRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

func (r MergeNotesRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SourceID, validation.Required),
		validation.Field(&r.TargetID, validation.Required),
	)
}

type SummarizeRequest struct {
	Content string `json:"content"`
}

func (r SummarizeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
	)
}

type ChatRequest struct {
	Question    string `json:"question"`
	Domain      string `json:"domain"`
	ContentType string `json:"content_type"`
}

func (r ChatRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Question, validation.Required),
	)
}

type NoteResponse struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	Content   string               `json:"content"`
	Summary   string               `json:"summary,omitempty"`
	Status    string               `json:"status"`
	Version   int64                `json:"version"`
	Analysis  *domain.NoteAnalysis `json:"analysis,omitempty"`
	CreatedAt string               `json:"created_at"`
	UpdatedAt string               `json:"updated_at"`
}

func noteToResponse(n *domain.Note) *NoteResponse {
	return &NoteResponse{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		Summary:   n.Summary,
		Status:    string(n.Status),
		Version:   n.Version,
		Analysis:  n.Analysis,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
		UpdatedAt: n.UpdatedAt.Format(time.RFC3339),
	}
}

type RevisionResponse struct {
	NoteID         string `json:"note_id"`
	RevisionNumber int64  `json:"revision_number"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	Summary        string `json:"summary,omitempty"`
	Status         string `json:"status"`
	ChangeKind     string `json:"change_kind"`
	CreatedAt      string `json:"created_at"`
}

func revisionToResponse(rev *domain.Revision) *RevisionResponse {
	return &RevisionResponse{
		NoteID:         rev.NoteID,
		RevisionNumber: rev.RevisionNumber,
		Title:          rev.Title,
		Content:        rev.Content,
		Summary:        rev.Summary,
		Status:         string(rev.Status),
		ChangeKind:     string(rev.ChangeKind),
		CreatedAt:      rev.CreatedAt.Format(time.RFC3339),
	}
}

type CreateNoteResponse struct {
	Note   *NoteResponse `json:"note"`
	Queued bool          `json:"queued"`
	Detail string        `json:"detail,omitempty"`
}

type IngestReportResponse struct {
	Outcomes []service.SegmentOutcome `json:"outcomes"`
	NewNote  *NoteResponse            `json:"new_note,omitempty"`
}

type ListNotesResponse struct {
	Items      []*NoteResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
	HasMore    bool            `json:"has_more"`
}

type SearchResultResponse struct {
	Note  *NoteResponse `json:"note"`
	Score float64       `json:"score"`
}

type SummarizeResponse struct {
	OriginalContent string `json:"original_content"`
	Summary         string `json:"summary"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
}

// Create submits content for ingestion. The policy field selects deferred
// (persist now, process in background) or immediate (segment and merge before
// returning); deferred is the default.
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if service.IngestPolicy(req.Policy) == service.IngestPolicyImmediate {
		report, err := h.ingest.IngestImmediate(r.Context(), req.Title, req.Content)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		resp := IngestReportResponse{Outcomes: report.Outcomes}
		if report.NewNote != nil {
			resp.NewNote = noteToResponse(report.NewNote)
		}
		api.Success(w, http.StatusOK, resp)
		return
	}

	note, err := h.ingest.Accept(r.Context(), req.Title, req.Content)
	if err != nil {
		// The note is durable even when the queue rejects the task; report
		// the note alongside the deferred-processing failure.
		if note != nil && errors.Is(err, domain.ErrQueueFull) {
			api.Success(w, http.StatusAccepted, CreateNoteResponse{
				Note:   noteToResponse(note),
				Queued: false,
				Detail: "processing queue is full, resubmit later",
			})
			return
		}
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, CreateNoteResponse{Note: noteToResponse(note), Queued: true})
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	note, err := h.notes.GetNote(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if note.Deleted {
		api.Error(w, http.StatusNotFound, domain.ErrNoteNotFound.Error())
		return
	}

	api.Success(w, http.StatusOK, noteToResponse(note))
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	cursor, err := pagination.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	page, err := h.notes.ListNotes(r.Context(), cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := ListNotesResponse{
		Items:      make([]*NoteResponse, 0, len(page.Items)),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
	for _, note := range page.Items {
		resp.Items = append(resp.Items, noteToResponse(note))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *NoteHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req SummarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.summary.Summarize(r.Context(), req.Content)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, SummarizeResponse{OriginalContent: req.Content, Summary: summary})
}

func (h *NoteHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	var threshold float64
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			api.Error(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	results, err := h.search.Search(r.Context(), query, threshold, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]SearchResultResponse, 0, len(results))
	for _, result := range results {
		resp = append(resp, SearchResultResponse{Note: noteToResponse(result.Note), Score: result.Score})
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *NoteHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req MergeNotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	merged, err := h.merge.MergeNotes(r.Context(), req.SourceID, req.TargetID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, noteToResponse(merged))
}

func (h *NoteHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	revisions, err := h.history.History(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]*RevisionResponse, 0, len(revisions))
	for _, rev := range revisions {
		resp = append(resp, revisionToResponse(rev))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *NoteHandler) GetRevision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	number, err := strconv.ParseInt(chi.URLParam(r, "rev"), 10, 64)
	if err != nil || number <= 0 {
		api.Error(w, http.StatusBadRequest, "invalid revision number")
		return
	}

	rev, err := h.history.GetRevision(r.Context(), id, number)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, revisionToResponse(rev))
}

func (h *NoteHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	number, err := strconv.ParseInt(chi.URLParam(r, "rev"), 10, 64)
	if err != nil || number <= 0 {
		api.Error(w, http.StatusBadRequest, "invalid revision number")
		return
	}

	note, err := h.history.Rollback(r.Context(), id, number)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, noteToResponse(note))
}

func (h *NoteHandler) Tags(w http.ResponseWriter, r *http.Request) {
	stats, err := h.search.Tags(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, stats)
}

func (h *NoteHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	answer, err := h.chat.Chat(r.Context(), req.Question, service.ChatFilter{
		Domain:      req.Domain,
		ContentType: req.ContentType,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ChatResponse{Answer: answer})
}
