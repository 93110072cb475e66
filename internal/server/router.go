package server

import (
	"net/http"

	"github.com/eachPassingDay/ainote/internal/api"
	"github.com/eachPassingDay/ainote/internal/api/handlers"
	"github.com/eachPassingDay/ainote/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	NoteHandler *handlers.NoteHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/notes", func(r chi.Router) {
		r.Post("/", cfg.NoteHandler.Create)
		r.Get("/", cfg.NoteHandler.List)
		r.Post("/summarize", cfg.NoteHandler.Summarize)
		r.Get("/search", cfg.NoteHandler.Search)
		r.Post("/merge", cfg.NoteHandler.Merge)
		r.Get("/tags", cfg.NoteHandler.Tags)
		r.Post("/chat", cfg.NoteHandler.Chat)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", cfg.NoteHandler.Get)
			r.Get("/history", cfg.NoteHandler.History)
			r.Get("/history/{rev}", cfg.NoteHandler.GetRevision)
			r.Post("/rollback/{rev}", cfg.NoteHandler.Rollback)
		})
	})

	return r
}
