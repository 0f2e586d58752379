package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/versedapp/versed/internal/catalog"
	"github.com/versedapp/versed/internal/db"
	"github.com/versedapp/versed/internal/download"
	"github.com/versedapp/versed/internal/logctx"
	"github.com/versedapp/versed/internal/selection"
)

// TranslationHandler exposes the translation lifecycle and read queries to
// the app UI.
type TranslationHandler struct {
	cat  *catalog.Catalog
	dl   *download.Manager
	sel  *selection.Service
	ctrl *db.Controller
}

func NewTranslationHandler(cat *catalog.Catalog, dl *download.Manager, sel *selection.Service, ctrl *db.Controller) *TranslationHandler {
	return &TranslationHandler{
		cat:  cat,
		dl:   dl,
		sel:  sel,
		ctrl: ctrl,
	}
}

func (h *TranslationHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/translations", h.listTranslations)
	r.Post("/translations/{id}/download", h.startDownload)
	r.Put("/translations/{id}/select", h.selectTranslation)
	r.Delete("/translations/{id}", h.removeTranslation)

	r.Get("/selection", h.currentSelection)

	r.Get("/downloads/current", h.downloadStatus)
	r.Delete("/downloads/current", h.cancelDownload)

	r.Get("/books", h.listBooks)
	r.Get("/books/{bookID}/chapters", h.listChapters)
	r.Get("/books/{bookID}/chapters/{chapter}/verses", h.listVerses)

	return r
}

type translationResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Language   string `json:"language"`
	Downloaded bool   `json:"downloaded"`
	Active     bool   `json:"active"`
}

type selectionResponse struct {
	TranslationID string `json:"translation_id,omitempty"`
	Ready         bool   `json:"ready"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *TranslationHandler) listTranslations(w http.ResponseWriter, r *http.Request) {
	current := h.sel.Current()

	list := make([]translationResponse, 0)

	for _, t := range h.cat.All() {
		list = append(list, translationResponse{
			ID:         t.ID,
			Name:       t.Name,
			Language:   t.Language,
			Downloaded: h.sel.IsDownloaded(t.ID),
			Active:     t.ID == current,
		})
	}

	respondJSON(w, http.StatusOK, list)
}

func (h *TranslationHandler) startDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.dl.Start(r.Context(), id)

	var unknownErr *catalog.UnknownTranslationError

	var busyErr *download.AlreadyInProgressError

	switch {
	case err == nil:
		respondJSON(w, http.StatusAccepted, h.dl.Status())
	case errors.As(err, &unknownErr):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &busyErr):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *TranslationHandler) downloadStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.dl.Status())
}

func (h *TranslationHandler) cancelDownload(w http.ResponseWriter, r *http.Request) {
	if !h.dl.Cancel() {
		respondError(w, http.StatusConflict, "no download in progress")

		return
	}

	respondJSON(w, http.StatusAccepted, h.dl.Status())
}

func (h *TranslationHandler) selectTranslation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.sel.Select(r.Context(), id)

	var unknownErr *catalog.UnknownTranslationError

	var notDownloadedErr *selection.NotDownloadedError

	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.As(err, &unknownErr):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &notDownloadedErr):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *TranslationHandler) removeTranslation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.sel.Remove(r.Context(), id)

	var unknownErr *catalog.UnknownTranslationError

	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.As(err, &unknownErr):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *TranslationHandler) currentSelection(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, selectionResponse{
		TranslationID: h.sel.Current(),
		Ready:         h.sel.Ready(),
	})
}

func (h *TranslationHandler) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.ctrl.Books(r.Context())
	if err != nil {
		respondReadError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, books)
}

func (h *TranslationHandler) listChapters(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid book id")

		return
	}

	chapters, err := h.ctrl.Chapters(r.Context(), bookID)
	if err != nil {
		respondReadError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, chapters)
}

func (h *TranslationHandler) listVerses(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid book id")

		return
	}

	chapter, err := strconv.Atoi(chi.URLParam(r, "chapter"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chapter number")

		return
	}

	verses, err := h.ctrl.Verses(r.Context(), bookID, chapter)
	if err != nil {
		respondReadError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, verses)
}

// respondReadError maps read-query failures. A missing attachment is the
// user-visible "download a translation" state, not a server fault.
func respondReadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, db.ErrNoTranslationAttached) {
		respondError(w, http.StatusConflict, "no translation attached, download a translation first")

		return
	}

	logctx.LoggerFromContext(r.Context()).Error("read query failed", "err", err)

	respondError(w, http.StatusInternalServerError, "query failed")
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
