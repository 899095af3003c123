// Package api exposes the media library over HTTP using chi.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mediaplan/medialib/pkg/medialib"
)

// OwnerHeader carries the caller's owner identifier. Requests without it are
// rejected before any service call.
const OwnerHeader = "X-Owner-ID"

const maxUploadBytes = 512 << 20 // 512 MiB

// MediaResponse is the response body for a media record.
type MediaResponse struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	Kind             string    `json:"media_kind"`
	OriginalURL      string    `json:"original_url,omitempty"`
	ThumbnailURL     string    `json:"thumbnail_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toMediaResponse(record *medialib.MediaRecord) *MediaResponse {
	resp := &MediaResponse{
		ID:               record.ID,
		OwnerID:          record.OwnerID,
		Filename:         record.Filename,
		OriginalFilename: record.OriginalFilename,
		Kind:             string(record.Kind),
		OriginalURL:      record.OriginalURL,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}
	if url, ok := record.Thumbnail.URL(); ok {
		resp.ThumbnailURL = url
	}
	return resp
}

// MediaHandler handles HTTP requests for media records.
type MediaHandler struct {
	service medialib.Service
	logger  *slog.Logger
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(service medialib.Service, logger *slog.Logger) *MediaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaHandler{service: service, logger: logger}
}

// Routes returns the routes for media records.
func (h *MediaHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.UploadMedia)
	r.Get("/", h.ListMedia)
	r.Get("/{id}", h.GetMedia)
	r.Delete("/{id}", h.DeleteMedia)

	// Thumbnail routes
	r.Post("/{id}/thumbnail", h.EnsureThumbnail)
	r.Post("/thumbnails/rebuild", h.RebuildThumbnails)
	r.Get("/thumbnails/status", h.ThumbnailStatus)

	return r
}

// UploadMedia accepts a multipart upload and creates the media record.
func (h *MediaHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(OwnerHeader)
	if ownerID == "" {
		http.Error(w, "missing "+OwnerHeader+" header", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	record, err := h.service.UploadMedia(r.Context(), medialib.UploadMediaRequest{
		OwnerID:  ownerID,
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Reader:   file,
	})
	if err != nil {
		h.logger.Error("upload media", "owner_id", ownerID, "filename", header.Filename, "err", err)
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toMediaResponse(record))
}

// ListMedia lists the caller's records, newest first.
func (h *MediaHandler) ListMedia(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(OwnerHeader)
	if ownerID == "" {
		http.Error(w, "missing "+OwnerHeader+" header", http.StatusBadRequest)
		return
	}

	records, err := h.service.ListMedia(r.Context(), ownerID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	resp := make([]*MediaResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, toMediaResponse(record))
	}
	render.JSON(w, r, resp)
}

// GetMedia returns one record by id.
func (h *MediaHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.GetMedia(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, toMediaResponse(record))
}

// DeleteMedia soft-deletes a record.
func (h *MediaHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteMedia(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnsureThumbnail schedules thumbnail generation for one record. Generation
// runs in the background; the response only confirms scheduling.
func (h *MediaHandler) EnsureThumbnail(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EnsureThumbnail(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "scheduled"})
}

// RebuildThumbnails schedules generation for the caller's records that lack
// thumbnails, newest first, up to the limit query parameter.
func (h *MediaHandler) RebuildThumbnails(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(OwnerHeader)
	if ownerID == "" {
		http.Error(w, "missing "+OwnerHeader+" header", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	scheduled, err := h.service.BackfillThumbnails(r.Context(), ownerID, limit)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]int{"scheduled": scheduled})
}

// ThumbnailStatus reports thumbnail coverage for the caller's records.
func (h *MediaHandler) ThumbnailStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(OwnerHeader)
	if ownerID == "" {
		http.Error(w, "missing "+OwnerHeader+" header", http.StatusBadRequest)
		return
	}

	stats, err := h.service.ThumbnailStats(r.Context(), ownerID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}

func (h *MediaHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, medialib.ErrRecordNotFound):
		http.Error(w, "media not found", http.StatusNotFound)
	case errors.Is(err, medialib.ErrUnsupportedKind):
		http.Error(w, "media kind has no thumbnails", http.StatusBadRequest)
	case errors.Is(err, medialib.ErrQueueFull):
		http.Error(w, "thumbnail queue is full, retry later", http.StatusServiceUnavailable)
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
