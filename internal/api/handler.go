// Package api exposes a workspace over HTTP for a local reader UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/pagecache"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/workspace"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/logger"
)

// Reader is the part of *workspace.Workspace the handlers drive.
type Reader interface {
	Open(path string, progress indexer.ProgressFunc) (workspace.DocumentInfo, error)
	Close(ctx context.Context, key string, deleteIndex bool) error
	Documents() []workspace.DocumentInfo
	Search(ctx context.Context, key, query string, opts search.Options) ([]search.Result, error)
	View(key string, visible pagecache.Range) (pagecache.Stats, error)
	Page(key string, page int) ([]string, bool)
	ClearIndices(ctx context.Context) (int, error)
	Stats() workspace.Stats
}

type Handler struct {
	reader Reader
	logger *slog.Logger
}

func New(reader Reader) *Handler {
	return &Handler{
		reader: reader,
		logger: slog.Default().With("component", "api"),
	}
}

type openRequest struct {
	Path string `json:"path"`
}

type viewRequest struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

type searchResponse struct {
	DocumentKey string          `json:"documentKey"`
	Query       string          `json:"query"`
	Options     search.Options  `json:"options"`
	Results     []search.Result `json:"results"`
	LatencyMs   int64           `json:"latencyMs"`
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"documents": h.reader.Documents()})
}

func (h *Handler) OpenDocument(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Path == "" {
		h.writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	info, err := h.reader.Open(req.Path, nil)
	if err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	logger.FromContext(r.Context()).Info("document opened via api", "doc_key", info.Key, "path", info.Path)
	h.writeJSON(w, http.StatusAccepted, info)
}

func (h *Handler) CloseDocument(w http.ResponseWriter, r *http.Request) {
	deleteIndex, _ := strconv.ParseBool(r.URL.Query().Get("deleteIndex"))
	if err := h.reader.Close(r.Context(), r.PathValue("key"), deleteIndex); err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/v1/documents/{key}/search?q=&whole=&case=&max=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	params := r.URL.Query()
	query := params.Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	var opts search.Options
	opts.WholeWords, _ = strconv.ParseBool(params.Get("whole"))
	opts.CaseSensitive, _ = strconv.ParseBool(params.Get("case"))
	if v := params.Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "max must be a positive integer")
			return
		}
		opts.MaxResults = n
	}

	key := r.PathValue("key")
	results, err := h.reader.Search(r.Context(), key, query, opts)
	if err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, searchResponse{
		DocumentKey: key,
		Query:       query,
		Options:     opts,
		Results:     results,
		LatencyMs:   time.Since(start).Milliseconds(),
	})
}

func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	stats, err := h.reader.View(r.PathValue("key"), pagecache.Range{Low: req.Low, High: req.High})
	if err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || page < 0 {
		h.writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
		return
	}
	lines, ok := h.reader.Page(r.PathValue("key"), page)
	if !ok {
		h.writeError(w, http.StatusNotFound, "page is not loaded, update the visible range first")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"page": page, "lines": lines})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.reader.Stats())
}

func (h *Handler) ClearIndices(w http.ResponseWriter, r *http.Request) {
	removed, err := h.reader.ClearIndices(r.Context())
	if err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) writeAppError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error("request failed", "error", err)
		msg = "internal error"
	}
	h.writeError(w, status, msg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
