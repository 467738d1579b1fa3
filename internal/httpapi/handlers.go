package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"paper-citations-rag/internal/database"
	"paper-citations-rag/internal/locate"
	"paper-citations-rag/internal/metrics"
	"paper-citations-rag/internal/models"
	"paper-citations-rag/internal/rag"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps service errors to status codes. Internal details are
// logged, not returned.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, database.ErrNoPageTexts):
		writeError(w, http.StatusNotFound, "Page texts not available")
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "Document not found")
	case rag.IsUpstream(err):
		zap.L().Warn("http: upstream failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		zap.L().Error("http: request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return eris.Wrap(err, "invalid request body")
	}
	return nil
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Setup creates the schema and reports the document count
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.Setup(r.Context(), h.EmbeddingDim)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"document_count": n,
	})
}

type queryRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id"`
}

// Query answers a question with citations
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decode(r, &req); err != nil || strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}

	res, err := h.Service.Answer(r.Context(), req.Query, req.DocumentID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListDocuments returns every document, newest first
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Service.Store.ListDocuments(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// GetDocument returns one document
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Service.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc})
}

// DeleteDocument removes a document with its passages and, for uploads, its file
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := h.Service.Store.GetDocument(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := h.Service.Store.DeleteDocument(r.Context(), id); err != nil {
		writeAppError(w, r, err)
		return
	}

	if h.isUpload(doc.FilePath) {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			zap.L().Warn("http: remove uploaded file", zap.String("path", doc.FilePath), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) isUpload(path string) bool {
	if path == "" || h.UploadDir == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(h.UploadDir), filepath.Clean(path))
	return err == nil && !strings.HasPrefix(rel, "..") && rel != "."
}

// PageTexts returns the stored per-page text of a document
func (h *Handler) PageTexts(w http.ResponseWriter, r *http.Request) {
	pages, err := h.Service.Store.PageTexts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

type locatePageRequest struct {
	Text string `json:"text"`
}

type locatePageResponse struct {
	Page  int  `json:"page"`
	Found bool `json:"found"`
}

// LocatePage finds the page of a document holding a cited source text
func (h *Handler) LocatePage(w http.ResponseWriter, r *http.Request) {
	var req locatePageRequest
	if err := decode(r, &req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	page, ok, err := h.Service.LocatePage(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locatePageResponse{Page: page, Found: ok})
}

type locateSpanRequest struct {
	Fragments []models.Fragment `json:"fragments"`
	Text      string            `json:"text"`
}

type locateSpanResponse struct {
	models.SpanMatch
	Found bool `json:"found"`
}

// LocateSpan finds the fragment range of a rendered page covering a source text
func (h *Handler) LocateSpan(w http.ResponseWriter, r *http.Request) {
	var req locateSpanRequest
	if err := decode(r, &req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "fragments and text are required")
		return
	}

	match, ok := locate.FindSpan(req.Fragments, req.Text)
	metrics.RecordLocate("span", ok)
	writeJSON(w, http.StatusOK, locateSpanResponse{SpanMatch: match, Found: ok})
}

// ListConversations returns the conversations about one document, oldest first
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("document_id")
	if documentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	convs, err := h.Service.Store.ListConversations(r.Context(), documentID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// Upload stores a PDF in the upload directory and indexes it
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "A PDF file is required")
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "A PDF file is required")
		return
	}

	base := filepath.Base(header.Filename)
	dest, err := h.save(file, base)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	name := base[:len(base)-len(filepath.Ext(base))]
	doc, err := h.Service.Ingest(r.Context(), dest, name, nil)
	if err != nil {
		if doc == nil {
			// no document row owns the file
			if rmErr := os.Remove(dest); rmErr != nil {
				zap.L().Warn("http: remove orphaned upload", zap.String("path", dest), zap.Error(rmErr))
			}
		}
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc})
}

func (h *Handler) save(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		return "", eris.Wrap(err, "http: create upload dir")
	}

	dest := filepath.Join(h.UploadDir, fmt.Sprintf("%d-%s", time.Now().UnixMilli(), filename))
	out, err := os.Create(dest)
	if err != nil {
		return "", eris.Wrap(err, "http: create upload file")
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return "", eris.Wrap(err, "http: write upload file")
	}
	if err := out.Close(); err != nil {
		return "", eris.Wrap(err, "http: close upload file")
	}
	return dest, nil
}

// ServePDF streams the stored PDF of a document
func (h *Handler) ServePDF(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Service.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	f, err := os.Open(doc.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "PDF file not found on server")
			return
		}
		writeAppError(w, r, eris.Wrap(err, "http: open pdf"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeAppError(w, r, eris.Wrap(err, "http: stat pdf"))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Name+".pdf"))
	http.ServeContent(w, r, doc.Name+".pdf", info.ModTime(), f)
}
