package albaran

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

const (
	maxUploadSize  = 50 << 20 // high resolution phone photos
	maxExtractSize = 1 << 20
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// errorStatus maps service errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyProcessing):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// detectContentType prefers the part header and falls back to the file extension
func detectContentType(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".webp":
		return "image/webp"
	}
	// The capture client sends JPEG
	return "image/jpeg"
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.service.List()
	if err != nil {
		slog.Error("Error listing documents", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 50MB.")
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file")
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename)

	doc, result, err := s.service.Upload(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error uploading document", "filename", header.Filename, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, processedDocument{Document: doc, ProcessingResult: result})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errorStatus(err), "Document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetDocumentImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetImage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		slog.Warn("Error getting document image", "error", err)
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		code := errorStatus(err)
		if code == http.StatusInternalServerError {
			slog.Error("Error deleting document", "error", err)
		}
		writeError(w, code, "Error deleting document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	doc, result, err := s.service.Reprocess(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		code := errorStatus(err)
		if code == http.StatusInternalServerError {
			slog.Error("Error reprocessing document", "error", err)
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, processedDocument{Document: doc, ProcessingResult: result})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats()
	if err != nil {
		slog.Error("Error computing stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleExtract runs the field extractor on a text body, either plain text or
// {"text": "..."}
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxExtractSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Text is too large")
		return
	}

	text := string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		text = req.Text
	}

	writeJSON(w, http.StatusOK, s.service.Extract(text))
}
