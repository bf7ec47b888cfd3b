package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/161043261/ai-agent-go/internal/auth"
	"github.com/161043261/ai-agent-go/internal/cache"
)

// maxUploadBytes caps knowledge-base uploads at 10MB.
const maxUploadBytes = 10 << 20

// FileHandler serves the knowledge-base upload endpoints backing the
// retrieval-augmented model type.
type FileHandler struct {
	retriever *cache.SnippetRetriever
}

// NewFileHandler creates a FileHandler.
func NewFileHandler(retriever *cache.SnippetRetriever) *FileHandler {
	return &FileHandler{retriever: retriever}
}

// RegisterRoutes mounts the file routes. The router is expected to carry the
// auth middleware.
func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/file/upload", h.upload)
	r.Get("/api/file/list", h.list)
}

// upload accepts a multipart text document (.md or .txt) and replaces the
// user's knowledge base with its content.
func (h *FileHandler) upload(w http.ResponseWriter, r *http.Request) {
	userName := auth.UserNameFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		Fail(w, CodeInvalidParams)
		return
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		slog.Error("upload read failed", "username", userName, "error", err)
		Fail(w, CodeFileUploadFail)
		return
	}

	storedName, err := h.retriever.StoreDocument(r.Context(), userName, header.Filename, string(content))
	if errors.Is(err, cache.ErrUnsupportedFile) {
		Fail(w, CodeInvalidParams)
		return
	}
	if err != nil {
		slog.Error("knowledge base update failed", "username", userName, "error", err)
		Fail(w, CodeFileUploadFail)
		return
	}

	slog.Info("knowledge base document stored",
		"username", userName, "filename", header.Filename, "stored_as", storedName)
	Envelope(w, CodeSuccess, map[string]any{"filename": storedName})
}

// list returns the stored names of the user's uploaded documents.
func (h *FileHandler) list(w http.ResponseWriter, r *http.Request) {
	userName := auth.UserNameFromContext(r.Context())

	files, err := h.retriever.Files(r.Context(), userName)
	if err != nil {
		slog.Error("file listing failed", "username", userName, "error", err)
		Fail(w, CodeServerBusy)
		return
	}
	if files == nil {
		files = []string{}
	}

	Envelope(w, CodeSuccess, map[string]any{"files": files})
}
