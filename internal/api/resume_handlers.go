package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/freelancehub/internal/middleware"
	"github.com/onnwee/freelancehub/internal/resume"
	"github.com/onnwee/freelancehub/internal/upload"
	"github.com/onnwee/freelancehub/internal/user"
)

// ResumeStore reads and writes a user's resume text.
type ResumeStore interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	UpdateResume(ctx context.Context, id int64, resume string) error
}

// ResumeHandlers serves the caller's resume. Saving a resume changes the text
// embedded for all of the caller's listings.
type ResumeHandlers struct {
	users   ResumeStore
	storage upload.Store
	now     func() time.Time
}

// NewResumeHandlers creates the resume handlers. Uploaded files are archived to storage.
func NewResumeHandlers(users ResumeStore, storage upload.Store) *ResumeHandlers {
	return &ResumeHandlers{users: users, storage: storage, now: time.Now}
}

// ResumeResponse is the body of both resume endpoints.
type ResumeResponse struct {
	Resume     string `json:"resume"`
	ArchiveURL string `json:"archive_url,omitempty"`
}

// Get handles GET /resume.
func (h *ResumeHandlers) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.users.GetByID(ctx, middleware.GetUserID(ctx))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "User not found")
			return
		}
		slog.ErrorContext(ctx, "failed to load user", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load resume")
		return
	}
	writeJSON(w, ctx, http.StatusOK, ResumeResponse{Resume: u.Resume})
}

// Upload handles multipart POST /resume with either a resume_file (.pdf or .txt)
// or a resume_text field. A file takes precedence.
func (h *ResumeHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	const maxForm = resume.MaxFileSize + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, maxForm)
	if err := r.ParseMultipartForm(maxForm); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid multipart form")
		return
	}

	var resp ResumeResponse
	file, header, err := r.FormFile("resume_file")
	switch {
	case err == nil:
		defer file.Close()
		text, archiveURL, status, code, msg := h.readFile(ctx, userID, header.Filename, file)
		if msg != "" {
			WriteError(w, ctx, status, code, msg)
			return
		}
		resp = ResumeResponse{Resume: text, ArchiveURL: archiveURL}
	case errors.Is(err, http.ErrMissingFile):
		text := strings.TrimSpace(r.FormValue("resume_text"))
		if text == "" {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Provide a resume file or resume text")
			return
		}
		resp.Resume = text
	default:
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid resume upload")
		return
	}

	if err := h.users.UpdateResume(ctx, userID, resp.Resume); err != nil {
		slog.ErrorContext(ctx, "failed to save resume", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to save resume")
		return
	}
	slog.InfoContext(ctx, "resume updated", "chars", len(resp.Resume), "archived", resp.ArchiveURL != "")
	writeJSON(w, ctx, http.StatusOK, resp)
}

// readFile extracts text from an uploaded resume and archives the original. An
// archive failure is logged and leaves the URL empty.
func (h *ResumeHandlers) readFile(ctx context.Context, userID int64, filename string, file io.Reader) (text, archiveURL string, status int, code, msg string) {
	kind, err := resume.KindOf(filename)
	if err != nil {
		return "", "", http.StatusBadRequest, ErrCodeUnsupportedType, "Resume must be a .pdf or .txt file"
	}

	data, err := io.ReadAll(io.LimitReader(file, resume.MaxFileSize+1))
	if err != nil {
		return "", "", http.StatusBadRequest, ErrCodeBadRequest, "Failed to read resume file"
	}
	if len(data) > resume.MaxFileSize {
		return "", "", http.StatusRequestEntityTooLarge, ErrCodeValidation, "Resume exceeds 5MB"
	}

	text, err = resume.Extract(filename, data)
	if err != nil {
		if errors.Is(err, resume.ErrUnreadable) {
			return "", "", http.StatusBadRequest, ErrCodeValidation, "Resume file could not be read"
		}
		slog.ErrorContext(ctx, "failed to extract resume", "error", err)
		return "", "", http.StatusInternalServerError, ErrCodeInternal, "Failed to read resume file"
	}
	text = strings.TrimSpace(text)

	archiveURL, err = h.storage.Put(ctx, upload.ResumeKey(userID, h.now(), string(kind)), data, kind.ContentType())
	if err != nil {
		slog.WarnContext(ctx, "failed to archive resume file", "error", err)
		archiveURL = ""
	}
	return text, archiveURL, 0, "", ""
}
