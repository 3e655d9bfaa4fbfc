package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/freelancehub/internal/chat"
	"github.com/onnwee/freelancehub/internal/image"
	"github.com/onnwee/freelancehub/internal/listing"
	"github.com/onnwee/freelancehub/internal/middleware"
	"github.com/onnwee/freelancehub/internal/upload"
	"github.com/onnwee/freelancehub/internal/validate"
)

// maxServiceForm bounds a POST /services body: one image plus the text fields.
const maxServiceForm = validate.MaxImageSize + 1<<20

// ImageSanitizer strips metadata from an uploaded image and re-encodes it as JPEG.
type ImageSanitizer interface {
	Sanitize(r io.Reader) ([]byte, error)
}

// SellerInbox reports a seller's conversations and unread messages.
type SellerInbox interface {
	SellerUnreadCount(ctx context.Context, sellerID int64) (int, error)
	SellerInbox(ctx context.Context, userID int64) ([]chat.InboxEntry, int, error)
}

// SellerHandlers serves the seller dashboard and service management.
type SellerHandlers struct {
	services listing.Repository
	inbox    SellerInbox
	images   ImageSanitizer
	storage  upload.Store
	now      func() time.Time
}

// NewSellerHandlers creates the seller handlers.
func NewSellerHandlers(services listing.Repository, inbox SellerInbox, images ImageSanitizer, storage upload.Store) *SellerHandlers {
	return &SellerHandlers{
		services: services,
		inbox:    inbox,
		images:   images,
		storage:  storage,
		now:      time.Now,
	}
}

// SellerResponse is the body of GET /seller.
type SellerResponse struct {
	Services    []*listing.Service `json:"services"`
	TotalUnread int                `json:"total_unread"`
}

// InboxResponse lists conversations with the caller's total unread count.
type InboxResponse struct {
	Conversations []chat.InboxEntry `json:"conversations"`
	TotalUnread   int               `json:"total_unread"`
}

// UpdateServiceRequest is the body of PUT /services/{id}.
type UpdateServiceRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Price       json.Number `json:"price"`
}

// Dashboard handles GET /seller.
func (h *SellerHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	services, err := h.services.ListByOwner(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list services", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load services")
		return
	}
	unread, err := h.inbox.SellerUnreadCount(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count unread messages", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load messages")
		return
	}
	if services == nil {
		services = []*listing.Service{}
	}
	writeJSON(w, ctx, http.StatusOK, SellerResponse{Services: services, TotalUnread: unread})
}

// Create handles multipart POST /services with fields title, description, price,
// tag and an optional image.
func (h *SellerHandlers) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxServiceForm)
	if err := r.ParseMultipartForm(maxServiceForm); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, ctx, http.StatusRequestEntityTooLarge, ErrCodeValidation, "Upload too large")
			return
		}
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid multipart form")
		return
	}

	svc, msg := serviceFromForm(r)
	if msg != "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, msg)
		return
	}
	svc.OwnerID = userID

	file, _, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		url, status, code, msg := h.storeImage(ctx, file)
		if msg != "" {
			WriteError(w, ctx, status, code, msg)
			return
		}
		svc.ImageURL = url
	case !errors.Is(err, http.ErrMissingFile):
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid image upload")
		return
	}

	if err := h.services.Insert(ctx, svc); err != nil {
		slog.ErrorContext(ctx, "failed to insert service", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create service")
		return
	}

	slog.InfoContext(ctx, "service created", "service_id", svc.ID, "tag", svc.Tag)
	writeJSON(w, ctx, http.StatusCreated, svc)
}

// serviceFromForm validates the text fields of a new service. A non-empty message
// describes the first invalid field.
func serviceFromForm(r *http.Request) (*listing.Service, string) {
	title, err := validate.ServiceTitle(r.FormValue("title"))
	if err != nil {
		return nil, "Invalid title: " + err.Error()
	}
	desc, err := validate.ServiceDescription(r.FormValue("description"))
	if err != nil {
		return nil, "Invalid description: " + err.Error()
	}
	price, err := validate.Price(r.FormValue("price"))
	if err != nil {
		return nil, "Invalid price: " + err.Error()
	}

	tag := r.FormValue("tag")
	switch {
	case tag == "":
		tag = listing.DefaultTag
	case tag != listing.DefaultTag && !listing.IsKnownTag(tag):
		return nil, "Unknown category: " + tag
	}

	return &listing.Service{Title: title, Description: desc, Price: price, Tag: tag}, ""
}

// storeImage validates, sanitizes and uploads an image. On failure it returns the
// status, code and message to report.
func (h *SellerHandlers) storeImage(ctx context.Context, file io.Reader) (string, int, string, string) {
	data, err := io.ReadAll(io.LimitReader(file, validate.MaxImageSize+1))
	if err != nil {
		return "", http.StatusBadRequest, ErrCodeBadRequest, "Failed to read image"
	}
	if _, err := validate.ImageFile(data); err != nil {
		if errors.Is(err, validate.ErrFileTooLarge) {
			return "", http.StatusRequestEntityTooLarge, ErrCodeValidation, "Image exceeds 10MB"
		}
		return "", http.StatusBadRequest, ErrCodeUnsupportedType, "Image must be JPEG, PNG, GIF or WebP"
	}

	sanitized, err := h.images.Sanitize(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrNotImage) {
			return "", http.StatusBadRequest, ErrCodeUnsupportedType, "Image could not be decoded"
		}
		slog.ErrorContext(ctx, "failed to sanitize image", "error", err)
		return "", http.StatusInternalServerError, ErrCodeInternal, "Failed to process image"
	}

	url, err := h.storage.Put(ctx, upload.ServiceImageKey(h.now()), sanitized, "image/jpeg")
	if err != nil {
		slog.ErrorContext(ctx, "failed to store image", "error", err)
		return "", http.StatusInternalServerError, ErrCodeInternal, "Failed to store image"
	}
	return url, 0, "", ""
}

// Update handles PUT /services/{id}. Services the caller does not own are reported as not found.
func (h *SellerHandlers) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	title, err := validate.ServiceTitle(req.Title)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid title: "+err.Error())
		return
	}
	desc, err := validate.ServiceDescription(req.Description)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid description: "+err.Error())
		return
	}
	price, err := validate.Price(req.Price.String())
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid price: "+err.Error())
		return
	}

	svc := &listing.Service{
		ID:          id,
		OwnerID:     middleware.GetUserID(ctx),
		Title:       title,
		Description: desc,
		Price:       price,
	}
	if err := h.services.Update(ctx, svc); err != nil {
		if errors.Is(err, listing.ErrServiceNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Service not found")
			return
		}
		slog.ErrorContext(ctx, "failed to update service", "error", err, "service_id", id)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update service")
		return
	}
	writeJSON(w, ctx, http.StatusOK, svc)
}

// Delete handles DELETE /services/{id}.
func (h *SellerHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.services.Delete(ctx, id, middleware.GetUserID(ctx)); err != nil {
		if errors.Is(err, listing.ErrServiceNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Service not found")
			return
		}
		slog.ErrorContext(ctx, "failed to delete service", "error", err, "service_id", id)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to delete service")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Inbox handles GET /seller/inbox.
func (h *SellerHandlers) Inbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, unread, err := h.inbox.SellerInbox(ctx, middleware.GetUserID(ctx))
	if err != nil {
		slog.ErrorContext(ctx, "failed to load seller inbox", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load inbox")
		return
	}
	writeJSON(w, ctx, http.StatusOK, InboxResponse{Conversations: entries, TotalUnread: unread})
}

// pathID parses a positive integer path value, writing a 400 when it is not one.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}
