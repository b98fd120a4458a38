package records

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/kirill555101/paperclip/internal/attachment"
	"github.com/kirill555101/paperclip/pkg/handlers"
	"github.com/kirill555101/paperclip/pkg/pagination"
	"github.com/kirill555101/paperclip/pkg/routes"
)

type Handler struct {
	sys           System
	logger        *slog.Logger
	maxUploadSize int64
	pagination    pagination.Config
}

func NewHandler(sys System, logger *slog.Logger, maxUploadSize int64, pagination pagination.Config) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger,
		maxUploadSize: maxUploadSize,
		pagination:    pagination,
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix:      "/records",
		Tags:        []string{"Records"},
		Description: "Records and their attachments",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{class}", Handler: h.List, OpenAPI: Spec.List},
			{Method: "POST", Pattern: "/{class}", Handler: h.Create, OpenAPI: Spec.Create},
			{Method: "GET", Pattern: "/{class}/{id}", Handler: h.Find, OpenAPI: Spec.Find},
			{Method: "DELETE", Pattern: "/{class}/{id}", Handler: h.Destroy, OpenAPI: Spec.Destroy},
			{Method: "PUT", Pattern: "/{class}/{id}/{attachment}", Handler: h.Attach, OpenAPI: Spec.Attach},
			{Method: "DELETE", Pattern: "/{class}/{id}/{attachment}", Handler: h.Detach, OpenAPI: Spec.Detach},
			{Method: "GET", Pattern: "/{class}/{id}/{attachment}/{style}", Handler: h.Download, OpenAPI: Spec.Download},
		},
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.FromQuery(r.URL.Query(), h.pagination)

	result, err := h.sys.List(r.Context(), r.PathValue("class"), page)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	m, err := h.sys.Create(r.Context(), r.PathValue("class"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, m.View())
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}

	handlers.RespondJSON(w, http.StatusOK, m.View())
}

func (h *Handler) Destroy(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := h.sys.Destroy(r.Context(), m); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Attach(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}
	defer m.Discard()

	a, err := m.Attachment(r.PathValue("attachment"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		contentType = ""
	}

	upload := attachment.Upload{Name: header.Filename, ContentType: contentType, Reader: file}
	if err := a.Assign(r.Context(), upload); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	if err := h.sys.Save(r.Context(), m); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, m.View())
}

func (h *Handler) Detach(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}
	defer m.Discard()

	a, err := m.Attachment(r.PathValue("attachment"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	if err := a.Assign(r.Context(), nil); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	if err := h.sys.Save(r.Context(), m); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, m.View())
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}

	a, err := m.Attachment(r.PathValue("attachment"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	style := r.PathValue("style")
	if _, ok := a.Definition().Style(style); !ok {
		handlers.RespondError(w, h.logger, http.StatusNotFound, ErrUnknownStyle)
		return
	}

	target, ok := a.Target(style)
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusNotFound, attachment.ErrNoFile)
		return
	}

	rc, err := a.Open(r.Context(), style)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	defer rc.Close()

	contentType := target.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("download interrupted", "key", target.Key, "error", err)
	}
}

// load resolves the record addressed by the class and id path values,
// writing the error response itself when it fails.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Model, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return nil, false
	}

	m, err := h.sys.Find(r.Context(), r.PathValue("class"), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return nil, false
	}
	return m, true
}
