package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zjrosen/milspecs/internal/forms"
	"github.com/zjrosen/milspecs/internal/log"
)

func (h *Handler) formRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/forms", h.withForms(h.ListForms))
	mux.HandleFunc("POST /api/forms", h.withForms(h.CreateForm))
	mux.HandleFunc("GET /api/forms/{id}", h.withForms(h.GetForm))
	mux.HandleFunc("PUT /api/forms/{id}", h.withForms(h.UpdateForm))
	mux.HandleFunc("DELETE /api/forms/{id}", h.withForms(h.DeleteForm))
	mux.HandleFunc("POST /api/forms/{id}/duplicate", h.withForms(h.DuplicateForm))

	mux.HandleFunc("GET /api/decoded", h.withForms(h.ListDecoded))
	mux.HandleFunc("POST /api/decoded", h.withForms(h.CreateDecoded))
	mux.HandleFunc("GET /api/decoded/{id}", h.withForms(h.GetDecoded))
	mux.HandleFunc("DELETE /api/decoded/{id}", h.withForms(h.DeleteDecoded))
	mux.HandleFunc("DELETE /api/decoded", h.withForms(h.ClearDecoded))

	mux.HandleFunc("GET /api/templates", h.withForms(h.ListTemplates))
	mux.HandleFunc("POST /api/templates", h.withForms(h.CreateTemplate))
	mux.HandleFunc("GET /api/templates/{id}", h.withForms(h.GetTemplate))
	mux.HandleFunc("PATCH /api/templates/{id}", h.withForms(h.UpdateTemplate))
	mux.HandleFunc("DELETE /api/templates/{id}", h.withForms(h.DeleteTemplate))

	mux.HandleFunc("GET /api/storage/export", h.withForms(h.ExportStorage))
	mux.HandleFunc("POST /api/storage/import", h.withForms(h.ImportStorage))
	mux.HandleFunc("DELETE /api/storage", h.withForms(h.ClearStorage))
}

// CreateFormRequest is the body of POST /api/forms.
type CreateFormRequest struct {
	forms.FormMeta
	Data forms.Data `json:"data"`
}

// UpdateFormRequest is the body of PUT /api/forms/{id}.
type UpdateFormRequest struct {
	Data forms.Data `json:"data"`
}

// DuplicateFormRequest is the optional body of POST /api/forms/{id}/duplicate.
type DuplicateFormRequest struct {
	Name string `json:"name"`
}

// CreateDecodedRequest is the body of POST /api/decoded.
type CreateDecodedRequest struct {
	forms.DecodedMeta
	Data forms.Data `json:"data"`
}

func (h *Handler) withForms(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.forms == nil {
			h.writeError(w, http.StatusServiceUnavailable, "forms_disabled", "form storage is not configured", "")
			return
		}
		next(w, r)
	}
}

// ListForms returns saved forms, optionally for one spec (?spec=).
// GET /api/forms
func (h *Handler) ListForms(w http.ResponseWriter, r *http.Request) {
	list, err := h.forms.FormsBySpec(r.Context(), r.URL.Query().Get("spec"))
	h.reply(w, http.StatusOK, list, err)
}

// CreateForm saves a new form.
// POST /api/forms
func (h *Handler) CreateForm(w http.ResponseWriter, r *http.Request) {
	var req CreateFormRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	f, err := h.forms.SaveForm(r.Context(), req.Data, req.FormMeta)
	h.reply(w, http.StatusCreated, f, err)
}

// GetForm returns one form.
// GET /api/forms/{id}
func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	f, err := h.forms.GetForm(r.Context(), r.PathValue("id"))
	h.reply(w, http.StatusOK, f, err)
}

// UpdateForm replaces a form's data.
// PUT /api/forms/{id}
func (h *Handler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	var req UpdateFormRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	f, err := h.forms.UpdateForm(r.Context(), r.PathValue("id"), req.Data)
	h.reply(w, http.StatusOK, f, err)
}

// DeleteForm removes a form.
// DELETE /api/forms/{id}
func (h *Handler) DeleteForm(w http.ResponseWriter, r *http.Request) {
	h.replyEmpty(w, h.forms.DeleteForm(r.Context(), r.PathValue("id")))
}

// DuplicateForm copies a form.
// POST /api/forms/{id}/duplicate
func (h *Handler) DuplicateForm(w http.ResponseWriter, r *http.Request) {
	var req DuplicateFormRequest
	if r.ContentLength != 0 && !h.decodeJSON(w, r, &req) {
		return
	}
	f, err := h.forms.DuplicateForm(r.Context(), r.PathValue("id"), req.Name)
	h.reply(w, http.StatusCreated, f, err)
}

// ListDecoded returns decoded results.
// GET /api/decoded
func (h *Handler) ListDecoded(w http.ResponseWriter, r *http.Request) {
	list, err := h.forms.ListDecoded(r.Context())
	h.reply(w, http.StatusOK, list, err)
}

// CreateDecoded stores a decoded result.
// POST /api/decoded
func (h *Handler) CreateDecoded(w http.ResponseWriter, r *http.Request) {
	var req CreateDecodedRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	d, err := h.forms.SaveDecoded(r.Context(), req.Data, req.DecodedMeta)
	h.reply(w, http.StatusCreated, d, err)
}

// GetDecoded returns one decoded result.
// GET /api/decoded/{id}
func (h *Handler) GetDecoded(w http.ResponseWriter, r *http.Request) {
	d, err := h.forms.GetDecoded(r.Context(), r.PathValue("id"))
	h.reply(w, http.StatusOK, d, err)
}

// DeleteDecoded removes one decoded result.
// DELETE /api/decoded/{id}
func (h *Handler) DeleteDecoded(w http.ResponseWriter, r *http.Request) {
	h.replyEmpty(w, h.forms.DeleteDecoded(r.Context(), r.PathValue("id")))
}

// ClearDecoded removes every decoded result.
// DELETE /api/decoded
func (h *Handler) ClearDecoded(w http.ResponseWriter, r *http.Request) {
	h.replyEmpty(w, h.forms.ClearDecoded(r.Context()))
}

// ListTemplates returns templates, optionally for one spec (?spec=).
// GET /api/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.forms.TemplatesBySpec(r.Context(), r.URL.Query().Get("spec"))
	h.reply(w, http.StatusOK, list, err)
}

// CreateTemplate stores a template.
// POST /api/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req forms.Template
	if !h.decodeJSON(w, r, &req) {
		return
	}
	t, err := h.forms.SaveTemplate(r.Context(), req)
	h.reply(w, http.StatusCreated, t, err)
}

// GetTemplate returns one template.
// GET /api/templates/{id}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.forms.GetTemplate(r.Context(), r.PathValue("id"))
	h.reply(w, http.StatusOK, t, err)
}

// UpdateTemplate patches a template.
// PATCH /api/templates/{id}
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var patch forms.TemplatePatch
	if !h.decodeJSON(w, r, &patch) {
		return
	}
	t, err := h.forms.UpdateTemplate(r.Context(), r.PathValue("id"), patch)
	h.reply(w, http.StatusOK, t, err)
}

// DeleteTemplate removes a template.
// DELETE /api/templates/{id}
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	h.replyEmpty(w, h.forms.DeleteTemplate(r.Context(), r.PathValue("id")))
}

// ExportStorage downloads every stored collection as one JSON document.
// GET /api/storage/export
func (h *Handler) ExportStorage(w http.ResponseWriter, r *http.Request) {
	exp, err := h.forms.Export(r.Context())
	if err != nil {
		h.reply(w, http.StatusOK, nil, err)
		return
	}
	name := forms.ExportFileName(exp.ExportedAt)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	h.writeJSON(w, http.StatusOK, exp)
}

// ImportStorage merges an exported document into the store.
// POST /api/storage/import
func (h *Handler) ImportStorage(w http.ResponseWriter, r *http.Request) {
	var data forms.ImportData
	if !h.decodeJSON(w, r, &data) {
		return
	}
	h.replyEmpty(w, h.forms.Import(r.Context(), data))
}

// ClearStorage removes every stored collection.
// DELETE /api/storage
func (h *Handler) ClearStorage(w http.ResponseWriter, r *http.Request) {
	h.replyEmpty(w, h.forms.ClearAll(r.Context()))
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return false
	}
	return true
}

func (h *Handler) reply(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		h.writeFormsError(w, err)
		return
	}
	h.writeJSON(w, status, v)
}

func (h *Handler) replyEmpty(w http.ResponseWriter, err error) {
	if err != nil {
		h.writeFormsError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeFormsError(w http.ResponseWriter, err error) {
	var verr *forms.ValidationError
	switch {
	case errors.Is(err, forms.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", err.Error(), "")
	case errors.Is(err, forms.ErrInvalidImport):
		h.writeError(w, http.StatusBadRequest, "invalid_import", err.Error(), "")
	case errors.As(err, &verr):
		h.writeError(w, http.StatusUnprocessableEntity, "validation_error", "form data is invalid", strings.Join(verr.Errors, "; "))
	default:
		log.ErrorErr(log.CatHTTP, "forms request failed", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "storage error", err.Error())
	}
}
