// Package api exposes the spec registry, spec data and saved forms over
// JSON HTTP endpoints, plus SSE streams of log lines and registry changes.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zjrosen/milspecs/internal/forms"
	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/spec/loader"
	"github.com/zjrosen/milspecs/internal/spec/registry"
	"github.com/zjrosen/milspecs/internal/specstore"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 4 << 20

// rawCodec is implemented by adapters with a line-oriented text format.
type rawCodec interface {
	GenerateRawData(form adapter.FormData, date time.Time) string
	DecodeRawData(raw string) adapter.FormData
}

// Handler serves the /api endpoints.
type Handler struct {
	specs   *loader.Service
	store   *specstore.Store
	forms   *forms.Service
	metrics http.Handler
	now     func() time.Time
}

// HandlerConfig configures the API handler.
type HandlerConfig struct {
	// Specs is the initialized spec service (required).
	Specs *loader.Service
	// Store serves section data (required for the section endpoints).
	Store *specstore.Store
	// Forms persists saved forms. The forms endpoints answer 503 when nil.
	Forms *forms.Service
	// Metrics, when set, is served at /metrics.
	Metrics http.Handler
	// Now stamps generated raw data. Defaults to time.Now.
	Now func() time.Time
}

// NewHandler returns a handler over cfg.
func NewHandler(cfg HandlerConfig) *Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		specs:   cfg.Specs,
		store:   cfg.Store,
		forms:   cfg.Forms,
		metrics: cfg.Metrics,
		now:     now,
	}
}

// Routes returns the API mux. Paths are rooted at /api, except /metrics.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health)

	// Registry
	mux.HandleFunc("GET /api/specs", h.ListSpecs)
	mux.HandleFunc("GET /api/specs/{id}", h.GetSpec)
	mux.HandleFunc("GET /api/specs/{id}/schema", h.GetSchema)
	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("GET /api/tools", h.ListTools)

	// Spec data
	mux.HandleFunc("GET /api/specs/{id}/sections/{section}", h.GetSection)
	mux.HandleFunc("GET /api/specs/{id}/sections/{section}/export", h.ExportSection)
	mux.HandleFunc("GET /api/specs/{id}/sections/{section}/items/{code}", h.GetItem)
	mux.HandleFunc("POST /api/specs/{id}/validate", h.Validate)
	mux.HandleFunc("POST /api/specs/{id}/export", h.Export)

	// DD Form 2326 raw data
	mux.HandleFunc("POST /api/dd2326/encode", h.EncodeDD2326)
	mux.HandleFunc("POST /api/dd2326/decode", h.DecodeDD2326)

	h.formRoutes(mux)

	// Streams
	mux.HandleFunc("GET /api/events", h.StreamRegistryEvents)
	mux.HandleFunc("GET /api/logs", h.StreamLogs)

	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
	return mux
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse reports whether the registry finished loading.
type HealthResponse struct {
	Status      string `json:"status"`
	Initialized bool   `json:"initialized"`
	Specs       int    `json:"specs"`
}

// SpecResponse is one spec with its routes and tools.
type SpecResponse struct {
	loader.SpecSummary
	Paths []string        `json:"paths"`
	Tools []registry.Tool `json:"tools"`
}

// ListSpecsResponse lists the registered specs.
type ListSpecsResponse struct {
	Specs []loader.SpecSummary `json:"specs"`
	Total int                  `json:"total"`
}

// ListToolsResponse lists the tool routes.
type ListToolsResponse struct {
	Tools []registry.Tool `json:"tools"`
	Total int             `json:"total"`
}

// SectionResponse is a section's rows after filtering.
type SectionResponse struct {
	SpecID  string           `json:"specId"`
	Section string           `json:"section"`
	Query   string           `json:"query,omitempty"`
	Records []adapter.Record `json:"records"`
	Total   int              `json:"total"`
}

// EncodeResponse is the raw text of an encoded form.
type EncodeResponse struct {
	RawData string `json:"rawData"`
}

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Initialized: h.specs.Initialized(),
		Specs:       len(h.specs.Specs()),
	})
}

// ListSpecs returns every registered spec.
// GET /api/specs
func (h *Handler) ListSpecs(w http.ResponseWriter, r *http.Request) {
	specs := h.specs.Specs()
	if r.URL.Query().Get("available") == "true" {
		specs = h.specs.AvailableSpecs()
	}
	if specs == nil {
		specs = []loader.SpecSummary{}
	}
	h.writeJSON(w, http.StatusOK, ListSpecsResponse{Specs: specs, Total: len(specs)})
}

// GetSpec returns one spec.
// GET /api/specs/{id}
func (h *Handler) GetSpec(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sum, ok := h.specs.Summary(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "spec not found", id)
		return
	}
	resp := SpecResponse{SpecSummary: sum, Paths: []string{}, Tools: h.specs.ToolsForSpec(id)}
	for _, route := range h.specs.Registry().GetRoutesForSpec(id) {
		resp.Paths = append(resp.Paths, route.Path)
	}
	if resp.Tools == nil {
		resp.Tools = []registry.Tool{}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetSchema returns a spec adapter's schema.
// GET /api/specs/{id}/schema
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	a, ok := h.adapterFor(w, r.PathValue("id"))
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, a.GetSchema())
}

// Stats returns registry counts.
// GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.specs.Stats())
}

// ListTools returns the tool routes.
// GET /api/tools
func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	tools := h.specs.Tools()
	if tools == nil {
		tools = []registry.Tool{}
	}
	h.writeJSON(w, http.StatusOK, ListToolsResponse{Tools: tools, Total: len(tools)})
}

// GetSection returns a section's rows, filtered by ?q=.
// GET /api/specs/{id}/sections/{section}
func (h *Handler) GetSection(w http.ResponseWriter, r *http.Request) {
	id, section := r.PathValue("id"), r.PathValue("section")
	query := r.URL.Query().Get("q")

	rows, err := h.store.Search(r.Context(), id, section, query)
	if err != nil {
		h.writeStoreError(w, err, id, section)
		return
	}
	if rows == nil {
		rows = []adapter.Record{}
	}
	h.writeJSON(w, http.StatusOK, SectionResponse{
		SpecID:  id,
		Section: section,
		Query:   query,
		Records: rows,
		Total:   len(rows),
	})
}

// GetItem returns one row by code.
// GET /api/specs/{id}/sections/{section}/items/{code}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, section, code := r.PathValue("id"), r.PathValue("section"), r.PathValue("code")
	rec, found, err := h.store.GetItemByCode(r.Context(), id, section, code)
	if err != nil {
		h.writeStoreError(w, err, id, section)
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, "not_found", "item not found", section+"/"+code)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// ExportSection renders a section through the spec adapter's exporter.
// GET /api/specs/{id}/sections/{section}/export?format=csv|json
func (h *Handler) ExportSection(w http.ResponseWriter, r *http.Request) {
	id, section := r.PathValue("id"), r.PathValue("section")
	a, ok := h.adapterFor(w, id)
	if !ok {
		return
	}
	rows, err := h.store.Section(r.Context(), id, section)
	if err != nil {
		h.writeStoreError(w, err, id, section)
		return
	}
	format := formatParam(r)
	out, err := a.Export(rows, format)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "export_failed", "export failed", err.Error())
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"-"+section+"."+format))
	h.writeExport(w, format, out)
}

// Export renders the posted data through the spec adapter's exporter.
// POST /api/specs/{id}/export?format=csv|json
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	a, ok := h.adapterFor(w, r.PathValue("id"))
	if !ok {
		return
	}
	data, ok := h.decodeBody(w, r)
	if !ok {
		return
	}
	if list, isList := data.([]any); isList {
		if recs, err := adapter.Records(list); err == nil {
			data = recs
		}
	}
	format := formatParam(r)
	out, err := a.Export(data, format)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "export_failed", "export failed", err.Error())
		return
	}
	h.writeExport(w, format, out)
}

// Validate checks the posted data with the spec adapter. Scope defaults to
// every part.
// POST /api/specs/{id}/validate?scope=
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	a, ok := h.adapterFor(w, r.PathValue("id"))
	if !ok {
		return
	}
	data, ok := h.decodeBody(w, r)
	if !ok {
		return
	}
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = adapter.ScopeAll
	}
	h.writeJSON(w, http.StatusOK, a.Validate(data, scope))
}

// EncodeDD2326 turns posted form data into raw text.
// POST /api/dd2326/encode
func (h *Handler) EncodeDD2326(w http.ResponseWriter, r *http.Request) {
	codec, ok := h.codec(w)
	if !ok {
		return
	}
	data, ok := h.decodeBody(w, r)
	if !ok {
		return
	}
	form, ok := adapter.AsFormData(data)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "validation_error", "expected form parts", "")
		return
	}
	h.writeJSON(w, http.StatusOK, EncodeResponse{RawData: codec.GenerateRawData(form, h.now())})
}

// DecodeDD2326 parses raw text from the body, either plain text or
// {"rawData": "..."}.
// POST /api/dd2326/decode
func (h *Handler) DecodeDD2326(w http.ResponseWriter, r *http.Request) {
	codec, ok := h.codec(w)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "failed to read body", err.Error())
		return
	}
	raw := string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req EncodeResponse
		if err := json.Unmarshal(body, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
			return
		}
		raw = req.RawData
	}
	h.writeJSON(w, http.StatusOK, codec.DecodeRawData(raw))
}

// === Helpers ===

func (h *Handler) adapterFor(w http.ResponseWriter, id string) (adapter.Adapter, bool) {
	if !h.specs.Registry().Has(id) {
		h.writeError(w, http.StatusNotFound, "not_found", "spec not found", id)
		return nil, false
	}
	a := h.specs.Registry().GetAdapter(id)
	if a == nil {
		h.writeError(w, http.StatusNotFound, "no_adapter", "spec has no adapter", id)
		return nil, false
	}
	return a, true
}

func (h *Handler) codec(w http.ResponseWriter) (rawCodec, bool) {
	a, ok := h.adapterFor(w, adapter.DD2326ID)
	if !ok {
		return nil, false
	}
	codec, ok := a.(rawCodec)
	if !ok {
		h.writeError(w, http.StatusNotImplemented, "no_codec", "adapter has no raw data format", adapter.DD2326ID)
		return nil, false
	}
	return codec, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request) (any, bool) {
	var data any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&data); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return nil, false
	}
	return data, true
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error, id, section string) {
	switch {
	case errors.Is(err, registry.ErrNotFound) || !h.specs.Registry().Has(id):
		h.writeError(w, http.StatusNotFound, "not_found", "spec not found", id)
	case errors.Is(err, adapter.ErrUnknownSection):
		h.writeError(w, http.StatusNotFound, "unknown_section", "unknown section", section)
	case errors.Is(err, specstore.ErrNoLoader):
		h.writeError(w, http.StatusNotFound, "no_loader", "spec has no data loader", id)
	default:
		log.ErrorErr(log.CatHTTP, "section load failed", err, "spec", id, "section", section)
		h.writeError(w, http.StatusBadGateway, "load_failed", "failed to load section", err.Error())
	}
}

func (h *Handler) writeExport(w http.ResponseWriter, format string, out any) {
	s, ok := out.(string)
	if !ok {
		h.writeJSON(w, http.StatusOK, out)
		return
	}
	switch format {
	case adapter.FormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	case adapter.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s)
}

func formatParam(r *http.Request) string {
	if f := r.URL.Query().Get("format"); f != "" {
		return f
	}
	return adapter.FormatJSON
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatHTTP, "Failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
