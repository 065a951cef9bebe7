// Package api serves imported schema models over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/robso86/jsonschema-mapper/internal/importer"
	"github.com/robso86/jsonschema-mapper/internal/manager"
	"github.com/robso86/jsonschema-mapper/internal/scope"
	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
	"github.com/robso86/jsonschema-mapper/pkg/logger"
)

// SchemaService is the part of manager.Manager the handler uses.
type SchemaService interface {
	FetchSchema(ctx context.Context, uri string) (*importer.Importer, error)
	Import(ctx context.Context, uri string, raw []byte) (*importer.Importer, error)
	Evict(uri string) bool
	Stats() manager.Stats
}

// DocumentCache is the document read-through cache in front of the readers.
type DocumentCache interface {
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context, uri string) error
	Purge(ctx context.Context) (int64, error)
}

type Handler struct {
	schemas      SchemaService
	documents    DocumentCache
	maxBodyBytes int64
	logger       *slog.Logger
}

// New returns a Handler. documents may be nil when the document cache is
// disabled.
func New(schemas SchemaService, documents DocumentCache, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 8 << 20
	}
	return &Handler{
		schemas:      schemas,
		documents:    documents,
		maxBodyBytes: maxBodyBytes,
		logger:       slog.Default().With("component", "schema-handler"),
	}
}

// Register adds the handler's routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/schemas", h.GetSchema)
	mux.HandleFunc("POST /api/v1/schemas", h.PutSchema)
	mux.HandleFunc("DELETE /api/v1/schemas", h.EvictSchema)
	mux.HandleFunc("GET /api/v1/schemas/ids", h.GetIDs)
	mux.HandleFunc("GET /api/v1/schemas/ref", h.GetRef)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type schemaResponse struct {
	URI        string          `json:"uri"`
	ImportID   string          `json:"import_id"`
	DurationMs int64           `json:"duration_ms"`
	Model      *importer.Model `json:"model"`
}

func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	imp, ok := h.fetch(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, schemaResponse{
		URI:        imp.URI(),
		ImportID:   imp.ID(),
		DurationMs: imp.Duration().Milliseconds(),
		Model:      imp.Model(),
	})
}

func (h *Handler) GetIDs(w http.ResponseWriter, r *http.Request) {
	imp, ok := h.fetch(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"uri": imp.URI(),
		"ids": imp.Model().IDs,
	})
}

// GetRef resolves the fragment of uri within its document.
func (h *Handler) GetRef(w http.ResponseWriter, r *http.Request) {
	imp, ok := h.fetch(w, r)
	if !ok {
		return
	}
	uri := r.URL.Query().Get("uri")
	_, fragment := scope.SplitFragment(uri)
	node, err := imp.FindRef(fragment)
	if err != nil {
		status := http.StatusNotFound
		if importerrors.Is(err, importerrors.ErrImportProblem) {
			status = http.StatusBadRequest
		}
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"uri":      uri,
		"fragment": fragment,
		"schema":   node,
	})
}

// PutSchema imports the request body as the document at uri, replacing any
// cached import of it.
func (h *Handler) PutSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'uri' is required")
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("reading body: %v", err))
		return
	}
	if h.documents != nil {
		if err := h.documents.Invalidate(ctx, uri); err != nil {
			logger.FromContext(ctx).Warn("document cache invalidation failed", "uri", uri, "error", err)
		}
	}
	imp, err := h.schemas.Import(ctx, uri, raw)
	if err != nil {
		status := importerrors.HTTPStatusCode(err)
		if importerrors.KindOf(err) == importerrors.KindLoad {
			status = http.StatusBadRequest
		}
		logger.FromContext(ctx).Warn("import failed", "uri", uri, "error", err)
		h.writeError(w, status, err.Error())
		return
	}
	logger.FromContext(logger.WithImport(ctx, imp.ID(), imp.URI())).Info("schema imported",
		"ids", len(imp.Model().IDs), "bytes", len(raw))
	h.writeJSON(w, http.StatusCreated, schemaResponse{
		URI:        imp.URI(),
		ImportID:   imp.ID(),
		DurationMs: imp.Duration().Milliseconds(),
		Model:      imp.Model(),
	})
}

func (h *Handler) EvictSchema(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'uri' is required")
		return
	}
	evicted := h.schemas.Evict(uri)
	if h.documents != nil {
		if err := h.documents.Invalidate(r.Context(), uri); err != nil {
			h.logger.Error("document cache invalidation failed", "uri", uri, "error", err)
			h.writeError(w, http.StatusInternalServerError, "document cache invalidation failed")
			return
		}
	}
	if !evicted {
		h.writeError(w, http.StatusNotFound, "schema not cached")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "evicted", "uri": uri})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	st := h.schemas.Stats()
	resp := map[string]any{
		"imports": map[string]any{
			"cached":   st.Cached,
			"hits":     st.Hits,
			"misses":   st.Misses,
			"reads":    st.Reads,
			"shared":   st.Shared,
			"hit_rate": hitRate(st.Hits, st.Misses),
		},
	}
	if h.documents == nil {
		resp["documents"] = map[string]string{"status": "disabled"}
	} else {
		hits, misses := h.documents.Stats()
		resp["documents"] = map[string]any{
			"hits":     hits,
			"misses":   misses,
			"hit_rate": hitRate(hits, misses),
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheInvalidate empties the document cache. Cached imports are left
// alone; evict them one by one.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.documents == nil {
		h.writeError(w, http.StatusServiceUnavailable, "document cache not enabled")
		return
	}
	deleted, err := h.documents.Purge(r.Context())
	if err != nil {
		h.logger.Error("document cache purge failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "invalidated",
		"deleted": deleted,
	})
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) (*importer.Importer, bool) {
	ctx := r.Context()
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'uri' is required")
		return nil, false
	}
	imp, err := h.schemas.FetchSchema(ctx, uri)
	if err != nil {
		logger.FromContext(ctx).Warn("fetch failed", "uri", uri, "error", err)
		h.writeError(w, importerrors.HTTPStatusCode(err), err.Error())
		return nil, false
	}
	return imp, true
}

func hitRate(hits, misses int64) string {
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return fmt.Sprintf("%.1f%%", rate)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
