package transport

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cargolog/console/model"
)

const unknownEntityMessage = "Entidade desconhecida."

// entitySummary is the collection-index projection of a definition.
type entitySummary struct {
	Entity    string `json:"entity"`
	Title     string `json:"title"`
	BaseRoute string `json:"baseRoute"`
}

// handleEntityIndex lists the entities the console serves.
func (h *handlers) handleEntityIndex(w http.ResponseWriter, _ *http.Request) {
	defs := h.deps.Registry.All()
	summaries := make([]entitySummary, 0, len(defs))
	for _, def := range defs {
		summaries = append(summaries, entitySummary{
			Entity:    def.Entity,
			Title:     def.Title,
			BaseRoute: def.BaseRoute,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"entities": summaries,
		"checksum": h.deps.Registry.Checksum(),
	})
}

// handleEntityMetadata returns the full definition driving an entity's UI.
func (h *handlers) handleEntityMetadata(w http.ResponseWriter, r *http.Request) {
	def, ok := h.deps.Registry.Get(chi.URLParam(r, "entity"))
	if !ok {
		WriteNotFound(w, unknownEntityMessage)
		return
	}
	WriteJSON(w, http.StatusOK, def)
}

// handleRows loads an entity's collection. Every query parameter is a
// filter entry; when the definition declares a filter whitelist, keys
// outside it are rejected before the backend is called.
func (h *handlers) handleRows(w http.ResponseWriter, r *http.Request) {
	def, ok := h.deps.Registry.Get(chi.URLParam(r, "entity"))
	if !ok {
		WriteNotFound(w, unknownEntityMessage)
		return
	}

	permitted := make(map[string]bool, len(def.List.Filters))
	for _, key := range def.List.Filters {
		permitted[key] = true
	}

	filter := make(map[string]string, len(r.URL.Query()))
	var unknown []model.FieldError
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		if len(permitted) > 0 && !permitted[key] {
			unknown = append(unknown, model.FieldError{Field: key, Message: "Filtro não suportado."})
			continue
		}
		filter[key] = values[len(values)-1]
	}
	if len(unknown) > 0 {
		sort.Slice(unknown, func(i, j int) bool { return unknown[i].Field < unknown[j].Field })
		WriteError(w, model.NewValidationError(unknown))
		return
	}

	rctx := model.MustRequestContext(r.Context())
	start := time.Now()
	rows, err := h.deps.Listing.Rows(r.Context(), rctx, def, filter)
	if h.deps.Metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		h.deps.Metrics.RecordListLoad(def.Entity, status, time.Since(start))
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"rows":   rows,
		"filter": filter,
	})
}
