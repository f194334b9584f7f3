package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cargolog/console/model"
)

// handleTracking serves the public shipment lookup. It runs without
// authentication: the backend route behind it is itself public, so the
// request context carries no token. A query that matches nothing is a
// successful response with an inline message, not an error.
func (h *handlers) handleTracking(w http.ResponseWriter, r *http.Request) {
	rctx := &model.RequestContext{
		CorrelationID: CorrelationIDFrom(r.Context()),
	}

	result, err := h.deps.Tracker.Track(r.Context(), rctx,
		chi.URLParam(r, "entity"),
		r.URL.Query().Get("key"),
		r.URL.Query().Get("value"))
	if h.deps.Metrics != nil {
		switch {
		case err != nil:
			h.deps.Metrics.RecordTrackingLookup("error")
		case result.Found:
			h.deps.Metrics.RecordTrackingLookup("found")
		default:
			h.deps.Metrics.RecordTrackingLookup("not_found")
		}
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// handleLookup resolves the option list behind a reference field. Results
// are cached per entity and company; the q parameter narrows by label.
func (h *handlers) handleLookup(w http.ResponseWriter, r *http.Request) {
	entityName := chi.URLParam(r, "entity")
	labelField := r.URL.Query().Get("label")
	if labelField == "" {
		labelField = "name"
	}

	rctx := model.MustRequestContext(r.Context())
	options, cached, err := h.deps.Lookups.Options(r.Context(), rctx, entityName, labelField, r.URL.Query().Get("q"))
	if h.deps.Metrics != nil && err == nil {
		if cached {
			h.deps.Metrics.RecordLookupCacheHit(entityName)
		} else {
			h.deps.Metrics.RecordLookupCacheMiss(entityName)
		}
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"options": options,
		"cached":  cached,
	})
}
