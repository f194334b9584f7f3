package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cargolog/console/model"
)

// handleDashboard summarizes an entity's collection into the panels the
// landing page renders: total count, per-status counts, and monthly
// totals when value and date fields are given.
func (h *handlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	def, ok := h.deps.Registry.Get(chi.URLParam(r, "entity"))
	if !ok {
		WriteNotFound(w, unknownEntityMessage)
		return
	}

	rctx := model.MustRequestContext(r.Context())
	summary, err := h.deps.Dashboard.Summarize(r.Context(), rctx, def,
		r.URL.Query().Get("value"),
		r.URL.Query().Get("date"))
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, summary)
}
