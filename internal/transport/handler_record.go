package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cargolog/console/internal/observability"
	"github.com/cargolog/console/internal/record"
	"github.com/cargolog/console/model"
)

// recordRequest stages a transition plus edited field values against a
// record. Mode selects the transition: empty means the session's opening
// mode (read for an existing id, insert for the sentinel), "edit" and
// "remove" are the base transitions, and anything else is resolved as an
// entity action mode.
type recordRequest struct {
	Mode   string         `json:"mode,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

type recordResponse struct {
	Mode    model.Mode      `json:"mode"`
	Record  model.Record    `json:"record"`
	Actions []model.Mode    `json:"actions,omitempty"`
	Outcome *record.Outcome `json:"outcome,omitempty"`
}

// openSession builds and opens a per-request record session. Record state
// lives in the backend; the console holds no form state between requests,
// so each call replays its staged transition and fields onto a fresh
// session.
func (h *handlers) openSession(r *http.Request) (*record.Session, *model.RequestContext, error) {
	def, ok := h.deps.Registry.Get(chi.URLParam(r, "entity"))
	if !ok {
		return nil, nil, model.NewNotFoundError(unknownEntityMessage)
	}

	rctx := model.MustRequestContext(r.Context())
	logger := observability.RequestLogger(r.Context(), h.deps.Logger)

	sess, err := record.NewSession(def, h.deps.Backend, chi.URLParam(r, "id"), logger)
	if err != nil {
		return nil, nil, err
	}
	if err := sess.Open(r.Context(), rctx); err != nil {
		return nil, nil, err
	}
	return sess, rctx, nil
}

// stage applies the requested transition and field values to the session.
func stage(sess *record.Session, req recordRequest) error {
	switch model.Mode(req.Mode) {
	case "", sess.Mode():
		// already there
	case model.ModeEdit:
		if err := sess.Edit(); err != nil {
			return err
		}
	case model.ModeRemove:
		if err := sess.StageRemove(); err != nil {
			return err
		}
	default:
		if err := sess.BeginAction(model.Mode(req.Mode)); err != nil {
			return err
		}
	}

	for name, value := range req.Fields {
		if err := sess.SetField(name, value); err != nil {
			return err
		}
	}
	return nil
}

// handleRecordGet opens a record for viewing. The sentinel id yields an
// empty insert form.
func (h *handlers) handleRecordGet(w http.ResponseWriter, r *http.Request) {
	sess, _, err := h.openSession(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, recordResponse{
		Mode:    sess.Mode(),
		Record:  sess.Record(),
		Actions: sess.AvailableActions(),
	})
}

// handleRecordSave replays the staged transition and fields, then commits.
func (h *handlers) handleRecordSave(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	sess, rctx, err := h.openSession(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := stage(sess, req); err != nil {
		WriteError(w, err)
		return
	}

	entityName := chi.URLParam(r, "entity")
	mode := string(sess.Mode())
	start := time.Now()
	outcome, err := sess.Save(r.Context(), rctx)
	if h.deps.Metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
			if ee, ok := err.(*model.ErrorEnvelope); ok && ee.Code == model.ErrValidationError {
				h.deps.Metrics.RecordValidationFailure(entityName)
			}
		}
		h.deps.Metrics.RecordSave(entityName, mode, status, time.Since(start))
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	if h.deps.Lookups != nil {
		h.deps.Lookups.Invalidate(entityName)
	}

	WriteJSON(w, http.StatusOK, recordResponse{
		Mode:    sess.Mode(),
		Record:  sess.Record(),
		Actions: sess.AvailableActions(),
		Outcome: &outcome,
	})
}

// handleRecordCancel abandons a staged transition. Cancel from insert
// navigates back; cancel from any other mutating mode restores the last
// fetched state and returns to read.
func (h *handlers) handleRecordCancel(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	sess, _, err := h.openSession(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := stage(sess, req); err != nil {
		WriteError(w, err)
		return
	}

	outcome := sess.Cancel()
	WriteJSON(w, http.StatusOK, recordResponse{
		Mode:    sess.Mode(),
		Record:  sess.Record(),
		Actions: sess.AvailableActions(),
		Outcome: &outcome,
	})
}
