package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cargolog/console/internal/stages"
	"github.com/cargolog/console/model"
)

// stagesRequest applies one operation to an entity's nested stage list.
// The children travel with the request: the list is parent-record state,
// staged in the browser until the enclosing form is saved.
type stagesRequest struct {
	Mode     string         `json:"mode"`
	Children []model.Record `json:"children"`
	Op       stagesOp       `json:"op"`
}

type stagesOp struct {
	Type  string `json:"type"` // append | remove | swap | set
	Index int    `json:"index,omitempty"`
	A     int    `json:"a,omitempty"`
	B     int    `json:"b,omitempty"`
	Field string `json:"field,omitempty"`
	Value any    `json:"value,omitempty"`
}

type stagesResponse struct {
	Children []model.Record     `json:"children"`
	Issues   []model.FieldError `json:"issues,omitempty"`
}

// handleStages mutates a staged stage list: append, remove, adjacent swap,
// or a field set. Ordering rules live in the stages package; this handler
// only carries the list across the wire.
func (h *handlers) handleStages(w http.ResponseWriter, r *http.Request) {
	def, ok := h.deps.Registry.Get(chi.URLParam(r, "entity"))
	if !ok {
		WriteNotFound(w, unknownEntityMessage)
		return
	}
	if def.Stages == nil {
		WriteBadRequest(w, "Entidade não possui lista de etapas.")
		return
	}

	var req stagesRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	editable := model.Mode(req.Mode).Mutating()
	list := stages.NewList(*def.Stages, req.Children, func() bool { return editable })

	var err error
	switch req.Op.Type {
	case "append":
		_, err = list.Append()
	case "remove":
		err = list.Remove(req.Op.Index)
	case "swap":
		err = list.Swap(req.Op.A, req.Op.B)
	case "set":
		err = list.SetField(req.Op.Index, req.Op.Field, req.Op.Value)
	case "":
		// validation-only round trip
	default:
		err = model.NewBadRequestError("Operação de etapas desconhecida.")
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, stagesResponse{
		Children: list.Children(),
		Issues:   list.Validate(),
	})
}
