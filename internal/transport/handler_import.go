package transport

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cargolog/console/internal/bulkimport"
	"github.com/cargolog/console/internal/observability"
	"github.com/cargolog/console/model"
)

type importResponse struct {
	bulkimport.Result
	Files string `json:"files"`
}

// handleImport receives a multipart batch and forwards it to the entity's
// import route. The whole batch moves as one unit; an empty batch never
// reaches the backend.
func (h *handlers) handleImport(w http.ResponseWriter, r *http.Request) {
	def, ok := h.deps.Registry.Get(chi.URLParam(r, "entity"))
	if !ok {
		WriteNotFound(w, unknownEntityMessage)
		return
	}

	flow, err := bulkimport.NewFlow(def, h.deps.Backend, observability.RequestLogger(r.Context(), h.deps.Logger))
	if err != nil {
		WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.deps.Config.Import.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.deps.Config.Import.MaxUploadBytes); err != nil {
		WriteBadRequest(w, "Envio inválido: esperado multipart/form-data.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	batch := flow.NewBatch()
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			batch.SetField(key, values[len(values)-1])
		}
	}
	for _, header := range r.MultipartForm.File[def.Import.Key()] {
		file, err := header.Open()
		if err != nil {
			WriteBadRequest(w, "Não foi possível ler o documento enviado.")
			return
		}
		content, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			WriteBadRequest(w, "Não foi possível ler o documento enviado.")
			return
		}
		batch.AddFile(header.Filename, content)
	}

	files := batch.FileCount()
	rctx := model.MustRequestContext(r.Context())
	result, err := flow.Submit(r.Context(), rctx, batch)
	if h.deps.Metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		h.deps.Metrics.RecordImport(def.Entity, status, files)
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, importResponse{Result: result, Files: batch.CountLabel()})
}
