package bulkimport

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/cargolog/console/internal/schema"
	"github.com/cargolog/console/model"
)

// Uploader is the slice of the resource client the flow needs.
type Uploader interface {
	Upload(ctx context.Context, rctx *model.RequestContext, route string, contentType string, payload io.Reader) (model.Record, error)
}

// RowError is a per-row validation failure reported by the backend.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Result summarizes a completed import.
type Result struct {
	Imported  int        `json:"imported"`
	RowErrors []RowError `json:"row_errors,omitempty"`
}

// Flow submits batches against an entity's import route.
type Flow struct {
	def      model.EntityDefinition
	uploader Uploader
	logger   *zap.Logger
}

// NewFlow creates an import flow for the entity. The entity must declare an
// import block.
func NewFlow(def model.EntityDefinition, uploader Uploader, logger *zap.Logger) (*Flow, error) {
	if def.Import == nil {
		return nil, model.NewBadRequestError("entidade não possui importação configurada")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{def: def, uploader: uploader, logger: logger}, nil
}

// NewBatch creates an empty batch with the entity's configured file key.
func (f *Flow) NewBatch() *Batch {
	return NewBatch(f.def.Import.Key())
}

// Submit sends the batch as one unit. An empty batch is rejected locally
// without touching the network, and the ancillary fields are validated
// first. The batch is spent after the attempt regardless of outcome; a
// failed import is not retried automatically.
func (f *Flow) Submit(ctx context.Context, rctx *model.RequestContext, batch *Batch) (Result, error) {
	if batch.Submitted() {
		return Result{}, model.NewPreconditionError("Este lote já foi enviado.")
	}
	if batch.FileCount() == 0 {
		return Result{}, model.NewPreconditionError("Nenhum documento selecionado")
	}
	if details := schema.ValidateFields(f.def.Import.Fields, batch.Fields()); len(details) > 0 {
		return Result{}, model.NewValidationError(details)
	}

	payload, contentType, err := batch.Build()
	if err != nil {
		return Result{}, err
	}

	batch.submitted = true
	route := f.def.BaseRoute + "/" + f.def.Import.Route

	response, err := f.uploader.Upload(ctx, rctx, route, contentType, payload)
	if err != nil {
		f.logger.Warn("bulk import failed",
			zap.String("entity", f.def.Entity),
			zap.Int("files", batch.FileCount()),
			zap.Error(err),
		)
		return Result{}, err
	}

	result := parseResult(response, batch.FileCount())
	f.logger.Info("bulk import completed",
		zap.String("entity", f.def.Entity),
		zap.Int("files", batch.FileCount()),
		zap.Int("imported", result.Imported),
		zap.Int("row_errors", len(result.RowErrors)),
	)
	return result, nil
}

// parseResult extracts the import summary from the backend response. A
// response without a count is assumed to have imported every file.
func parseResult(response model.Record, files int) Result {
	result := Result{Imported: files}
	if response == nil {
		return result
	}

	if v, ok := response["imported"].(float64); ok {
		result.Imported = int(v)
	}
	if rows, ok := response["errors"].([]any); ok {
		for _, raw := range rows {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			re := RowError{}
			if n, ok := entry["row"].(float64); ok {
				re.Row = int(n)
			}
			if m, ok := entry["message"].(string); ok {
				re.Message = m
			}
			result.RowErrors = append(result.RowErrors, re)
		}
	}
	return result
}
