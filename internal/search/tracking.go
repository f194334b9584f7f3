package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cargolog/console/internal/entity"
	"github.com/cargolog/console/internal/listing"
	"github.com/cargolog/console/model"
)

// TrackingResult distinguishes "nothing found" from a failed request: an
// empty lookup is a normal outcome shown inline, not an error.
type TrackingResult struct {
	Found   bool           `json:"found"`
	Records []model.Record `json:"records,omitempty"`
	Message string         `json:"message,omitempty"`
}

// notFoundMessage is shown inline when the lookup matches nothing.
const notFoundMessage = "Nenhum registro encontrado."

// Tracker runs the public tracking lookup against entities that declare a
// tracking block.
type Tracker struct {
	registry *entity.Registry
	lister   listing.Lister
	logger   *zap.Logger
}

// NewTracker creates a Tracker over the loaded entities.
func NewTracker(registry *entity.Registry, lister listing.Lister, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{registry: registry, lister: lister, logger: logger}
}

// Track looks a value up against one of the entity's declared tracking
// keys. An unknown entity or key is an error; a lookup that matches nothing
// returns Found: false with the inline message.
func (t *Tracker) Track(ctx context.Context, rctx *model.RequestContext, entityName, key, value string) (TrackingResult, error) {
	def, ok := t.registry.Get(entityName)
	if !ok || def.Tracking == nil {
		return TrackingResult{}, model.NewNotFoundError(fmt.Sprintf("consulta não disponível para %q", entityName))
	}

	allowed := false
	for _, k := range def.Tracking.Keys {
		if k == key {
			allowed = true
			break
		}
	}
	if !allowed {
		return TrackingResult{}, model.NewBadRequestError(fmt.Sprintf("chave de consulta inválida: %s", key))
	}
	if value == "" {
		return TrackingResult{}, model.NewBadRequestError("informe um valor para a consulta")
	}

	rows, err := t.lister.List(ctx, rctx, def.BaseRoute, map[string]string{key: value})
	if err != nil {
		return TrackingResult{}, err
	}

	if len(rows) == 0 {
		t.logger.Debug("tracking lookup found nothing",
			zap.String("entity", entityName),
			zap.String("key", key),
		)
		return TrackingResult{Found: false, Message: notFoundMessage}, nil
	}

	return TrackingResult{Found: true, Records: rows}, nil
}
