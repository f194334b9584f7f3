package listing

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/cargolog/console/internal/format"
	"github.com/cargolog/console/model"
)

// Provider hands out one long-lived Controller per entity so the supersede
// token spans requests for the same collection view.
type Provider struct {
	lister      Lister
	logger      *zap.Logger
	onSupersede func(entity string)

	mu          sync.Mutex
	controllers map[string]*Controller
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithSupersedeObserver installs a per-entity callback fired whenever a
// controller drops a stale response.
func WithSupersedeObserver(fn func(entity string)) ProviderOption {
	return func(p *Provider) { p.onSupersede = fn }
}

// NewProvider creates a Provider backed by the given lister.
func NewProvider(lister Lister, logger *zap.Logger, opts ...ProviderOption) *Provider {
	p := &Provider{
		lister:      lister,
		logger:      logger,
		controllers: make(map[string]*Controller),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ControllerFor returns the controller for an entity, creating it with the
// entity's display projection on first use.
func (p *Provider) ControllerFor(def model.EntityDefinition) *Controller {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.controllers[def.Entity]; ok {
		return c
	}

	opts := []Option{WithTransform(TransformFor(def))}
	if def.List.SingleFilter {
		opts = append(opts, WithSingleFilter())
	}
	if p.onSupersede != nil {
		entity := def.Entity
		opts = append(opts, WithSupersedeNotify(func() { p.onSupersede(entity) }))
	}
	c := NewController(def.BaseRoute, p.lister, p.logger, opts...)
	p.controllers[def.Entity] = c
	return c
}

// Rows loads the collection for an entity with the given constraints and
// returns the projected rows. A superseded load returns the rows published
// by the newer request instead of failing.
func (p *Provider) Rows(ctx context.Context, rctx *model.RequestContext, def model.EntityDefinition, filter map[string]string) ([]model.Record, error) {
	c := p.ControllerFor(def)

	c.mu.Lock()
	c.filter.Clear()
	for k, v := range filter {
		c.filter.Set(k, v)
	}
	c.mu.Unlock()

	if err := c.Load(ctx, rctx); err != nil && err != ErrSuperseded {
		return nil, err
	}
	return c.Rows(), nil
}

// TransformFor builds the pure display projection declared by an entity:
// format masks, zero padding, currency and date rendering, and the legend
// class derived from the status value. Input rows are not mutated.
func TransformFor(def model.EntityDefinition) RowTransform {
	return func(rows []model.Record) []model.Record {
		out := make([]model.Record, len(rows))
		for i, row := range rows {
			projected := row.Clone()
			for _, field := range def.Fields {
				raw, present := projected[field.Field]
				if !present {
					continue
				}
				if field.Pad > 0 {
					projected[field.Field] = format.Pad(projected.StringField(field.Field), field.Pad)
				}
				switch field.Format {
				case "cpf":
					projected[field.Field] = format.CPFMask(projected.StringField(field.Field))
				case "cnpj":
					projected[field.Field] = format.CNPJMask(projected.StringField(field.Field))
				case "cep":
					projected[field.Field] = format.CEPMask(projected.StringField(field.Field))
				case "currency":
					if v, ok := asFloat(raw); ok {
						projected[field.Field] = format.Currency(v)
					}
				case "date":
					projected[field.Field] = format.Date(projected.StringField(field.Field))
				case "datetime":
					projected[field.Field] = format.DateTime(projected.StringField(field.Field))
				}
			}
			for _, col := range def.List.Columns {
				if col.Legend {
					status := row.StringField(col.Field)
					projected[col.Field+"Legend"] = format.LegendClass(status, def.List.Legends)
				}
			}
			out[i] = projected
		}
		return out
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
