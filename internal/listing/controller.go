package listing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cargolog/console/model"
)

// ErrSuperseded reports that a load's response arrived after a newer load
// was issued; its rows were discarded. Callers may treat it as a no-op.
var ErrSuperseded = errors.New("listing: response superseded by a newer request")

// Lister is the slice of the resource client a Controller needs.
type Lister interface {
	List(ctx context.Context, rctx *model.RequestContext, route string, filter map[string]string) ([]model.Record, error)
}

// RowTransform projects server rows into display-ready rows. It must be
// pure: no I/O, no mutation of the input.
type RowTransform func([]model.Record) []model.Record

// Hooks are side-effect callbacks around a load. AfterLoad always fires,
// even when the request fails, so a loading indicator is never left on.
type Hooks struct {
	BeforeLoad func()
	AfterLoad  func()
}

// Controller drives the collection view for one route. Loads are keyed by a
// monotonically increasing sequence token; a response that arrives after a
// newer load was issued is discarded.
type Controller struct {
	route       string
	lister      Lister
	transform   RowTransform
	hooks       Hooks
	onSupersede func()
	logger      *zap.Logger

	seq atomic.Uint64

	mu     sync.Mutex
	filter *FilterMap
	rows   []model.Record
	loaded uint64 // token of the load that produced rows
}

// Option customizes a Controller.
type Option func(*Controller)

// WithTransform installs the pure row projection applied after each fetch.
func WithTransform(t RowTransform) Option {
	return func(c *Controller) { c.transform = t }
}

// WithHooks installs the before/after load callbacks.
func WithHooks(h Hooks) Option {
	return func(c *Controller) { c.hooks = h }
}

// WithSingleFilter makes every new constraint replace the previous ones.
func WithSingleFilter() Option {
	return func(c *Controller) { c.filter = NewFilterMap(true) }
}

// WithSupersedeNotify installs a callback fired each time a stale response
// is dropped.
func WithSupersedeNotify(fn func()) Option {
	return func(c *Controller) { c.onSupersede = fn }
}

// NewController creates a Controller for the given collection route.
func NewController(route string, lister Lister, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		route:  route,
		lister: lister,
		logger: logger,
		filter: NewFilterMap(false),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetFilter stores a constraint and reloads.
func (c *Controller) SetFilter(ctx context.Context, rctx *model.RequestContext, key, value string) error {
	c.mu.Lock()
	c.filter.Set(key, value)
	c.mu.Unlock()
	return c.Load(ctx, rctx)
}

// RemoveFilter clears one constraint and reloads.
func (c *Controller) RemoveFilter(ctx context.Context, rctx *model.RequestContext, key string) error {
	c.mu.Lock()
	c.filter.Remove(key)
	c.mu.Unlock()
	return c.Load(ctx, rctx)
}

// Reload forces a refetch with the current filter, regardless of whether it
// changed. Used after imports and saves that invalidate the collection.
func (c *Controller) Reload(ctx context.Context, rctx *model.RequestContext) error {
	return c.Load(ctx, rctx)
}

// Load fetches the collection. Only the most recently issued load may
// publish its rows; stale responses are dropped. AfterLoad fires on every
// path out, including errors and superseded results.
func (c *Controller) Load(ctx context.Context, rctx *model.RequestContext) error {
	token := c.seq.Add(1)

	if c.hooks.BeforeLoad != nil {
		c.hooks.BeforeLoad()
	}
	if c.hooks.AfterLoad != nil {
		defer c.hooks.AfterLoad()
	}

	c.mu.Lock()
	filter := c.filter.Values()
	c.mu.Unlock()

	rows, err := c.lister.List(ctx, rctx, c.route, filter)
	if err != nil {
		return err
	}
	if c.transform != nil {
		rows = c.transform(rows)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if token < c.seq.Load() || token <= c.loaded {
		// A newer load was issued (or already published) while this one
		// was in flight.
		c.logger.Debug("list response superseded",
			zap.String("route", c.route),
			zap.Uint64("token", token),
		)
		if c.onSupersede != nil {
			c.onSupersede()
		}
		return ErrSuperseded
	}
	c.rows = rows
	c.loaded = token
	return nil
}

// Rows returns a copy of the last published row set.
func (c *Controller) Rows() []model.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Record, len(c.rows))
	copy(out, c.rows)
	return out
}

// Filter exposes the current constraints as a copy.
func (c *Controller) Filter() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter.Values()
}

// Route returns the collection route.
func (c *Controller) Route() string {
	return c.route
}

// RowRoute builds the detail route for a row identifier. Pure navigation
// helper; does not mutate the list.
func (c *Controller) RowRoute(id string) string {
	return c.route + "/form/" + id
}
