// Package record implements the lifecycle of a single entity record form:
// read, insert, edit, remove, plus the entity's declared action modes.
// Exactly one mode is active at a time, and mode changes only happen through
// the transitions defined here.
package record

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cargolog/console/internal/schema"
	"github.com/cargolog/console/model"
)

// Backend is the slice of the resource client a Session needs.
type Backend interface {
	Get(ctx context.Context, rctx *model.RequestContext, route string) (model.Record, error)
	Create(ctx context.Context, rctx *model.RequestContext, route string, body any) (model.Record, error)
	Update(ctx context.Context, rctx *model.RequestContext, route string, body any) (model.Record, error)
	Delete(ctx context.Context, rctx *model.RequestContext, route string) error
}

// OutcomeKind tells the caller where to go after a transition.
type OutcomeKind string

const (
	// OutcomeStay keeps the user on the current record view.
	OutcomeStay OutcomeKind = "stay"
	// OutcomeNavigate sends the user to Outcome.Route.
	OutcomeNavigate OutcomeKind = "navigate"
	// OutcomeBack returns the user to the collection view.
	OutcomeBack OutcomeKind = "back"
)

// Outcome is the navigation result of a Save or Cancel.
type Outcome struct {
	Kind  OutcomeKind `json:"kind"`
	Route string      `json:"route,omitempty"`
}

// Session drives one record through its modes. It is safe for concurrent
// use; at most one save is in flight at a time.
type Session struct {
	def     model.EntityDefinition
	modes   model.ModeSet
	backend Backend
	logger  *zap.Logger

	mu       sync.Mutex
	id       string
	mode     model.Mode
	record   model.Record
	snapshot model.Record
	saving   bool
}

// NewSession creates a session for the given record id. The sentinel id
// "new" starts the session in insert mode; any other id starts in read.
func NewSession(def model.EntityDefinition, backend Backend, id string, logger *zap.Logger) (*Session, error) {
	modes, err := def.Modes()
	if err != nil {
		return nil, fmt.Errorf("record: entity %s: %w", def.Entity, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mode := model.ModeRead
	if id == model.IDNew {
		mode = model.ModeInsert
	}

	return &Session{
		def:     def,
		modes:   modes,
		backend: backend,
		logger:  logger,
		id:      id,
		mode:    mode,
	}, nil
}

// Open loads the record. In insert mode no request is made and the record
// starts empty; otherwise the record is fetched and snapshotted so cancel
// can restore it.
func (s *Session) Open(ctx context.Context, rctx *model.RequestContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == model.ModeInsert {
		s.record = model.Record{}
		s.snapshot = nil
		return nil
	}

	rec, err := s.backend.Get(ctx, rctx, s.recordRoute())
	if err != nil {
		return err
	}
	if rec == nil {
		return model.NewNotFoundError("Registro não encontrado.")
	}
	s.record = rec
	s.snapshot = rec.Clone()
	return nil
}

// Mode returns the active mode.
func (s *Session) Mode() model.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Record returns a copy of the current record.
func (s *Session) Record() model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// ID returns the record id the session was opened with.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Edit transitions read → edit. No network call; the record stays as last
// fetched.
func (s *Session) Edit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != model.ModeRead {
		return model.NewInvalidTransitionError(fmt.Sprintf("não é possível editar a partir de %q", s.mode))
	}
	s.mode = model.ModeEdit
	return nil
}

// StageRemove transitions read → remove. The deletion is a staged intent;
// nothing is sent until Save confirms it.
func (s *Session) StageRemove() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != model.ModeRead {
		return model.NewInvalidTransitionError(fmt.Sprintf("não é possível excluir a partir de %q", s.mode))
	}
	s.mode = model.ModeRemove
	return nil
}

// BeginAction transitions read → the named action mode. The mode must be
// declared by the entity and its guard must hold over the current record.
func (s *Session) BeginAction(mode model.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != model.ModeRead {
		return model.NewInvalidTransitionError(fmt.Sprintf("ação %q só é permitida a partir da leitura", mode))
	}
	if !s.modes.IsExtension(mode) {
		return model.NewInvalidTransitionError(fmt.Sprintf("ação %q não existe para %s", mode, s.def.Entity))
	}

	action, _ := s.def.Action(mode)
	if !action.Guard.Holds(s.record, s.def.StatusField) {
		return model.NewPreconditionError(fmt.Sprintf("ação %q não está disponível para este registro", mode))
	}

	s.mode = mode
	return nil
}

// AvailableActions returns the action modes whose guards hold for the
// current record. Only meaningful in read mode; other modes offer none.
func (s *Session) AvailableActions() []model.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != model.ModeRead {
		return nil
	}
	var out []model.Mode
	for _, a := range s.def.Actions {
		if a.Guard.Holds(s.record, s.def.StatusField) {
			out = append(out, model.Mode(a.Mode))
		}
	}
	return out
}

// SetField stages a field value. Only insert and edit accept edits;
// read-only fields never do, and insert-only fields accept them solely
// during insert.
func (s *Session) SetField(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mode.Mutating() {
		return model.NewInvalidTransitionError(fmt.Sprintf("campos não podem ser alterados em %q", s.mode))
	}

	field, known := s.def.Field(name)
	if !known {
		return model.NewBadRequestError(fmt.Sprintf("campo desconhecido: %s", name))
	}
	if field.ReadOnly {
		return model.NewBadRequestError(fmt.Sprintf("campo %s é somente leitura", name))
	}
	if field.InsertOnly && s.mode != model.ModeInsert {
		return model.NewBadRequestError(fmt.Sprintf("campo %s só pode ser definido na inclusão", name))
	}

	if s.record == nil {
		s.record = model.Record{}
	}
	s.record[name] = value
	return nil
}

// Cancel discards in-progress edits. From insert it sends the user back to
// the collection; from any other non-read mode it restores the snapshot and
// returns to read. No request is issued either way.
func (s *Session) Cancel() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == model.ModeInsert {
		return Outcome{Kind: OutcomeBack, Route: s.def.BaseRoute}
	}

	if s.snapshot != nil {
		s.record = s.snapshot.Clone()
	}
	s.mode = model.ModeRead
	return Outcome{Kind: OutcomeStay}
}

// Save commits the active mode. Insert posts the full record and navigates
// to its canonical location; edit patches only the changed fields and
// refetches; remove deletes and leaves the record; an action mode patches
// the action's declared field updates. On failure the mode and staged edits
// are preserved so the user can retry.
func (s *Session) Save(ctx context.Context, rctx *model.RequestContext) (Outcome, error) {
	s.mu.Lock()
	if s.mode == model.ModeRead {
		s.mu.Unlock()
		return Outcome{}, model.NewInvalidTransitionError("não há nada para salvar na leitura")
	}
	if s.saving {
		s.mu.Unlock()
		return Outcome{}, &model.ErrorEnvelope{Code: model.ErrSaveInProgress, Message: "Já existe um salvamento em andamento."}
	}
	s.saving = true
	mode := s.mode
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.saving = false
		s.mu.Unlock()
	}()

	if mode.Mutating() {
		if details := schema.Validate(s.def, mode, s.Record()); len(details) > 0 {
			return Outcome{}, model.NewValidationError(details)
		}
	}

	switch mode {
	case model.ModeInsert:
		return s.saveInsert(ctx, rctx)
	case model.ModeEdit:
		return s.saveEdit(ctx, rctx)
	case model.ModeRemove:
		return s.saveRemove(ctx, rctx)
	default:
		return s.saveAction(ctx, rctx, mode)
	}
}

func (s *Session) saveInsert(ctx context.Context, rctx *model.RequestContext) (Outcome, error) {
	created, err := s.backend.Create(ctx, rctx, s.def.BaseRoute, s.Record())
	if err != nil {
		return Outcome{}, err
	}

	newID := created.ID(s.def.Identifier())
	s.mu.Lock()
	s.id = newID
	s.mode = model.ModeRead
	s.record = created
	s.snapshot = created.Clone()
	s.mu.Unlock()

	s.logger.Info("record created",
		zap.String("entity", s.def.Entity),
		zap.String("record_id", newID),
	)
	return Outcome{Kind: OutcomeNavigate, Route: s.RowRoute(newID)}, nil
}

func (s *Session) saveEdit(ctx context.Context, rctx *model.RequestContext) (Outcome, error) {
	changes := s.changedFields()
	if len(changes) > 0 {
		if _, err := s.backend.Update(ctx, rctx, s.recordRoute(), changes); err != nil {
			return Outcome{}, err
		}
	}
	if err := s.refetch(ctx, rctx); err != nil {
		return Outcome{}, err
	}

	s.logger.Info("record updated",
		zap.String("entity", s.def.Entity),
		zap.String("record_id", s.ID()),
		zap.Int("changed_fields", len(changes)),
	)
	return Outcome{Kind: OutcomeStay}, nil
}

func (s *Session) saveRemove(ctx context.Context, rctx *model.RequestContext) (Outcome, error) {
	if err := s.backend.Delete(ctx, rctx, s.recordRoute()); err != nil {
		return Outcome{}, err
	}

	s.logger.Info("record removed",
		zap.String("entity", s.def.Entity),
		zap.String("record_id", s.ID()),
	)
	return Outcome{Kind: OutcomeBack, Route: s.def.BaseRoute}, nil
}

func (s *Session) saveAction(ctx context.Context, rctx *model.RequestContext, mode model.Mode) (Outcome, error) {
	action, ok := s.def.Action(mode)
	if !ok {
		return Outcome{}, model.NewInvalidTransitionError(fmt.Sprintf("ação %q não existe para %s", mode, s.def.Entity))
	}

	body := make(map[string]any, len(action.Sets))
	for field, value := range action.Sets {
		body[field] = value
	}
	if _, err := s.backend.Update(ctx, rctx, s.recordRoute(), body); err != nil {
		return Outcome{}, err
	}
	if err := s.refetch(ctx, rctx); err != nil {
		return Outcome{}, err
	}

	s.logger.Info("record action applied",
		zap.String("entity", s.def.Entity),
		zap.String("record_id", s.ID()),
		zap.String("action", string(mode)),
	)
	return Outcome{Kind: OutcomeStay}, nil
}

// refetch reloads the record after a successful mutation and returns the
// session to read mode with a fresh snapshot.
func (s *Session) refetch(ctx context.Context, rctx *model.RequestContext) error {
	rec, err := s.backend.Get(ctx, rctx, s.recordRoute())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = rec
	s.snapshot = rec.Clone()
	s.mode = model.ModeRead
	return nil
}

// changedFields diffs the staged record against the last fetched snapshot,
// producing the partial-update body for edit saves.
func (s *Session) changedFields() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	changes := make(map[string]any)
	for key, value := range s.record {
		if before, ok := s.snapshot[key]; !ok || fmt.Sprint(before) != fmt.Sprint(value) {
			changes[key] = value
		}
	}
	return changes
}

// RowRoute builds the canonical detail route for a record id.
func (s *Session) RowRoute(id string) string {
	return s.def.BaseRoute + "/form/" + id
}

func (s *Session) recordRoute() string {
	return s.def.BaseRoute + "/" + s.id
}
