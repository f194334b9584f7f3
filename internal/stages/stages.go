// Package stages maintains the strictly ordered child list nested inside a
// record (e.g. a company's occurrence stages). Each child carries an
// explicit zero-padded order value; swaps exchange both the sequence
// position and the order values in one step.
package stages

import (
	"fmt"
	"strconv"

	"github.com/cargolog/console/internal/format"
	"github.com/cargolog/console/model"
)

// ModeCheck reports whether the enclosing record currently permits
// mutations (insert or edit mode).
type ModeCheck func() bool

// List is the ordered child list control. Not safe for concurrent use; the
// enclosing record session serializes access.
type List struct {
	def      model.StagesDefinition
	children []model.Record
	editable ModeCheck
}

// NewList wraps the child records already present on the enclosing record.
// The editable check gates every mutating operation.
func NewList(def model.StagesDefinition, children []model.Record, editable ModeCheck) *List {
	if editable == nil {
		editable = func() bool { return false }
	}
	copied := make([]model.Record, len(children))
	for i, c := range children {
		copied[i] = c.Clone()
	}
	return &List{def: def, children: copied, editable: editable}
}

// Len returns the number of children.
func (l *List) Len() int {
	return len(l.children)
}

// Children returns a copy of the sequence in order.
func (l *List) Children() []model.Record {
	out := make([]model.Record, len(l.children))
	for i, c := range l.children {
		out[i] = c.Clone()
	}
	return out
}

// Append adds a new child at the end with order = last order + 1, zero
// padded to the configured width. All other fields start empty.
func (l *List) Append() (model.Record, error) {
	if !l.editable() {
		return nil, model.NewInvalidTransitionError("etapas só podem ser alteradas durante inclusão ou edição")
	}

	// Swaps can move the highest order away from the last position, so the
	// next order comes from the maximum, keeping values unique.
	next := 1
	for _, child := range l.children {
		if v, err := strconv.Atoi(child.StringField(l.def.Order())); err == nil && v >= next {
			next = v + 1
		}
	}
	if next == 1 && len(l.children) > 0 {
		next = len(l.children) + 1
	}

	child := model.Record{
		l.def.Order(): format.Pad(strconv.Itoa(next), l.def.Width()),
	}
	for _, field := range l.def.ChildFields {
		if field != l.def.Order() {
			child[field] = ""
		}
	}

	l.children = append(l.children, child)
	return child.Clone(), nil
}

// Remove deletes the child at index. Siblings keep their order values; no
// renumbering happens.
func (l *List) Remove(index int) error {
	if !l.editable() {
		return model.NewInvalidTransitionError("etapas só podem ser alteradas durante inclusão ou edição")
	}
	if index < 0 || index >= len(l.children) {
		return model.NewBadRequestError(fmt.Sprintf("etapa %d não existe", index))
	}
	l.children = append(l.children[:index], l.children[index+1:]...)
	return nil
}

// Swap exchanges the sequence positions and the order values of two
// adjacent children in one step. Non-adjacent swaps are refused; the up and
// down controls only ever move a child by one position.
func (l *List) Swap(a, b int) error {
	if !l.editable() {
		return model.NewInvalidTransitionError("etapas só podem ser alteradas durante inclusão ou edição")
	}
	if a > b {
		a, b = b, a
	}
	if a < 0 || b >= len(l.children) {
		return model.NewBadRequestError("posição fora da lista")
	}
	if b-a != 1 {
		return model.NewBadRequestError("somente etapas adjacentes podem ser trocadas")
	}

	orderKey := l.def.Order()
	l.children[a][orderKey], l.children[b][orderKey] = l.children[b][orderKey], l.children[a][orderKey]
	l.children[a], l.children[b] = l.children[b], l.children[a]
	return nil
}

// CanMoveUp reports whether the child at index may move toward the front.
func (l *List) CanMoveUp(index int) bool {
	return l.editable() && index > 0 && index < len(l.children)
}

// CanMoveDown reports whether the child at index may move toward the back.
func (l *List) CanMoveDown(index int) bool {
	return l.editable() && index >= 0 && index < len(l.children)-1
}

// SetField stages a value on the child at index. The order field is managed
// by the list itself and cannot be set directly.
func (l *List) SetField(index int, field string, value any) error {
	if !l.editable() {
		return model.NewInvalidTransitionError("etapas só podem ser alteradas durante inclusão ou edição")
	}
	if index < 0 || index >= len(l.children) {
		return model.NewBadRequestError(fmt.Sprintf("etapa %d não existe", index))
	}
	if field == l.def.Order() {
		return model.NewBadRequestError("a ordem é controlada pela lista")
	}
	l.children[index][field] = value
	return nil
}

// Validate flags every child missing its reference value. Rows with
// problems do not block appends or reorders of other rows.
func (l *List) Validate() []model.FieldError {
	var errs []model.FieldError
	for i, child := range l.children {
		if child.StringField(l.def.ReferenceField) == "" {
			errs = append(errs, model.FieldError{
				Field:   fmt.Sprintf("%s[%d].%s", l.def.Field, i, l.def.ReferenceField),
				Message: "Selecione uma referência.",
			})
		}
	}
	return errs
}
