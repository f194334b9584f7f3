package entity

import (
	"fmt"
	"regexp"

	"github.com/cargolog/console/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates definitions structurally and referentially.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definitions, including cross-definition uniqueness of
// entity names and base routes.
func (v *Validator) Validate(defs []model.EntityDefinition) []VError {
	var errs []VError

	seenNames := make(map[string]string)
	seenRoutes := make(map[string]string)

	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)

		if def.Entity != "" {
			if prev, dup := seenNames[def.Entity]; dup {
				errs = append(errs, VError{
					Path:    prefix + ".entity",
					Code:    "DUPLICATE",
					Message: fmt.Sprintf("entity %q already declared in %s", def.Entity, prev),
				})
			}
			seenNames[def.Entity] = def.SourceFile
		}
		if def.BaseRoute != "" {
			if prev, dup := seenRoutes[def.BaseRoute]; dup {
				errs = append(errs, VError{
					Path:    prefix + ".base_route",
					Code:    "DUPLICATE",
					Message: fmt.Sprintf("base route %q already declared in %s", def.BaseRoute, prev),
				})
			}
			seenRoutes[def.BaseRoute] = def.SourceFile
		}

		errs = append(errs, v.validateEntity(prefix, def)...)
	}

	return errs
}

func (v *Validator) validateEntity(prefix string, def model.EntityDefinition) []VError {
	var errs []VError

	if def.Entity == "" {
		errs = append(errs, VError{Path: prefix + ".entity", Code: "REQUIRED", Message: "entity is required"})
	}
	if def.BaseRoute == "" {
		errs = append(errs, VError{Path: prefix + ".base_route", Code: "REQUIRED", Message: "base_route is required"})
	}
	if len(def.Fields) == 0 {
		errs = append(errs, VError{Path: prefix + ".fields", Code: "REQUIRED", Message: "at least one field is required"})
	}

	fieldNames := make(map[string]bool, len(def.Fields))
	for i, f := range def.Fields {
		fp := fmt.Sprintf("%s.fields[%d]", prefix, i)
		if f.Field == "" {
			errs = append(errs, VError{Path: fp + ".field", Code: "REQUIRED", Message: "field name is required"})
			continue
		}
		if fieldNames[f.Field] {
			errs = append(errs, VError{Path: fp + ".field", Code: "DUPLICATE", Message: fmt.Sprintf("field %q declared twice", f.Field)})
		}
		fieldNames[f.Field] = true

		if f.ReadOnly && f.InsertOnly {
			errs = append(errs, VError{Path: fp, Code: "CONFLICT", Message: fmt.Sprintf("field %q cannot be both read_only and insert_only", f.Field)})
		}
		if f.Validation != nil {
			errs = append(errs, v.validateValidation(fp+".validation", *f.Validation, fieldNames)...)
		}
	}

	if def.StatusField != "" && !fieldNames[def.StatusField] {
		errs = append(errs, VError{Path: prefix + ".status_field", Code: "UNKNOWN_FIELD", Message: fmt.Sprintf("status_field %q is not a declared field", def.StatusField)})
	}
	if def.IDField != "" && !fieldNames[def.IDField] {
		errs = append(errs, VError{Path: prefix + ".id_field", Code: "UNKNOWN_FIELD", Message: fmt.Sprintf("id_field %q is not a declared field", def.IDField)})
	}

	// Action modes must not shadow the base modes; ModeSet enforces that.
	if _, err := def.Modes(); err != nil {
		errs = append(errs, VError{Path: prefix + ".actions", Code: "INVALID_MODE", Message: err.Error()})
	}
	for i, a := range def.Actions {
		ap := fmt.Sprintf("%s.actions[%d]", prefix, i)
		if a.Guard.Field != "" && !fieldNames[a.Guard.Field] {
			errs = append(errs, VError{Path: ap + ".guard.field", Code: "UNKNOWN_FIELD", Message: fmt.Sprintf("guard field %q is not a declared field", a.Guard.Field)})
		}
		if a.Guard.Field == "" && def.StatusField == "" {
			errs = append(errs, VError{Path: ap + ".guard", Code: "REQUIRED", Message: "guard needs a field when the entity has no status_field"})
		}
		if len(a.Guard.Equals) == 0 {
			errs = append(errs, VError{Path: ap + ".guard.equals", Code: "REQUIRED", Message: "guard needs at least one accepted value"})
		}
	}

	for i, col := range def.List.Columns {
		if col.Field != "" && !fieldNames[col.Field] {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.list.columns[%d].field", prefix, i),
				Code:    "UNKNOWN_FIELD",
				Message: fmt.Sprintf("column field %q is not a declared field", col.Field),
			})
		}
	}

	if def.Stages != nil {
		sp := prefix + ".stages"
		if def.Stages.Field == "" {
			errs = append(errs, VError{Path: sp + ".field", Code: "REQUIRED", Message: "stages.field is required"})
		}
		if def.Stages.ReferenceField == "" {
			errs = append(errs, VError{Path: sp + ".reference_field", Code: "REQUIRED", Message: "stages.reference_field is required"})
		}
	}

	if def.Import != nil && def.Import.Route == "" {
		errs = append(errs, VError{Path: prefix + ".import.route", Code: "REQUIRED", Message: "import.route is required"})
	}

	if def.Tracking != nil && len(def.Tracking.Keys) == 0 {
		errs = append(errs, VError{Path: prefix + ".tracking.keys", Code: "REQUIRED", Message: "tracking needs at least one key"})
	}

	return errs
}

func (v *Validator) validateValidation(prefix string, val model.ValidationDefinition, _ map[string]bool) []VError {
	var errs []VError

	if val.Pattern != "" {
		if _, err := regexp.Compile(val.Pattern); err != nil {
			errs = append(errs, VError{Path: prefix + ".pattern", Code: "INVALID_PATTERN", Message: err.Error()})
		}
	}
	if val.MinLength != nil && val.MaxLength != nil && *val.MinLength > *val.MaxLength {
		errs = append(errs, VError{Path: prefix, Code: "INVALID_RANGE", Message: "min_length exceeds max_length"})
	}
	if val.Min != nil && val.Max != nil && *val.Min > *val.Max {
		errs = append(errs, VError{Path: prefix, Code: "INVALID_RANGE", Message: "min exceeds max"})
	}

	return errs
}
