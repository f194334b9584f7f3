// Package schema evaluates the declarative field checks of an entity
// definition against a candidate record. Validation is entirely local:
// it runs before any network call and produces per-field errors that are
// reported inline, never through the notification channel.
package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/cargolog/console/internal/format"
	"github.com/cargolog/console/model"
)

// patternCache avoids recompiling definition patterns on every save.
var patternCache sync.Map // pattern string → *regexp.Regexp

func compiledPattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// Validate checks rec against the entity's field definitions for a save in
// the given mode. Only insert and edit saves are validated; other modes
// return no errors. The returned slice is nil when the record is valid.
func Validate(def model.EntityDefinition, mode model.Mode, rec model.Record) []model.FieldError {
	if !mode.Mutating() {
		return nil
	}

	var errs []model.FieldError
	for _, field := range def.Fields {
		if field.ReadOnly {
			continue
		}
		errs = append(errs, ValidateField(field, rec)...)
	}
	return errs
}

// ValidateFields checks an arbitrary field list (e.g. an import flow's
// ancillary fields) against a record of collected values.
func ValidateFields(fields []model.FieldDefinition, rec model.Record) []model.FieldError {
	var errs []model.FieldError
	for _, field := range fields {
		errs = append(errs, ValidateField(field, rec)...)
	}
	return errs
}

// ValidateField applies one field's checks. A field failing its required
// check reports only that error; further checks assume a value is present.
func ValidateField(field model.FieldDefinition, rec model.Record) []model.FieldError {
	value := rec.StringField(field.Field)

	if value == "" {
		if field.Required {
			return []model.FieldError{{
				Field:   field.Field,
				Message: requiredMessage(field),
			}}
		}
		return nil
	}

	var errs []model.FieldError
	fail := func(msg string) {
		errs = append(errs, model.FieldError{Field: field.Field, Message: msg})
	}

	if field.Type == "number" {
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			fail(fmt.Sprintf("%s deve ser numérico.", label(field)))
		}
	}

	switch field.Format {
	case "cpf":
		if len(format.Digits(value)) != format.CPFDigits {
			fail("CPF deve ter 11 dígitos.")
		}
	case "cnpj":
		if len(format.Digits(value)) != format.CNPJDigits {
			fail("CNPJ deve ter 14 dígitos.")
		}
	case "cep":
		if len(format.Digits(value)) != format.CEPDigits {
			fail("O CEP está incorreto.")
		}
	}

	v := field.Validation
	if v == nil {
		return errs
	}

	if v.MinLength != nil && len(value) < *v.MinLength {
		fail(message(v, fmt.Sprintf("%s deve ter no mínimo %d caracteres.", label(field), *v.MinLength)))
	}
	if v.MaxLength != nil && len(value) > *v.MaxLength {
		fail(message(v, fmt.Sprintf("%s deve ter no máximo %d caracteres.", label(field), *v.MaxLength)))
	}
	if v.Numeric {
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			fail(message(v, fmt.Sprintf("%s deve ser numérico.", label(field))))
		}
	}
	if v.Min != nil || v.Max != nil {
		if num, err := strconv.ParseFloat(value, 64); err == nil {
			if v.Min != nil && num < *v.Min {
				fail(message(v, fmt.Sprintf("%s deve ser maior ou igual a %v.", label(field), *v.Min)))
			}
			if v.Max != nil && num > *v.Max {
				fail(message(v, fmt.Sprintf("%s deve ser menor ou igual a %v.", label(field), *v.Max)))
			}
		}
	}
	if v.Pattern != "" {
		re, err := compiledPattern(v.Pattern)
		if err != nil {
			fail(fmt.Sprintf("%s: padrão de validação inválido.", label(field)))
		} else if !re.MatchString(value) {
			fail(message(v, fmt.Sprintf("%s está em formato inválido.", label(field))))
		}
	}
	if v.EqualsField != "" && value != rec.StringField(v.EqualsField) {
		fail(message(v, fmt.Sprintf("%s não confere.", label(field))))
	}

	return errs
}

func label(field model.FieldDefinition) string {
	if field.Label != "" {
		return field.Label
	}
	return field.Field
}

func requiredMessage(field model.FieldDefinition) string {
	if field.Validation != nil && field.Validation.Message != "" {
		return field.Validation.Message
	}
	return fmt.Sprintf("%s é obrigatório.", label(field))
}

func message(v *model.ValidationDefinition, fallback string) string {
	if v.Message != "" {
		return v.Message
	}
	return fallback
}
