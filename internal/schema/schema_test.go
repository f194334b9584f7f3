package schema

import (
	"testing"

	"github.com/cargolog/console/model"
)

func intPtr(i int) *int          { return &i }
func floatPtr(f float64) *float64 { return &f }

func senderDefinition() model.EntityDefinition {
	return model.EntityDefinition{
		Entity:    "senders",
		BaseRoute: "/senders",
		Fields: []model.FieldDefinition{
			{Field: "code", Label: "Código", Required: true},
			{Field: "name", Label: "Nome", Required: true},
			{Field: "city", Label: "Cidade", Required: true},
			{Field: "state", Label: "Estado", Required: true,
				Validation: &model.ValidationDefinition{MinLength: intPtr(2), MaxLength: intPtr(2)}},
			{Field: "status", Label: "Status", ReadOnly: true, Required: true},
		},
	}
}

func TestValidate_passesForCompleteRecord(t *testing.T) {
	rec := model.Record{"code": "A1", "name": "Acme", "city": "SP", "state": "SP"}
	if errs := Validate(senderDefinition(), model.ModeInsert, rec); errs != nil {
		t.Errorf("Validate = %v, want nil", errs)
	}
}

func TestValidate_flagsMissingRequired(t *testing.T) {
	rec := model.Record{"code": "A1", "state": "SP"}
	errs := Validate(senderDefinition(), model.ModeInsert, rec)

	got := make(map[string]bool)
	for _, e := range errs {
		got[e.Field] = true
	}
	if !got["name"] || !got["city"] {
		t.Errorf("missing required fields not all flagged: %v", errs)
	}
	if got["state"] {
		t.Errorf("state was present but flagged: %v", errs)
	}
}

func TestValidate_skipsReadOnlyFields(t *testing.T) {
	rec := model.Record{"code": "A1", "name": "Acme", "city": "SP", "state": "SP"}
	for _, e := range Validate(senderDefinition(), model.ModeEdit, rec) {
		if e.Field == "status" {
			t.Error("read-only field must not be validated")
		}
	}
}

func TestValidate_onlyMutatingModes(t *testing.T) {
	rec := model.Record{}
	if errs := Validate(senderDefinition(), model.ModeRead, rec); errs != nil {
		t.Errorf("read mode validated: %v", errs)
	}
	if errs := Validate(senderDefinition(), model.ModeRemove, rec); errs != nil {
		t.Errorf("remove mode validated: %v", errs)
	}
}

func TestValidateField_lengthBounds(t *testing.T) {
	field := model.FieldDefinition{Field: "state", Label: "Estado",
		Validation: &model.ValidationDefinition{MinLength: intPtr(2), MaxLength: intPtr(2)}}

	if errs := ValidateField(field, model.Record{"state": "S"}); len(errs) != 1 {
		t.Errorf("short value: got %v", errs)
	}
	if errs := ValidateField(field, model.Record{"state": "SSP"}); len(errs) != 1 {
		t.Errorf("long value: got %v", errs)
	}
	if errs := ValidateField(field, model.Record{"state": "SP"}); errs != nil {
		t.Errorf("exact value: got %v", errs)
	}
}

func TestValidateField_numericTyping(t *testing.T) {
	field := model.FieldDefinition{Field: "value", Label: "Valor", Type: "number"}

	if errs := ValidateField(field, model.Record{"value": "abc"}); len(errs) != 1 {
		t.Errorf("non-numeric: got %v", errs)
	}
	if errs := ValidateField(field, model.Record{"value": "12.5"}); errs != nil {
		t.Errorf("numeric: got %v", errs)
	}
}

func TestValidateField_numericRange(t *testing.T) {
	field := model.FieldDefinition{Field: "year", Type: "number",
		Validation: &model.ValidationDefinition{Min: floatPtr(2000), Max: floatPtr(2100)}}

	if errs := ValidateField(field, model.Record{"year": "1999"}); len(errs) != 1 {
		t.Errorf("below min: got %v", errs)
	}
	if errs := ValidateField(field, model.Record{"year": "2101"}); len(errs) != 1 {
		t.Errorf("above max: got %v", errs)
	}
	if errs := ValidateField(field, model.Record{"year": "2024"}); errs != nil {
		t.Errorf("in range: got %v", errs)
	}
}

func TestValidateField_pattern(t *testing.T) {
	field := model.FieldDefinition{Field: "nfekey",
		Validation: &model.ValidationDefinition{Pattern: `^\d{44}$`, Message: "Chave da NF-e inválida."}}

	errs := ValidateField(field, model.Record{"nfekey": "123"})
	if len(errs) != 1 || errs[0].Message != "Chave da NF-e inválida." {
		t.Errorf("pattern failure: got %v", errs)
	}
}

func TestValidateField_crossFieldEquality(t *testing.T) {
	field := model.FieldDefinition{Field: "passwordConfirm", Label: "Confirmação",
		Validation: &model.ValidationDefinition{EqualsField: "password", Message: "As senhas não conferem."}}

	rec := model.Record{"password": "s3cret", "passwordConfirm": "s3cret"}
	if errs := ValidateField(field, rec); errs != nil {
		t.Errorf("matching confirmation flagged: %v", errs)
	}

	rec["passwordConfirm"] = "other"
	errs := ValidateField(field, rec)
	if len(errs) != 1 || errs[0].Message != "As senhas não conferem." {
		t.Errorf("mismatched confirmation: got %v", errs)
	}
}

func TestValidateField_documentFormats(t *testing.T) {
	cpf := model.FieldDefinition{Field: "code", Format: "cpf"}
	if errs := ValidateField(cpf, model.Record{"code": "123"}); len(errs) != 1 {
		t.Errorf("short CPF: got %v", errs)
	}
	if errs := ValidateField(cpf, model.Record{"code": "123.456.789-01"}); errs != nil {
		t.Errorf("masked CPF should count digits only: got %v", errs)
	}

	cep := model.FieldDefinition{Field: "postalCode", Format: "cep"}
	if errs := ValidateField(cep, model.Record{"postalCode": "01310-100"}); errs != nil {
		t.Errorf("valid CEP: got %v", errs)
	}
	if errs := ValidateField(cep, model.Record{"postalCode": "013"}); len(errs) != 1 {
		t.Errorf("short CEP: got %v", errs)
	}
}

func TestValidateField_optionalEmptyIsValid(t *testing.T) {
	field := model.FieldDefinition{Field: "complement",
		Validation: &model.ValidationDefinition{MinLength: intPtr(5)}}
	if errs := ValidateField(field, model.Record{}); errs != nil {
		t.Errorf("optional empty field flagged: %v", errs)
	}
}
