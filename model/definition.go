package model

// EntityDefinition is the root structure of a definition file. Each file
// declares one entity's routes, fields, list view, action modes, import
// flow, and nested stages control.
type EntityDefinition struct {
	Entity      string              `yaml:"entity"       json:"entity"`
	Title       string              `yaml:"title"        json:"title"`
	BaseRoute   string              `yaml:"base_route"   json:"base_route"`
	IDField     string              `yaml:"id_field"     json:"id_field,omitempty"`
	StatusField string              `yaml:"status_field" json:"status_field,omitempty"`
	Fields      []FieldDefinition   `yaml:"fields"       json:"fields"`
	List        ListDefinition      `yaml:"list"         json:"list"`
	Actions     []ActionDefinition  `yaml:"actions"      json:"actions,omitempty"`
	Stages      *StagesDefinition   `yaml:"stages"       json:"stages,omitempty"`
	Import      *ImportDefinition   `yaml:"import"       json:"import,omitempty"`
	Tracking    *TrackingDefinition `yaml:"tracking"     json:"tracking,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// Identifier returns the configured id field, defaulting to "id".
func (d EntityDefinition) Identifier() string {
	if d.IDField == "" {
		return "id"
	}
	return d.IDField
}

// Field returns the definition for the named field, or false if unknown.
func (d EntityDefinition) Field(name string) (FieldDefinition, bool) {
	for _, f := range d.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// Action returns the action declared for the given mode, or false.
func (d EntityDefinition) Action(mode Mode) (ActionDefinition, bool) {
	for _, a := range d.Actions {
		if Mode(a.Mode) == mode {
			return a, true
		}
	}
	return ActionDefinition{}, false
}

// Modes builds the ModeSet for this entity from its declared actions.
func (d EntityDefinition) Modes() (ModeSet, error) {
	exts := make([]Mode, 0, len(d.Actions))
	for _, a := range d.Actions {
		exts = append(exts, Mode(a.Mode))
	}
	return NewModeSet(exts...)
}

// FieldDefinition describes one field of an entity record.
type FieldDefinition struct {
	Field      string                `yaml:"field"       json:"field"`
	Label      string                `yaml:"label"       json:"label"`
	Type       string                `yaml:"type"        json:"type"` // text, number, date, select, password
	ReadOnly   bool                  `yaml:"read_only"   json:"read_only,omitempty"`
	InsertOnly bool                  `yaml:"insert_only" json:"insert_only,omitempty"` // editable during insert, never during edit
	Required   bool                  `yaml:"required"    json:"required,omitempty"`
	Format     string                `yaml:"format"      json:"format,omitempty"` // cpf, cnpj, cep, currency, date
	Pad        int                   `yaml:"pad"         json:"pad,omitempty"`    // zero-pad width for display
	Validation *ValidationDefinition `yaml:"validation"  json:"validation,omitempty"`
}

// ValidationDefinition declares the local checks applied to a field
// before any insert or edit save.
type ValidationDefinition struct {
	MinLength   *int    `yaml:"min_length"   json:"min_length,omitempty"`
	MaxLength   *int    `yaml:"max_length"   json:"max_length,omitempty"`
	Min         *float64 `yaml:"min"         json:"min,omitempty"`
	Max         *float64 `yaml:"max"         json:"max,omitempty"`
	Pattern     string  `yaml:"pattern"      json:"pattern,omitempty"`
	Numeric     bool    `yaml:"numeric"      json:"numeric,omitempty"`
	EqualsField string  `yaml:"equals_field" json:"equals_field,omitempty"` // cross-field equality (confirmation)
	Message     string  `yaml:"message"      json:"message,omitempty"`
}

// ListDefinition describes the collection view of an entity.
type ListDefinition struct {
	Columns      []ColumnDefinition `yaml:"columns"       json:"columns"`
	Filters      []string           `yaml:"filters"       json:"filters,omitempty"` // permitted filter keys
	SingleFilter bool               `yaml:"single_filter" json:"single_filter,omitempty"`
	Legends      map[string]string  `yaml:"legends"       json:"legends,omitempty"` // status code → display class
}

// ColumnDefinition describes one column of the collection view.
type ColumnDefinition struct {
	Field  string `yaml:"field"  json:"field"`
	Title  string `yaml:"title"  json:"title"`
	Legend bool   `yaml:"legend" json:"legend,omitempty"`
}

// ActionDefinition declares a domain action mode reachable from read while
// the guard holds. On save the Sets values are applied as a partial update.
type ActionDefinition struct {
	Mode  string            `yaml:"mode"  json:"mode"`
	Label string            `yaml:"label" json:"label"`
	Guard GuardDefinition   `yaml:"guard" json:"guard"`
	Sets  map[string]string `yaml:"sets"  json:"sets"`
}

// GuardDefinition is the predicate gating an action mode: the record's
// status-like field must equal one of the listed values.
type GuardDefinition struct {
	Field  string   `yaml:"field"  json:"field"`
	Equals []string `yaml:"equals" json:"equals"`
}

// Holds reports whether the guard is satisfied for the given record.
// When the guard declares no field, the fallback is used.
func (g GuardDefinition) Holds(rec Record, fallbackField string) bool {
	field := g.Field
	if field == "" {
		field = fallbackField
	}
	if field == "" {
		return false
	}
	status := rec.StringField(field)
	for _, v := range g.Equals {
		if status == v {
			return true
		}
	}
	return false
}

// StagesDefinition configures the ordered child list nested in a record.
type StagesDefinition struct {
	Field          string   `yaml:"field"           json:"field"`           // record field holding the children
	OrderField     string   `yaml:"order_field"     json:"order_field"`     // defaults to "order"
	OrderWidth     int      `yaml:"order_width"     json:"order_width"`     // zero-pad width, defaults to 3
	ReferenceField string   `yaml:"reference_field" json:"reference_field"` // required lookup reference per child
	ChildFields    []string `yaml:"child_fields"    json:"child_fields"`
}

// Order returns the configured order field, defaulting to "order".
func (s StagesDefinition) Order() string {
	if s.OrderField == "" {
		return "order"
	}
	return s.OrderField
}

// Width returns the zero-pad width, defaulting to 3 digits.
func (s StagesDefinition) Width() int {
	if s.OrderWidth <= 0 {
		return 3
	}
	return s.OrderWidth
}

// ImportDefinition configures the bulk import flow of an entity.
type ImportDefinition struct {
	Route   string            `yaml:"route"    json:"route"`    // appended to base_route, e.g. "importall-xml"
	FileKey string            `yaml:"file_key" json:"file_key"` // multipart field key, defaults to "files"
	Fields  []FieldDefinition `yaml:"fields"   json:"fields,omitempty"` // ancillary scalar fields
}

// Key returns the multipart field key, defaulting to "files".
func (i ImportDefinition) Key() string {
	if i.FileKey == "" {
		return "files"
	}
	return i.FileKey
}

// TrackingDefinition configures the public tracking lookup of an entity.
type TrackingDefinition struct {
	Keys []string `yaml:"keys" json:"keys"` // fields a tracking query may match on
}
