package domain

import (
	"fmt"
	"regexp"
	"sort"
)

type FieldType string

const (
	TypeInt     FieldType = "int"
	TypeDecimal FieldType = "decimal"
	TypeBool    FieldType = "bool"
	TypeDate    FieldType = "date"
	TypeText    FieldType = "text"
	TypeBounded FieldType = "bounded"
)

type Target string

const (
	TargetPrimary Target = "primary"
	TargetCore    Target = "core"
)

// Field describes one client-visible attribute of an entity.
type Field struct {
	Name     string    `yaml:"name"`
	Column   string    `yaml:"column"`
	Type     FieldType `yaml:"type"`
	MaxLen   int       `yaml:"maxLen"`
	NotNull  bool      `yaml:"notNull"`
	Required bool      `yaml:"required"`
	Enum     []string  `yaml:"enum"`
	Target   Target    `yaml:"target"`
	ReadOnly bool      `yaml:"readOnly"`
}

func (f *Field) Numeric() bool { return f.Type == TypeInt || f.Type == TypeDecimal }

// CoreLink joins an extension table 1:1 to its core table.
type CoreLink struct {
	Table string `yaml:"table"`
	Key   string `yaml:"key"`
	FK    string `yaml:"fk"`
}

// Derivation recomputes a read-only field whenever one of its inputs changes.
type Derivation struct {
	Field  string   `yaml:"field"`
	Kind   string   `yaml:"kind"`
	Inputs []string `yaml:"inputs"`
}

type Entity struct {
	Name    string       `yaml:"name"`
	Table   string       `yaml:"table"`
	Key     string       `yaml:"key"`
	Core    *CoreLink    `yaml:"core"`
	Fields  []Field      `yaml:"fields"`
	Derived []Derivation `yaml:"derived"`

	byName map[string]*Field
}

func (e *Entity) Field(name string) (*Field, bool) {
	f, ok := e.byName[name]
	return f, ok
}

// Writable reports whether name is a field a client may set.
func (e *Entity) Writable(name string) (*Field, bool) {
	f, ok := e.byName[name]
	if !ok || f.ReadOnly {
		return nil, false
	}
	return f, true
}

type Registry struct {
	entities map[string]*Entity
}

func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Cacheable reports whether e's joined view depends on writes to one table only:
// it has no core link and no other entity uses its table as core.
func (r *Registry) Cacheable(e *Entity) bool {
	if e.Core != nil {
		return false
	}
	for _, o := range r.entities {
		if o.Core != nil && o.Core.Table == e.Table {
			return false
		}
	}
	return true
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.entities))
	for n := range r.entities {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// identifiers are interpolated into SQL, so only plain names are accepted.
var ident = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewRegistry validates the entity definitions and indexes them by name.
func NewRegistry(entities []Entity) (*Registry, error) {
	reg := &Registry{entities: make(map[string]*Entity, len(entities))}
	for i := range entities {
		e := &entities[i]
		if err := e.init(); err != nil {
			return nil, fmt.Errorf("entity %q: %w", e.Name, err)
		}
		if _, dup := reg.entities[e.Name]; dup {
			return nil, fmt.Errorf("entity %q defined twice", e.Name)
		}
		reg.entities[e.Name] = e
	}
	return reg, nil
}

func (e *Entity) init() error {
	if e.Name == "" {
		return fmt.Errorf("missing name")
	}
	if !ident.MatchString(e.Table) {
		return fmt.Errorf("bad table %q", e.Table)
	}
	if e.Key == "" {
		e.Key = "id"
	}
	if !ident.MatchString(e.Key) {
		return fmt.Errorf("bad key %q", e.Key)
	}
	if e.Core != nil {
		if e.Core.Key == "" {
			e.Core.Key = "id"
		}
		for _, s := range []string{e.Core.Table, e.Core.Key, e.Core.FK} {
			if !ident.MatchString(s) {
				return fmt.Errorf("bad core link identifier %q", s)
			}
		}
	}

	e.byName = make(map[string]*Field, len(e.Fields))
	for i := range e.Fields {
		f := &e.Fields[i]
		if f.Name == "" || f.Name == "id" {
			return fmt.Errorf("field %d: reserved or empty name %q", i, f.Name)
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		if !ident.MatchString(f.Column) {
			return fmt.Errorf("field %s: bad column %q", f.Name, f.Column)
		}
		if f.Target == "" {
			f.Target = TargetPrimary
		}
		switch f.Target {
		case TargetPrimary:
		case TargetCore:
			if e.Core == nil {
				return fmt.Errorf("field %s targets core but entity has no core link", f.Name)
			}
		default:
			return fmt.Errorf("field %s: unknown target %q", f.Name, f.Target)
		}
		switch f.Type {
		case TypeInt, TypeDecimal, TypeBool, TypeDate, TypeText:
		case TypeBounded:
			if f.MaxLen <= 0 {
				return fmt.Errorf("field %s: bounded text needs maxLen", f.Name)
			}
		default:
			return fmt.Errorf("field %s: unknown type %q", f.Name, f.Type)
		}
		if len(f.Enum) > 0 && f.Type != TypeText && f.Type != TypeBounded {
			return fmt.Errorf("field %s: enum only applies to text fields", f.Name)
		}
		if _, dup := e.byName[f.Name]; dup {
			return fmt.Errorf("field %s defined twice", f.Name)
		}
		e.byName[f.Name] = f
	}

	for _, d := range e.Derived {
		if _, ok := derivers[d.Kind]; !ok {
			return fmt.Errorf("derivation %s: unknown kind %q", d.Field, d.Kind)
		}
		out, ok := e.byName[d.Field]
		if !ok || !out.ReadOnly || out.Type != TypeDecimal || out.Target != TargetPrimary {
			return fmt.Errorf("derivation %s: target must be a read-only primary decimal field", d.Field)
		}
		if len(d.Inputs) != derivers[d.Kind].arity {
			return fmt.Errorf("derivation %s: %s takes %d inputs", d.Field, d.Kind, derivers[d.Kind].arity)
		}
		for _, in := range d.Inputs {
			f, ok := e.byName[in]
			if !ok || !f.Numeric() || f.Target != TargetPrimary {
				return fmt.Errorf("derivation %s: input %q must be a numeric primary field", d.Field, in)
			}
		}
	}
	return nil
}
