package schema

import "fmt"

// ErrUnknownType is returned when a lookup name has no registered type or
// alias.
var ErrUnknownType = fmt.Errorf("schema: unknown type")

// ErrDuplicateType is returned when Add is called with a name already
// present in the schema.
var ErrDuplicateType = fmt.Errorf("schema: duplicate type name")

// Schema is an ordered, append-only sequence of named record types with
// O(1) average lookup by name and support for aliasing one name onto
// another's definition.
type Schema struct {
	types   []Type
	byName  map[string]int // name -> index into types
	aliases map[string]string
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{
		byName:  make(map[string]int),
		aliases: make(map[string]string),
	}
}

// Add registers t under t.Name. It is an error to add a type whose name
// collides with an existing type or alias.
func (s *Schema) Add(t Type) error {
	if _, ok := s.byName[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, t.Name)
	}
	if _, ok := s.aliases[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, t.Name)
	}
	s.byName[t.Name] = len(s.types)
	s.types = append(s.types, t)
	return nil
}

// Alias registers alias as another name for the type already registered as
// target.
func (s *Schema) Alias(alias, target string) error {
	if _, err := s.Lookup(target); err != nil {
		return err
	}
	if _, ok := s.byName[alias]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, alias)
	}
	s.aliases[alias] = target
	return nil
}

// Lookup resolves a name (direct or aliased) to its registered type.
func (s *Schema) Lookup(name string) (Type, error) {
	if canonical, ok := s.aliases[name]; ok {
		name = canonical
	}
	idx, ok := s.byName[name]
	if !ok {
		return Type{}, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return s.types[idx], nil
}

// Types returns the schema's types in registration order.
func (s *Schema) Types() []Type {
	out := make([]Type, len(s.types))
	copy(out, s.types)
	return out
}

// CongruentWith reports whether every type in other has a congruent
// counterpart (by name) in s; used to validate an externally discovered
// schema fragment against the one the engine was started with.
func (s *Schema) CongruentWith(other *Schema) error {
	for _, t := range other.types {
		mine, err := s.Lookup(t.Name)
		if err != nil {
			return fmt.Errorf("schema congruence: %s not found in base schema", t.Name)
		}
		if !mine.Congruent(t) {
			return fmt.Errorf("schema congruence: %s is not congruent with base schema", t.Name)
		}
	}
	return nil
}
