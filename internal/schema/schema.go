// Package schema extracts per-model field metadata from struct declarations.
// A Schema is built once per model type, cached by the Registry, and shared
// read-only by the codec, the identity manager and the query compiler.
package schema

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/kailas-cloud/docdex/internal/domain"
)

const tagKey = "docdex"

// NativeIdentityAlias is the storage key of the store's native identity.
const NativeIdentityAlias = "_id"

// Strategy selects how a document acquires its unique key.
type Strategy int

const (
	// StrategyNone manages no identity: documents are stored and retrieved
	// as-is, the store allocates its native key independently.
	StrategyNone Strategy = iota
	// StrategyDetached tracks the store's native key alongside the instance
	// without embedding it into model fields.
	StrategyDetached
	// StrategyEmbedded maps a model field onto the store's native key.
	StrategyEmbedded
	// StrategyGenerated computes the identity with a generator before every
	// insert, overwriting any pre-set value.
	StrategyGenerated
	// StrategyClientManaged requires the identity to be set by the caller
	// before save; uniqueness is enforced by the store.
	StrategyClientManaged
)

func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyDetached:
		return "detached"
	case StrategyEmbedded:
		return "embedded"
	case StrategyGenerated:
		return "generated"
	case StrategyClientManaged:
		return "client-managed"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// managesIdentityField reports whether the strategy needs an identity field
// declared on the model.
func (s Strategy) managesIdentityField() bool {
	return s == StrategyEmbedded || s == StrategyGenerated || s == StrategyClientManaged
}

// Field describes one declared model field.
type Field struct {
	Name     string // Go field name
	Alias    string // storage key
	Index    []int  // struct field index path (embedded structs flatten)
	Type     reflect.Type
	Identity bool
	Required bool
}

// Schema holds the immutable field/identity metadata of one model type.
type Schema struct {
	Type     reflect.Type
	Name     string
	Fields   []Field
	Identity int // index into Fields, -1 when no identity field declared
	Strategy Strategy

	byAlias map[string]int
	byName  map[string]int
}

// FieldByAlias resolves a field descriptor by its storage alias.
func (s *Schema) FieldByAlias(alias string) (Field, bool) {
	i, ok := s.byAlias[alias]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// FieldByName resolves a field descriptor by its Go field name.
func (s *Schema) FieldByName(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// IdentityField returns the identity descriptor, if the model declares one.
func (s *Schema) IdentityField() (Field, bool) {
	if s.Identity < 0 {
		return Field{}, false
	}
	return s.Fields[s.Identity], true
}

// DefaultStrategy infers an identity strategy from the model's tags when the
// binding does not name one. A field aliased "_id" implies the embedded
// strategy; an explicit identity option implies a client-managed value; a
// model declaring neither gets no identity handling at all.
func DefaultStrategy(t reflect.Type) Strategy {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return StrategyNone
	}
	strat := StrategyNone
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get(tagKey)
		if f.Anonymous && f.Type.Kind() == reflect.Struct && tag == "" {
			if nested := DefaultStrategy(f.Type); nested != StrategyNone {
				if nested == StrategyEmbedded {
					return nested
				}
				strat = nested
			}
			continue
		}
		if tag == "" || tag == "-" {
			continue
		}
		alias, opts := splitTag(tag)
		if alias == NativeIdentityAlias {
			return StrategyEmbedded
		}
		for _, o := range opts {
			if o == "identity" {
				strat = StrategyClientManaged
			}
		}
	}
	return strat
}

// parse builds a Schema for t under the given identity strategy.
func parse(t reflect.Type, strat Strategy) (*Schema, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, &domain.SchemaError{Model: t.String(), Reason: "model must be a struct"}
	}

	s := &Schema{
		Type:     t,
		Name:     t.String(),
		Identity: -1,
		Strategy: strat,
		byAlias:  map[string]int{},
		byName:   map[string]int{},
	}

	if err := collectFields(s, t, nil); err != nil {
		return nil, err
	}
	if err := resolveIdentity(s); err != nil {
		return nil, err
	}
	return s, nil
}

// collectFields walks t's fields in declaration order, flattening anonymous
// embedded structs the way encoding/json does.
func collectFields(s *Schema, t reflect.Type, path []int) error {
	for i := range t.NumField() {
		f := t.Field(i)
		idx := append(append([]int(nil), path...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get(tagKey) == "" {
			if err := collectFields(s, f.Type, idx); err != nil {
				return err
			}
			continue
		}
		if !f.IsExported() {
			continue
		}

		tag := f.Tag.Get(tagKey)
		if tag == "-" {
			continue
		}
		alias, opts := splitTag(tag)
		if alias == "" {
			alias = snakeCase(f.Name)
		}

		fd := Field{
			Name:  f.Name,
			Alias: alias,
			Index: idx,
			Type:  f.Type,
		}
		if alias == NativeIdentityAlias {
			fd.Identity = true
		}
		for _, o := range opts {
			switch o {
			case "identity":
				fd.Identity = true
			case "required":
				fd.Required = true
			case "":
			default:
				return &domain.SchemaError{
					Model:  s.Name,
					Reason: fmt.Sprintf("unknown tag option %q on field %s", o, f.Name),
				}
			}
		}

		if _, dup := s.byAlias[fd.Alias]; dup {
			return &domain.SchemaError{
				Model:  s.Name,
				Reason: fmt.Sprintf("fields %s and %s share storage alias %q", s.Fields[s.byAlias[fd.Alias]].Name, fd.Name, fd.Alias),
			}
		}
		if fd.Identity {
			if s.Identity >= 0 {
				return &domain.SchemaError{
					Model:  s.Name,
					Reason: fmt.Sprintf("fields %s and %s are both marked identity", s.Fields[s.Identity].Name, fd.Name),
				}
			}
			s.Identity = len(s.Fields)
		}

		s.byAlias[fd.Alias] = len(s.Fields)
		s.byName[fd.Name] = len(s.Fields)
		s.Fields = append(s.Fields, fd)
	}
	return nil
}

// resolveIdentity applies the conventional identity match and validates the
// identity declaration against the schema's strategy.
func resolveIdentity(s *Schema) error {
	if s.Identity < 0 && s.Strategy.managesIdentityField() {
		// Convention: an exported string field named ID is the identity when
		// the strategy needs one and nothing was marked explicitly.
		if i, ok := s.byName["ID"]; ok && s.Fields[i].Type.Kind() == reflect.String {
			s.Fields[i].Identity = true
			s.Identity = i
		}
	}

	id, declared := s.IdentityField()

	switch s.Strategy {
	case StrategyNone, StrategyDetached:
		if declared {
			return &domain.SchemaError{
				Model:  s.Name,
				Reason: fmt.Sprintf("field %s is marked identity but strategy %s manages no identity field", id.Name, s.Strategy),
			}
		}
	case StrategyEmbedded:
		if !declared {
			return &domain.SchemaError{Model: s.Name, Reason: "strategy embedded requires an identity field"}
		}
		if id.Type.Kind() != reflect.String {
			return &domain.SchemaError{
				Model:  s.Name,
				Reason: fmt.Sprintf("embedded identity field %s must be a string, got %s", id.Name, id.Type),
			}
		}
		if id.Alias != NativeIdentityAlias {
			// The embedded identity is the store's native key; re-alias it so
			// encode/decode round the native identity through the model field.
			delete(s.byAlias, id.Alias)
			s.Fields[s.Identity].Alias = NativeIdentityAlias
			s.byAlias[NativeIdentityAlias] = s.Identity
		}
	case StrategyGenerated:
		if !declared {
			return &domain.SchemaError{Model: s.Name, Reason: "strategy generated requires an identity field"}
		}
		if id.Type.Kind() != reflect.String {
			return &domain.SchemaError{
				Model:  s.Name,
				Reason: fmt.Sprintf("generated identity field %s must be a string, got %s", id.Name, id.Type),
			}
		}
	case StrategyClientManaged:
		if !declared {
			return &domain.SchemaError{Model: s.Name, Reason: "strategy client-managed requires an identity field"}
		}
		switch id.Type.Kind() {
		case reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			return &domain.SchemaError{
				Model:  s.Name,
				Reason: fmt.Sprintf("client-managed identity field %s must be a string or integer, got %s", id.Name, id.Type),
			}
		}
	}
	return nil
}

func splitTag(tag string) (alias string, opts []string) {
	parts := strings.Split(tag, ",")
	return parts[0], parts[1:]
}

// snakeCase converts a Go field name to its default storage alias
// (FullName -> full_name, HTTPPort -> http_port).
func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || nextLower) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
