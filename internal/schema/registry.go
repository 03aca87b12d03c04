package schema

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// Registry memoizes Schemas per model type. Safe for concurrent first use:
// a schema is constructed off to the side and published with LoadOrStore, so
// two racing callers converge on a single instance and the loser's copy is
// discarded.
type Registry struct {
	schemas sync.Map // reflect.Type -> *Schema
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register returns the Schema for t, building it on first use. Registering
// the same type twice is idempotent and returns the identical Schema;
// registering it under a different identity strategy is a SchemaError.
func (r *Registry) Register(t reflect.Type, strat Strategy) (*Schema, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if v, ok := r.schemas.Load(t); ok {
		return r.check(v.(*Schema), strat)
	}

	s, err := parse(t, strat)
	if err != nil {
		return nil, err
	}
	actual, _ := r.schemas.LoadOrStore(t, s)
	return r.check(actual.(*Schema), strat)
}

// Lookup returns the cached Schema for t without building one.
func (r *Registry) Lookup(t reflect.Type) (*Schema, bool) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	v, ok := r.schemas.Load(t)
	if !ok {
		return nil, false
	}
	return v.(*Schema), true
}

func (r *Registry) check(s *Schema, strat Strategy) (*Schema, error) {
	if s.Strategy != strat {
		return nil, &domain.SchemaError{
			Model:  s.Name,
			Reason: fmt.Sprintf("already registered with identity strategy %s, requested %s", s.Strategy, strat),
		}
	}
	return s, nil
}

// Union maps discriminator values to member Schemas for collections declared
// over several variant types. Built once at binding time, read-only after.
type Union struct {
	// Key is the reserved document field recording the variant.
	Key string

	byTag  map[string]*Schema
	byType map[reflect.Type]string
}

// NewUnion creates an empty union table with the given discriminator key.
func NewUnion(key string) *Union {
	return &Union{
		Key:    key,
		byTag:  map[string]*Schema{},
		byType: map[reflect.Type]string{},
	}
}

// Add declares a variant. Duplicate tags and duplicate member types are
// declaration errors.
func (u *Union) Add(tag string, s *Schema) error {
	if tag == "" {
		return &domain.SchemaError{Model: s.Name, Reason: "empty discriminator value"}
	}
	if prev, dup := u.byTag[tag]; dup {
		return &domain.SchemaError{
			Model:  s.Name,
			Reason: fmt.Sprintf("discriminator %q already declared for %s", tag, prev.Name),
		}
	}
	if _, dup := u.byType[s.Type]; dup {
		return &domain.SchemaError{
			Model:  s.Name,
			Reason: "type declared as a union variant twice",
		}
	}
	u.byTag[tag] = s
	u.byType[s.Type] = tag
	return nil
}

// ByTag resolves the member Schema for a discriminator value.
func (u *Union) ByTag(tag string) (*Schema, bool) {
	s, ok := u.byTag[tag]
	return s, ok
}

// Tag returns the discriminator value associated with a member type.
func (u *Union) Tag(t reflect.Type) (string, bool) {
	tag, ok := u.byType[t]
	return tag, ok
}

// Contains reports whether s is a member of the union.
func (u *Union) Contains(s *Schema) bool {
	_, ok := u.byType[s.Type]
	return ok
}

// Len returns the number of declared variants.
func (u *Union) Len() int { return len(u.byTag) }

// Members returns the member Schemas in no particular order.
func (u *Union) Members() []*Schema {
	out := make([]*Schema, 0, len(u.byTag))
	for _, s := range u.byTag {
		out = append(out, s)
	}
	return out
}
