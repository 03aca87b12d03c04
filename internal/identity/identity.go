// Package identity decides how and when a document acquires its unique key.
// Prepare touches only the instance passed to it, never shared state, so
// concurrent saves of different instances never contend here.
package identity

import (
	"fmt"
	"reflect"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/schema"
)

// Generator produces a fresh identity value.
type Generator func() string

// Decision is the outcome of preparing an instance for insert.
type Decision struct {
	// ID is the document identity as a store key component. Empty when the
	// store allocates its own native key (none/detached strategies).
	ID string
	// Unique reports whether the store must enforce uniqueness of ID on
	// insert (generated and client-managed identities).
	Unique bool
}

// Prepare is invoked exactly once per document immediately before an insert.
// rv must be an addressable value of the schema's model type; identity
// mutations documented per strategy are written onto it before returning.
func Prepare(s *schema.Schema, rv reflect.Value, gen Generator) (Decision, error) {
	switch s.Strategy {
	case schema.StrategyNone, schema.StrategyDetached:
		// Store assigns its native key; nothing to do on the instance.
		return Decision{}, nil

	case schema.StrategyEmbedded:
		f, _ := s.IdentityField()
		fv := rv.FieldByIndex(f.Index)
		if fv.String() == "" {
			// Allocate a fresh native key and surface it synchronously,
			// before any store round trip.
			fv.SetString(gen())
		}
		return Decision{ID: fv.String()}, nil

	case schema.StrategyGenerated:
		f, _ := s.IdentityField()
		fv := rv.FieldByIndex(f.Index)
		// Generation is unconditional: every save produces a value from
		// this process, overwriting whatever was set.
		fv.SetString(gen())
		return Decision{ID: fv.String(), Unique: true}, nil

	case schema.StrategyClientManaged:
		f, _ := s.IdentityField()
		fv := rv.FieldByIndex(f.Index)
		if fv.IsZero() {
			return Decision{}, &domain.MissingIdentityError{Model: s.Name, Field: f.Name}
		}
		return Decision{ID: Format(fv), Unique: true}, nil

	default:
		return Decision{}, fmt.Errorf("identity: unknown strategy %s", s.Strategy)
	}
}

// Of reads the current identity value from an instance without mutating it.
// ok is false when the schema declares no identity field or the field is
// unset.
func Of(s *schema.Schema, rv reflect.Value) (id string, ok bool) {
	f, declared := s.IdentityField()
	if !declared {
		return "", false
	}
	fv := rv.FieldByIndex(f.Index)
	if fv.IsZero() {
		return "", false
	}
	return Format(fv), true
}

// Clear zeroes the identity field, if the schema declares one.
func Clear(s *schema.Schema, rv reflect.Value) {
	f, declared := s.IdentityField()
	if !declared {
		return
	}
	fv := rv.FieldByIndex(f.Index)
	fv.Set(reflect.Zero(fv.Type()))
}

// Format renders an identity value as a store key component.
func Format(fv reflect.Value) string {
	switch fv.Kind() {
	case reflect.String:
		return fv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("%d", fv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprintf("%d", fv.Uint())
	default:
		return fmt.Sprint(fv.Interface())
	}
}
