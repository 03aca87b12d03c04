package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that no document matched the query.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey signals an identity uniqueness violation in the store.
	ErrDuplicateKey = errors.New("duplicate key")
)

// SchemaError reports an invalid model declaration. Fatal at bind time.
type SchemaError struct {
	Model  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s: %s", e.Model, e.Reason)
}

// MissingIdentityError reports an instance saved without its identity value
// under a strategy that requires one to be present.
type MissingIdentityError struct {
	Model string
	Field string
}

func (e *MissingIdentityError) Error() string {
	return fmt.Sprintf("%s: identity field %q is not set", e.Model, e.Field)
}

// MissingRequiredFieldError reports a stored document lacking a value for a
// schema-declared required field.
type MissingRequiredFieldError struct {
	Model string
	Field string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("%s: document has no value for required field %q", e.Model, e.Field)
}

// UnknownDiscriminatorError reports a stored document whose discriminator
// value matches none of the declared union variants.
type UnknownDiscriminatorError struct {
	Key   string
	Value string
}

func (e *UnknownDiscriminatorError) Error() string {
	return fmt.Sprintf("no variant declared for discriminator %s=%q", e.Key, e.Value)
}

// InvalidExpressionError reports a query expression that cannot be compiled
// against the target schema (for example a field reference belonging to a
// different model).
type InvalidExpressionError struct {
	Reason string
}

func (e *InvalidExpressionError) Error() string {
	return "invalid query expression: " + e.Reason
}

// UnresolvedFieldError reports a plain string used as a query key where it
// names a model field instead of a storage alias. The ambiguity is rejected
// rather than guessed.
type UnresolvedFieldError struct {
	Key   string
	Alias string
}

func (e *UnresolvedFieldError) Error() string {
	return fmt.Sprintf("query key %q names a model field stored as %q; use the field reference or the storage alias", e.Key, e.Alias)
}
