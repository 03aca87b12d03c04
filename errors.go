package docdex

import "github.com/kailas-cloud/docdex/internal/domain"

// Sentinel errors surfaced by collection operations.
var (
	// ErrNotFound signals that no document matched the query.
	ErrNotFound = domain.ErrNotFound
	// ErrDuplicateKey signals an identity uniqueness violation. It is the
	// store constraint speaking: inserts under generated or client-managed
	// identities are never pre-checked, so a duplicate surfaces here.
	ErrDuplicateKey = domain.ErrDuplicateKey
)

// Typed errors, matchable with errors.As.
type (
	// SchemaError reports an invalid model declaration. Fatal at bind time.
	SchemaError = domain.SchemaError
	// MissingIdentityError reports a save without a client-managed identity.
	MissingIdentityError = domain.MissingIdentityError
	// MissingRequiredFieldError reports a stored document lacking a
	// required field.
	MissingRequiredFieldError = domain.MissingRequiredFieldError
	// UnknownDiscriminatorError reports a stored document of a variant the
	// collection was not declared to know about.
	UnknownDiscriminatorError = domain.UnknownDiscriminatorError
	// InvalidExpressionError reports a query expression that cannot be
	// compiled against the collection's schema.
	InvalidExpressionError = domain.InvalidExpressionError
	// UnresolvedFieldError reports a model field name used as a query key
	// in place of a field reference or storage alias.
	UnresolvedFieldError = domain.UnresolvedFieldError
)
