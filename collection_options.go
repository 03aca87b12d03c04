package docdex

import (
	"reflect"

	"github.com/kailas-cloud/docdex/internal/schema"
)

// IdentityStrategy selects how documents of a collection acquire and carry
// their identity. The strategy is fixed per model type; rebinding the same
// type under a different strategy is a SchemaError.
type IdentityStrategy = schema.Strategy

const (
	// IdentityNone stores documents without reflecting the store key on the
	// model. Instances cannot be addressed individually after a save.
	IdentityNone = schema.StrategyNone
	// IdentityDetached tracks the store key per live instance outside the
	// model, so value types stay free of identity fields.
	IdentityDetached = schema.StrategyDetached
	// IdentityEmbedded keeps the store key in a model field persisted under
	// the "_id" alias, allocating one on first save.
	IdentityEmbedded = schema.StrategyEmbedded
	// IdentityGenerated overwrites the identity field with a fresh value on
	// every save and enforces uniqueness on insert.
	IdentityGenerated = schema.StrategyGenerated
	// IdentityClientManaged requires the caller to set the identity field;
	// saving without one is a MissingIdentityError.
	IdentityClientManaged = schema.StrategyClientManaged
)

type variantDecl struct {
	tag string
	typ reflect.Type
}

type collectionConfig struct {
	strategy     IdentityStrategy
	strategySet  bool
	gen          func() string
	injectFields bool
	variantKey   string
	variants     []variantDecl
}

// CollectionOption configures one collection binding.
type CollectionOption func(*collectionConfig)

// WithIdentity pins the collection's identity strategy. Without it the
// strategy is inferred from the model's tags.
func WithIdentity(s IdentityStrategy) CollectionOption {
	return func(c *collectionConfig) {
		c.strategy = s
		c.strategySet = true
	}
}

// WithGenerator overrides identity generation for the embedded and generated
// strategies. The default produces UUIDv4 strings.
func WithGenerator(gen func() string) CollectionOption {
	return func(c *collectionConfig) { c.gen = gen }
}

// WithInjectedFields enables field references for this collection even when
// the client leaves injection off.
func WithInjectedFields() CollectionOption {
	return func(c *collectionConfig) { c.injectFields = true }
}

// WithVariantKey overrides the discriminator key for this collection's union.
func WithVariantKey(key string) CollectionOption {
	return func(c *collectionConfig) { c.variantKey = key }
}

// Variant declares C as a member of a union collection, stored under the
// given discriminator value. A binding with at least one Variant is a union
// binding and its type parameter must be an interface implemented by every
// declared member.
func Variant[C any](tag string) CollectionOption {
	return func(c *collectionConfig) {
		c.variants = append(c.variants, variantDecl{tag: tag, typ: reflect.TypeFor[C]()})
	}
}
