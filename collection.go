package docdex

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"weak"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/document"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/identity"
	"github.com/kailas-cloud/docdex/internal/logger"
	docrepo "github.com/kailas-cloud/docdex/internal/repository/document"
	"github.com/kailas-cloud/docdex/internal/schema"
)

// Collection is a typed facade over one named document collection. T is the
// model struct, or an interface over the declared variants for union
// bindings. All methods are safe for concurrent use.
type Collection[T any] struct {
	client *Client
	name   string
	sc     *schema.Schema // nil for union bindings
	union  *schema.Union  // nil for plain bindings
	gen    identity.Generator
	comp   compiler
	fields map[string]Field
	log    *zap.Logger

	// Store keys of live detached instances, indexed by weak pointer so a
	// collected instance releases its entry.
	mu       sync.Mutex
	detached map[weak.Pointer[T]]string
}

// Bind attaches a model type to the named collection. Binding is cheap and
// idempotent; the schema is parsed once per type and shared.
func Bind[T any](c *Client, name string, opts ...CollectionOption) (*Collection[T], error) {
	cfg := collectionConfig{
		gen:          uuid.NewString,
		injectFields: c.injectFields,
		variantKey:   c.discriminatorKey,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	col := &Collection[T]{
		client:   c,
		name:     name,
		gen:      identity.Generator(cfg.gen),
		log:      c.log.With(zap.String("collection", name)),
		detached: map[weak.Pointer[T]]string{},
	}

	if len(cfg.variants) > 0 {
		if err := col.bindUnion(cfg); err != nil {
			return nil, err
		}
	} else if err := col.bindPlain(cfg); err != nil {
		return nil, err
	}

	if cfg.injectFields {
		col.fields = map[string]Field{}
		for _, s := range col.comp.schemas() {
			for _, f := range s.Fields {
				if _, taken := col.fields[f.Name]; !taken {
					col.fields[f.Name] = Field{owner: s, alias: f.Alias}
				}
			}
		}
	}
	return col, nil
}

func (c *Collection[T]) bindPlain(cfg collectionConfig) error {
	t := reflect.TypeFor[T]()
	strat := cfg.strategy
	if !cfg.strategySet {
		strat = schema.DefaultStrategy(t)
	}
	sc, err := c.client.reg.Register(t, strat)
	if err != nil {
		return err
	}
	c.sc = sc
	c.comp = compiler{sc: sc}
	return nil
}

func (c *Collection[T]) bindUnion(cfg collectionConfig) error {
	iface := reflect.TypeFor[T]()
	if iface.Kind() != reflect.Interface {
		return &domain.SchemaError{
			Model:  iface.String(),
			Reason: "union binding requires an interface type parameter",
		}
	}

	u := schema.NewUnion(cfg.variantKey)
	for _, v := range cfg.variants {
		t := v.typ
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if !v.typ.Implements(iface) && !reflect.PointerTo(t).Implements(iface) {
			return &domain.SchemaError{
				Model:  t.String(),
				Reason: fmt.Sprintf("variant does not implement %s", iface),
			}
		}
		strat := cfg.strategy
		if !cfg.strategySet {
			strat = schema.DefaultStrategy(t)
		}
		sc, err := c.client.reg.Register(t, strat)
		if err != nil {
			return err
		}
		if err := u.Add(v.tag, sc); err != nil {
			return err
		}
	}
	c.union = u
	c.comp = compiler{union: u}
	return nil
}

// Fields returns the injected field references keyed by Go field name, or
// nil when injection is off. For unions the maps of all members are merged;
// on a name clash the first declared variant wins.
func (c *Collection[T]) Fields() map[string]Field {
	return c.fields
}

// F returns the injected reference for a Go field name. The zero Field is
// returned for unknown names or when injection is off; using it in a query
// fails compilation.
func (c *Collection[T]) F(name string) Field {
	return c.fields[name]
}

// Save writes the instance using identity-dependent semantics: strategies
// that can address an existing document upsert it, the rest insert a new
// one. The returned instance carries any identity assigned along the way.
func (c *Collection[T]) Save(ctx context.Context, item *T) (*T, error) {
	sc, cv, commit, err := c.modelOf(item)
	if err != nil {
		return nil, err
	}

	_, hadID := identity.Of(sc, cv)
	dec, err := identity.Prepare(sc, cv, c.gen)
	if err != nil {
		return nil, err
	}
	doc, err := c.encode(sc, cv)
	if err != nil {
		return nil, err
	}

	embed := embedNative(sc)
	switch sc.Strategy {
	case schema.StrategyDetached:
		if id, tracked := c.trackedID(item); tracked {
			if err := c.client.docs.Replace(ctx, c.name, id, doc, embed); err != nil {
				return nil, err
			}
			break
		}
		id, err := c.client.docs.Insert(ctx, c.name, "", doc, embed)
		if err != nil {
			return nil, err
		}
		c.track(item, id)

	case schema.StrategyNone, schema.StrategyGenerated:
		// Always a new document. Generated carries its fresh id, none lets
		// the store allocate one.
		if _, err := c.client.docs.Insert(ctx, c.name, dec.ID, doc, embed); err != nil {
			return nil, err
		}

	case schema.StrategyEmbedded:
		if hadID {
			if err := c.client.docs.Replace(ctx, c.name, dec.ID, doc, embed); err != nil {
				return nil, err
			}
			break
		}
		if _, err := c.client.docs.Insert(ctx, c.name, dec.ID, doc, embed); err != nil {
			return nil, err
		}

	case schema.StrategyClientManaged:
		if err := c.client.docs.Replace(ctx, c.name, dec.ID, doc, embed); err != nil {
			return nil, err
		}
	}

	commit()
	c.opLog(ctx).Debug("saved", zap.String("model", sc.Name), zap.Stringer("strategy", sc.Strategy))
	return item, nil
}

// Insert writes the instance as a new document. Identity-carrying strategies
// enforce uniqueness, so an existing identity surfaces as ErrDuplicateKey.
func (c *Collection[T]) Insert(ctx context.Context, item *T) (*T, error) {
	sc, cv, commit, err := c.modelOf(item)
	if err != nil {
		return nil, err
	}
	dec, err := identity.Prepare(sc, cv, c.gen)
	if err != nil {
		return nil, err
	}
	doc, err := c.encode(sc, cv)
	if err != nil {
		return nil, err
	}

	id, err := c.client.docs.Insert(ctx, c.name, dec.ID, doc, embedNative(sc))
	if err != nil {
		return nil, err
	}
	if sc.Strategy == schema.StrategyDetached {
		c.track(item, id)
	}
	commit()
	c.opLog(ctx).Debug("inserted", zap.String("model", sc.Name), zap.String("id", id))
	return item, nil
}

// Update overwrites the document the instance identifies. ErrNotFound when
// no such document exists.
func (c *Collection[T]) Update(ctx context.Context, item *T) (*T, error) {
	sc, cv, commit, err := c.modelOf(item)
	if err != nil {
		return nil, err
	}
	id, err := c.instanceID(sc, cv, item)
	if err != nil {
		return nil, err
	}
	doc, err := c.encode(sc, cv)
	if err != nil {
		return nil, err
	}
	if err := c.client.docs.Update(ctx, c.name, id, doc, embedNative(sc)); err != nil {
		return nil, err
	}
	commit()
	c.opLog(ctx).Debug("updated", zap.String("model", sc.Name), zap.String("id", id))
	return item, nil
}

// Find returns all documents matching the query. The query is nil for all
// documents, an Expr built from field references, or an M literal.
func (c *Collection[T]) Find(ctx context.Context, query any, opts ...FindOption) ([]*T, error) {
	filter, err := c.comp.compileQuery(query)
	if err != nil {
		return nil, err
	}
	fo, err := c.findOptions(opts)
	if err != nil {
		return nil, err
	}
	docs, err := c.client.docs.Find(ctx, c.name, filter, fo)
	if err != nil {
		return nil, err
	}
	out := make([]*T, len(docs))
	for i, doc := range docs {
		if out[i], err = c.decode(doc); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FindOne returns the first document matching the query, or ErrNotFound.
func (c *Collection[T]) FindOne(ctx context.Context, query any) (*T, error) {
	filter, err := c.comp.compileQuery(query)
	if err != nil {
		return nil, err
	}
	doc, err := c.client.docs.FindOne(ctx, c.name, filter)
	if err != nil {
		return nil, err
	}
	return c.decode(doc)
}

// UpdateOne applies an update document ($set, $unset, $inc, or a full
// replacement) to the first match and returns the post-image.
func (c *Collection[T]) UpdateOne(ctx context.Context, query, update any) (*T, error) {
	filter, err := c.comp.compileQuery(query)
	if err != nil {
		return nil, err
	}
	upd, err := c.compileUpdate(update)
	if err != nil {
		return nil, err
	}
	doc, err := c.client.docs.FindOneAndUpdate(ctx, c.name, filter, upd)
	if err != nil {
		return nil, err
	}
	return c.decode(doc)
}

// DeleteOne removes the first document matching the query, or ErrNotFound.
func (c *Collection[T]) DeleteOne(ctx context.Context, query any) error {
	filter, err := c.comp.compileQuery(query)
	if err != nil {
		return err
	}
	return c.client.docs.DeleteOne(ctx, c.name, filter)
}

// Count returns the number of documents matching the query.
func (c *Collection[T]) Count(ctx context.Context, query any) (int, error) {
	filter, err := c.comp.compileQuery(query)
	if err != nil {
		return 0, err
	}
	return c.client.docs.Count(ctx, c.name, filter)
}

// Modify applies an update document to the document the instance identifies
// and returns a fresh instance decoded from the post-image.
func (c *Collection[T]) Modify(ctx context.Context, item *T, update any) (*T, error) {
	sc, cv, _, err := c.modelOf(item)
	if err != nil {
		return nil, err
	}
	filter, err := c.identityFilter(sc, cv, item)
	if err != nil {
		return nil, err
	}
	upd, err := c.compileUpdate(update)
	if err != nil {
		return nil, err
	}
	doc, err := c.client.docs.FindOneAndUpdate(ctx, c.name, filter, upd)
	if err != nil {
		return nil, err
	}
	return c.decode(doc)
}

// Detach deletes the instance's document and clears its identity, leaving a
// free value no longer associated with the collection.
func (c *Collection[T]) Detach(ctx context.Context, item *T) (*T, error) {
	sc, cv, commit, err := c.modelOf(item)
	if err != nil {
		return nil, err
	}
	id, err := c.instanceID(sc, cv, item)
	if err != nil {
		return nil, err
	}
	if err := c.client.docs.Delete(ctx, c.name, id); err != nil {
		return nil, err
	}
	identity.Clear(sc, cv)
	if sc.Strategy == schema.StrategyDetached {
		c.forget(item)
	}
	commit()
	c.opLog(ctx).Debug("detached", zap.String("model", sc.Name), zap.String("id", id))
	return item, nil
}

// modelOf resolves the member schema and an addressable struct value for the
// instance. For union bindings over interface values held by value, commit
// writes identity mutations back into the interface.
func (c *Collection[T]) modelOf(item *T) (*schema.Schema, reflect.Value, func(), error) {
	if item == nil {
		return nil, reflect.Value{}, nil, fmt.Errorf("collection %s: nil instance", c.name)
	}
	if c.union == nil {
		return c.sc, reflect.ValueOf(item).Elem(), func() {}, nil
	}

	iv := reflect.ValueOf(item).Elem()
	ev := iv.Elem()
	if !ev.IsValid() {
		return nil, reflect.Value{}, nil, fmt.Errorf("collection %s: nil instance", c.name)
	}
	if ev.Kind() == reflect.Pointer {
		if ev.IsNil() {
			return nil, reflect.Value{}, nil, fmt.Errorf("collection %s: nil instance", c.name)
		}
		sc, err := c.memberSchema(ev.Elem().Type())
		if err != nil {
			return nil, reflect.Value{}, nil, err
		}
		return sc, ev.Elem(), func() {}, nil
	}

	sc, err := c.memberSchema(ev.Type())
	if err != nil {
		return nil, reflect.Value{}, nil, err
	}
	cv := reflect.New(ev.Type()).Elem()
	cv.Set(ev)
	return sc, cv, func() { iv.Set(cv) }, nil
}

func (c *Collection[T]) memberSchema(t reflect.Type) (*schema.Schema, error) {
	if _, ok := c.union.Tag(t); !ok {
		return nil, &domain.SchemaError{
			Model:  t.String(),
			Reason: fmt.Sprintf("type is not a declared variant of collection %s", c.name),
		}
	}
	sc, _ := c.client.reg.Lookup(t)
	return sc, nil
}

func (c *Collection[T]) encode(sc *schema.Schema, cv reflect.Value) (*document.Document, error) {
	if c.union == nil {
		return c.client.codec.Encode(sc, cv.Interface())
	}
	doc, _, err := c.client.codec.EncodeUnion(c.union, cv.Interface())
	return doc, err
}

func (c *Collection[T]) decode(doc *document.Document) (*T, error) {
	var (
		v   any
		sc  *schema.Schema
		err error
	)
	if c.union != nil {
		v, sc, err = c.client.codec.DecodeUnion(c.union, doc)
	} else {
		sc = c.sc
		v, err = c.client.codec.Decode(sc, doc)
	}
	if err != nil {
		return nil, err
	}

	tv, ok := v.(T)
	if !ok {
		// Variants implementing the union interface on pointer receivers.
		pv := reflect.New(reflect.TypeOf(v))
		pv.Elem().Set(reflect.ValueOf(v))
		if tv, ok = pv.Interface().(T); !ok {
			return nil, fmt.Errorf("collection %s: decoded %T does not satisfy %s",
				c.name, v, reflect.TypeFor[T]())
		}
	}
	out := new(T)
	*out = tv

	if sc.Strategy == schema.StrategyDetached {
		if raw, present := doc.Get(docrepo.NativeIDField); present {
			if id, isStr := raw.(string); isStr {
				c.track(out, id)
			}
		}
	}
	return out, nil
}

// instanceID resolves the store key the instance addresses. Strategies
// without one cannot target individual documents.
func (c *Collection[T]) instanceID(sc *schema.Schema, cv reflect.Value, item *T) (string, error) {
	switch sc.Strategy {
	case schema.StrategyNone:
		return "", fmt.Errorf("collection %s: identity strategy %s cannot address a document", c.name, sc.Strategy)
	case schema.StrategyDetached:
		id, tracked := c.trackedID(item)
		if !tracked {
			return "", &domain.MissingIdentityError{Model: sc.Name, Field: docrepo.NativeIDField}
		}
		return id, nil
	default:
		f, _ := sc.IdentityField()
		id, set := identity.Of(sc, cv)
		if !set {
			return "", &domain.MissingIdentityError{Model: sc.Name, Field: f.Name}
		}
		return id, nil
	}
}

// identityFilter builds the point filter matching the instance's document.
func (c *Collection[T]) identityFilter(sc *schema.Schema, cv reflect.Value, item *T) (map[string]any, error) {
	if sc.Strategy == schema.StrategyDetached {
		id, err := c.instanceID(sc, cv, item)
		if err != nil {
			return nil, err
		}
		return map[string]any{docrepo.NativeIDField: id}, nil
	}
	if sc.Strategy == schema.StrategyNone {
		return nil, fmt.Errorf("collection %s: identity strategy %s cannot address a document", c.name, sc.Strategy)
	}
	f, _ := sc.IdentityField()
	fv := cv.FieldByIndex(f.Index)
	if fv.IsZero() {
		return nil, &domain.MissingIdentityError{Model: sc.Name, Field: f.Name}
	}
	return map[string]any{f.Alias: fv.Interface()}, nil
}

// compileUpdate accepts operator documents, replacement literals, or a model
// instance used as the full replacement.
func (c *Collection[T]) compileUpdate(update any) (map[string]any, error) {
	switch update.(type) {
	case M, map[string]any:
		return c.comp.compileQuery(update)
	}

	rv := reflect.ValueOf(update)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, &domain.InvalidExpressionError{
			Reason: fmt.Sprintf("unsupported update type %T", update),
		}
	}
	var (
		doc *document.Document
		sc  *schema.Schema
		err error
	)
	if c.union != nil {
		doc, sc, err = c.client.codec.EncodeUnion(c.union, rv.Interface())
	} else {
		sc = c.sc
		doc, err = c.client.codec.Encode(sc, rv.Interface())
	}
	if err != nil {
		return nil, err
	}
	// An unset identity in a replacement instance must not clobber the
	// stored one.
	if f, declared := sc.IdentityField(); declared && rv.FieldByIndex(f.Index).IsZero() {
		doc.Delete(f.Alias)
	}
	out := make(map[string]any, doc.Len())
	doc.Range(func(k string, v any) bool {
		out[k] = v
		return true
	})
	return out, nil
}

// embedNative reports whether the store key must be mirrored into the body
// under "_id". Schemas already persisting a field at that alias skip it.
func embedNative(sc *schema.Schema) bool {
	_, ok := sc.FieldByAlias(schema.NativeIdentityAlias)
	return !ok
}

// opLog prefers a context-scoped logger over the collection's own.
func (c *Collection[T]) opLog(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, c.log)
}

func (c *Collection[T]) track(item *T, id string) {
	wp := weak.Make(item)
	c.mu.Lock()
	c.detached[wp] = id
	c.mu.Unlock()
	runtime.AddCleanup(item, func(p weak.Pointer[T]) {
		c.mu.Lock()
		delete(c.detached, p)
		c.mu.Unlock()
	}, wp)
}

func (c *Collection[T]) trackedID(item *T) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.detached[weak.Make(item)]
	return id, ok
}

func (c *Collection[T]) forget(item *T) {
	c.mu.Lock()
	delete(c.detached, weak.Make(item))
	c.mu.Unlock()
}

// FindOption orders and windows a Find.
type FindOption func(*findConfig)

type sortSpec struct {
	key  any
	desc bool
}

type findConfig struct {
	sort  []sortSpec
	skip  int
	limit int
}

// SortAsc orders results ascending by a Field reference or storage alias.
func SortAsc(field any) FindOption {
	return func(f *findConfig) { f.sort = append(f.sort, sortSpec{key: field}) }
}

// SortDesc orders results descending by a Field reference or storage alias.
func SortDesc(field any) FindOption {
	return func(f *findConfig) { f.sort = append(f.sort, sortSpec{key: field, desc: true}) }
}

// Skip drops the first n results after ordering.
func Skip(n int) FindOption {
	return func(f *findConfig) { f.skip = n }
}

// Limit caps the number of results after ordering and skipping.
func Limit(n int) FindOption {
	return func(f *findConfig) { f.limit = n }
}

func (c *Collection[T]) findOptions(opts []FindOption) (docrepo.FindOptions, error) {
	var fc findConfig
	for _, opt := range opts {
		opt(&fc)
	}
	out := docrepo.FindOptions{Skip: fc.skip, Limit: fc.limit}
	for _, s := range fc.sort {
		alias, err := c.comp.resolveKey(s.key, true)
		if err != nil {
			return docrepo.FindOptions{}, err
		}
		out.Sort = append(out.Sort, docrepo.SortField{Alias: alias, Desc: s.desc})
	}
	return out, nil
}
