// Package document implements collection-level document storage on top of
// db.Store. It owns the key layout, native identity allocation and the
// scan-and-match query path; filter semantics come from internal/mql so all
// drivers behave identically.
package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/document"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/mql"
)

// NativeIDField is the storage alias of the store-assigned identity.
const NativeIDField = "_id"

// store is the consumer interface for documents (ISP).
type store interface {
	JSONSet(ctx context.Context, key string, data []byte, mode db.SetMode) error
	JSONGet(ctx context.Context, key string) ([]byte, error)
	JSONGetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// SortField is one ordering criterion for Find.
type SortField struct {
	Alias string
	Desc  bool
}

// FindOptions narrows and orders a Find.
type FindOptions struct {
	Sort  []SortField
	Skip  int
	Limit int
}

// Repo stores documents of named collections.
type Repo struct {
	store  store
	prefix string
	newID  func() string
}

// New creates a document repository. prefix namespaces all keys.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix, newID: uuid.NewString}
}

// WithIDAllocator overrides native identity allocation (tests).
func (r *Repo) WithIDAllocator(fn func() string) *Repo {
	r.newID = fn
	return r
}

// Insert stores a new document. An empty id lets the store allocate its
// native identity; embedNative controls whether that identity is written
// into the document body (it is not for app-level identity fields, which
// live under their own alias). A duplicate id surfaces as ErrDuplicateKey.
func (r *Repo) Insert(ctx context.Context, coll, id string, doc *document.Document, embedNative bool) (string, error) {
	if id == "" {
		id = r.newID()
	}
	if embedNative {
		doc = withNativeID(doc, id)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	if err := r.store.JSONSet(ctx, r.key(coll, id), data, db.SetNX); err != nil {
		if errors.Is(err, db.ErrKeyExists) {
			return "", fmt.Errorf("insert %s/%s: %w", coll, id, domain.ErrDuplicateKey)
		}
		return "", fmt.Errorf("insert %s/%s: %w", coll, id, err)
	}
	return id, nil
}

// Replace upserts a document at id.
func (r *Repo) Replace(ctx context.Context, coll, id string, doc *document.Document, embedNative bool) error {
	if embedNative {
		doc = withNativeID(doc, id)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := r.store.JSONSet(ctx, r.key(coll, id), data, db.SetAlways); err != nil {
		return fmt.Errorf("replace %s/%s: %w", coll, id, err)
	}
	return nil
}

// Update overwrites an existing document at id; ErrNotFound when absent.
func (r *Repo) Update(ctx context.Context, coll, id string, doc *document.Document, embedNative bool) error {
	if embedNative {
		doc = withNativeID(doc, id)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := r.store.JSONSet(ctx, r.key(coll, id), data, db.SetXX); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return fmt.Errorf("update %s/%s: %w", coll, id, domain.ErrNotFound)
		}
		return fmt.Errorf("update %s/%s: %w", coll, id, err)
	}
	return nil
}

// Get returns the document stored at id.
func (r *Repo) Get(ctx context.Context, coll, id string) (*document.Document, error) {
	raw, err := r.store.JSONGet(ctx, r.key(coll, id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("get %s/%s: %w", coll, id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get %s/%s: %w", coll, id, err)
	}
	doc, err := document.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", coll, id, err)
	}
	return doc, nil
}

// Delete removes the document stored at id; ErrNotFound when absent.
func (r *Repo) Delete(ctx context.Context, coll, id string) error {
	exists, err := r.store.Exists(ctx, r.key(coll, id))
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", coll, id, err)
	}
	if !exists {
		return fmt.Errorf("delete %s/%s: %w", coll, id, domain.ErrNotFound)
	}
	if err := r.store.Del(ctx, r.key(coll, id)); err != nil {
		return fmt.Errorf("delete %s/%s: %w", coll, id, err)
	}
	return nil
}

// match pairs a document with its store key.
type match struct {
	id  string
	doc *document.Document
}

// Find returns documents matching the filter, ordered, skipped and limited
// per opts. A nil filter matches everything.
func (r *Repo) Find(ctx context.Context, coll string, filter map[string]any, opts FindOptions) ([]*document.Document, error) {
	matches, err := r.scanMatch(ctx, coll, filter, 0)
	if err != nil {
		return nil, err
	}

	sortMatches(matches, opts.Sort)

	if opts.Skip > 0 {
		if opts.Skip >= len(matches) {
			matches = nil
		} else {
			matches = matches[opts.Skip:]
		}
	}
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}

	out := make([]*document.Document, len(matches))
	for i, m := range matches {
		out[i] = m.doc
	}
	return out, nil
}

// FindOne returns the first document matching the filter.
func (r *Repo) FindOne(ctx context.Context, coll string, filter map[string]any) (*document.Document, error) {
	matches, err := r.scanMatch(ctx, coll, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("find one %s: %w", coll, domain.ErrNotFound)
	}
	return matches[0].doc, nil
}

// FindOneAndUpdate applies the update document to the first match and
// returns the post-image.
func (r *Repo) FindOneAndUpdate(ctx context.Context, coll string, filter, update map[string]any) (*document.Document, error) {
	matches, err := r.scanMatch(ctx, coll, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("update one %s: %w", coll, domain.ErrNotFound)
	}

	m := matches[0]
	updated, err := mql.Apply(update, m.doc)
	if err != nil {
		return nil, fmt.Errorf("update one %s: %w", coll, err)
	}
	data, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("update one %s: marshal: %w", coll, err)
	}
	if err := r.store.JSONSet(ctx, r.key(coll, m.id), data, db.SetXX); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("update one %s: %w", coll, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("update one %s: %w", coll, err)
	}
	return updated, nil
}

// DeleteOne removes the first document matching the filter.
func (r *Repo) DeleteOne(ctx context.Context, coll string, filter map[string]any) error {
	matches, err := r.scanMatch(ctx, coll, filter, 1)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("delete one %s: %w", coll, domain.ErrNotFound)
	}
	if err := r.store.Del(ctx, r.key(coll, matches[0].id)); err != nil {
		return fmt.Errorf("delete one %s: %w", coll, err)
	}
	return nil
}

// Count returns the number of documents matching the filter.
func (r *Repo) Count(ctx context.Context, coll string, filter map[string]any) (int, error) {
	matches, err := r.scanMatch(ctx, coll, filter, 0)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

// scanMatch is the generic query path: scan the collection's keyspace, read
// documents in one pipelined round trip and evaluate the filter on each.
// A point lookup on the native identity skips the scan.
func (r *Repo) scanMatch(ctx context.Context, coll string, filter map[string]any, limit int) ([]match, error) {
	if id, ok := nativeIDEquality(filter); ok {
		doc, err := r.Get(ctx, coll, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []match{{id: id, doc: doc}}, nil
	}

	keys, err := r.store.Scan(ctx, r.key(coll, "*"))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", coll, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	raws, err := r.store.JSONGetMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", coll, err)
	}

	var matches []match
	for i, raw := range raws {
		if raw == nil {
			continue // deleted between scan and read
		}
		doc, err := document.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("find %s: key %s: %w", coll, keys[i], err)
		}
		if filter != nil {
			ok, err := mql.Match(filter, doc)
			if err != nil {
				return nil, fmt.Errorf("find %s: %w", coll, err)
			}
			if !ok {
				continue
			}
		}
		matches = append(matches, match{id: keys[i][len(r.key(coll, "")):], doc: doc})
		if limit > 0 && len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

func (r *Repo) key(coll, id string) string {
	return r.prefix + coll + ":" + id
}

// nativeIDEquality recognizes a pure {_id: <string>} point-lookup filter.
func nativeIDEquality(filter map[string]any) (string, bool) {
	if len(filter) != 1 {
		return "", false
	}
	v, ok := filter[NativeIDField]
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// withNativeID returns a copy of doc with the native identity as its first
// field.
func withNativeID(doc *document.Document, id string) *document.Document {
	if _, ok := doc.Get(NativeIDField); ok {
		return doc
	}
	out := document.New()
	out.Set(NativeIDField, id)
	doc.Range(func(k string, v any) bool {
		out.Set(k, v)
		return true
	})
	return out
}

func sortMatches(matches []match, sort []SortField) {
	if len(sort) == 0 {
		return
	}
	slices.SortStableFunc(matches, func(a, b match) int {
		for _, s := range sort {
			av, _ := mql.Lookup(a.doc, s.Alias)
			bv, _ := mql.Lookup(b.doc, s.Alias)
			c := mql.Compare(av, bv)
			if c != 0 {
				if s.Desc {
					return -c
				}
				return c
			}
		}
		return 0
	})
}
