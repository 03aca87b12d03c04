package mql

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/docdex/internal/document"
)

// Apply produces a new document by applying an update document to doc.
// Updates built from $-operators ($set, $unset, $inc) modify fields in
// place; an update without operators replaces the whole body, preserving
// the native identity field.
func Apply(update map[string]any, doc *document.Document) (*document.Document, error) {
	if len(update) == 0 {
		return doc.Clone(), nil
	}

	operators := false
	for k := range update {
		if strings.HasPrefix(k, "$") {
			operators = true
			break
		}
	}

	if !operators {
		out := document.New()
		if id, ok := doc.Get("_id"); ok {
			out.Set("_id", id)
		}
		for k, v := range update {
			out.Set(k, v)
		}
		return out, nil
	}

	out := doc.Clone()
	for op, arg := range update {
		fields, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("mql: %s requires a field document", op)
		}
		switch op {
		case "$set":
			for path, v := range fields {
				if err := setPath(out, path, v); err != nil {
					return nil, err
				}
			}
		case "$unset":
			for path := range fields {
				unsetPath(out, path)
			}
		case "$inc":
			for path, v := range fields {
				if err := incPath(out, path, v); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("mql: unknown update operator %q", op)
		}
	}
	return out, nil
}

func setPath(doc *document.Document, path string, v any) error {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur.Get(part)
		if !ok {
			nested := document.New()
			cur.Set(part, nested)
			cur = nested
			continue
		}
		nested, ok := next.(*document.Document)
		if !ok {
			return fmt.Errorf("mql: path %q traverses a non-object field %q", path, part)
		}
		cur = nested
	}
	cur.Set(parts[len(parts)-1], v)
	return nil
}

func unsetPath(doc *document.Document, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur.Get(part)
		if !ok {
			return
		}
		nested, ok := next.(*document.Document)
		if !ok {
			return
		}
		cur = nested
	}
	cur.Delete(parts[len(parts)-1])
}

func incPath(doc *document.Document, path string, v any) error {
	delta, ok := normalize(v).(float64)
	if !ok {
		return fmt.Errorf("mql: $inc value for %q is not numeric", path)
	}
	cur, present := Lookup(doc, path)
	base := 0.0
	if present {
		f, ok := normalize(cur).(float64)
		if !ok {
			return fmt.Errorf("mql: $inc target %q is not numeric", path)
		}
		base = f
	}
	return setPath(doc, path, base+delta)
}
