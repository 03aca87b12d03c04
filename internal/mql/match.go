// Package mql evaluates compiled filter and update documents against stored
// documents. It is the drivers' query engine: the dialect it accepts is
// exactly what the query compiler emits (comparison, logical and regex
// operators), so compiled filters behave the same on every driver.
package mql

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kailas-cloud/docdex/internal/document"
)

// Match reports whether doc satisfies the filter document.
func Match(filter map[string]any, doc *document.Document) (bool, error) {
	for key, cond := range filter {
		ok, err := matchEntry(key, cond, doc)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchEntry(key string, cond any, doc *document.Document) (bool, error) {
	switch key {
	case "$and":
		children, err := childFilters(key, cond)
		if err != nil {
			return false, err
		}
		for _, ch := range children {
			ok, err := Match(ch, doc)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case "$or":
		children, err := childFilters(key, cond)
		if err != nil {
			return false, err
		}
		for _, ch := range children {
			ok, err := Match(ch, doc)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case "$nor":
		children, err := childFilters(key, cond)
		if err != nil {
			return false, err
		}
		for _, ch := range children {
			ok, err := Match(ch, doc)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil
	}
	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("mql: unknown top-level operator %q", key)
	}

	val, present := Lookup(doc, key)
	return matchValue(val, present, cond)
}

// matchValue applies a field condition: either an operator document or a
// direct equality comparison against the literal.
func matchValue(val any, present bool, cond any) (bool, error) {
	ops, ok := operatorDoc(cond)
	if !ok {
		return present && equal(val, cond), nil
	}

	for op, arg := range ops {
		ok, err := applyOperator(op, arg, val, present)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func applyOperator(op string, arg, val any, present bool) (bool, error) {
	switch op {
	case "$eq":
		return present && equal(val, arg), nil
	case "$ne":
		return !present || !equal(val, arg), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		c, comparable := compare(val, arg)
		if !comparable {
			return false, nil
		}
		switch op {
		case "$gt":
			return c > 0, nil
		case "$gte":
			return c >= 0, nil
		case "$lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case "$in":
		arr, ok := arg.([]any)
		if !ok {
			return false, fmt.Errorf("mql: $in requires an array")
		}
		for _, item := range arr {
			if present && equal(val, item) {
				return true, nil
			}
		}
		return false, nil
	case "$nin":
		ok, err := applyOperator("$in", arg, val, present)
		return !ok, err
	case "$exists":
		want, _ := arg.(bool)
		return present == want, nil
	case "$regex":
		if !present {
			return false, nil
		}
		s, ok := normalize(val).(string)
		if !ok {
			return false, nil
		}
		pattern, ok := arg.(string)
		if !ok {
			return false, fmt.Errorf("mql: $regex requires a string pattern")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("mql: bad pattern %q: %w", pattern, err)
		}
		return re.MatchString(s), nil
	case "$options":
		// Consumed together with $regex; (?i) style flags are folded into
		// the pattern by the compiler.
		return true, nil
	case "$not":
		inner, ok := operatorDoc(arg)
		if !ok {
			return false, fmt.Errorf("mql: $not requires an operator document")
		}
		for iop, iarg := range inner {
			matched, err := applyOperator(iop, iarg, val, present)
			if err != nil {
				return false, err
			}
			if matched {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("mql: unknown operator %q", op)
	}
}

// Lookup resolves a possibly dotted storage path against a document.
func Lookup(doc *document.Document, path string) (any, bool) {
	cur := any(doc)
	for part := range strings.SplitSeq(path, ".") {
		switch t := cur.(type) {
		case *document.Document:
			v, ok := t.Get(part)
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]any:
			v, ok := t[part]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

// operatorDoc reports whether cond is a document of $-operators.
func operatorDoc(cond any) (map[string]any, bool) {
	var m map[string]any
	switch t := cond.(type) {
	case map[string]any:
		m = t
	case *document.Document:
		m = map[string]any{}
		t.Range(func(k string, v any) bool {
			m[k] = v
			return true
		})
	default:
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func childFilters(op string, cond any) ([]map[string]any, error) {
	arr, ok := cond.([]any)
	if !ok {
		if typed, tok := cond.([]map[string]any); tok {
			return typed, nil
		}
		return nil, fmt.Errorf("mql: %s requires an array of filters", op)
	}
	out := make([]map[string]any, len(arr))
	for i, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("mql: %s element %d is not a filter document", op, i)
		}
		out[i] = m
	}
	return out, nil
}

// equal compares two values after normalization, so the same filter matches
// whether a document came straight from the codec or through a JSON round
// trip.
func equal(a, b any) bool {
	return deepEqual(normalize(a), normalize(b))
}

func deepEqual(a, b any) bool {
	switch at := a.(type) {
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !deepEqual(at[i], bt[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, av := range at {
			bv, ok := bt[k]
			if !ok || !deepEqual(av, bv) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// compare orders two scalars. Numbers order numerically, strings
// lexicographically; anything else is not comparable.
func compare(a, b any) (int, bool) {
	na, nb := normalize(a), normalize(b)
	if fa, ok := na.(float64); ok {
		fb, ok := nb.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	if sa, ok := na.(string); ok {
		sb, ok := nb.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

// Compare is the sort ordering used by drivers: missing/nil first, then
// numbers, strings and booleans.
func Compare(a, b any) int {
	na, nb := normalize(a), normalize(b)
	if na == nil || nb == nil {
		switch {
		case na == nil && nb == nil:
			return 0
		case na == nil:
			return -1
		default:
			return 1
		}
	}
	if c, ok := compare(na, nb); ok {
		return c
	}
	if ba, ok := na.(bool); ok {
		if bb, ok := nb.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case bb:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprintf("%T", na), fmt.Sprintf("%T", nb))
}

// normalize maps driver- and codec-shaped values onto one comparison domain:
// nil, bool, float64, string, []any or map[string]any.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, string:
		return t
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case *document.Document:
		m := make(map[string]any, t.Len())
		t.Range(func(k string, v any) bool {
			m[k] = normalize(v)
			return true
		})
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, v := range t {
			m[k] = normalize(v)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = normalize(v)
		}
		return out
	default:
		// Arbitrary Go values (structs in filters) go through a JSON round
		// trip onto the comparison domain.
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return fmt.Sprint(v)
		}
		return normalize(out)
	}
}
