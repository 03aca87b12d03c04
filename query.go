package docdex

import (
	"fmt"
	"reflect"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/schema"
)

const (
	opEq     = "$eq"
	opNe     = "$ne"
	opGt     = "$gt"
	opGte    = "$gte"
	opLt     = "$lt"
	opLte    = "$lte"
	opIn     = "$in"
	opNin    = "$nin"
	opExists = "$exists"
)

// M is a filter or update literal. Keys are either Field references, storage
// aliases, or operator names starting with '$'. A Go field name whose storage
// alias differs is rejected at compile time so that a renamed field cannot
// silently match nothing.
type M map[any]any

// Expr is a compiled-later query expression built from Field references.
type Expr interface {
	node()
}

type compareExpr struct {
	field Field
	op    string
	value any
}

type regexExpr struct {
	field   Field
	pattern string
}

type logicalExpr struct {
	op       string
	children []Expr
}

type notExpr struct {
	child Expr
}

func (compareExpr) node() {}
func (regexExpr) node()   {}
func (logicalExpr) node() {}
func (notExpr) node()     {}

// And matches documents satisfying every child expression.
func And(children ...Expr) Expr { return logicalExpr{op: "$and", children: children} }

// Or matches documents satisfying at least one child expression.
func Or(children ...Expr) Expr { return logicalExpr{op: "$or", children: children} }

// Not inverts an expression. Comparisons invert to their dual operator,
// logical groups compile to $nor.
func Not(child Expr) Expr { return notExpr{child: child} }

// compiler turns expressions and M literals into plain filter documents
// scoped to one collection's schema, or to all members of its union.
type compiler struct {
	sc    *schema.Schema
	union *schema.Union
}

// compileQuery accepts nil (match all), Expr, M, or map[string]any.
func (c compiler) compileQuery(q any) (map[string]any, error) {
	switch v := q.(type) {
	case nil:
		return nil, nil
	case Expr:
		return c.compileExpr(v)
	case M:
		return c.compileM(v, true)
	case map[string]any:
		m := make(M, len(v))
		for k, val := range v {
			m[k] = val
		}
		return c.compileM(m, true)
	default:
		return nil, &domain.InvalidExpressionError{
			Reason: fmt.Sprintf("unsupported query type %T", q),
		}
	}
}

func (c compiler) compileExpr(e Expr) (map[string]any, error) {
	switch v := e.(type) {
	case compareExpr:
		alias, err := c.fieldAlias(v.field)
		if err != nil {
			return nil, err
		}
		if v.op == opEq {
			return map[string]any{alias: v.value}, nil
		}
		return map[string]any{alias: map[string]any{v.op: v.value}}, nil

	case regexExpr:
		alias, err := c.fieldAlias(v.field)
		if err != nil {
			return nil, err
		}
		return map[string]any{alias: map[string]any{"$regex": v.pattern}}, nil

	case logicalExpr:
		return c.compileLogical(v)

	case notExpr:
		return c.compileNot(v.child)

	default:
		return nil, &domain.InvalidExpressionError{
			Reason: fmt.Sprintf("unknown expression type %T", e),
		}
	}
}

func (c compiler) compileLogical(e logicalExpr) (map[string]any, error) {
	if len(e.children) == 0 {
		return nil, &domain.InvalidExpressionError{Reason: "empty " + e.op + " expression"}
	}
	docs := make([]any, 0, len(e.children))
	for _, child := range e.children {
		d, err := c.compileExpr(child)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if len(docs) == 1 {
		return docs[0].(map[string]any), nil
	}
	if e.op != "$and" {
		return map[string]any{e.op: docs}, nil
	}

	// Conjunctions over distinct keys flatten into one document. On a key
	// collision the children stay separate under an explicit $and, so
	// And(f.Gt(1), f.Lt(5)) keeps both bounds.
	merged := make(map[string]any, len(docs))
	for _, d := range docs {
		for k, v := range d.(map[string]any) {
			if _, dup := merged[k]; dup {
				return map[string]any{"$and": docs}, nil
			}
			merged[k] = v
		}
	}
	return merged, nil
}

func (c compiler) compileNot(child Expr) (map[string]any, error) {
	switch v := child.(type) {
	case compareExpr:
		alias, err := c.fieldAlias(v.field)
		if err != nil {
			return nil, err
		}
		switch v.op {
		case opEq:
			return map[string]any{alias: map[string]any{opNe: v.value}}, nil
		case opNe:
			return map[string]any{alias: v.value}, nil
		case opExists:
			present, _ := v.value.(bool)
			return map[string]any{alias: map[string]any{opExists: !present}}, nil
		default:
			return map[string]any{alias: map[string]any{"$not": map[string]any{v.op: v.value}}}, nil
		}

	case regexExpr:
		alias, err := c.fieldAlias(v.field)
		if err != nil {
			return nil, err
		}
		return map[string]any{alias: map[string]any{"$not": map[string]any{"$regex": v.pattern}}}, nil

	case notExpr:
		return c.compileExpr(v.child)

	case logicalExpr:
		if v.op == "$or" {
			docs := make([]any, 0, len(v.children))
			for _, ch := range v.children {
				d, err := c.compileExpr(ch)
				if err != nil {
					return nil, err
				}
				docs = append(docs, d)
			}
			return map[string]any{"$nor": docs}, nil
		}
		d, err := c.compileLogical(v)
		if err != nil {
			return nil, err
		}
		return map[string]any{"$nor": []any{d}}, nil

	default:
		return nil, &domain.InvalidExpressionError{
			Reason: fmt.Sprintf("unknown expression type %T", child),
		}
	}
}

// compileM resolves map keys. top marks positions where keys name document
// fields of the bound model, which is where alias checking applies. Nested
// subdocument keys pass through untouched.
func (c compiler) compileM(m M, top bool) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		key, err := c.resolveKey(k, top)
		if err != nil {
			return nil, err
		}
		cv, err := c.compileValue(key, v)
		if err != nil {
			return nil, err
		}
		out[key] = cv
	}
	return out, nil
}

func (c compiler) resolveKey(k any, top bool) (string, error) {
	switch key := k.(type) {
	case Field:
		return c.fieldAlias(key)
	case string:
		if !top || len(key) == 0 || key[0] == '$' {
			return key, nil
		}
		return c.checkAlias(key)
	default:
		return "", &domain.InvalidExpressionError{
			Reason: fmt.Sprintf("unsupported key type %T", k),
		}
	}
}

func (c compiler) compileValue(key string, v any) (any, error) {
	switch key {
	case "$and", "$or", "$nor":
		list, err := asList(v)
		if err != nil {
			return nil, err
		}
		docs := make([]any, 0, len(list))
		for _, item := range list {
			sub, err := c.compileQuery(item)
			if err != nil {
				return nil, err
			}
			docs = append(docs, sub)
		}
		return docs, nil

	case "$set", "$inc":
		return c.compileOperand(v, true)

	case "$unset":
		return c.compileOperand(v, true)

	default:
		return c.compileOperand(v, false)
	}
}

// compileOperand rewrites Field keys inside nested maps and leaves
// everything else alone.
func (c compiler) compileOperand(v any, top bool) (any, error) {
	switch val := v.(type) {
	case M:
		return c.compileM(val, top)
	case map[string]any:
		m := make(M, len(val))
		for k, item := range val {
			m[k] = item
		}
		return c.compileM(m, top)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			cv, err := c.compileOperand(item, false)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	default:
		return v, nil
	}
}

func (c compiler) fieldAlias(f Field) (string, error) {
	if f.owner == nil {
		return "", &domain.InvalidExpressionError{Reason: "unbound field reference"}
	}
	if c.sc != nil && f.owner == c.sc {
		return f.alias, nil
	}
	if c.union != nil && c.union.Contains(f.owner) {
		return f.alias, nil
	}
	return "", &domain.InvalidExpressionError{
		Reason: fmt.Sprintf("field %q belongs to model %s, not to this collection", f.alias, f.owner.Name),
	}
}

// checkAlias accepts storage aliases and rejects Go field names whose alias
// differs. Keys unknown to every schema pass through so filters can still
// reach keys outside the model.
func (c compiler) checkAlias(key string) (string, error) {
	for _, s := range c.schemas() {
		if _, ok := s.FieldByAlias(key); ok {
			return key, nil
		}
	}
	for _, s := range c.schemas() {
		if f, ok := s.FieldByName(key); ok && f.Alias != key {
			return "", &domain.UnresolvedFieldError{Key: key, Alias: f.Alias}
		}
	}
	return key, nil
}

func (c compiler) schemas() []*schema.Schema {
	if c.sc != nil {
		return []*schema.Schema{c.sc}
	}
	return c.union.Members()
}

func asList(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, &domain.InvalidExpressionError{
			Reason: fmt.Sprintf("logical operator expects a list, got %T", v),
		}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
