package docdex

import "github.com/kailas-cloud/docdex/internal/schema"

// Field is a reference to a model field, handed out by a collection when
// field injection is enabled. Being a small comparable value it works both
// as an expression builder and as a key in an M literal.
//
// A zero Field is unbound and fails compilation with InvalidExpressionError.
type Field struct {
	owner *schema.Schema
	alias string
}

// Alias returns the storage key this reference compiles to.
func (f Field) Alias() string { return f.alias }

// Path derives a reference to a key inside a subdocument or array held by
// this field, using Mongo-style dotted paths.
func (f Field) Path(sub string) Field {
	return Field{owner: f.owner, alias: f.alias + "." + sub}
}

// Eq matches documents whose field equals v.
func (f Field) Eq(v any) Expr { return compareExpr{field: f, op: opEq, value: v} }

// Ne matches documents whose field differs from v.
func (f Field) Ne(v any) Expr { return compareExpr{field: f, op: opNe, value: v} }

// Gt matches documents whose field is greater than v.
func (f Field) Gt(v any) Expr { return compareExpr{field: f, op: opGt, value: v} }

// Gte matches documents whose field is greater than or equal to v.
func (f Field) Gte(v any) Expr { return compareExpr{field: f, op: opGte, value: v} }

// Lt matches documents whose field is less than v.
func (f Field) Lt(v any) Expr { return compareExpr{field: f, op: opLt, value: v} }

// Lte matches documents whose field is less than or equal to v.
func (f Field) Lte(v any) Expr { return compareExpr{field: f, op: opLte, value: v} }

// In matches documents whose field equals any element of vs.
func (f Field) In(vs ...any) Expr { return compareExpr{field: f, op: opIn, value: vs} }

// Nin matches documents whose field equals no element of vs.
func (f Field) Nin(vs ...any) Expr { return compareExpr{field: f, op: opNin, value: vs} }

// Exists matches documents by key presence regardless of value.
func (f Field) Exists(present bool) Expr {
	return compareExpr{field: f, op: opExists, value: present}
}

// Regex matches string fields against an RE2 pattern.
func (f Field) Regex(pattern string) Expr {
	return regexExpr{field: f, pattern: pattern}
}
