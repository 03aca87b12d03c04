// Package codec converts model instances to storage documents and back,
// including discriminated-union dispatch for collections holding several
// variant types.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/kailas-cloud/docdex/internal/document"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/schema"
)

var timeType = reflect.TypeOf(time.Time{})

// Codec encodes and decodes documents against schemas held by a registry.
// Stateless apart from the registry reference; safe for concurrent use.
type Codec struct {
	reg *schema.Registry
}

// New creates a codec over the given registry.
func New(reg *schema.Registry) *Codec {
	return &Codec{reg: reg}
}

// Encode maps each field's current value to its storage alias, in schema
// field order.
func (c *Codec) Encode(s *schema.Schema, v any) (*document.Document, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("encode %s: nil instance", s.Name)
		}
		rv = rv.Elem()
	}
	if rv.Type() != s.Type {
		return nil, fmt.Errorf("encode %s: instance has type %s", s.Name, rv.Type())
	}

	doc := document.New()
	for _, f := range s.Fields {
		val, err := c.encodeValue(rv.FieldByIndex(f.Index))
		if err != nil {
			return nil, fmt.Errorf("encode %s.%s: %w", s.Name, f.Name, err)
		}
		doc.Set(f.Alias, val)
	}
	return doc, nil
}

// EncodeUnion encodes a union member and appends the discriminator value
// under the union's reserved key. The returned schema is the member schema
// the instance resolved to.
func (c *Codec) EncodeUnion(u *schema.Union, v any) (*document.Document, *schema.Schema, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil, fmt.Errorf("encode union: nil instance")
		}
		rv = rv.Elem()
	}

	tag, ok := u.Tag(rv.Type())
	if !ok {
		return nil, nil, &domain.SchemaError{
			Model:  rv.Type().String(),
			Reason: "type is not a declared variant of this collection",
		}
	}
	s, _ := u.ByTag(tag)
	doc, err := c.Encode(s, rv.Interface())
	if err != nil {
		return nil, nil, err
	}
	doc.Set(u.Key, tag)
	return doc, s, nil
}

// Decode constructs an instance of the schema's model type from a stored
// document. Document fields absent from the schema are ignored; a missing
// value for a required field is an error.
func (c *Codec) Decode(s *schema.Schema, doc *document.Document) (any, error) {
	rv := reflect.New(s.Type).Elem()
	for _, f := range s.Fields {
		raw, ok := doc.Get(f.Alias)
		if !ok || raw == nil {
			if f.Required && !ok {
				return nil, &domain.MissingRequiredFieldError{Model: s.Name, Field: f.Alias}
			}
			continue
		}
		if err := c.decodeValue(raw, rv.FieldByIndex(f.Index)); err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", s.Name, f.Name, err)
		}
	}
	return rv.Interface(), nil
}

// DecodeUnion reads the discriminator key, resolves the member schema and
// delegates to Decode. An unknown or absent discriminator is surfaced, never
// coerced to a default variant.
func (c *Codec) DecodeUnion(u *schema.Union, doc *document.Document) (any, *schema.Schema, error) {
	raw, ok := doc.Get(u.Key)
	if !ok {
		return nil, nil, &domain.UnknownDiscriminatorError{Key: u.Key, Value: ""}
	}
	tag, _ := raw.(string)
	s, ok := u.ByTag(tag)
	if !ok {
		return nil, nil, &domain.UnknownDiscriminatorError{Key: u.Key, Value: fmt.Sprint(raw)}
	}
	v, err := c.Decode(s, doc)
	if err != nil {
		return nil, nil, err
	}
	return v, s, nil
}

func (c *Codec) encodeValue(v reflect.Value) (any, error) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		return c.encodeValue(v.Elem())
	case reflect.Struct:
		if v.Type() == timeType {
			return v.Interface(), nil
		}
		sub, err := c.subSchema(v.Type())
		if err != nil {
			return nil, err
		}
		return c.Encode(sub, v.Interface())
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface(), nil // []byte, stored base64 like encoding/json
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range v.Len() {
			ev, err := c.encodeValue(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key type %s is not a string", v.Type().Key())
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			ev, err := c.encodeValue(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = ev
		}
		return out, nil
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v.Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported field kind %s", v.Kind())
	}
}

// subSchema resolves the schema for a nested struct type, reusing an
// existing binding whatever its strategy. Nested values only need the field
// layout, identity handling stays with the owning collection.
func (c *Codec) subSchema(t reflect.Type) (*schema.Schema, error) {
	if s, ok := c.reg.Lookup(t); ok {
		return s, nil
	}
	return c.reg.Register(t, schema.StrategyNone)
}

func (c *Codec) decodeValue(raw any, v reflect.Value) error {
	if v.Kind() == reflect.Pointer {
		p := reflect.New(v.Type().Elem())
		if err := c.decodeValue(raw, p.Elem()); err != nil {
			return err
		}
		v.Set(p)
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", raw)
		}
		v.SetString(s)
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", raw)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, ok := raw.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				v.SetInt(i)
				return nil
			}
		}
		f, err := toFloat(raw)
		if err != nil {
			return err
		}
		v.SetInt(int64(f))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f, err := toFloat(raw)
		if err != nil {
			return err
		}
		v.SetUint(uint64(f))
	case reflect.Float32, reflect.Float64:
		f, err := toFloat(raw)
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.Struct:
		return c.decodeStruct(raw, v)
	case reflect.Slice:
		return c.decodeSlice(raw, v)
	case reflect.Map:
		return c.decodeMap(raw, v)
	default:
		return fmt.Errorf("unsupported field kind %s", v.Kind())
	}
	return nil
}

func (c *Codec) decodeStruct(raw any, v reflect.Value) error {
	if v.Type() == timeType {
		switch t := raw.(type) {
		case time.Time:
			v.Set(reflect.ValueOf(t))
			return nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return fmt.Errorf("parse time: %w", err)
			}
			v.Set(reflect.ValueOf(parsed))
			return nil
		default:
			return fmt.Errorf("expected time, got %T", raw)
		}
	}

	sub, err := c.subSchema(v.Type())
	if err != nil {
		return err
	}
	doc, err := asDocument(raw)
	if err != nil {
		return err
	}
	decoded, err := c.Decode(sub, doc)
	if err != nil {
		return err
	}
	v.Set(reflect.ValueOf(decoded))
	return nil
}

func (c *Codec) decodeSlice(raw any, v reflect.Value) error {
	if v.Type().Elem().Kind() == reflect.Uint8 {
		switch t := raw.(type) {
		case []byte:
			v.SetBytes(t)
			return nil
		case string:
			b, err := base64.StdEncoding.DecodeString(t)
			if err != nil {
				return fmt.Errorf("decode bytes: %w", err)
			}
			v.SetBytes(b)
			return nil
		}
	}
	arr, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("expected array, got %T", raw)
	}
	out := reflect.MakeSlice(v.Type(), len(arr), len(arr))
	for i, ev := range arr {
		if ev == nil {
			continue
		}
		if err := c.decodeValue(ev, out.Index(i)); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	v.Set(out)
	return nil
}

func (c *Codec) decodeMap(raw any, v reflect.Value) error {
	if v.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("map key type %s is not a string", v.Type().Key())
	}
	out := reflect.MakeMap(v.Type())
	set := func(k string, ev any) error {
		mv := reflect.New(v.Type().Elem()).Elem()
		if ev != nil {
			if err := c.decodeValue(ev, mv); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(v.Type().Key()), mv)
		return nil
	}

	switch t := raw.(type) {
	case *document.Document:
		var rangeErr error
		t.Range(func(k string, ev any) bool {
			rangeErr = set(k, ev)
			return rangeErr == nil
		})
		if rangeErr != nil {
			return rangeErr
		}
	case map[string]any:
		for k, ev := range t {
			if err := set(k, ev); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("expected object, got %T", raw)
	}
	v.Set(out)
	return nil
}

// asDocument normalizes the object shapes a driver may hand back.
func asDocument(raw any) (*document.Document, error) {
	switch t := raw.(type) {
	case *document.Document:
		return t, nil
	case map[string]any:
		d := document.New()
		for k, v := range t {
			d.Set(k, v)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("expected object, got %T", raw)
	}
}

func toFloat(raw any) (float64, error) {
	switch t := raw.(type) {
	case json.Number:
		return t.Float64()
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}
