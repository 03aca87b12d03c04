package codec

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/kailas-cloud/docdex/internal/document"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/schema"
)

type address struct {
	City string
	Zip  string `docdex:"postal_code"`
}

type person struct {
	Name     string `docdex:"name,required"`
	Age      int
	Score    float64
	Active   bool
	Home     address
	Work     *address
	Tags     []string
	Labels   map[string]int
	Raw      []byte
	Birthday time.Time
}

func newTestCodec(t *testing.T) (*Codec, *schema.Schema) {
	t.Helper()
	reg := schema.NewRegistry()
	s, err := reg.Register(reflect.TypeFor[person](), schema.StrategyNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return New(reg), s
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	c, s := newTestCodec(t)
	in := person{
		Name:     "Frodo",
		Age:      50,
		Score:    9.5,
		Active:   true,
		Home:     address{City: "Hobbiton", Zip: "SH1"},
		Work:     &address{City: "Rivendell"},
		Tags:     []string{"ring", "bearer"},
		Labels:   map[string]int{"quest": 1},
		Raw:      []byte{0x01, 0x02},
		Birthday: time.Date(2968, 9, 22, 0, 0, 0, 0, time.UTC),
	}

	doc, err := c.Encode(s, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := c.Decode(s, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := out.(person)
	if !ok {
		t.Fatalf("decoded %T, want person", out)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("round trip changed the instance:\n in  %+v\n out %+v", in, got)
	}
}

func TestEncodeDecode_ThroughJSON(t *testing.T) {
	// The path every store driver takes: document -> JSON -> document.
	c, s := newTestCodec(t)
	in := person{
		Name:     "Sam",
		Age:      38,
		Home:     address{City: "Hobbiton"},
		Raw:      []byte("po-ta-toes"),
		Birthday: time.Date(2980, 4, 6, 12, 30, 0, 0, time.UTC),
	}

	doc, err := c.Encode(s, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := document.Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := c.Decode(s, parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := out.(person)
	if got.Name != in.Name || got.Age != in.Age || got.Home.City != in.Home.City {
		t.Errorf("scalar fields lost: %+v", got)
	}
	if string(got.Raw) != string(in.Raw) {
		t.Errorf("bytes lost: %q", got.Raw)
	}
	if !got.Birthday.Equal(in.Birthday) {
		t.Errorf("time lost: %v != %v", got.Birthday, in.Birthday)
	}
	if got.Work != nil {
		t.Error("nil pointer field should stay nil")
	}
}

func TestEncode_FieldOrderFollowsSchema(t *testing.T) {
	c, s := newTestCodec(t)
	doc, err := c.Encode(s, person{Name: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keys := doc.Keys()
	if keys[0] != "name" || keys[1] != "age" {
		t.Errorf("document does not follow declaration order: %v", keys)
	}
}

func TestEncode_TypeMismatch(t *testing.T) {
	c, s := newTestCodec(t)
	if _, err := c.Encode(s, address{}); err == nil {
		t.Fatal("expected error for foreign type")
	}
}

func TestDecode_MissingRequiredField(t *testing.T) {
	c, s := newTestCodec(t)
	doc := document.New()
	doc.Set("age", 5)

	_, err := c.Decode(s, doc)
	var mr *domain.MissingRequiredFieldError
	if !errors.As(err, &mr) {
		t.Fatalf("expected MissingRequiredFieldError, got %v", err)
	}
	if mr.Field != "name" {
		t.Errorf("Field = %q, want name", mr.Field)
	}
}

func TestDecode_NullRequiredFieldAccepted(t *testing.T) {
	// Present-but-null is distinct from absent: the document carries the key.
	c, s := newTestCodec(t)
	doc, err := document.Decode([]byte(`{"name":null,"age":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Decode(s, doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	c, s := newTestCodec(t)
	doc, _ := document.Decode([]byte(`{"name":"x","_id":"abc","extra":{"a":1}}`))

	out, err := c.Decode(s, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(person).Name != "x" {
		t.Error("known field not decoded")
	}
}

// --- unions ---

type circle struct {
	Radius float64 `docdex:"radius"`
}

type square struct {
	Side float64 `docdex:"side"`
}

func newTestUnion(t *testing.T) (*Codec, *schema.Union) {
	t.Helper()
	reg := schema.NewRegistry()
	u := schema.NewUnion("_kind")
	for tag, typ := range map[string]reflect.Type{
		"circle": reflect.TypeFor[circle](),
		"square": reflect.TypeFor[square](),
	} {
		s, err := reg.Register(typ, schema.StrategyNone)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := u.Add(tag, s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return New(reg), u
}

func TestEncodeUnion_AppendsDiscriminator(t *testing.T) {
	c, u := newTestUnion(t)
	doc, s, err := c.EncodeUnion(u, circle{Radius: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Type != reflect.TypeFor[circle]() {
		t.Errorf("resolved schema %s, want circle", s.Name)
	}
	v, ok := doc.Get("_kind")
	if !ok || v != "circle" {
		t.Errorf("discriminator = %v", v)
	}
}

func TestEncodeUnion_UndeclaredType(t *testing.T) {
	c, u := newTestUnion(t)
	_, _, err := c.EncodeUnion(u, person{})
	var se *domain.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestDecodeUnion_DispatchesByTag(t *testing.T) {
	c, u := newTestUnion(t)
	doc, _ := document.Decode([]byte(`{"side":4,"_kind":"square"}`))

	v, s, err := c.DecodeUnion(u, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sq, ok := v.(square)
	if !ok {
		t.Fatalf("decoded %T, want square", v)
	}
	if sq.Side != 4 || s.Type != reflect.TypeFor[square]() {
		t.Errorf("decoded %+v via %s", sq, s.Name)
	}
}

func TestDecodeUnion_UnknownDiscriminator(t *testing.T) {
	c, u := newTestUnion(t)

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown value", `{"side":4,"_kind":"hexagon"}`, "hexagon"},
		{"absent key", `{"side":4}`, ""},
		{"non-string value", `{"side":4,"_kind":7}`, "7"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc, _ := document.Decode([]byte(tc.doc))
			_, _, err := c.DecodeUnion(u, doc)
			var ud *domain.UnknownDiscriminatorError
			if !errors.As(err, &ud) {
				t.Fatalf("expected UnknownDiscriminatorError, got %v", err)
			}
			if ud.Value != tc.want {
				t.Errorf("Value = %q, want %q", ud.Value, tc.want)
			}
		})
	}
}
