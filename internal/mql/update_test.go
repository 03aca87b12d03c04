package mql

import (
	"testing"
)

func TestApply_SetTopLevelAndNested(t *testing.T) {
	doc := testDoc(t, `{"_id":"1","name":"Frodo","address":{"city":"Hobbiton"}}`)

	out, err := Apply(map[string]any{
		"$set": map[string]any{
			"name":           "Sam",
			"address.city":   "Bree",
			"address.street": "Prancing Pony",
			"fresh.deep":     1,
		},
	}, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v, _ := Lookup(out, "name"); v != "Sam" {
		t.Errorf("name = %v", v)
	}
	if v, _ := Lookup(out, "address.city"); v != "Bree" {
		t.Errorf("address.city = %v", v)
	}
	if v, _ := Lookup(out, "address.street"); v != "Prancing Pony" {
		t.Errorf("address.street = %v", v)
	}
	if v, ok := Lookup(out, "fresh.deep"); !ok || normalize(v) != 1.0 {
		t.Errorf("intermediate objects not created: %v", v)
	}
	// Source document untouched.
	if v, _ := Lookup(doc, "name"); v != "Frodo" {
		t.Error("Apply mutated its input")
	}
}

func TestApply_SetThroughScalarFails(t *testing.T) {
	doc := testDoc(t, `{"age":50}`)
	if _, err := Apply(map[string]any{"$set": map[string]any{"age.x": 1}}, doc); err == nil {
		t.Fatal("expected error for path through a scalar")
	}
}

func TestApply_Unset(t *testing.T) {
	doc := testDoc(t, `{"name":"Frodo","address":{"city":"Hobbiton","zip":"SH1"}}`)

	out, err := Apply(map[string]any{
		"$unset": map[string]any{"name": "", "address.zip": "", "ghost": ""},
	}, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := Lookup(out, "name"); ok {
		t.Error("name not removed")
	}
	if _, ok := Lookup(out, "address.zip"); ok {
		t.Error("address.zip not removed")
	}
	if _, ok := Lookup(out, "address.city"); !ok {
		t.Error("sibling key lost")
	}
}

func TestApply_Inc(t *testing.T) {
	doc := testDoc(t, `{"age":50}`)

	out, err := Apply(map[string]any{
		"$inc": map[string]any{"age": 2, "visits": 1},
	}, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := Lookup(out, "age"); normalize(v) != 52.0 {
		t.Errorf("age = %v, want 52", v)
	}
	if v, _ := Lookup(out, "visits"); normalize(v) != 1.0 {
		t.Errorf("missing $inc target should start at zero, got %v", v)
	}
}

func TestApply_IncNonNumeric(t *testing.T) {
	doc := testDoc(t, `{"name":"Frodo"}`)
	if _, err := Apply(map[string]any{"$inc": map[string]any{"name": 1}}, doc); err == nil {
		t.Fatal("expected error for non-numeric $inc target")
	}
}

func TestApply_ReplacementPreservesNativeID(t *testing.T) {
	doc := testDoc(t, `{"_id":"keep-me","name":"Frodo","age":50}`)

	out, err := Apply(map[string]any{"name": "Sam"}, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := Lookup(out, "_id"); v != "keep-me" {
		t.Errorf("_id = %v, replacement must keep the native identity", v)
	}
	if v, _ := Lookup(out, "name"); v != "Sam" {
		t.Errorf("name = %v", v)
	}
	if _, ok := Lookup(out, "age"); ok {
		t.Error("replacement should drop fields absent from the update")
	}
}

func TestApply_UnknownOperator(t *testing.T) {
	doc := testDoc(t, `{"age":50}`)
	if _, err := Apply(map[string]any{"$push": map[string]any{"tags": "x"}}, doc); err == nil {
		t.Fatal("expected error for unknown operator")
	}
}
