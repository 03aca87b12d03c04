package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/docdex/internal/db"
)

func TestJSONSet_Modes(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if err := s.JSONSet(ctx, "k", []byte(`{"a":1}`), db.SetNX); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.JSONSet(ctx, "k", []byte(`{}`), db.SetNX); !errors.Is(err, db.ErrKeyExists) {
		t.Errorf("NX on existing key: got %v, want ErrKeyExists", err)
	}
	if err := s.JSONSet(ctx, "missing", []byte(`{}`), db.SetXX); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("XX on missing key: got %v, want ErrKeyNotFound", err)
	}
	if err := s.JSONSet(ctx, "k", []byte(`{"a":2}`), db.SetXX); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.JSONSet(ctx, "k", []byte(`{"a":3}`), db.SetAlways); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := s.JSONGet(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"a":3}` {
		t.Errorf("stored data = %s", data)
	}
}

func TestJSONGet_Missing(t *testing.T) {
	s := NewStore()
	if _, err := s.JSONGet(context.Background(), "nope"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("got %v, want ErrKeyNotFound", err)
	}
}

func TestJSONGet_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if err := s.JSONSet(ctx, "k", []byte(`{"a":1}`), db.SetAlways); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, _ := s.JSONGet(ctx, "k")
	data[0] = 'X'

	again, _ := s.JSONGet(ctx, "k")
	if string(again) != `{"a":1}` {
		t.Error("stored bytes aliased to the returned slice")
	}
}

func TestJSONGetMulti_NilForMissing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_ = s.JSONSet(ctx, "a", []byte(`1`), db.SetAlways)
	_ = s.JSONSet(ctx, "c", []byte(`3`), db.SetAlways)

	out, err := s.JSONGetMulti(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 || out[1] != nil {
		t.Fatalf("out = %v", out)
	}
	if string(out[0]) != "1" || string(out[2]) != "3" {
		t.Errorf("out = %q, %q", out[0], out[2])
	}
}

func TestDelAndExists(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_ = s.JSONSet(ctx, "k", []byte(`1`), db.SetAlways)

	if ok, _ := s.Exists(ctx, "k"); !ok {
		t.Fatal("expected key to exist")
	}
	if err := s.Del(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := s.Exists(ctx, "k"); ok {
		t.Fatal("expected key to be gone")
	}
	// Deleting a missing key is not an error.
	if err := s.Del(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScan_PrefixAndOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, k := range []string{"app:users:2", "app:users:1", "app:orders:1"} {
		_ = s.JSONSet(ctx, k, []byte(`{}`), db.SetAlways)
	}

	keys, err := s.Scan(ctx, "app:users:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 || keys[0] != "app:users:1" || keys[1] != "app:users:2" {
		t.Errorf("keys = %v", keys)
	}
}
