package schema

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/kailas-cloud/docdex/internal/domain"
)

func TestRegistry_RegisterIdempotent(t *testing.T) {
	r := NewRegistry()

	s1, err := r.Register(reflect.TypeFor[plainModel](), StrategyNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, err := r.Register(reflect.TypeFor[plainModel](), StrategyNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s1 != s2 {
		t.Fatal("expected the identical schema instance on re-registration")
	}
}

func TestRegistry_ConcurrentFirstUse(t *testing.T) {
	r := NewRegistry()

	const n = 32
	var wg sync.WaitGroup
	got := make([]*Schema, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], errs[i] = r.Register(reflect.TypeFor[plainModel](), StrategyNone)
		}()
	}
	wg.Wait()

	for i := range n {
		if errs[i] != nil {
			t.Fatalf("unexpected error: %v", errs[i])
		}
		if got[i] != got[0] {
			t.Fatal("racing registrations should converge on one schema instance")
		}
	}
}

func TestRegistry_PointerTypeNormalized(t *testing.T) {
	r := NewRegistry()

	s1, err := r.Register(reflect.TypeFor[*plainModel](), StrategyNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, ok := r.Lookup(reflect.TypeFor[plainModel]())
	if !ok || s1 != s2 {
		t.Fatal("pointer and value registrations should converge")
	}
}

func TestRegistry_StrategyMismatch(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Register(reflect.TypeFor[conventionalModel](), StrategyEmbedded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := r.Register(reflect.TypeFor[conventionalModel](), StrategyGenerated)
	var se *domain.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup(reflect.TypeFor[plainModel]()); ok {
		t.Fatal("lookup of unregistered type should miss")
	}
}

// --- Union ---

func TestUnion_AddAndResolve(t *testing.T) {
	r := NewRegistry()
	u := NewUnion("_kind")

	sp, err := r.Register(reflect.TypeFor[plainModel](), StrategyNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	si, err := r.Register(reflect.TypeFor[intIdentityModel](), StrategyClientManaged)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := u.Add("plain", sp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := u.Add("coded", si); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, ok := u.ByTag("coded"); !ok || got != si {
		t.Error("ByTag did not resolve the member schema")
	}
	if tag, ok := u.Tag(si.Type); !ok || tag != "coded" {
		t.Errorf("Tag = %q, want coded", tag)
	}
	if !u.Contains(sp) || u.Len() != 2 {
		t.Error("union membership bookkeeping broken")
	}
	if len(u.Members()) != 2 {
		t.Errorf("Members() returned %d schemas, want 2", len(u.Members()))
	}
}

func TestUnion_Duplicates(t *testing.T) {
	r := NewRegistry()
	u := NewUnion("_kind")

	sp, _ := r.Register(reflect.TypeFor[plainModel](), StrategyNone)
	si, _ := r.Register(reflect.TypeFor[intIdentityModel](), StrategyClientManaged)

	if err := u.Add("plain", sp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var se *domain.SchemaError
	if err := u.Add("plain", si); !errors.As(err, &se) {
		t.Errorf("duplicate tag: expected SchemaError, got %v", err)
	}
	if err := u.Add("other", sp); !errors.As(err, &se) {
		t.Errorf("duplicate type: expected SchemaError, got %v", err)
	}
	if err := u.Add("", si); !errors.As(err, &se) {
		t.Errorf("empty tag: expected SchemaError, got %v", err)
	}
}
