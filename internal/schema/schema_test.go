package schema

import (
	"errors"
	"reflect"
	"testing"

	"github.com/kailas-cloud/docdex/internal/domain"
)

type plainModel struct {
	FirstName string
	LastName  string `docdex:"surname"`
	Age       int
	secret    string
	Skipped   string `docdex:"-"`
}

type embeddedModel struct {
	ID   string `docdex:"_id"`
	Name string `docdex:"name,required"`
}

type conventionalModel struct {
	ID   string
	Name string
}

type intIdentityModel struct {
	Code int `docdex:"code,identity"`
	Name string
}

// --- parse ---

func TestParse_AliasesAndOrder(t *testing.T) {
	s, err := parse(reflect.TypeFor[plainModel](), StrategyNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct{ name, alias string }{
		{"FirstName", "first_name"},
		{"LastName", "surname"},
		{"Age", "age"},
	}
	if len(s.Fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(s.Fields), len(want))
	}
	for i, w := range want {
		if s.Fields[i].Name != w.name || s.Fields[i].Alias != w.alias {
			t.Errorf("field %d = %s/%s, want %s/%s", i, s.Fields[i].Name, s.Fields[i].Alias, w.name, w.alias)
		}
	}
	if _, ok := s.FieldByAlias("surname"); !ok {
		t.Error("surname alias not indexed")
	}
	if _, ok := s.FieldByName("Skipped"); ok {
		t.Error("skipped field should not be collected")
	}
	if _, ok := s.FieldByName("secret"); ok {
		t.Error("unexported field should not be collected")
	}
}

func TestParse_EmbeddedStructFlattening(t *testing.T) {
	type base struct {
		CreatedAt string
	}
	type model struct {
		base
		Name string
	}

	s, err := parse(reflect.TypeFor[model](), StrategyNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, ok := s.FieldByAlias("created_at")
	if !ok {
		t.Fatal("embedded field not flattened")
	}
	if len(f.Index) != 2 {
		t.Errorf("embedded field index = %v, want depth 2", f.Index)
	}
}

func TestParse_DuplicateAlias(t *testing.T) {
	type model struct {
		A string `docdex:"x"`
		B string `docdex:"x"`
	}
	_, err := parse(reflect.TypeFor[model](), StrategyNone)
	var se *domain.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestParse_NonStruct(t *testing.T) {
	_, err := parse(reflect.TypeFor[int](), StrategyNone)
	var se *domain.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

// --- identity resolution ---

func TestResolveIdentity(t *testing.T) {
	tests := []struct {
		name     string
		typ      reflect.Type
		strat    Strategy
		wantErr  bool
		identity string // expected identity field name, "" for none
		alias    string
	}{
		{
			name:  "none without identity",
			typ:   reflect.TypeFor[plainModel](),
			strat: StrategyNone,
		},
		{
			name:    "none rejects declared identity",
			typ:     reflect.TypeFor[embeddedModel](),
			strat:   StrategyNone,
			wantErr: true,
		},
		{
			name:    "detached rejects declared identity",
			typ:     reflect.TypeFor[embeddedModel](),
			strat:   StrategyDetached,
			wantErr: true,
		},
		{
			name:     "embedded by tag",
			typ:      reflect.TypeFor[embeddedModel](),
			strat:    StrategyEmbedded,
			identity: "ID",
			alias:    "_id",
		},
		{
			name:     "embedded by convention re-aliases to _id",
			typ:      reflect.TypeFor[conventionalModel](),
			strat:    StrategyEmbedded,
			identity: "ID",
			alias:    "_id",
		},
		{
			name:     "generated by convention",
			typ:      reflect.TypeFor[conventionalModel](),
			strat:    StrategyGenerated,
			identity: "ID",
			alias:    "id",
		},
		{
			name:     "client managed int identity",
			typ:      reflect.TypeFor[intIdentityModel](),
			strat:    StrategyClientManaged,
			identity: "Code",
			alias:    "code",
		},
		{
			name:    "embedded requires identity field",
			typ:     reflect.TypeFor[plainModel](),
			strat:   StrategyEmbedded,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := parse(tc.typ, tc.strat)
			if tc.wantErr {
				var se *domain.SchemaError
				if !errors.As(err, &se) {
					t.Fatalf("expected SchemaError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			f, declared := s.IdentityField()
			if tc.identity == "" {
				if declared {
					t.Fatalf("unexpected identity field %s", f.Name)
				}
				return
			}
			if !declared {
				t.Fatal("identity field not resolved")
			}
			if f.Name != tc.identity || f.Alias != tc.alias {
				t.Errorf("identity = %s/%s, want %s/%s", f.Name, f.Alias, tc.identity, tc.alias)
			}
		})
	}
}

func TestParse_GeneratedRequiresString(t *testing.T) {
	_, err := parse(reflect.TypeFor[intIdentityModel](), StrategyGenerated)
	var se *domain.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

// --- DefaultStrategy ---

func TestDefaultStrategy(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want Strategy
	}{
		{"no tags", reflect.TypeFor[plainModel](), StrategyNone},
		{"_id tag", reflect.TypeFor[embeddedModel](), StrategyEmbedded},
		{"identity option", reflect.TypeFor[intIdentityModel](), StrategyClientManaged},
		{"conventional ID alone stays none", reflect.TypeFor[conventionalModel](), StrategyNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DefaultStrategy(tc.typ); got != tc.want {
				t.Errorf("DefaultStrategy = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSnakeCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Name", "name"},
		{"FirstName", "first_name"},
		{"HTTPStatus", "http_status"},
		{"ID", "id"},
		{"UserID", "user_id"},
	}
	for _, tc := range tests {
		if got := snakeCase(tc.in); got != tc.want {
			t.Errorf("snakeCase(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
