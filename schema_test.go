package props

import (
	"errors"
	"reflect"
	"testing"
)

func TestNewSchemaValidation(t *testing.T) {
	tests := []struct {
		name   string
		specs  []PropertySpec
		target any
	}{
		{
			name:   "empty key",
			specs:  []PropertySpec{Static(" ")},
			target: new(*InvalidSpecError),
		},
		{
			name:   "reserved auth key",
			specs:  []PropertySpec{Static(AuthKey)},
			target: new(*InvalidSpecError),
		},
		{
			name:   "dotted key",
			specs:  []PropertySpec{Static("fields.id")},
			target: new(*InvalidSpecError),
		},
		{
			name:   "unknown kind",
			specs:  []PropertySpec{{Key: "x", Kind: Kind("remote")}},
			target: new(*InvalidSpecError),
		},
		{
			name:   "static with resolver",
			specs:  []PropertySpec{{Key: "x", Kind: KindStatic, Resolver: constResolver()}},
			target: new(*InvalidSpecError),
		},
		{
			name:   "static with refreshers",
			specs:  []PropertySpec{Static("a"), Static("x", WithRefreshers("a"))},
			target: new(*InvalidSpecError),
		},
		{
			name:   "dynamic without resolver",
			specs:  []PropertySpec{Dynamic("x", nil)},
			target: new(*InvalidSpecError),
		},
		{
			name:   "duplicate refresher",
			specs:  []PropertySpec{Static("a"), Dynamic("x", constResolver(), WithRefreshers("a", "a"))},
			target: new(*InvalidSpecError),
		},
		{
			name:   "duplicate key",
			specs:  []PropertySpec{Static("a"), Static("a")},
			target: new(*DuplicateKeyError),
		},
		{
			name:   "unknown refresher",
			specs:  []PropertySpec{Dynamic("x", constResolver(), WithRefreshers("ghost"))},
			target: new(*UnknownRefresherError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema, err := NewSchema("invalid", tt.specs)
			if err == nil {
				t.Fatalf("expected error, got schema %v", schema.Keys())
			}
			if !errors.As(err, tt.target) {
				t.Fatalf("expected %T, got %v", tt.target, err)
			}
		})
	}
}

func TestSchemaAccessors(t *testing.T) {
	schema := tablesSchema(t)

	if schema.Name() != "tables" {
		t.Fatalf("unexpected name %q", schema.Name())
	}
	keys := schema.Keys()
	if !reflect.DeepEqual(keys, []string{"connection", "table", "fields", "sort", "region"}) {
		t.Fatalf("unexpected keys %v", keys)
	}
	keys[0] = "mutated"
	if schema.Keys()[0] != "connection" {
		t.Fatalf("Keys must return a copy")
	}

	spec, ok := schema.Spec("table")
	if !ok || spec.Kind != KindDynamic || !spec.Required {
		t.Fatalf("unexpected spec for table: %+v", spec)
	}
	spec.Refreshers[0] = "mutated"
	again, _ := schema.Spec("table")
	if again.Refreshers[0] != AuthKey {
		t.Fatalf("Spec must return a copy, got %v", again.Refreshers)
	}
	if _, ok := schema.Spec("missing"); ok {
		t.Fatalf("expected missing spec lookup to fail")
	}
	if !schema.AuthRequired() {
		t.Fatalf("auth should be required by default")
	}
	if MustSchema("open", nil, WithAuthRequired(false)).AuthRequired() {
		t.Fatalf("WithAuthRequired(false) not applied")
	}
}

func TestSchemaDigestTracksStructure(t *testing.T) {
	build := func(extra ...PropertyOption) *Schema {
		return MustSchema("digest", []PropertySpec{
			Static("connection"),
			Dynamic("table", constResolver("users"), append([]PropertyOption{WithRefreshers("connection")}, extra...)...),
		})
	}

	base := build().Digest()
	if base == "" || len(base) != 64 {
		t.Fatalf("expected hex sha256 digest, got %q", base)
	}
	if other := build(WithDisplayName("Table")).Digest(); other != base {
		t.Fatalf("display names must not affect the digest")
	}
	swapped := MustSchema("digest", []PropertySpec{
		Static("connection"),
		Dynamic("table", constResolver("orders"), WithRefreshers("connection")),
	})
	if swapped.Digest() != base {
		t.Fatalf("resolver identity must not affect the digest")
	}
	if build(Required()).Digest() == base {
		t.Fatalf("required flag must affect the digest")
	}
	if build(WithRefreshers(AuthKey)).Digest() == base {
		t.Fatalf("refreshers must affect the digest")
	}
}

func TestMustSchemaPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected MustSchema to panic on invalid input")
		}
	}()
	MustSchema("broken", []PropertySpec{Dynamic("x", nil)})
}
