package props

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestDecodeDescriptor(t *testing.T) {
	payload := map[string]any{
		"display_name": "Status",
		"required":     true,
		"refreshers":   []any{"table", AuthKey},
		"options": []any{
			map[string]any{"label": "Open", "value": "open"},
			map[string]any{"label": "Closed", "value": "closed"},
		},
	}

	descriptor, err := DecodeDescriptor("status", payload)
	if err != nil {
		t.Fatalf("DecodeDescriptor: %v", err)
	}
	if descriptor.Key != "status" {
		t.Fatalf("expected fallback key, got %q", descriptor.Key)
	}
	if _, ok := payload["key"]; ok {
		t.Fatalf("decoding must not mutate the payload")
	}
	if !descriptor.Required || descriptor.DisplayName != "Status" {
		t.Fatalf("unexpected descriptor %+v", descriptor)
	}
	if !reflect.DeepEqual(descriptor.Refreshers, []string{"table", AuthKey}) {
		t.Fatalf("unexpected refreshers %v", descriptor.Refreshers)
	}

	spec, err := descriptor.Spec(nil)
	if err != nil {
		t.Fatalf("Spec: %v", err)
	}
	if spec.Kind != KindDynamic || spec.Resolver == nil {
		t.Fatalf("options descriptor should become a dynamic field, got %+v", spec)
	}
	out, err := spec.Resolver.Resolve(context.Background(), NewInput("status", nil, nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	options, err := normalizeOptions("status", out)
	if err != nil || len(options.Options) != 2 || options.Options[0].Value != "open" {
		t.Fatalf("unexpected options %+v (%v)", options, err)
	}
}

func TestDecodeDescriptorErrors(t *testing.T) {
	tests := []struct {
		name     string
		fallback string
		payload  map[string]any
	}{
		{name: "no key", payload: map[string]any{"display_name": "Nameless"}},
		{name: "unknown field", fallback: "x", payload: map[string]any{"widget": "select"}},
		{name: "wrong type", fallback: "x", payload: map[string]any{"required": "yes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeDescriptor(tt.fallback, tt.payload); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDecodeDescriptorsNamesFailingItem(t *testing.T) {
	descriptors, err := DecodeDescriptors([]map[string]any{
		{"display_name": "Identifier"},
		{"key": "email", "display_name": "Email"},
	}, []string{"id"})
	if err != nil {
		t.Fatalf("DecodeDescriptors: %v", err)
	}
	if len(descriptors) != 2 || descriptors[0].Key != "id" || descriptors[1].Key != "email" {
		t.Fatalf("unexpected descriptors %+v", descriptors)
	}

	_, err = DecodeDescriptors([]map[string]any{
		{"key": "id"},
		{"key": "total", "widget": "number"},
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "descriptor:[1]") {
		t.Fatalf("expected the failing index in the error, got %v", err)
	}

	_, err = DecodeDescriptors([]map[string]any{{"display_name": "Nameless"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "has no key") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestDescriptorSpecKinds(t *testing.T) {
	evaluator := NewExprEvaluator()

	tests := []struct {
		name       string
		descriptor Descriptor
		kind       Kind
		reason     string
	}{
		{name: "plain static", descriptor: Descriptor{Key: "note"}, kind: KindStatic},
		{name: "expression dynamic", descriptor: Descriptor{Key: "table", Expr: `["users"]`}, kind: KindDynamic},
		{name: "explicit nested", descriptor: Descriptor{Key: "fields", Kind: KindNestedDynamic, Expr: `[]`}, kind: KindNestedDynamic},
		{name: "static with expression", descriptor: Descriptor{Key: "x", Kind: KindStatic, Expr: "1"}, reason: "static fields take no expression"},
		{name: "dynamic without source", descriptor: Descriptor{Key: "x", Kind: KindDynamic}, reason: "dynamic fields need expr or options"},
		{name: "nested without expr", descriptor: Descriptor{Key: "x", Kind: KindNestedDynamic}, reason: "nested fields need expr"},
		{name: "unknown kind", descriptor: Descriptor{Key: "x", Kind: Kind("remote")}, reason: `unknown kind "remote"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := tt.descriptor.Spec(evaluator)
			if tt.reason != "" {
				var invalid *InvalidSpecError
				if !errors.As(err, &invalid) || invalid.Reason != tt.reason {
					t.Fatalf("expected InvalidSpecError %q, got %v", tt.reason, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Spec: %v", err)
			}
			if spec.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, spec.Kind)
			}
		})
	}

	if _, err := (Descriptor{Key: "x", Expr: "1"}).Spec(nil); err == nil {
		t.Fatalf("expected expression without evaluator to fail")
	}
}

func TestSpecsBuildsSchemaInput(t *testing.T) {
	specs, err := Specs([]Descriptor{
		{Key: "connection", Required: true},
		{Key: "table", Expr: `connection == "primary" ? ["users"] : []`, Refreshers: []string{"connection"}},
	}, NewExprEvaluator())
	if err != nil {
		t.Fatalf("Specs: %v", err)
	}
	schema, err := NewSchema("descriptors", specs)
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	if got := schema.Graph().Dependents("connection"); !reflect.DeepEqual(got, []string{"table"}) {
		t.Fatalf("unexpected dependents %v", got)
	}

	if _, err := Specs([]Descriptor{{Key: "x", Kind: KindDynamic}}, nil); err == nil {
		t.Fatalf("expected Specs to surface descriptor errors")
	}
}
