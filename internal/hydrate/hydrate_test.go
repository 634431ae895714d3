package hydrate

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDecoderFromFixtures(t *testing.T) {
	fx := loadFixture(t, "hydrate_choices.json")

	for _, tc := range fx.Cases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			decoder := NewDecoder[choice](buildOptions(tc)...)

			ctx := Context{
				Field:  tc.Field,
				Source: tc.Source,
			}

			result, err := decoder.Decode(ctx, tc.Input)

			if tc.ExpectErr != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tc.ExpectErr)
				}
				if !strings.Contains(err.Error(), tc.ExpectErr) {
					t.Fatalf("expected error containing %q, got %v", tc.ExpectErr, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}

			if !reflect.DeepEqual(tc.Expect, result) {
				t.Fatalf("decoded choice mismatch:\nwant: %#v\n got: %#v", tc.Expect, result)
			}
		})
	}
}

func TestDecodeNilPayloadNamesContext(t *testing.T) {
	decoder := NewDecoder[choice]()

	cases := []struct {
		name string
		ctx  Context
		want string
	}{
		{name: "field and source", ctx: Context{Field: "table", Source: "resolver"}, want: "resolver:table"},
		{name: "field only", ctx: Context{Field: "table"}, want: "payload is nil for table"},
		{name: "source only", ctx: Context{Source: "loader"}, want: "payload is nil for loader"},
		{name: "unnamed", ctx: Context{}, want: "<unnamed>"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decoder.Decode(tc.ctx, nil)
			if err == nil {
				t.Fatalf("expected error for nil payload")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDecodeDoesNotMutateInput(t *testing.T) {
	decoder := NewDecoder[choice](
		WithPreHook[choice](func(_ Context, payload map[string]any) (map[string]any, error) {
			payload["label"] = "rewritten"
			return payload, nil
		}),
	)

	input := map[string]any{"label": "Users", "value": "users"}
	if _, err := decoder.Decode(Context{Field: "table"}, input); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if input["label"] != "Users" {
		t.Fatalf("expected caller payload untouched, got %v", input["label"])
	}
}

func TestDecodeListLabelsFailingIndex(t *testing.T) {
	decoder := NewDecoder[choice](WithDisallowUnknownFields[choice]())

	items, err := decoder.DecodeList(Context{Source: "resolver"}, []map[string]any{
		{"label": "Users", "value": "users"},
		{"label": "Orders", "value": "orders"},
	}, nil)
	if err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(items) != 2 || items[1].Value != "orders" {
		t.Fatalf("unexpected items %#v", items)
	}

	_, err = decoder.DecodeList(Context{Source: "resolver"}, []map[string]any{
		{"label": "Users", "value": "users"},
		{"label": "Orders", "value": "orders", "extra": true},
	}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "resolver:[1]") {
		t.Fatalf("expected index label in error, got %v", err)
	}
}

func TestPostHookErrorStopsDecode(t *testing.T) {
	sentinel := errors.New("rejected")
	decoder := NewDecoder[choice](
		WithPostHook[choice](func(Context, *choice) error { return sentinel }),
	)

	_, err := decoder.Decode(Context{Field: "table"}, map[string]any{"value": "users"})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
}

func buildOptions(tc fixtureCase) []DecoderOption[choice] {
	options := []DecoderOption[choice]{}

	for _, optName := range tc.Options {
		switch optName {
		case "disallow_unknown":
			options = append(options, WithDisallowUnknownFields[choice]())
		}
	}

	for _, hookName := range tc.PreHooks {
		switch hookName {
		case "label_from_value":
			options = append(options, WithPreHook[choice](labelFromValuePreHook))
		}
	}

	for _, hookName := range tc.PostHooks {
		switch hookName {
		case "group_from_field":
			options = append(options, WithPostHook[choice](groupFromFieldPostHook))
		}
	}

	return options
}

func labelFromValuePreHook(_ Context, payload map[string]any) (map[string]any, error) {
	if _, ok := payload["label"]; ok {
		return payload, nil
	}
	value, _ := payload["value"].(string)
	if value == "" {
		return nil, errors.New("choice has neither label nor value")
	}
	payload["label"] = value
	return payload, nil
}

func groupFromFieldPostHook(ctx Context, item *choice) error {
	if item == nil {
		return errors.New("choice is nil")
	}
	if item.Group == "" {
		item.Group = ctx.Field
	}
	return nil
}

type fixture struct {
	Description string        `json:"description"`
	Cases       []fixtureCase `json:"cases"`
}

type fixtureCase struct {
	Name          string         `json:"name"`
	Field         string         `json:"field"`
	Source        string         `json:"source"`
	Input         map[string]any `json:"input"`
	Expect        choice         `json:"expect"`
	ExpectErr     string         `json:"expectErr"`
	PreHooks      []string       `json:"preHooks"`
	PostHooks     []string       `json:"postHooks"`
	Options       []string       `json:"options"`
}

type choice struct {
	Label  string `json:"label"`
	Value  string `json:"value"`
	Group  string `json:"group,omitempty"`
	Weight int    `json:"weight,omitempty"`
}

func loadFixture(t *testing.T, name string) fixture {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read hydrate fixture %q: %v", name, err)
	}
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		t.Fatalf("failed to unmarshal hydrate fixture %q: %v", name, err)
	}
	return fx
}

func TestDecodeErrorStages(t *testing.T) {
	sentinel := errors.New("rejected")
	tests := []struct {
		name    string
		decoder *Decoder[choice]
		payload map[string]any
		stage   string
	}{
		{name: "nil payload", decoder: NewDecoder[choice](), stage: stageNil},
		{
			name:    "pre hook",
			decoder: NewDecoder[choice](WithPreHook[choice](func(Context, map[string]any) (map[string]any, error) { return nil, sentinel })),
			payload: map[string]any{},
			stage:   stagePre,
		},
		{name: "decode", decoder: NewDecoder[choice](), payload: map[string]any{"label": 1}, stage: stageDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.decoder.Decode(Context{Field: "table", Source: "loader"}, tt.payload)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if decodeErr.Stage != tt.stage || decodeErr.Label != "loader:table" {
				t.Fatalf("unexpected stage %q label %q", decodeErr.Stage, decodeErr.Label)
			}
		})
	}
}
