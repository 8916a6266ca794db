package hydrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
)

func TestDecoderFromFixtures(t *testing.T) {
	fx := loadFixture(t, "hydrate_lines.json")

	for _, tc := range fx.Cases {
		t.Run(tc.Name, func(t *testing.T) {
			decoder := NewDecoder[lineInput](buildOptions(tc)...)

			ctx := Context{
				Entity: tc.Entity,
				Field:  tc.Field,
				Index:  tc.Index,
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
				t.Fatalf("decoded line mismatch:\nwant: %#v\n got: %#v", tc.Expect, result)
			}
		})
	}
}

func TestDecodeRejectsNilPayload(t *testing.T) {
	decoder := NewDecoder[lineInput]()
	_, err := decoder.Decode(Context{Entity: "invoice", Field: "lines"}, nil)
	if err == nil {
		t.Fatalf("expected error for nil payload")
	}
	if !strings.Contains(err.Error(), "invoice.lines[0]") {
		t.Fatalf("expected error to name the payload location, got %v", err)
	}
}

func TestDecodeAllStampsIndexes(t *testing.T) {
	var seen []int
	decoder := NewDecoder[lineInput](WithPostHook[lineInput](func(ctx Context, line *lineInput) error {
		seen = append(seen, ctx.Index)
		return nil
	}))

	lines, err := decoder.DecodeAll(Context{Entity: "invoice", Field: "lines"}, []map[string]any{
		{"id": "a", "quantity": 1},
		{"id": "b", "quantity": 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 || lines[1].ID != "b" {
		t.Fatalf("expected two decoded lines, got %#v", lines)
	}
	if !reflect.DeepEqual(seen, []int{0, 1}) {
		t.Fatalf("expected indexes [0 1], got %v", seen)
	}
}

func TestDecodeAllStopsOnFirstError(t *testing.T) {
	decoder := NewDecoder[lineInput](WithDisallowUnknownFields[lineInput]())
	_, err := decoder.DecodeAll(Context{Entity: "invoice", Field: "lines"}, []map[string]any{
		{"id": "a"},
		{"id": "b", "bogus": true},
	})
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "invoice.lines[1]") {
		t.Fatalf("expected error for item 1, got %v", err)
	}
}

func TestDecodeDoesNotMutateInput(t *testing.T) {
	input := map[string]any{"id": "L-1", "quantity": "4"}
	decoder := NewDecoder[lineInput](WithPreHook[lineInput](quantityTextPreHook))
	if _, err := decoder.Decode(Context{Entity: "invoice"}, input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if input["quantity"] != "4" {
		t.Fatalf("expected caller payload untouched, got %#v", input["quantity"])
	}
}

func buildOptions(tc fixtureCase) []DecoderOption[lineInput] {
	options := []DecoderOption[lineInput]{}

	for _, optName := range tc.Options {
		switch optName {
		case "disallow_unknown":
			options = append(options, WithDisallowUnknownFields[lineInput]())
		}
	}

	for _, hookName := range tc.PreHooks {
		switch hookName {
		case "quantity_text":
			options = append(options, WithPreHook[lineInput](quantityTextPreHook))
		}
	}

	for _, hookName := range tc.PostHooks {
		switch hookName {
		case "ensure_tag":
			options = append(options, WithPostHook[lineInput](ensureTagPostHook))
		}
	}

	return options
}

func quantityTextPreHook(_ Context, payload map[string]any) (map[string]any, error) {
	value, ok := payload["quantity"].(string)
	if !ok {
		return payload, nil
	}
	quantity, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q", value)
	}
	payload["quantity"] = quantity
	return payload, nil
}

func ensureTagPostHook(ctx Context, line *lineInput) error {
	if line == nil {
		return errors.New("line is nil")
	}
	if len(line.Tags) > 0 {
		return nil
	}
	line.Tags = []string{fmt.Sprintf("%s.%s:%d", ctx.Entity, ctx.Field, ctx.Index)}
	return nil
}

type fixture struct {
	Description string        `json:"description"`
	Cases       []fixtureCase `json:"cases"`
}

type fixtureCase struct {
	Name          string         `json:"name"`
	Entity        string         `json:"entity"`
	Field         string         `json:"field"`
	Index         int            `json:"index"`
	Input         map[string]any `json:"input"`
	Expect        lineInput      `json:"expect"`
	ExpectErr     string         `json:"expectErr"`
	PreHooks      []string       `json:"preHooks"`
	PostHooks     []string       `json:"postHooks"`
	Options       []string       `json:"options"`
}

type lineInput struct {
	ID       string   `json:"id"`
	Product  string   `json:"product"`
	Quantity int      `json:"quantity"`
	Price    float64  `json:"price"`
	Tags     []string `json:"tags"`
}

func loadFixture(t *testing.T, name string) fixture {
	t.Helper()
	path := filepath.Join("..", "..", "testdata", name)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read hydrate fixture %q: %v", name, err)
	}
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		t.Fatalf("failed to unmarshal hydrate fixture %q: %v", name, err)
	}
	return fx
}
