package docstore

import (
	"reflect"
	"testing"
)

func TestSanitizeStripsNilFields(t *testing.T) {
	doc := Document{
		"name":  "Courses",
		"aisle": nil,
		"nested": Document{
			"keep": 1,
			"drop": nil,
		},
		"items": []any{
			Document{"id": "a", "quantity": nil},
			nil,
			"plain",
		},
	}

	got := Sanitize(doc)

	want := Document{
		"name":   "Courses",
		"nested": Document{"keep": 1},
		"items": []any{
			Document{"id": "a"},
			"plain",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sanitize = %#v, want %#v", got, want)
	}

	// Original must be untouched.
	if _, ok := doc["aisle"]; !ok {
		t.Error("Sanitize mutated its input")
	}
}

func TestSanitizeNil(t *testing.T) {
	if got := Sanitize(nil); got != nil {
		t.Errorf("Sanitize(nil) = %#v, want nil", got)
	}
}

func TestMergeFieldLevel(t *testing.T) {
	base := Document{
		"code": "A3B7K2",
		"name": "Courses",
		"meta": Document{"joinedAt": "2026-01-02", "color": "green"},
	}
	patch := Document{
		"name": "Courses maison",
		"meta": Document{"color": "blue"},
	}

	got := Merge(base, patch)

	if got["code"] != "A3B7K2" {
		t.Errorf("merge dropped untouched field: %v", got["code"])
	}
	if got["name"] != "Courses maison" {
		t.Errorf("merge did not apply patch field: %v", got["name"])
	}
	meta := got["meta"].(Document)
	if meta["color"] != "blue" || meta["joinedAt"] != "2026-01-02" {
		t.Errorf("nested merge wrong: %#v", meta)
	}
}

func TestMergeReplacesNonDocValues(t *testing.T) {
	base := Document{"items": []any{"a", "b"}}
	patch := Document{"items": []any{"c"}}

	got := Merge(base, patch)
	items := got["items"].([]any)
	if len(items) != 1 || items[0] != "c" {
		t.Errorf("slices must replace wholesale, got %#v", items)
	}
}
