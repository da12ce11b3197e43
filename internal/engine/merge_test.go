package engine

import (
	"encoding/json"
	"testing"

	"github.com/shaiso/Workman/internal/domain"
)

func TestMerge(t *testing.T) {
	entity := &domain.Entity{
		ID:      "42",
		ObjType: "task",
		Fields: map[string]any{
			"name":   "Call client",
			"amount": json.Number("100.50"),
			"tags":   []any{"a", "b"},
			"inject": "<%name%>",
		},
	}
	ctx := &MergeContext{Entity: entity, AppURL: "https://app.example.com/"}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"no vars", "plain text", "plain text"},
		{"field", "Task: <%name%>", "Task: Call client"},
		{"spaces", "<% name %>!", "Call client!"},
		{"id and type", "<%obj_type%>#<%id%>", "task#42"},
		{"number", "<%amount%>", "100.50"},
		{"list", "<%tags%>", "a,b"},
		{"unknown", "[<%missing%>]", "[]"},
		{"link", "<%entity_link%>", "https://app.example.com/browse/task/42"},
		{"no re-expansion", "<%inject%>", "<%name%>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Merge(tt.tmpl, ctx); got != tt.want {
				t.Errorf("Merge(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestMerge_NilContext(t *testing.T) {
	if got := Merge("<%name%>", nil); got != "<%name%>" {
		t.Errorf("nil context should leave template untouched, got %q", got)
	}
}

func TestMergeValue(t *testing.T) {
	ctx := &MergeContext{Entity: &domain.Entity{ID: "7", ObjType: "lead", Fields: map[string]any{"email": "x@y.z"}}}

	in := map[string]any{
		"to":    "<%email%>",
		"cc":    []any{"<%id%>", 5},
		"flag":  true,
		"inner": map[string]any{"s": "<%obj_type%>"},
	}

	got := MergeValue(in, ctx).(map[string]any)

	if got["to"] != "x@y.z" {
		t.Errorf("to = %v", got["to"])
	}
	cc := got["cc"].([]any)
	if cc[0] != "7" || cc[1] != 5 {
		t.Errorf("cc = %v", cc)
	}
	if got["flag"] != true {
		t.Errorf("flag = %v", got["flag"])
	}
	if got["inner"].(map[string]any)["s"] != "lead" {
		t.Errorf("inner = %v", got["inner"])
	}

	// Исходное значение не изменяется
	if in["to"] != "<%email%>" {
		t.Error("MergeValue must not mutate input")
	}
}
