package filter

import (
	"reflect"
	"testing"
	"time"
)

func TestParseTaskFilter(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		filter     string
		wantClause string
		wantParams []any
	}{
		{name: "empty", filter: "  "},
		{name: "equals", filter: `priority = "high"`, wantClause: "priority = ?", wantParams: []any{"high"}},
		{name: "and", filter: `priority = "high" AND project = "home"`, wantClause: "(priority = ? AND project = ?)", wantParams: []any{"high", "home"}},
		{name: "or", filter: `priority = "low" OR priority = "medium"`, wantClause: "(priority = ? OR priority = ?)", wantParams: []any{"low", "medium"}},
		{name: "not equals", filter: `created_by != "a@x.com"`, wantClause: "created_by != ?", wantParams: []any{"a@x.com"}},
		{name: "timestamp", filter: `created_at >= timestamp("2026-03-01T00:00:00Z")`, wantClause: "created_at >= ?", wantParams: []any{created.UnixMilli()}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTaskFilter(tc.filter)
			if err != nil {
				t.Fatalf("parse %q: %v", tc.filter, err)
			}
			if got.Clause != tc.wantClause {
				t.Fatalf("clause = %q, want %q", got.Clause, tc.wantClause)
			}
			if len(tc.wantParams) == 0 && len(got.Params) == 0 {
				return
			}
			if !reflect.DeepEqual(got.Params, tc.wantParams) {
				t.Fatalf("params = %#v, want %#v", got.Params, tc.wantParams)
			}
		})
	}
}

func TestParseTaskFilterCompleted(t *testing.T) {
	t.Parallel()

	got, err := ParseTaskFilter(`completed = false AND priority = "high"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Clause != "(completed = ? AND priority = ?)" {
		t.Fatalf("clause = %q", got.Clause)
	}
	if !reflect.DeepEqual(got.Params, []any{false, "high"}) {
		t.Fatalf("params = %#v", got.Params)
	}
}

func TestParseTaskFilterRejectsUnknownField(t *testing.T) {
	t.Parallel()

	if _, err := ParseTaskFilter(`owner = "a"`); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseTaskFilterRejectsSyntaxError(t *testing.T) {
	t.Parallel()

	if _, err := ParseTaskFilter(`priority = `); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSQLConditionEmpty(t *testing.T) {
	t.Parallel()

	if !(SQLCondition{}).Empty() {
		t.Fatal("zero condition should be empty")
	}
	if (SQLCondition{Clause: "title = ?"}).Empty() {
		t.Fatal("condition with clause should not be empty")
	}
}

func TestTaskDeclarationsIncludeBoolLiterals(t *testing.T) {
	t.Parallel()

	decls, err := TaskDeclarations()
	if err != nil {
		t.Fatalf("task declarations: %v", err)
	}
	for _, name := range []string{"true", "false", "completed", "priority"} {
		if _, ok := decls.LookupIdent(name); !ok {
			t.Fatalf("identifier %q not declared", name)
		}
	}
}
