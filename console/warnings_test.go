package console

import (
	"bytes"
	"testing"
)

func collect(ws *Warnings) *[]Warning {
	var got []Warning
	ws.SetSink(func(w Warning) { got = append(got, w) })
	return &got
}

func TestRegistry_WarnUsesRuntimeCategory(t *testing.T) {
	r := NewRegistry()
	r.InstallDefaults(Streams{})
	got := collect(r.Warnings())

	r.WriteConsole("Warning message:\nNAs introduced by coercion\n", true)

	if len(*got) != 1 {
		t.Fatalf("got %d warnings, want 1", len(*got))
	}
	w := (*got)[0]
	if w.Category != CategoryRuntime {
		t.Errorf("Category = %q, want %q", w.Category, CategoryRuntime)
	}
	if w.Message != "Warning message:\nNAs introduced by coercion\n" {
		t.Errorf("Message = %q", w.Message)
	}
}

func TestWarnings_Filters(t *testing.T) {
	tests := []struct {
		name    string
		filters []Filter
		emit    []Warning
		want    int
	}{
		{
			name: "no filters delivers all",
			emit: []Warning{{CategoryRuntime, "a"}, {CategoryHost, "b"}},
			want: 2,
		},
		{
			name:    "ignore runtime category",
			filters: []Filter{{Category: CategoryRuntime, Action: ActionIgnore}},
			emit:    []Warning{{CategoryRuntime, "a"}, {CategoryHost, "b"}},
			want:    1,
		},
		{
			name:    "ignore by substring",
			filters: []Filter{{Contains: "coercion", Action: ActionIgnore}},
			emit:    []Warning{{CategoryRuntime, "NAs introduced by coercion"}, {CategoryRuntime, "other"}},
			want:    1,
		},
		{
			name:    "once deduplicates",
			filters: []Filter{{Action: ActionOnce}},
			emit:    []Warning{{CategoryRuntime, "a"}, {CategoryRuntime, "a"}, {CategoryRuntime, "b"}},
			want:    2,
		},
		{
			name: "newest filter wins",
			filters: []Filter{
				{Category: CategoryRuntime, Action: ActionIgnore},
				{Category: CategoryRuntime, Contains: "keep", Action: ActionAlways},
			},
			emit: []Warning{{CategoryRuntime, "keep me"}, {CategoryRuntime, "drop me"}},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := NewWarnings()
			got := collect(ws)
			for _, f := range tt.filters {
				ws.AddFilter(f)
			}
			for _, w := range tt.emit {
				ws.Emit(w)
			}
			if len(*got) != tt.want {
				t.Errorf("delivered %d warnings, want %d: %v", len(*got), tt.want, *got)
			}
		})
	}
}

func TestWarnings_ResetFilters(t *testing.T) {
	ws := NewWarnings()
	got := collect(ws)
	ws.AddFilter(Filter{Action: ActionIgnore})
	ws.Emit(Warning{CategoryHost, "x"})
	ws.ResetFilters()
	ws.Emit(Warning{CategoryHost, "x"})

	if len(*got) != 1 {
		t.Errorf("delivered %d, want 1", len(*got))
	}
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	WriterSink(&buf)(Warning{Category: CategoryRuntime, Message: "careful\n"})

	if buf.String() != "RRuntimeWarning: careful\n" {
		t.Errorf("sink output = %q", buf.String())
	}
}
