package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Category distinguishes warnings raised by R from the host's own.
type Category string

const (
	CategoryRuntime Category = "RRuntimeWarning"
	CategoryHost    Category = "HostWarning"
)

// Warning is a non-fatal diagnostic.
type Warning struct {
	Category Category
	Message  string
}

func (w Warning) Error() string {
	return string(w.Category) + ": " + strings.TrimRight(w.Message, "\n")
}

// FilterAction decides what happens to a matching warning.
type FilterAction int

const (
	// ActionAlways delivers every occurrence.
	ActionAlways FilterAction = iota
	// ActionIgnore drops the warning.
	ActionIgnore
	// ActionOnce delivers the first occurrence of each message only.
	ActionOnce
)

// Filter matches warnings by category and message substring.
// Empty fields match anything.
type Filter struct {
	Category Category
	Contains string
	Action   FilterAction
}

func (f Filter) matches(w Warning) bool {
	if f.Category != "" && f.Category != w.Category {
		return false
	}
	return f.Contains == "" || strings.Contains(w.Message, f.Contains)
}

// Sink receives warnings that passed the filters.
type Sink func(Warning)

// Warnings applies filters to warnings and forwards survivors to a sink.
// Filters are consulted newest first; the first match decides.
type Warnings struct {
	seen    map[string]struct{}
	sink    Sink
	filters []Filter
	mu      sync.Mutex
}

// NewWarnings creates a dispatcher that writes to stderr.
func NewWarnings() *Warnings {
	return &Warnings{
		seen: make(map[string]struct{}),
		sink: WriterSink(nil),
	}
}

// WriterSink formats warnings as "Category: message" lines on w.
// A nil w means os.Stderr at the time of each warning.
func WriterSink(w io.Writer) Sink {
	return func(warn Warning) {
		out := w
		if out == nil {
			out = os.Stderr
		}
		fmt.Fprintln(out, warn.Error())
	}
}

// SetSink replaces the sink. A nil sink discards warnings.
func (ws *Warnings) SetSink(s Sink) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.sink = s
}

// AddFilter installs f ahead of existing filters.
func (ws *Warnings) AddFilter(f Filter) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.filters = append([]Filter{f}, ws.filters...)
}

// ResetFilters removes all filters and forgets seen messages.
func (ws *Warnings) ResetFilters() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.filters = nil
	ws.seen = make(map[string]struct{})
}

// Emit routes w through the filters.
func (ws *Warnings) Emit(w Warning) {
	ws.mu.Lock()
	action := ActionAlways
	for _, f := range ws.filters {
		if f.matches(w) {
			action = f.Action
			break
		}
	}
	switch action {
	case ActionIgnore:
		ws.mu.Unlock()
		Logger().Debug("warning suppressed",
			zap.String("category", string(w.Category)),
			zap.String("message", w.Message))
		return
	case ActionOnce:
		key := string(w.Category) + "\x00" + w.Message
		if _, dup := ws.seen[key]; dup {
			ws.mu.Unlock()
			return
		}
		ws.seen[key] = struct{}{}
	}
	sink := ws.sink
	ws.mu.Unlock()

	Logger().Warn("warning",
		zap.String("category", string(w.Category)),
		zap.String("message", w.Message))
	if sink != nil {
		sink(w)
	}
}
