package runtime

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/multierr"

	"github.com/wippyai/rbridge/callable"
	"github.com/wippyai/rbridge/errors"
)

// Host is a struct whose exported methods become R functions.
// Each method Foo is defined in the global environment as
// Prefix()+"foo", with PascalCase converted to snake_case.
type Host interface {
	// Prefix returns the name prefix, e.g. "go_" or "".
	Prefix() string
}

// ExplicitRegistrar lets a host name its R functions itself when the
// automatic conversion does not fit.
type ExplicitRegistrar interface {
	Register() map[string]any
}

// HostRegistry collects Go functions to define in R once it is ready.
type HostRegistry struct {
	funcs   map[string]any
	defined map[string]bool
	mu      sync.RWMutex
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs:   make(map[string]any),
		defined: make(map[string]bool),
	}
}

// RegisterHost registers every exported method of h (or the functions h
// lists itself). Methods with shapes R cannot call are rejected.
func (r *HostRegistry) RegisterHost(h Host) error {
	funcs, err := hostFuncs(h)
	if err != nil {
		return err
	}
	for name, fn := range funcs {
		err = multierr.Append(err, r.RegisterFunc(name, fn))
	}
	return err
}

func hostFuncs(h Host) (map[string]any, error) {
	if h == nil {
		return nil, errors.InvalidInput(errors.PhaseCallable, "host cannot be nil")
	}
	prefix := h.Prefix()

	funcs := make(map[string]any)
	if er, ok := h.(ExplicitRegistrar); ok {
		for name, fn := range er.Register() {
			funcs[prefix+name] = fn
		}
		return funcs, nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Prefix" {
			continue
		}
		funcs[prefix+toSnakeCase(method.Name)] = rv.Method(i).Interface()
	}
	return funcs, nil
}

// RegisterFunc registers fn under name. The function is checked now so
// a bad shape fails at registration instead of at initialization.
func (r *HostRegistry) RegisterFunc(name string, fn any) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseCallable, "function name cannot be empty")
	}
	if err := callable.Check(fn); err != nil {
		return errors.New(errors.PhaseCallable, errors.KindNotCallable).
			Path(name).
			Cause(err).
			Detail("register %s", name).
			Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	delete(r.defined, name)
	return nil
}

// Names returns the registered names in sorted order.
func (r *HostRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

func (r *HostRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.funcs)
}

// Pending returns the registered names not yet defined in R, sorted.
func (r *HostRegistry) Pending() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, name := range r.sortedLocked() {
		if !r.defined[name] {
			names = append(names, name)
		}
	}
	return names
}

// bind hands the named functions, or every pending one when names is
// empty, to define in name order. A function stays pending until define
// succeeds for it.
func (r *HostRegistry) bind(define func(name string, fn any) error, names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(names) == 0 {
		names = r.sortedLocked()
	}
	var err error
	for _, name := range names {
		fn, ok := r.funcs[name]
		if !ok || r.defined[name] {
			continue
		}
		if derr := define(name, fn); derr != nil {
			err = multierr.Append(err, errors.New(errors.PhaseCallable, errors.KindEval).
				Path(name).
				Cause(derr).
				Detail("define %s", name).
				Build())
			continue
		}
		r.defined[name] = true
	}
	return err
}

func (r *HostRegistry) sortedLocked() []string {
	return sortedNames(r.funcs)
}

func sortedNames(funcs map[string]any) []string {
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// toSnakeCase converts PascalCase to snake_case.
// An acronym ends where a lowercase letter follows: HTTPStatus -> http_status.
// Adjacent acronyms stay joined: GetHTTPURL -> get_httpurl
func toSnakeCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('_')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
