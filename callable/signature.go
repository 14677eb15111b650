package callable

import (
	"fmt"
	"reflect"

	"github.com/wippyai/rbridge"
	"github.com/wippyai/rbridge/errors"
)

// HostFunc is the canonical shape of a Go function callable from R.
// A zero Sexp result is returned to R as NULL.
type HostFunc func(args []rbridge.Sexp) (rbridge.Sexp, error)

var (
	sexpType      = reflect.TypeOf(rbridge.Sexp(0))
	sexpSliceType = reflect.TypeOf([]rbridge.Sexp(nil))
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
)

// adapt converts fn to a HostFunc. Accepted shapes take any number of
// rbridge.Sexp parameters (optionally variadic) and return (), (Sexp),
// (error) or (Sexp, error).
func adapt(fn any) (HostFunc, error) {
	switch f := fn.(type) {
	case nil:
		return nil, errors.NotCallable("nil", "value is nil")
	case HostFunc:
		if f == nil {
			return nil, errors.NotCallable("callable.HostFunc", "function is nil")
		}
		return f, nil
	case func([]rbridge.Sexp) (rbridge.Sexp, error):
		if f == nil {
			return nil, errors.NotCallable(fmt.Sprintf("%T", fn), "function is nil")
		}
		return HostFunc(f), nil
	}

	rv := reflect.ValueOf(fn)
	rt := rv.Type()
	if rt.Kind() != reflect.Func {
		return nil, errors.NotCallable(rt.String(), "value is not a function")
	}
	if rv.IsNil() {
		return nil, errors.NotCallable(rt.String(), "function is nil")
	}

	for i := 0; i < rt.NumIn(); i++ {
		in := rt.In(i)
		if rt.IsVariadic() && i == rt.NumIn()-1 {
			if in != sexpSliceType {
				return nil, errors.NotCallable(rt.String(),
					fmt.Sprintf("variadic parameter must be ...rbridge.Sexp, got %s", in))
			}
			continue
		}
		if in != sexpType {
			return nil, errors.NotCallable(rt.String(),
				fmt.Sprintf("parameter %d must be rbridge.Sexp, got %s", i, in))
		}
	}

	var (
		valueAt = -1
		errAt   = -1
	)
	switch rt.NumOut() {
	case 0:
	case 1:
		switch rt.Out(0) {
		case sexpType:
			valueAt = 0
		case errorType:
			errAt = 0
		default:
			return nil, errors.NotCallable(rt.String(), "result must be rbridge.Sexp or error")
		}
	case 2:
		if rt.Out(0) != sexpType || rt.Out(1) != errorType {
			return nil, errors.NotCallable(rt.String(), "results must be (rbridge.Sexp, error)")
		}
		valueAt, errAt = 0, 1
	default:
		return nil, errors.NotCallable(rt.String(), "too many results")
	}

	fixed := rt.NumIn()
	if rt.IsVariadic() {
		fixed--
	}

	return func(args []rbridge.Sexp) (rbridge.Sexp, error) {
		if len(args) < fixed || (!rt.IsVariadic() && len(args) != fixed) {
			return 0, errors.InvalidInput(errors.PhaseCallable,
				fmt.Sprintf("%s expects %d arguments, got %d", rt, fixed, len(args)))
		}

		in := make([]reflect.Value, len(args))
		for i, a := range args {
			in[i] = reflect.ValueOf(a)
		}
		out := rv.Call(in)

		var result rbridge.Sexp
		if valueAt >= 0 {
			result = out[valueAt].Interface().(rbridge.Sexp)
		}
		if errAt >= 0 && !out[errAt].IsNil() {
			return 0, out[errAt].Interface().(error)
		}
		return result, nil
	}, nil
}

// Check reports whether fn can be wrapped, without touching R.
func Check(fn any) error {
	_, err := adapt(fn)
	return err
}
