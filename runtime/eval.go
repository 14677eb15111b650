package runtime

import (
	"github.com/wippyai/rbridge"
	"github.com/wippyai/rbridge/errors"
)

// Eval parses src and evaluates each top-level expression in the global
// environment, returning the value of the last one. Empty source yields
// R's NULL.
//
// Like every call into R, Eval must run on the goroutine that owns R.
func (r *Runtime) Eval(src string) (rbridge.Sexp, error) {
	if err := r.ready(errors.PhaseEval); err != nil {
		return 0, err
	}
	return r.eval(src, r.native.GlobalEnv())
}

func (r *Runtime) eval(src string, env rbridge.Sexp) (rbridge.Sexp, error) {
	exprs, err := r.native.Parse(src)
	if err != nil {
		return 0, err
	}
	r.native.Preserve(exprs)
	defer r.native.Release(exprs)

	result := r.native.Nil()
	for i := 0; i < r.native.Length(exprs); i++ {
		expr, err := r.native.Element(exprs, i)
		if err != nil {
			return 0, err
		}
		if result, err = r.native.Eval(expr, env); err != nil {
			return 0, err
		}
	}
	return result, nil
}

// Print writes s through R's print method to the console.
func (r *Runtime) Print(s rbridge.Sexp) error {
	if err := r.ready(errors.PhaseEval); err != nil {
		return err
	}
	r.native.PrintValue(s)
	return nil
}

// Wrap turns fn into an R closure. See callable.Bridge.Wrap for the
// accepted function shapes.
func (r *Runtime) Wrap(fn any) (rbridge.Sexp, error) {
	if err := r.ready(errors.PhaseCallable); err != nil {
		return 0, err
	}
	return r.callables.Wrap(fn)
}

// Define binds v to name in the global environment.
func (r *Runtime) Define(name string, v rbridge.Sexp) error {
	if err := r.ready(errors.PhaseEval); err != nil {
		return err
	}
	return r.define(name, v)
}

func (r *Runtime) define(name string, v rbridge.Sexp) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseEval, "name cannot be empty")
	}
	r.native.Preserve(v)
	defer r.native.Release(v)

	key, err := r.eval(quote(name), r.native.BaseEnv())
	if err != nil {
		return err
	}
	r.native.Preserve(key)
	defer r.native.Release(key)

	assign, err := r.eval("assign", r.native.BaseEnv())
	if err != nil {
		return err
	}
	_, err = r.native.Call(assign, key, v)
	return err
}

// DefineFunc wraps fn and binds the closure to name in the global
// environment.
func (r *Runtime) DefineFunc(name string, fn any) error {
	if err := r.ready(errors.PhaseCallable); err != nil {
		return err
	}
	return r.defineFunc(name, fn)
}

func (r *Runtime) defineFunc(name string, fn any) error {
	closure, err := r.callables.Wrap(fn)
	if err != nil {
		return err
	}
	return r.define(name, closure)
}
