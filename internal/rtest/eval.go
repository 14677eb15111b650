package rtest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/rbridge"
)

func (f *Fake) installBuiltins() {
	specials := map[string]builtinFunc{
		"function": specialFunction,
		"{":        specialBrace,
		"quote":    specialQuote,
	}
	builtins := map[string]builtinFunc{
		".External": builtinExternal,
		"c":         builtinC,
		"sum":       builtinSum,
		"length":    builtinLength,
		"identity":  builtinIdentity,
		"list":      builtinList,
		"paste0":    builtinPaste0,
		"stop":      builtinStop,
		"warning":   builtinWarning,
		"cat":       builtinCat,
		"assign":    builtinAssign,
		"print":     builtinPrint,
		"readline":  builtinReadline,
	}

	base := f.get(f.baseEnv)
	for name, fn := range specials {
		base.vars[name] = f.alloc(&object{typ: rbridge.SPECIALSXP, name: name, builtin: fn})
	}
	for name, fn := range builtins {
		base.vars[name] = f.alloc(&object{typ: rbridge.BUILTINSXP, name: name, builtin: fn})
	}
}

// eval treats expression vectors as constants, like R's C-level eval.
func (f *Fake) eval(e, env rbridge.Sexp) (rbridge.Sexp, error) {
	o := f.get(e)
	switch o.typ {
	case rbridge.SYMSXP:
		return f.lookup(o.sym, env)
	case rbridge.LANGSXP:
		return f.evalCall(o, env)
	}
	return e, nil
}

func (f *Fake) lookup(name string, env rbridge.Sexp) (rbridge.Sexp, error) {
	for env != f.nilValue {
		eo := f.get(env)
		if v, ok := eo.vars[name]; ok {
			return v, nil
		}
		env = eo.parent
	}
	return 0, fmt.Errorf("object '%s' not found", name)
}

func isFunction(t rbridge.SexpType) bool {
	return t == rbridge.CLOSXP || t == rbridge.BUILTINSXP || t == rbridge.SPECIALSXP
}

func (f *Fake) lookupFunction(name string, env rbridge.Sexp) (rbridge.Sexp, error) {
	for env != f.nilValue {
		eo := f.get(env)
		if v, ok := eo.vars[name]; ok && isFunction(f.get(v).typ) {
			return v, nil
		}
		env = eo.parent
	}
	return 0, fmt.Errorf("could not find function \"%s\"", name)
}

func (f *Fake) evalCall(call *object, env rbridge.Sexp) (rbridge.Sexp, error) {
	if len(call.elems) == 0 {
		return 0, fmt.Errorf("empty call")
	}

	var (
		fn  rbridge.Sexp
		err error
	)
	if head := f.get(call.elems[0]); head.typ == rbridge.SYMSXP {
		fn, err = f.lookupFunction(head.sym, env)
	} else {
		fn, err = f.eval(call.elems[0], env)
	}
	if err != nil {
		return 0, err
	}

	if fo := f.get(fn); fo.typ == rbridge.SPECIALSXP {
		return fo.builtin(f, call.elems[1:], env)
	}

	args, err := f.evalArgs(call.elems[1:], env)
	if err != nil {
		return 0, err
	}
	return f.applyValue(fn, args, env)
}

// evalArgs evaluates call arguments, splicing the caller's `...`.
func (f *Fake) evalArgs(exprs []rbridge.Sexp, env rbridge.Sexp) ([]rbridge.Sexp, error) {
	args := make([]rbridge.Sexp, 0, len(exprs))
	for _, e := range exprs {
		if f.get(e).sym == "..." {
			dots, err := f.lookup("...", env)
			if err != nil {
				return nil, fmt.Errorf("'...' used in an incorrect context")
			}
			args = append(args, f.get(dots).elems...)
			continue
		}
		v, err := f.eval(e, env)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

func (f *Fake) applyValue(fn rbridge.Sexp, args []rbridge.Sexp, env rbridge.Sexp) (rbridge.Sexp, error) {
	fo := f.get(fn)
	switch fo.typ {
	case rbridge.BUILTINSXP:
		return fo.builtin(f, args, env)
	case rbridge.CLOSXP:
		return f.applyClosure(fo, args)
	}
	return 0, fmt.Errorf("attempt to apply non-function")
}

func (f *Fake) applyClosure(fo *object, args []rbridge.Sexp) (rbridge.Sexp, error) {
	local := f.newEnv(fo.env)
	vars := f.get(local).vars

	i := 0
	for _, p := range fo.formals {
		if p == "..." {
			rest := append([]rbridge.Sexp(nil), args[i:]...)
			vars["..."] = f.alloc(&object{typ: rbridge.LISTSXP, elems: rest})
			i = len(args)
			continue
		}
		if i < len(args) {
			vars[p] = args[i]
			i++
		}
	}
	if i < len(args) {
		return 0, fmt.Errorf("unused argument")
	}
	return f.eval(fo.body, local)
}

func specialFunction(f *Fake, args []rbridge.Sexp, env rbridge.Sexp) (rbridge.Sexp, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("invalid function definition")
	}
	return f.alloc(&object{
		typ:     rbridge.CLOSXP,
		formals: append([]string(nil), f.get(args[0]).strs...),
		body:    args[1],
		env:     env,
	}), nil
}

func specialBrace(f *Fake, args []rbridge.Sexp, env rbridge.Sexp) (rbridge.Sexp, error) {
	result := f.nilValue
	for _, e := range args {
		v, err := f.eval(e, env)
		if err != nil {
			return 0, err
		}
		result = v
	}
	return result, nil
}

func specialQuote(f *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%d arguments passed to 'quote' which requires 1", len(args))
	}
	return args[0], nil
}

func builtinExternal(f *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("'.NAME' is missing")
	}
	name := f.get(args[0])
	if name.typ != rbridge.STRSXP || len(name.strs) != 1 {
		return 0, fmt.Errorf("first argument must be a string")
	}
	d, ok := f.dispatch[name.strs[0]]
	if !ok {
		return 0, fmt.Errorf("could not find entry point \"%s\"", name.strs[0])
	}
	ptr := f.get(args[1])
	if ptr.typ != rbridge.EXTPTRSXP {
		return 0, fmt.Errorf("invalid external pointer")
	}
	res, err := d(ptr.addr, args[2:])
	if err != nil {
		return 0, err
	}
	if res == 0 {
		return f.nilValue, nil
	}
	return res, nil
}

func builtinC(f *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	target := rbridge.NILSXP
	for _, a := range args {
		switch t := f.get(a).typ; t {
		case rbridge.NILSXP:
		case rbridge.LGLSXP, rbridge.INTSXP, rbridge.REALSXP, rbridge.STRSXP:
			if t > target {
				target = t
			}
		default:
			return 0, fmt.Errorf("cannot combine %s", t)
		}
	}

	out := &object{typ: target}
	for _, a := range args {
		o := f.get(a)
		switch target {
		case rbridge.LGLSXP, rbridge.INTSXP:
			out.ints = append(out.ints, o.ints...)
		case rbridge.REALSXP:
			out.reals = append(out.reals, f.asReals(o)...)
		case rbridge.STRSXP:
			out.strs = append(out.strs, f.elements(o, false)...)
		}
	}
	if target == rbridge.NILSXP {
		return f.nilValue, nil
	}
	return f.alloc(out), nil
}

func (f *Fake) asReals(o *object) []float64 {
	if o.typ == rbridge.REALSXP {
		return o.reals
	}
	out := make([]float64, len(o.ints))
	for i, v := range o.ints {
		if v == math.MinInt32 {
			out[i] = NAReal
		} else {
			out[i] = float64(v)
		}
	}
	return out
}

func builtinSum(f *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	allInts := true
	var total float64
	for _, a := range args {
		o := f.get(a)
		switch o.typ {
		case rbridge.NILSXP:
		case rbridge.LGLSXP, rbridge.INTSXP:
			for _, v := range f.asReals(o) {
				total += v
			}
		case rbridge.REALSXP:
			allInts = false
			for _, v := range o.reals {
				total += v
			}
		default:
			return 0, fmt.Errorf("invalid 'type' (%s) of argument", o.typ)
		}
	}
	if allInts {
		return f.Int(int32(total)), nil
	}
	return f.Real(total), nil
}

func builtinLength(f *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%d arguments passed to 'length' which requires 1", len(args))
	}
	return f.Int(int32(f.Length(args[0]))), nil
}

func builtinIdentity(_ *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("unused argument")
	}
	return args[0], nil
}

func builtinList(f *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	return f.alloc(&object{typ: rbridge.VECSXP, elems: append([]rbridge.Sexp(nil), args...)}), nil
}

func builtinPaste0(f *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	var b strings.Builder
	for _, a := range args {
		for _, s := range f.elements(f.get(a), false) {
			b.WriteString(s)
		}
	}
	return f.String(b.String()), nil
}

func (f *Fake) message(args []rbridge.Sexp) string {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(strings.Join(f.elements(f.get(a), false), ""))
	}
	return b.String()
}

func builtinStop(f *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	return 0, fmt.Errorf("%s", f.message(args))
}

func builtinWarning(f *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	msg := f.message(args)
	if f.console != nil {
		f.console.WriteConsole("Warning message:\n"+msg+"\n", true)
	}
	return f.String(msg), nil
}

func builtinCat(f *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	var parts []string
	for _, a := range args {
		parts = append(parts, f.elements(f.get(a), false)...)
	}
	if f.console != nil {
		f.console.WriteConsole(strings.Join(parts, " "), false)
	}
	return f.nilValue, nil
}

func builtinAssign(f *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	if len(args) != 2 {
		return 0, fmt.Errorf("assign requires a name and a value")
	}
	if f.AssignErr != nil {
		return 0, f.AssignErr
	}
	name := f.get(args[0])
	if name.typ != rbridge.STRSXP || len(name.strs) != 1 {
		return 0, fmt.Errorf("invalid first argument")
	}
	f.Define(name.strs[0], args[1])
	return args[1], nil
}

func builtinPrint(f *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("print requires one argument")
	}
	f.PrintValue(args[0])
	return args[0], nil
}

func builtinReadline(f *Fake, args []rbridge.Sexp, _ rbridge.Sexp) (rbridge.Sexp, error) {
	if f.console == nil {
		return f.String(""), nil
	}
	line, err := f.console.ReadConsole(f.message(args))
	if err != nil {
		return f.String(""), nil
	}
	return f.String(strings.TrimSuffix(line, "\n")), nil
}

// elements renders each element of an atomic vector as text.
func (f *Fake) elements(o *object, quote bool) []string {
	var out []string
	switch o.typ {
	case rbridge.LGLSXP:
		for _, v := range o.ints {
			switch v {
			case math.MinInt32:
				out = append(out, "NA")
			case 0:
				out = append(out, "FALSE")
			default:
				out = append(out, "TRUE")
			}
		}
	case rbridge.INTSXP:
		for _, v := range o.ints {
			if v == math.MinInt32 {
				out = append(out, "NA")
			} else {
				out = append(out, strconv.Itoa(int(v)))
			}
		}
	case rbridge.REALSXP:
		for _, v := range o.reals {
			if math.Float64bits(v) == math.Float64bits(NAReal) {
				out = append(out, "NA")
			} else {
				out = append(out, strconv.FormatFloat(v, 'g', -1, 64))
			}
		}
	case rbridge.STRSXP:
		for _, s := range o.strs {
			if quote {
				s = strconv.Quote(s)
			}
			out = append(out, s)
		}
	}
	return out
}

func (f *Fake) format(s rbridge.Sexp) string {
	o := f.get(s)
	switch o.typ {
	case rbridge.NILSXP:
		return "NULL\n"
	case rbridge.LGLSXP, rbridge.INTSXP, rbridge.REALSXP, rbridge.STRSXP:
		return "[1] " + strings.Join(f.elements(o, true), " ") + "\n"
	case rbridge.VECSXP:
		var b strings.Builder
		for i, e := range o.elems {
			fmt.Fprintf(&b, "[[%d]]\n%s\n", i+1, f.format(e))
		}
		return b.String()
	case rbridge.CLOSXP:
		return "function(" + strings.Join(o.formals, ", ") + ") <closure>\n"
	case rbridge.BUILTINSXP, rbridge.SPECIALSXP:
		return ".Primitive(\"" + o.name + "\")\n"
	case rbridge.EXTPTRSXP:
		return fmt.Sprintf("<pointer: 0x%x>\n", o.addr)
	case rbridge.ENVSXP:
		return "<environment>\n"
	case rbridge.SYMSXP:
		return o.sym + "\n"
	}
	return "<" + o.typ.String() + ">\n"
}
