package libr

import (
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/wippyai/rbridge/errors"
)

// Parse status codes from R_ext/Parse.h.
const (
	parseNull = iota
	parseOK
	parseIncomplete
	parseError
	parseEOF
)

// functions holds libR's exported functions. SEXP is carried as uintptr.
type functions struct {
	initializeR       func(argc int32, argv **byte) int32
	setupMainloop     func()
	endEmbeddedR      func(fatal int32)
	parseVector       func(text uintptr, n int32, status *int32, srcfile uintptr) uintptr
	mkString          func(s string) uintptr
	tryEval           func(e, env uintptr, errorOccurred *int32) uintptr
	makeExternalPtr   func(p, tag, prot uintptr) uintptr
	externalPtrAddr   func(s uintptr) uintptr
	registerFinalizer func(s, fun uintptr, onexit int32)
	install           func(name string) uintptr
	vectorElt         func(x uintptr, i int) uintptr
	setVectorElt      func(x uintptr, i int, v uintptr) uintptr
	stringElt         func(x uintptr, i int) uintptr
	char              func(x uintptr) string
	car               func(x uintptr) uintptr
	cdr               func(x uintptr) uintptr
	setcar            func(x, y uintptr) uintptr
	nthcdr            func(x uintptr, n int32) uintptr
	cons              func(car, cdr uintptr) uintptr
	lcons             func(car, cdr uintptr) uintptr
	lang1             func(s uintptr) uintptr
	duplicate         func(x uintptr) uintptr
	preserve          func(x uintptr)
	release           func(x uintptr)
	printValue        func(x uintptr)
	protect           func(x uintptr) uintptr
	unprotect         func(n int32)
	typeOf            func(x uintptr) int32
	length            func(x uintptr) int32
	registerRoutines  func(info, c, call, fortran, external uintptr) int32
	embeddingDllInfo  func() uintptr
}

// variables holds addresses of libR's exported globals.
type variables struct {
	nilValue  uintptr
	globalEnv uintptr
	baseEnv   uintptr
	naInt     uintptr
	naReal    uintptr
}

func (f *functions) table() []struct {
	name string
	fptr any
} {
	return []struct {
		name string
		fptr any
	}{
		{"Rf_initialize_R", &f.initializeR},
		{"setup_Rmainloop", &f.setupMainloop},
		{"Rf_endEmbeddedR", &f.endEmbeddedR},
		{"R_ParseVector", &f.parseVector},
		{"Rf_mkString", &f.mkString},
		{"R_tryEval", &f.tryEval},
		{"R_MakeExternalPtr", &f.makeExternalPtr},
		{"R_ExternalPtrAddr", &f.externalPtrAddr},
		{"R_RegisterCFinalizerEx", &f.registerFinalizer},
		{"Rf_install", &f.install},
		{"VECTOR_ELT", &f.vectorElt},
		{"SET_VECTOR_ELT", &f.setVectorElt},
		{"STRING_ELT", &f.stringElt},
		{"R_CHAR", &f.char},
		{"CAR", &f.car},
		{"CDR", &f.cdr},
		{"SETCAR", &f.setcar},
		{"Rf_nthcdr", &f.nthcdr},
		{"Rf_cons", &f.cons},
		{"Rf_lcons", &f.lcons},
		{"Rf_lang1", &f.lang1},
		{"Rf_duplicate", &f.duplicate},
		{"R_PreserveObject", &f.preserve},
		{"R_ReleaseObject", &f.release},
		{"Rf_PrintValue", &f.printValue},
		{"Rf_protect", &f.protect},
		{"Rf_unprotect", &f.unprotect},
		{"TYPEOF", &f.typeOf},
		{"Rf_length", &f.length},
		{"R_registerRoutines", &f.registerRoutines},
		{"R_getEmbeddingDllInfo", &f.embeddingDllInfo},
	}
}

func bindFunctions(handle uintptr, f *functions) error {
	for _, s := range f.table() {
		addr, err := lookup(handle, s.name)
		if err != nil {
			return errors.New(errors.PhaseLoad, errors.KindNotFound).
				Path(s.name).
				Cause(err).
				Detail("resolve libR symbol").
				Build()
		}
		purego.RegisterFunc(s.fptr, addr)
	}
	return nil
}

func bindVariables(handle uintptr, v *variables) error {
	for _, s := range []struct {
		name string
		dst  *uintptr
	}{
		{"R_NilValue", &v.nilValue},
		{"R_GlobalEnv", &v.globalEnv},
		{"R_BaseEnv", &v.baseEnv},
		{"R_NaInt", &v.naInt},
		{"R_NaReal", &v.naReal},
	} {
		addr, err := lookup(handle, s.name)
		if err != nil {
			return errors.New(errors.PhaseLoad, errors.KindNotFound).
				Path(s.name).
				Cause(err).
				Detail("resolve libR variable").
				Build()
		}
		*s.dst = addr
	}
	return nil
}

// The helpers below read and write C globals through their addresses.
// The addresses come from dlsym and point into libR's data segment, which
// the Go garbage collector neither moves nor frees, so converting them to
// unsafe.Pointer is sound even though vet cannot prove it.

func loadUintptr(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func storeUintptr(addr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v
}

func loadInt32(addr uintptr) int32 {
	return *(*int32)(unsafe.Pointer(addr))
}

func storeInt32(addr uintptr, v int32) {
	*(*int32)(unsafe.Pointer(addr)) = v
}

func uintptrOf[T any](p *T) uintptr {
	return uintptr(unsafe.Pointer(p))
}

func loadFloat64(addr uintptr) float64 {
	return *(*float64)(unsafe.Pointer(addr))
}
