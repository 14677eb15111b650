//go:build linux || darwin || freebsd

package libr

import (
	"go.uber.org/zap"

	"github.com/wippyai/rbridge/errors"
)

// frontEnd holds the addresses of the Unix front-end globals R consults
// during startup and for console I/O.
type frontEnd struct {
	signalHandlers uintptr
	cStackLimit    uintptr
	interactive    uintptr
	outputFile     uintptr
	consoleFile    uintptr

	writeConsole   uintptr
	writeConsoleEx uintptr
	readConsole    uintptr
	flushConsole   uintptr
	showMessage    uintptr
	chooseFile     uintptr
	showFiles      uintptr
}

func (l *Lib) frontEnd() (*frontEnd, error) {
	var fe frontEnd
	for _, s := range []struct {
		name string
		dst  *uintptr
	}{
		{"R_SignalHandlers", &fe.signalHandlers},
		{"R_CStackLimit", &fe.cStackLimit},
		{"R_Interactive", &fe.interactive},
		{"R_Outputfile", &fe.outputFile},
		{"R_Consolefile", &fe.consoleFile},
		{"ptr_R_WriteConsole", &fe.writeConsole},
		{"ptr_R_WriteConsoleEx", &fe.writeConsoleEx},
		{"ptr_R_ReadConsole", &fe.readConsole},
		{"ptr_R_FlushConsole", &fe.flushConsole},
		{"ptr_R_ShowMessage", &fe.showMessage},
		{"ptr_R_ChooseFile", &fe.chooseFile},
		{"ptr_R_ShowFiles", &fe.showFiles},
	} {
		addr, err := lookup(l.handle, s.name)
		if err != nil {
			return nil, errors.New(errors.PhaseInit, errors.KindNotFound).
				Path(s.name).
				Cause(err).
				Detail("resolve R front-end variable").
				Build()
		}
		*s.dst = addr
	}
	return &fe, nil
}

// Start runs R's embedded startup: argument processing, console hook
// installation, then the main loop setup. R's own signal handlers and
// C stack checking are disabled since the Go runtime owns both.
func (l *Lib) Start(args []string, interactive bool) error {
	if !l.bound {
		return errors.NotInitialized(errors.PhaseInit, "libR binding")
	}
	if !running.CompareAndSwap(false, true) {
		return errors.InvalidState(errors.PhaseInit, "R is already running in this process")
	}
	fe, err := l.frontEnd()
	if err != nil {
		running.Store(false)
		return err
	}

	storeInt32(fe.signalHandlers, 0)

	argv := make([]*byte, len(args)+1)
	for i, a := range args {
		b := append([]byte(a), 0)
		l.pinner.Pin(&b[0])
		argv[i] = &b[0]
	}
	l.pinner.Pin(&argv[0])
	if rc := l.fn.initializeR(int32(len(args)), &argv[0]); rc != 0 {
		l.pinner.Unpin()
		running.Store(false)
		return errors.New(errors.PhaseInit, errors.KindStartup).
			Value(rc).
			Detail("Rf_initialize_R returned %d", rc).
			Build()
	}

	storeUintptr(fe.cStackLimit, ^uintptr(0))
	if interactive {
		storeInt32(fe.interactive, 1)
	} else {
		storeInt32(fe.interactive, 0)
	}

	cb := consoleTrampolines()
	storeUintptr(fe.outputFile, 0)
	storeUintptr(fe.consoleFile, 0)
	storeUintptr(fe.writeConsole, 0)
	storeUintptr(fe.writeConsoleEx, cb.writeEx)
	storeUintptr(fe.readConsole, cb.read)
	storeUintptr(fe.flushConsole, cb.flush)
	storeUintptr(fe.showMessage, cb.message)
	storeUintptr(fe.chooseFile, cb.chooseFile)
	storeUintptr(fe.showFiles, cb.showFiles)

	l.fn.setupMainloop()

	if err := l.registerRoutines(); err != nil {
		Logger().Warn("register .External routines", zap.Error(err))
	}
	Logger().Info("embedded R started", zap.Strings("args", args), zap.Bool("interactive", interactive))
	return nil
}
