package libr

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	"github.com/wippyai/rbridge"
)

// chooseFilePrompt is what R's own terminal front end prints.
const chooseFilePrompt = "Enter file name: "

// purego callbacks are a finite process resource; each is created once.
var (
	externalOnce sync.Once
	externalCB   uintptr

	finalizerOnce sync.Once
	finalizerCB   uintptr

	consoleOnce sync.Once
	consoleCB   consoleCallbacks
)

type consoleCallbacks struct {
	writeEx    uintptr
	read       uintptr
	flush      uintptr
	message    uintptr
	chooseFile uintptr
	showFiles  uintptr
}

func externalTrampoline() uintptr {
	externalOnce.Do(func() {
		externalCB = purego.NewCallback(onExternal)
	})
	return externalCB
}

func finalizerTrampoline() uintptr {
	finalizerOnce.Do(func() {
		finalizerCB = purego.NewCallback(onFinalize)
	})
	return finalizerCB
}

func consoleTrampolines() consoleCallbacks {
	consoleOnce.Do(func() {
		consoleCB = consoleCallbacks{
			writeEx:    purego.NewCallback(onWriteConsoleEx),
			read:       purego.NewCallback(onReadConsole),
			flush:      purego.NewCallback(onFlushConsole),
			message:    purego.NewCallback(onShowMessage),
			chooseFile: purego.NewCallback(onChooseFile),
			showFiles:  purego.NewCallback(onShowFiles),
		}
	})
	return consoleCB
}

// onExternal receives the whole `.External` argument pairlist: the
// routine name, the external pointer, then the call's arguments.
func onExternal(args uintptr) uintptr {
	l := active.Load()
	if l == nil {
		return 0
	}
	nilValue := uintptr(l.Nil())

	all := l.pairlist(args)
	if len(all) < 2 {
		l.reportError(".External", fmt.Errorf("expected a routine name and an external pointer"))
		return nilValue
	}

	name := ""
	if l.TypeOf(all[0]) == rbridge.STRSXP && l.Length(all[0]) > 0 {
		name = l.fn.char(l.fn.stringElt(uintptr(all[0]), 0))
	}
	d, ok := dispatcher(name)
	if !ok {
		l.reportError(name, fmt.Errorf("no Go dispatcher registered"))
		return nilValue
	}

	res, err := d(l.ExternalPtrAddr(all[1]), all[2:])
	if err != nil {
		l.reportError(name, err)
		return nilValue
	}
	if res == 0 {
		return nilValue
	}
	return uintptr(res)
}

// reportError writes err to R's warning stream. Raising an R error here
// would longjmp across Go frames.
func (l *Lib) reportError(where string, err error) {
	Logger().Warn("Go callable failed", zap.String("routine", where), zap.Error(err))
	if c := l.currentConsole(); c != nil {
		c.WriteConsole("Error in "+where+": "+err.Error()+"\n", true)
	}
}

func onFinalize(s uintptr) {
	l := active.Load()
	if l == nil {
		return
	}
	finalize(l.fn.externalPtrAddr(s))
}

func onWriteConsoleEx(buf *byte, n int32, otype int32) {
	l := active.Load()
	if l == nil || n <= 0 {
		return
	}
	if c := l.currentConsole(); c != nil {
		c.WriteConsole(string(unsafe.Slice(buf, n)), otype != 0)
	}
}

// copyLine writes s into R's buffer of size n, NUL-terminated and
// truncated to fit.
func copyLine(buf *byte, n int32, s string) int {
	if n <= 0 {
		return 0
	}
	dst := unsafe.Slice(buf, n)
	k := copy(dst[:n-1], s)
	dst[k] = 0
	return k
}

func onReadConsole(prompt *byte, buf *byte, n int32, _ int32) int32 {
	l := active.Load()
	if l == nil {
		return 0
	}
	c := l.currentConsole()
	if c == nil {
		return 0
	}
	line, err := c.ReadConsole(cString(prompt))
	if err != nil {
		return 0
	}
	copyLine(buf, n, line)
	return 1
}

func onFlushConsole() {
	if l := active.Load(); l != nil {
		if c := l.currentConsole(); c != nil {
			c.FlushConsole()
		}
	}
}

func onShowMessage(msg *byte) {
	if l := active.Load(); l != nil {
		if c := l.currentConsole(); c != nil {
			c.ShowMessage(cString(msg))
		}
	}
}

func onChooseFile(_ int32, buf *byte, n int32) int32 {
	l := active.Load()
	if l == nil {
		return 0
	}
	c := l.currentConsole()
	if c == nil {
		return 0
	}
	name, err := c.ChooseFile(chooseFilePrompt)
	if err != nil {
		return 0
	}
	return int32(copyLine(buf, n, name))
}

func onShowFiles(nfile int32, files, headers **byte, title *byte, del int32, pager *byte) int32 {
	l := active.Load()
	if l == nil || nfile <= 0 {
		return 0
	}
	c := l.currentConsole()
	if c == nil {
		return 0
	}

	paths := unsafe.Slice(files, nfile)
	heads := unsafe.Slice(headers, nfile)
	blocks := make([]rbridge.FileBlock, nfile)
	for i := range blocks {
		blocks[i] = rbridge.FileBlock{Title: cString(heads[i]), Path: cString(paths[i])}
	}

	code, err := c.ShowFiles(blocks, del != 0, cString(title), cString(pager))
	if err != nil {
		l.reportError("show files", err)
		return 1
	}
	return int32(code)
}
