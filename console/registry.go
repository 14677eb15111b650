package console

import (
	"io"
	"sync/atomic"

	"github.com/wippyai/rbridge"
)

// Slot names one of R's console hooks.
type Slot int

const (
	SlotPrint Slot = iota
	SlotWarn
	SlotFlush
	SlotRead
	SlotMessage
	SlotChooseFile
	SlotShowFiles
)

var slotNames = [...]string{
	SlotPrint:      "print",
	SlotWarn:       "warn",
	SlotFlush:      "flush",
	SlotRead:       "read",
	SlotMessage:    "message",
	SlotChooseFile: "choose-file",
	SlotShowFiles:  "show-files",
}

func (s Slot) String() string {
	if s >= 0 && int(s) < len(slotNames) {
		return slotNames[s]
	}
	return "unknown"
}

// Slots lists all hooks in declaration order.
func Slots() []Slot {
	return []Slot{SlotPrint, SlotWarn, SlotFlush, SlotRead, SlotMessage, SlotChooseFile, SlotShowFiles}
}

type (
	PrintFunc      func(text string)
	WarnFunc       func(text string)
	FlushFunc      func()
	ReadFunc       func(prompt string) (string, error)
	MessageFunc    func(text string)
	ChooseFileFunc func(prompt string) (string, error)
	ShowFilesFunc  func(req ShowFilesRequest) (int, error)
)

// ShowFilesRequest is what R passes to its show-files hook.
type ShowFilesRequest struct {
	// Header is written once before the blocks.
	Header string
	// Pager is R's pager hint; informational.
	Pager  string
	Blocks []rbridge.FileBlock
	// Delete asks for the files to be removed once shown.
	Delete bool
}

// Registry holds the current handler of every slot. It implements
// rbridge.Console.
type Registry struct {
	print      atomic.Pointer[PrintFunc]
	warn       atomic.Pointer[WarnFunc]
	flush      atomic.Pointer[FlushFunc]
	read       atomic.Pointer[ReadFunc]
	message    atomic.Pointer[MessageFunc]
	chooseFile atomic.Pointer[ChooseFileFunc]
	showFiles  atomic.Pointer[ShowFilesFunc]
	warnings   *Warnings
}

var _ rbridge.Console = (*Registry)(nil)

// NewRegistry creates a registry with every slot empty.
// Empty slots discard output and report end-of-input on reads.
func NewRegistry() *Registry {
	return &Registry{warnings: NewWarnings()}
}

// Warnings returns the registry's warning dispatcher.
func (r *Registry) Warnings() *Warnings {
	return r.warnings
}

func (r *Registry) InstallPrint(fn PrintFunc)           { r.print.Store(&fn) }
func (r *Registry) InstallWarn(fn WarnFunc)             { r.warn.Store(&fn) }
func (r *Registry) InstallFlush(fn FlushFunc)           { r.flush.Store(&fn) }
func (r *Registry) InstallRead(fn ReadFunc)             { r.read.Store(&fn) }
func (r *Registry) InstallMessage(fn MessageFunc)       { r.message.Store(&fn) }
func (r *Registry) InstallChooseFile(fn ChooseFileFunc) { r.chooseFile.Store(&fn) }
func (r *Registry) InstallShowFiles(fn ShowFilesFunc)   { r.showFiles.Store(&fn) }

// Installed reports whether slot currently has a handler.
func (r *Registry) Installed(slot Slot) bool {
	switch slot {
	case SlotPrint:
		return r.print.Load() != nil
	case SlotWarn:
		return r.warn.Load() != nil
	case SlotFlush:
		return r.flush.Load() != nil
	case SlotRead:
		return r.read.Load() != nil
	case SlotMessage:
		return r.message.Load() != nil
	case SlotChooseFile:
		return r.chooseFile.Load() != nil
	case SlotShowFiles:
		return r.showFiles.Load() != nil
	}
	return false
}

// InstallDefaults installs the stdio-backed handler in every slot.
func (r *Registry) InstallDefaults(s Streams) {
	d := newDefaults(s)
	r.InstallPrint(d.print)
	r.InstallWarn(func(text string) {
		r.warnings.Emit(Warning{Category: CategoryRuntime, Message: text})
	})
	r.InstallFlush(d.flush)
	r.InstallRead(d.read)
	r.InstallMessage(d.message)
	r.InstallChooseFile(d.chooseFile)
	r.InstallShowFiles(d.showFiles)
}

// WriteConsole implements rbridge.Console.
func (r *Registry) WriteConsole(text string, warn bool) {
	if warn {
		if fn := r.warn.Load(); fn != nil {
			(*fn)(text)
		}
		return
	}
	if fn := r.print.Load(); fn != nil {
		(*fn)(text)
	}
}

// FlushConsole implements rbridge.Console.
func (r *Registry) FlushConsole() {
	if fn := r.flush.Load(); fn != nil {
		(*fn)()
	}
}

// ReadConsole implements rbridge.Console.
func (r *Registry) ReadConsole(prompt string) (string, error) {
	if fn := r.read.Load(); fn != nil {
		return (*fn)(prompt)
	}
	return "", io.EOF
}

// ShowMessage implements rbridge.Console.
func (r *Registry) ShowMessage(text string) {
	if fn := r.message.Load(); fn != nil {
		(*fn)(text)
	}
}

// ChooseFile implements rbridge.Console.
func (r *Registry) ChooseFile(prompt string) (string, error) {
	if fn := r.chooseFile.Load(); fn != nil {
		return (*fn)(prompt)
	}
	return "", io.EOF
}

// ShowFiles implements rbridge.Console.
func (r *Registry) ShowFiles(blocks []rbridge.FileBlock, del bool, header, pager string) (int, error) {
	fn := r.showFiles.Load()
	if fn == nil {
		return 0, nil
	}
	return (*fn)(ShowFilesRequest{
		Header: header,
		Pager:  pager,
		Blocks: blocks,
		Delete: del,
	})
}
