// Package console routes R's console callbacks to Go handlers.
//
// R calls back into its host through seven hooks. A Registry holds one
// handler per hook:
//
//	Slot            R hook                 default behaviour
//	───────────────────────────────────────────────────────────────────
//	SlotPrint       WriteConsoleEx(otype=0) write verbatim to Out
//	SlotWarn        WriteConsoleEx(otype=1) emit an RRuntimeWarning
//	SlotFlush       FlushConsole           flush Out when it buffers
//	SlotRead        ReadConsole            prompt, read a line, keep "\n"
//	SlotMessage     ShowMessage            write verbatim to Out
//	SlotChooseFile  ChooseFile             prompt, read a line, no "\n"
//	SlotShowFiles   ShowFiles              header, then title + file bytes
//
// Installing a handler replaces the previous one atomically; handlers are
// never stacked. The native layer is given the Registry itself, so
// replacing a handler takes effect on the next callback without touching R.
//
//	reg := console.NewRegistry()
//	reg.InstallDefaults(console.Streams{})
//	reg.InstallPrint(func(text string) { buf.WriteString(text) })
//
// Warnings written by R are surfaced as Warning values with category
// CategoryRuntime so they can be filtered separately from host warnings:
//
//	reg.Warnings().AddFilter(console.Filter{
//	    Category: console.CategoryRuntime,
//	    Contains: "NAs introduced by coercion",
//	    Action:   console.ActionIgnore,
//	})
package console
