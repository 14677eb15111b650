package loader

import (
	stderrors "errors"
	"path/filepath"
	"testing"

	"github.com/wippyai/rbridge/errors"
)

func TestLibraryPath(t *testing.T) {
	home := filepath.Join("opt", "R")
	tests := []struct {
		goos, arch string
		want       string
	}{
		{"linux", "x64", filepath.Join(home, "lib", "libR.so")},
		{"freebsd", "x64", filepath.Join(home, "lib", "libR.so")},
		{"darwin", "x64", filepath.Join(home, "lib", "libR.dylib")},
		{"windows", "x64", filepath.Join(home, "bin", "x64", "R.dll")},
		{"windows", "i386", filepath.Join(home, "bin", "i386", "R.dll")},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.arch, func(t *testing.T) {
			if got := libraryPath(home, tt.goos, tt.arch); got != tt.want {
				t.Errorf("libraryPath = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArch(t *testing.T) {
	if archFor(8) != "x64" {
		t.Error("8-byte pointers should map to x64")
	}
	if archFor(4) != "i386" {
		t.Error("4-byte pointers should map to i386")
	}
}

func TestPrependSearchPath(t *testing.T) {
	tests := []struct {
		name    string
		current string
		sep     string
		dirs    []string
		want    string
	}{
		{"empty current", "", ";", []string{`C:\R\bin\x64`, `C:\R\modules\x64`}, `C:\R\bin\x64;C:\R\modules\x64`},
		{"prepends", `C:\Windows`, ";", []string{`C:\R\bin\x64`}, `C:\R\bin\x64;C:\Windows`},
		{"already present", `C:\R\bin\x64;C:\Windows`, ";", []string{`C:\R\bin\x64`}, `C:\R\bin\x64;C:\Windows`},
		{"partial", `C:\R\bin\x64;C:\Windows`, ";", []string{`C:\R\bin\x64`, `C:\R\modules\x64`}, `C:\R\modules\x64;C:\R\bin\x64;C:\Windows`},
		{"duplicates in dirs", "/usr/bin", ":", []string{"/r", "/r"}, "/r:/usr/bin"},
		{"empty dir ignored", "/usr/bin", ":", []string{""}, "/usr/bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := prependSearchPath(tt.current, tt.sep, tt.dirs...); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad_MissingLibrary(t *testing.T) {
	home := t.TempDir()
	h, err := New(nil).Load(home)
	if err == nil && h.Linked {
		t.Skip("libR is linked into the test binary")
	}

	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindLibraryNotFound}) {
		t.Fatalf("err = %v, want library not found", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Value != LibraryPath(home) {
		t.Errorf("error should carry the probed path %q: %v", LibraryPath(home), err)
	}
}

func TestLoad_Once(t *testing.T) {
	l := New(nil)
	_, first := l.Load(t.TempDir())
	_, second := l.Load(t.TempDir())
	if first != second {
		t.Errorf("second Load returned %v, want cached %v", second, first)
	}
}
