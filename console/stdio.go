package console

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/rbridge/errors"
)

// Streams are the host streams the default handlers use.
// Nil fields resolve to os.Stdin / os.Stdout at call time, so
// reassigning os.Stdout after installation is honoured.
type Streams struct {
	In  io.Reader
	Out io.Writer
}

func (s Streams) out() io.Writer {
	if s.Out != nil {
		return s.Out
	}
	return os.Stdout
}

type defaults struct {
	streams Streams
	in      *bufio.Reader
	inSrc   io.Reader
	mu      sync.Mutex
}

func newDefaults(s Streams) *defaults {
	return &defaults{streams: s}
}

// reader keeps one bufio.Reader per underlying source so bytes buffered
// by one read are not lost to the next.
func (d *defaults) reader() *bufio.Reader {
	src := d.streams.In
	if src == nil {
		src = os.Stdin
	}
	if d.in == nil || d.inSrc != src {
		d.in = bufio.NewReader(src)
		d.inSrc = src
	}
	return d.in
}

func (d *defaults) print(text string) {
	io.WriteString(d.streams.out(), text)
}

func (d *defaults) message(text string) {
	io.WriteString(d.streams.out(), text)
}

func (d *defaults) flush() {
	if err := flushWriter(d.streams.out()); err != nil {
		Logger().Debug("flush console output", zap.Error(err))
	}
}

// flushWriter pushes buffered output of w to its destination. Buffered
// writers are flushed; files such as os.Stdout are synced.
func flushWriter(w io.Writer) error {
	switch f := w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case interface{ Sync() error }:
		return f.Sync()
	}
	return nil
}

// readLine displays prompt and reads one line without its terminator.
// A final line without newline is returned as is; io.EOF is returned
// only when nothing was read.
func (d *defaults) readLine(prompt string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := d.streams.out()
	io.WriteString(out, prompt)
	flushWriter(out)

	line, err := d.reader().ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (d *defaults) read(prompt string) (string, error) {
	line, err := d.readLine(prompt)
	if err != nil {
		return "", err
	}
	return line + "\n", nil
}

func (d *defaults) chooseFile(prompt string) (string, error) {
	return d.readLine(prompt)
}

func (d *defaults) showFiles(req ShowFilesRequest) (int, error) {
	return ShowFilesTo(d.streams.out(), req)
}

// ShowFilesTo writes req.Header, then each block's title immediately
// followed by the exact bytes of its file. An unreadable file aborts the
// operation with an error; nothing is retried.
func ShowFilesTo(w io.Writer, req ShowFilesRequest) (int, error) {
	if _, err := io.WriteString(w, req.Header); err != nil {
		return 0, errors.IO("write header", "", err)
	}

	for _, b := range req.Blocks {
		if _, err := io.WriteString(w, b.Title); err != nil {
			return 0, errors.IO("write title", b.Path, err)
		}
		if err := copyFile(w, b.Path); err != nil {
			return 0, err
		}
		if req.Delete {
			if err := os.Remove(b.Path); err != nil {
				Logger().Warn("remove shown file", zap.String("path", b.Path), zap.Error(err))
			}
		}
	}
	return 0, nil
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.IO("open file", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return errors.IO("copy file", path, err)
	}
	return nil
}
