package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/rbridge/console"
)

func newReplCmd(a *app) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive R console",
		Long: `Start an interactive R console. On a terminal the console is a
full-screen view; otherwise, or with --plain, lines are read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(a.stdin)
			cons := console.NewRegistry()
			cons.InstallDefaults(console.Streams{In: in, Out: cmd.OutOrStdout()})

			rt := a.newRuntime(cons)
			if err := rt.Initialize(cmd.Context()); err != nil {
				return err
			}
			defer rt.Finalize()

			if plain || !isTerminal(a.stdin) {
				cons.InstallRead(func(prompt string) (string, error) {
					io.WriteString(cmd.OutOrStdout(), prompt)
					return readLine(in)
				})
				return runLineRepl(cmd.Context(), in, cmd.OutOrStdout(), newEvaluator(rt, cons).eval)
			}

			cons.InstallRead(func(string) (string, error) { return "", io.EOF })
			cons.InstallChooseFile(func(string) (string, error) { return "", io.EOF })
			return runTUI(cmd.Context(), newEvaluator(rt, cons).eval, a.stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "read lines from stdin even on a terminal")
	return cmd
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if line == "" && err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	return line + "\n", nil
}

// runLineRepl reads R source line by line, continuing incomplete
// expressions with a "+ " prompt like R's own terminal. It stops before
// the next prompt once ctx is done.
func runLineRepl(ctx context.Context, in *bufio.Reader, out io.Writer, eval evalFunc) error {
	var pending strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		prompt := "> "
		if pending.Len() > 0 {
			prompt = "+ "
		}
		io.WriteString(out, prompt)

		line, err := readLine(in)
		if err == io.EOF {
			io.WriteString(out, "\n")
			return nil
		}
		if err != nil {
			return err
		}

		pending.WriteString(line)
		res := eval(pending.String())
		if res.incomplete {
			continue
		}
		pending.Reset()
		writeOutput(out, res)
	}
}

// runTUI runs the full-screen console. R stays on the calling goroutine;
// the UI runs on its own and sends input back through an evalServer.
// Cancelling ctx closes the UI and returns control to the caller.
func runTUI(ctx context.Context, eval evalFunc, in io.Reader, out io.Writer) error {
	server := newEvalServer()
	done := make(chan error, 1)

	go func() {
		p := tea.NewProgram(newReplModel(server.eval),
			tea.WithAltScreen(),
			tea.WithContext(ctx),
			tea.WithInput(in),
			tea.WithOutput(out),
		)
		_, err := p.Run()
		server.close()
		done <- err
	}()

	server.serve(eval)
	err := <-done
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
