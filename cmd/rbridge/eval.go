package main

import (
	"github.com/spf13/cobra"

	"github.com/wippyai/rbridge/console"
)

func newEvalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "eval EXPR...",
		Short: "Evaluate R expressions and print their values",
		Long: `Evaluate each argument as R source in the global environment and
print its value. Evaluation stops at the first error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cons := console.NewRegistry()
			cons.InstallDefaults(console.Streams{In: a.stdin, Out: cmd.OutOrStdout()})

			rt := a.newRuntime(cons)
			if err := rt.Initialize(cmd.Context()); err != nil {
				return err
			}
			defer rt.Finalize()

			for _, src := range args {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				v, err := rt.Eval(src)
				if err != nil {
					return err
				}
				if v == rt.Native().Nil() {
					continue
				}
				if err := rt.Print(v); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
