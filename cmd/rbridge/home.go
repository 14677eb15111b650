package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/rbridge/loader"
	"github.com/wippyai/rbridge/locate"
)

func newHomeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Show the R installation rbridge would embed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc := a.locator()
			home, source, err := loc.Find(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "home:    %s (%s)\n", home, source)
			fmt.Fprintf(out, "library: %s\n", loader.LibraryPath(home))

			ver, err := loc.Version(cmd.Context(), home)
			if err != nil {
				a.logger.Debug("read R version", zap.Error(err))
				fmt.Fprintln(out, "version: unknown")
				return nil
			}
			fmt.Fprintf(out, "version: %s\n", ver)

			if a.cfg.MinVersion != "" {
				return locate.CheckVersion(ver, a.cfg.MinVersion)
			}
			return nil
		},
	}
}
