package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/rbridge/session"
)

func newSessionCmd(a *app) *cobra.Command {
	var raw string

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show the session channel and whether R counts as already running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.session()
			info := c.Read()
			if cmd.Flags().Changed("raw") {
				info = c.ReadOverride(raw)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s:\n", c.InboundKey())
			for _, k := range info.Keys() {
				v, _ := info.Get(k)
				fmt.Fprintf(out, "  %s = %s\n", k, v)
			}
			if published, ok := c.Published(); ok {
				fmt.Fprintf(out, "%s:\n", c.OutboundKey())
				for _, k := range published.Keys() {
					v, _ := published.Get(k)
					fmt.Fprintf(out, "  %s = %s\n", k, v)
				}
			}

			state := "no"
			if session.IsExternallyInitializedIn(info) {
				state = "yes"
			}
			fmt.Fprintf(out, "externally initialized: %s\n", state)
			return nil
		},
	}
	cmd.Flags().StringVar(&raw, "raw", "", "parse this value instead of the inbound variable")
	return cmd
}
