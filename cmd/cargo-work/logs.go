package main

import (
	"github.com/spf13/cobra"

	"go.horsed.dev/horsed/schema"
)

func newLogsCommand(opts *clientOptions) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "stream the server's live log buffer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.mergedEnv(nil)
			if err != nil {
				return err
			}
			session, err := dial(opts, schema.ActionLogs, env)
			if err != nil {
				return err
			}
			defer session.Close()

			payload := ""
			if follow {
				payload = "-f"
			}
			code, err := session.Exec(payload, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return asExitError(code, err)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep streaming new lines until interrupted")
	return cmd
}
