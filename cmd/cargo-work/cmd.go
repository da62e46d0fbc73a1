package main

import (
	"strings"

	"github.com/spf13/cobra"

	"go.horsed.dev/horsed/schema"
)

func newCmdCommand(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cmd -- <script>",
		Short: "run a shell script on the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.mergedEnv(nil)
			if err != nil {
				return err
			}
			session, err := dial(opts, schema.ActionCmd, env)
			if err != nil {
				return err
			}
			defer session.Close()

			script := strings.Join(args, " ")
			code, err := session.Exec(script, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return asExitError(code, err)
		},
	}
}
