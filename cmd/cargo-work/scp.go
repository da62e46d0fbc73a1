package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"go.horsed.dev/horsed/schema"
)

func newSCPCommand(opts *clientOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "scp <remote-path>",
		Short: "fetch a single file from the server's data root without framing or compression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.mergedEnv(nil)
			if err != nil {
				return err
			}
			session, err := dial(opts, schema.ActionSCP, env)
			if err != nil {
				return err
			}
			defer session.Close()

			dest := out
			if dest == "" {
				dest = filepath.Base(args[0])
			}
			f, err := os.Create(dest)
			if err != nil {
				return err
			}
			defer f.Close()

			code, err := session.Exec(args[0], f, cmd.ErrOrStderr())
			return asExitError(code, err)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "local destination (defaults to the remote path's base name)")
	return cmd
}
