package main

import (
	"strings"

	"github.com/spf13/cobra"

	"go.horsed.dev/horsed/schema"
)

func newJustCommand(opts *clientOptions) *cobra.Command {
	var justfile, gitCommit, gitMessage string

	cmd := &cobra.Command{
		Use:   "just <recipe> [args...]",
		Short: "run a just recipe against the server's checkout of the current branch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := opts.resolveRepo(ctx)
			if err != nil {
				return err
			}
			branch, err := opts.resolveBranch(ctx)
			if err != nil {
				return err
			}
			diff, err := diffHEAD(ctx)
			if err != nil {
				return err
			}

			extraEnv := map[string]string{"REPO": repo, "BRANCH": branch}
			if justfile != "" {
				extraEnv["JUSTFILE"] = justfile
			}
			if gitCommit != "" {
				extraEnv["GIT_COMMIT"] = gitCommit
			}
			if gitMessage != "" {
				extraEnv["GIT_MESSAGE"] = gitMessage
			}
			env, err := opts.mergedEnv(extraEnv)
			if err != nil {
				return err
			}

			session, err := dial(opts, schema.ActionJust, env)
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.Prelude(diff); err != nil {
				return err
			}
			code, err := session.Exec(strings.Join(args, " "), cmd.OutOrStdout(), cmd.ErrOrStderr())
			return asExitError(code, err)
		},
	}

	cmd.Flags().StringVar(&justfile, "justfile", "", "justfile path on the server checkout")
	cmd.Flags().StringVar(&gitCommit, "git-commit", "", "GIT_COMMIT value passed to the recipe")
	cmd.Flags().StringVar(&gitMessage, "git-message", "", "GIT_MESSAGE value passed to the recipe")
	return cmd
}
