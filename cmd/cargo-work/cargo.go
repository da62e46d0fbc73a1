package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"go.horsed.dev/horsed/internal/actions"
	"go.horsed.dev/horsed/schema"
)

func newCargoCommand(opts *clientOptions) *cobra.Command {
	var pkgs, features, extra []string
	var release, zigbuild bool

	cmd := &cobra.Command{
		Use:   "cargo <subcommand>",
		Short: "run a cargo build/test against the server's checkout of the current branch",
		Args:  cobra.ExactArgs(1),
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

			cargoOpts := actions.CargoOptions{
				Subcommand: args[0],
				Package:    pkgs,
				Features:   features,
				Release:    release,
				Extra:      extra,
			}
			encoded, err := json.Marshal(cargoOpts)
			if err != nil {
				return err
			}

			extraEnv := map[string]string{"REPO": repo, "BRANCH": branch, "CARGO_OPTIONS": string(encoded)}
			if zigbuild {
				extraEnv["ZIGBUILD"] = "1"
			}
			env, err := opts.mergedEnv(extraEnv)
			if err != nil {
				return err
			}

			session, err := dial(opts, schema.ActionCargo, env)
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.Prelude(diff); err != nil {
				return err
			}
			code, err := session.Exec("", cmd.OutOrStdout(), cmd.ErrOrStderr())
			return asExitError(code, err)
		},
	}

	cmd.Flags().StringArrayVarP(&pkgs, "package", "p", nil, "cargo package selector, repeatable")
	cmd.Flags().StringArrayVar(&features, "features", nil, "cargo feature, repeatable")
	cmd.Flags().BoolVar(&release, "release", false, "build in release mode")
	cmd.Flags().BoolVar(&zigbuild, "zigbuild", false, "use cargo-zigbuild instead of cargo")
	cmd.Flags().StringArrayVar(&extra, "arg", nil, "extra cargo argument, repeatable")
	return cmd
}
