package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)

	root := newRootCmd()
	root.SetArgs(os.Args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("cargo-work command failed")
		if code, ok := exitCode(err); ok {
			return code
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &clientOptions{}

	root := &cobra.Command{
		Use:           "cargo-work",
		Short:         "cargo-work dispatches remote builds and commands to a horsed server over SSH",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", "127.0.0.1:2222", "horsed server address")
	root.PersistentFlags().StringVar(&opts.keyPath, "key", "", "path to an SSH private key (defaults to ssh-agent)")
	root.PersistentFlags().StringVar(&opts.repo, "repo", "", "repo name (defaults to the name of the current git checkout's top-level directory)")
	root.PersistentFlags().StringVar(&opts.branch, "branch", "", "branch name (defaults to the current checkout)")
	root.PersistentFlags().StringArrayVarP(&opts.envPairs, "env", "e", nil, "extra KEY=VALUE env pairs forwarded to the action")

	root.AddCommand(newCmdCommand(opts))
	root.AddCommand(newCargoCommand(opts))
	root.AddCommand(newJustCommand(opts))
	root.AddCommand(newGetCommand(opts))
	root.AddCommand(newSCPCommand(opts))
	root.AddCommand(newPingCommand(opts))
	root.AddCommand(newLogsCommand(opts))
	root.AddCommand(newVersionCommand())

	return root
}

type exitCoder interface {
	ExitCode() int
}

func exitCode(err error) (int, bool) {
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode(), true
	}
	return 0, false
}
