package main

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"go.horsed.dev/horsed/internal/wire"
	"go.horsed.dev/horsed/schema"
)

func newPingCommand(opts *clientOptions) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "measure round-trip latency to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.mergedEnv(nil)
			if err != nil {
				return err
			}
			if count <= 0 {
				count = 1
			}
			for i := 0; i < count; i++ {
				elapsed, err := pingOnce(opts, env)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ping: %s\n", elapsed)
				if i < count-1 {
					time.Sleep(time.Second)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "c", 1, "number of pings to send, 1s apart")
	return cmd
}

func pingOnce(opts *clientOptions, env map[string]string) (time.Duration, error) {
	session, err := dial(opts, schema.ActionPing, env)
	if err != nil {
		return 0, err
	}
	defer session.Close()

	nonce := time.Now().UnixNano()
	if err := session.Prelude(wire.Frame(wire.Body{Tag: wire.TagPing, Ping: wire.Ping{Nonce: nonce}})); err != nil {
		return 0, err
	}

	sent := time.Now()
	var stdout bytes.Buffer
	code, err := session.Exec("", &stdout, io.Discard)
	if err != nil {
		return 0, err
	}
	if code != 0 {
		return 0, &remoteExitError{code: code}
	}

	head, err := wire.ReadHead(&stdout)
	if err != nil {
		return 0, fmt.Errorf("read pong head: %w", err)
	}
	buf := make([]byte, head.Size)
	if _, err := io.ReadFull(&stdout, buf); err != nil {
		return 0, fmt.Errorf("read pong body: %w", err)
	}
	body, err := wire.DecodeBody(buf)
	if err != nil || body.Tag != wire.TagPong || body.Pong.Nonce != nonce {
		return 0, fmt.Errorf("ping: unexpected or mismatched pong")
	}
	return time.Since(sent), nil
}
