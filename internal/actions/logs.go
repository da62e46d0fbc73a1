package actions

import (
	"context"
	"io"
	"strings"

	"go.horsed.dev/horsed/internal/dispatch"
	"go.horsed.dev/horsed/internal/logring"
	"go.horsed.dev/horsed/internal/sshchannel"
)

// Logs runs the `logs` action (§4.5): streams the server's live log ring to
// the client. If the payload contains "-f" (follow), it keeps streaming new
// lines until the client disconnects; otherwise it writes whatever its fresh
// subscription has already received and exits. The ring keeps no history,
// so lines logged before the request are not shown in either mode.
func Logs(ring *logring.Ring) dispatch.Handler {
	return func(ctx context.Context, handle *sshchannel.Handle, env map[string]string, payload []byte) error {
		follow := strings.Contains(string(payload), "-f")
		ch, cancel := ring.Subscribe()
		defer cancel()

		if !follow {
			for {
				select {
				case line, ok := <-ch:
					if !ok {
						return handle.Exit(0)
					}
					if _, err := io.WriteString(handle.Writer(), line.Text+"\n"); err != nil {
						return handle.Exit(1)
					}
				default:
					return handle.Exit(0)
				}
			}
		}

		for {
			select {
			case line, ok := <-ch:
				if !ok {
					return handle.Exit(0)
				}
				if _, err := io.WriteString(handle.Writer(), line.Text+"\n"); err != nil {
					return handle.Exit(1)
				}
			case <-ctx.Done():
				return handle.Exit(0)
			}
		}
	}
}
