package actions

import (
	"context"
	"io"

	"go.horsed.dev/horsed/internal/dispatch"
	"go.horsed.dev/horsed/internal/sshchannel"
	"go.horsed.dev/horsed/internal/wire"
)

// Ping runs the `ping` action (§4.6): purely in-process, it reads one framed
// Body::Ping and echoes Body::Pong carrying the same nonce, for client-side
// RTT measurement.
func Ping() dispatch.Handler {
	return func(ctx context.Context, handle *sshchannel.Handle, env map[string]string, payload []byte) error {
		head, err := wire.ReadHead(handle.Reader())
		if err != nil {
			writeErrorLine(handle, "ping: failed to read head: "+err.Error())
			return handle.Exit(1)
		}
		buf := make([]byte, head.Size)
		if _, err := io.ReadFull(handle.Reader(), buf); err != nil {
			writeErrorLine(handle, "ping: failed to read body: "+err.Error())
			return handle.Exit(1)
		}
		body, err := wire.DecodeBody(buf)
		if err != nil || body.Tag != wire.TagPing {
			writeErrorLine(handle, "ping: expected a Ping body")
			return handle.Exit(1)
		}

		pong := wire.Frame(wire.Body{Tag: wire.TagPong, Pong: wire.Pong{Nonce: body.Ping.Nonce}})
		if _, err := handle.Writer().Write(pong); err != nil {
			return handle.Exit(1)
		}
		return handle.Exit(0)
	}
}
