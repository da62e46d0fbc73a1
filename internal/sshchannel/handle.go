// Package sshchannel implements the Channel Handle: the piece that owns one
// SSH channel for the lifetime of a single action, pipes a child process's
// stdio across it, and sends exactly one exit status before closing.
// Grounded on jhunt-go-sfab's session type (exit-status/exit-signal request
// handling, drain-then-close ordering over a raw golang.org/x/crypto/ssh
// Channel), generalized from a client-side exec session to the server-side
// equivalent and from line-scanned output to raw byte copying.
package sshchannel

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sys/unix"

	"go.horsed.dev/horsed/internal/herrors"
	"pkt.systems/pslog"
)

// extendedDataStderr is the SSH extended-data stream code reserved for
// stderr by RFC 4254 §5.2.
const extendedDataStderr = 1

// signalNames maps the POSIX signals golang.org/x/sys/unix exposes to the
// bare names RFC 4254 §6.10's exit-signal request expects (no "SIG" prefix).
var signalNames = map[syscall.Signal]string{
	syscall.Signal(unix.SIGABRT): "ABRT",
	syscall.Signal(unix.SIGALRM): "ALRM",
	syscall.Signal(unix.SIGBUS):  "BUS",
	syscall.Signal(unix.SIGFPE):  "FPE",
	syscall.Signal(unix.SIGHUP):  "HUP",
	syscall.Signal(unix.SIGILL):  "ILL",
	syscall.Signal(unix.SIGINT):  "INT",
	syscall.Signal(unix.SIGKILL): "KILL",
	syscall.Signal(unix.SIGPIPE): "PIPE",
	syscall.Signal(unix.SIGQUIT): "QUIT",
	syscall.Signal(unix.SIGSEGV): "SEGV",
	syscall.Signal(unix.SIGTERM): "TERM",
	syscall.Signal(unix.SIGUSR1): "USR1",
	syscall.Signal(unix.SIGUSR2): "USR2",
}

// Handle wraps a single SSH channel: the data direction is stdout-in,
// stdin-out; stderr rides the extended-data stream.
type Handle struct {
	ch      ssh.Channel
	reqs    <-chan *ssh.Request
	log     pslog.Logger
	once    sync.Once
	closeMu sync.Mutex
	closed  bool
}

// New wraps ch. The Handle stores reqs but never reads from it; the
// channel's requests are serviced by the caller.
func New(ch ssh.Channel, reqs <-chan *ssh.Request, logger pslog.Logger) *Handle {
	return &Handle{ch: ch, reqs: reqs, log: logger}
}

// Writer returns the channel's data-direction writer (stdout to the client).
func (h *Handle) Writer() io.Writer { return h.ch }

// Reader returns the channel's data-direction reader (stdin from the client).
func (h *Handle) Reader() io.Reader { return h.ch }

// StderrWriter returns a writer over the extended-data stream (code 1).
func (h *Handle) StderrWriter() io.Writer {
	return h.ch.Stderr()
}

// Exec is the central piping loop (§4.4): it wires cmd's stdio to the
// channel, waits for the child, and sends exactly one exit status before
// EOF and close. cmd.Stdin/Stdout/Stderr must be unset; Exec sets them.
func (h *Handle) Exec(cmd *exec.Cmd) error {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return herrors.ChildErr("open stdin pipe", err)
	}

	return h.execWithStdin(cmd, stdin, func() {
		_, err := io.Copy(stdin, h.ch)
		if err != nil && !errors.Is(err, io.ErrClosedPipe) {
			h.log.Trace("channel stdin copy ended", "err", err)
		}
	})
}

// ExecNoStdin runs cmd to completion without piping the channel's stdin —
// for handlers (cargo, just) that have already consumed the channel's input
// themselves (the diff prelude, §4.6) before spawning the child.
func (h *Handle) ExecNoStdin(cmd *exec.Cmd) error {
	return h.execWithStdin(cmd, nil, nil)
}

func (h *Handle) execWithStdin(cmd *exec.Cmd, stdin io.Closer, pumpStdin func()) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return herrors.ChildErr("open stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return herrors.ChildErr("open stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		h.writeErrorLine("failed to start: " + err.Error())
		return h.Exit(127)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer stdout.Close()
		_, _ = io.Copy(h.ch, stdout)
	}()
	go func() {
		defer wg.Done()
		defer stderr.Close()
		_, _ = io.Copy(h.ch.Stderr(), stderr)
	}()
	if pumpStdin != nil {
		go func() {
			defer stdin.Close()
			pumpStdin()
		}()
	}

	wg.Wait()

	status := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				return h.exitSignal(ws.Signal(), ws.CoreDump())
			}
			status = exitErr.ExitCode()
			if status < 0 {
				status = 128
			}
		} else {
			h.log.Warn("child wait failed without exit code", "err", err)
			status = 128
		}
	}
	return h.Exit(status)
}

// exitSignal sends the SSH exit-signal request (RFC 4254 §6.10) for a child
// killed by a signal instead of the exit-status request Exit sends.
func (h *Handle) exitSignal(sig syscall.Signal, coreDumped bool) error {
	name, ok := signalNames[sig]
	if !ok {
		name = fmt.Sprintf("SIG%d", int(sig))
	}
	var sendErr error
	h.once.Do(func() {
		payload := struct {
			Signal     string
			CoreDumped bool
			Error      string
			Lang       string
		}{Signal: name, CoreDumped: coreDumped}
		_, sendErr = h.ch.SendRequest("exit-signal", false, ssh.Marshal(&payload))
	})
	return errors.Join(sendErr, h.Finish())
}

// Exit sends the SSH exit-status request, then EOF, then closes the channel.
// The status is sent at most once; subsequent calls are no-ops.
func (h *Handle) Exit(status int) error {
	var sendErr error
	h.once.Do(func() {
		payload := struct{ Status uint32 }{Status: uint32(status)}
		_, sendErr = h.ch.SendRequest("exit-status", false, ssh.Marshal(&payload))
	})
	return errors.Join(sendErr, h.Finish())
}

// Finish sends EOF and closes the channel. Idempotent.
func (h *Handle) Finish() error {
	h.closeMu.Lock()
	defer h.closeMu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	_ = h.ch.CloseWrite()
	return h.ch.Close()
}

func (h *Handle) writeErrorLine(msg string) {
	_, _ = io.WriteString(h.ch.Stderr(), msg+"\n")
}
