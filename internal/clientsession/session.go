// Package clientsession implements the Client Session (C7, §4.7): the
// caller side of one request. It establishes the SSH transport, sets the
// agreed env vars, opens one channel, sends any request-specific prelude,
// streams stdout/stderr back to the caller, and reports the exit code.
//
// Grounded on jhunt-go-sfab's session type (exec/exit-status/exit-signal
// handling over a raw golang.org/x/crypto/ssh Channel) for the request/reply
// shape, generalized to horsed's env-then-exec-then-drain sequence.
package clientsession

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"

	"go.horsed.dev/horsed/schema"
)

// Target describes how to reach the server and which action to invoke.
type Target struct {
	Addr   string
	Action schema.Action
	Auth   ssh.AuthMethod
}

// Session is one request's transport: a dialed SSH connection and the
// channel opened for the chosen action.
type Session struct {
	conn    *ssh.Client
	channel ssh.Channel
	reqs    <-chan *ssh.Request
	exit    chan exitResult
}

type exitResult struct {
	code int
	err  error
}

// Dial establishes the SSH connection and opens the session channel for the
// configured action. env is sent as a sequence of `env` requests before the
// channel is returned, matching §3's "per-action environment variables set
// via SSH env requests".
func Dial(target Target, env map[string]string) (*Session, error) {
	config := &ssh.ClientConfig{
		User:            string(target.Action),
		Auth:            []ssh.AuthMethod{target.Auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	conn, err := ssh.Dial("tcp", target.Addr, config)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target.Addr, err)
	}

	channel, reqs, err := conn.OpenChannel("session", nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open session channel: %w", err)
	}

	for name, value := range env {
		payload := struct{ Name, Value string }{Name: name, Value: value}
		if _, err := channel.SendRequest("env", true, ssh.Marshal(&payload)); err != nil {
			channel.Close()
			conn.Close()
			return nil, fmt.Errorf("set env %s: %w", name, err)
		}
	}

	s := &Session{conn: conn, channel: channel, reqs: reqs, exit: make(chan exitResult, 1)}
	go s.serviceRequests()
	return s, nil
}

func (s *Session) serviceRequests() {
	for req := range s.reqs {
		switch req.Type {
		case "exit-status":
			if len(req.Payload) >= 4 {
				s.exit <- exitResult{code: int(binary.BigEndian.Uint32(req.Payload))}
			} else {
				s.exit <- exitResult{code: 128}
			}
			return
		case "exit-signal":
			s.exit <- exitResult{code: 128, err: fmt.Errorf("remote terminated by signal")}
			return
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

// Prelude writes request-specific bytes (e.g. the git diff) before Exec is
// called, used by cargo/just requests.
func (s *Session) Prelude(data []byte) error {
	_, err := s.channel.Write(data)
	return err
}

// Exec sends the exec payload, then streams the server's stdout/stderr to
// the provided writers until the channel is done, and returns the exit code.
func (s *Session) Exec(command string, stdout, stderr io.Writer) (int, error) {
	payload := struct{ Command string }{Command: command}
	ok, err := s.channel.SendRequest("exec", true, ssh.Marshal(&payload))
	if err != nil {
		return 1, fmt.Errorf("exec request: %w", err)
	}
	if !ok {
		return 1, fmt.Errorf("exec request rejected")
	}
	_ = s.channel.CloseWrite()

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(stdout, s.channel)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(stderr, s.channel.Stderr())
		done <- struct{}{}
	}()
	<-done
	<-done

	result := <-s.exit
	return result.code, result.err
}

// Close tears down the channel and underlying connection.
func (s *Session) Close() error {
	_ = s.channel.Close()
	return s.conn.Close()
}

// Conn exposes the underlying client connection so ServeForwards can
// register a forwarded-tcpip channel handler on it (§B.4).
func (s *Session) Conn() *ssh.Client {
	return s.conn
}
