package sshchannel

import (
	"bytes"
	"encoding/binary"
	"io"
	"os/exec"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
	"pkt.systems/pslog"
)

// fakeChannel implements ssh.Channel in memory so Exec can be exercised
// without a live SSH transport.
type fakeChannel struct {
	mu         sync.Mutex
	stdout     bytes.Buffer
	stderr     bytes.Buffer
	closed     bool
	closeWrite bool
	requests   []*ssh.Request
	stdin      *bytes.Buffer
}

func newFakeChannel(stdin string) *fakeChannel {
	return &fakeChannel{stdin: bytes.NewBufferString(stdin)}
}

func (f *fakeChannel) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stdin.Read(p)
}

func (f *fakeChannel) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stdout.Write(p)
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) CloseWrite() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeWrite = true
	return nil
}

func (f *fakeChannel) SendRequest(name string, wantReply bool, payload []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, &ssh.Request{Type: name, Payload: payload})
	return true, nil
}

func (f *fakeChannel) Stderr() io.ReadWriter {
	return &stderrRW{f}
}

type stderrRW struct{ f *fakeChannel }

func (s *stderrRW) Read(p []byte) (int, error)  { return 0, io.EOF }
func (s *stderrRW) Write(p []byte) (int, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return s.f.stderr.Write(p)
}

func testLogger() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.ErrorLevel})
}

func (f *fakeChannel) exitStatus() (uint32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.Type == "exit-status" {
			return binary.BigEndian.Uint32(r.Payload), true
		}
	}
	return 0, false
}

func TestExecCapturesStdoutAndExitStatus(t *testing.T) {
	fc := newFakeChannel("")
	h := New(fc, nil, testLogger())
	cmd := exec.Command("sh", "-c", "echo hello")
	if err := h.Exec(cmd); err != nil {
		t.Fatalf("exec: %v", err)
	}
	fc.mu.Lock()
	out := fc.stdout.String()
	fc.mu.Unlock()
	if out != "hello\n" {
		t.Fatalf("unexpected stdout: %q", out)
	}
	status, ok := fc.exitStatus()
	if !ok || status != 0 {
		t.Fatalf("expected exit status 0, got %v ok=%v", status, ok)
	}
	if !fc.closed {
		t.Fatalf("expected channel to be closed after exec")
	}
}

func TestExecPropagatesNonZeroExit(t *testing.T) {
	fc := newFakeChannel("")
	h := New(fc, nil, testLogger())
	cmd := exec.Command("sh", "-c", "exit 7")
	if err := h.Exec(cmd); err != nil {
		t.Fatalf("exec: %v", err)
	}
	status, ok := fc.exitStatus()
	if !ok || status != 7 {
		t.Fatalf("expected exit status 7, got %v ok=%v", status, ok)
	}
}

func TestExitIsIdempotent(t *testing.T) {
	fc := newFakeChannel("")
	h := New(fc, nil, testLogger())
	if err := h.Exit(0); err != nil {
		t.Fatalf("first exit: %v", err)
	}
	if err := h.Exit(1); err != nil {
		t.Fatalf("second exit: %v", err)
	}
	fc.mu.Lock()
	count := 0
	for _, r := range fc.requests {
		if r.Type == "exit-status" {
			count++
		}
	}
	fc.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one exit-status request, got %d", count)
	}
}
