package dispatch

import (
	"context"
	"io"
	"testing"

	"go.horsed.dev/horsed/internal/sshchannel"
	"go.horsed.dev/horsed/schema"
	"pkt.systems/pslog"
)

func testLogger() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.ErrorLevel})
}

func TestSetEnvAndSnapshot(t *testing.T) {
	s := NewState(schema.ActionCmd)
	s.SetEnv("REPO", "example")
	s.SetEnv("SHELL", "/bin/bash")
	env := s.Env()
	if env["REPO"] != "example" || env["SHELL"] != "/bin/bash" {
		t.Fatalf("unexpected env snapshot: %+v", env)
	}
}

func TestTakeHandleIsOneShot(t *testing.T) {
	s := NewState(schema.ActionCmd)
	s.SetHandle(&sshchannel.Handle{})
	if h := s.TakeHandle(); h == nil {
		t.Fatalf("expected first take to return the handle")
	}
	if h := s.TakeHandle(); h != nil {
		t.Fatalf("expected second take to return nil")
	}
}

func TestDispatchWithNoHandleDoesNotCallHandler(t *testing.T) {
	called := false
	table := Table{
		schema.ActionCmd: func(ctx context.Context, h *sshchannel.Handle, env map[string]string, payload []byte) error {
			called = true
			return nil
		},
	}
	d := New(table, testLogger())
	s := NewState(schema.ActionCmd)
	d.Dispatch(context.Background(), s, nil)
	if called {
		t.Fatalf("did not expect handler to be called when no handle was ever set")
	}
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	var gotPayload []byte
	table := Table{
		schema.ActionPing: func(ctx context.Context, h *sshchannel.Handle, env map[string]string, payload []byte) error {
			gotPayload = payload
			return nil
		},
	}
	d := New(table, testLogger())
	s := NewState(schema.ActionPing)
	s.SetHandle(&sshchannel.Handle{})
	d.Dispatch(context.Background(), s, []byte("hello"))
	if string(gotPayload) != "hello" {
		t.Fatalf("expected handler to receive payload, got %q", gotPayload)
	}
}
