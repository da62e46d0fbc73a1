package clientsession_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"go.horsed.dev/horsed/internal/clientsession"
	"go.horsed.dev/horsed/internal/dispatch"
	"go.horsed.dev/horsed/internal/keystore"
	"go.horsed.dev/horsed/internal/sshchannel"
	"go.horsed.dev/horsed/internal/sshserver"
	"go.horsed.dev/horsed/internal/supervisor"
	"go.horsed.dev/horsed/schema"
	"pkt.systems/pslog"
)

func newTestSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer
}

func startTestServer(t *testing.T, handlers dispatch.Table) (addr string, clientKey ssh.Signer) {
	t.Helper()

	hostSigner := newTestSigner(t)
	clientKey = newTestSigner(t)

	store, err := keystore.New(filepath.Join(t.TempDir(), "users.json"), nil, nil)
	if err != nil {
		t.Fatalf("new keystore: %v", err)
	}
	authorizedKey := string(ssh.MarshalAuthorizedKey(clientKey.PublicKey()))
	if err := store.AddUser(keystore.User{ID: "alice"}, []string{authorizedKey}); err != nil {
		t.Fatalf("add user: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.ErrorLevel})
	ctx = pslog.ContextWithLogger(ctx, logger)

	server := &sshserver.Server{
		Config:     sshserver.Config{Addr: ln.Addr().String()},
		HostSigner: hostSigner,
		KeyStore:   store,
		Dispatcher: dispatch.New(handlers, logger),
		Supervisor: supervisor.New(ctx, logger),
	}
	ln.Close() // server.ListenAndServe binds its own listener on the same addr

	go func() {
		_ = server.ListenAndServe(ctx)
	}()
	time.Sleep(50 * time.Millisecond)

	return server.Config.Addr, clientKey
}

func TestDialExecRoundTrip(t *testing.T) {
	echoHandler := func(ctx context.Context, handle *sshchannel.Handle, env map[string]string, payload []byte) error {
		handle.Writer().Write(append([]byte("echo: "), payload...))
		return handle.Exit(0)
	}
	addr, clientKey := startTestServer(t, dispatch.Table{
		schema.ActionCmd: echoHandler,
	})

	session, err := clientsession.Dial(clientsession.Target{
		Addr:   addr,
		Action: schema.ActionCmd,
		Auth:   ssh.PublicKeys(clientKey),
	}, map[string]string{"FOO": "bar"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	code, err := session.Exec("hello", &stdout, &stderr)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr=%q)", code, stderr.String())
	}
	if stdout.String() != "echo: hello" {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
}

func TestDialExecNonZeroExit(t *testing.T) {
	failHandler := func(ctx context.Context, handle *sshchannel.Handle, env map[string]string, payload []byte) error {
		handle.StderrWriter().Write([]byte("boom"))
		return handle.Exit(3)
	}
	addr, clientKey := startTestServer(t, dispatch.Table{
		schema.ActionCmd: failHandler,
	})

	session, err := clientsession.Dial(clientsession.Target{
		Addr:   addr,
		Action: schema.ActionCmd,
		Auth:   ssh.PublicKeys(clientKey),
	}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	code, err := session.Exec("anything", &stdout, &stderr)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
	if stderr.String() != "boom" {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}
