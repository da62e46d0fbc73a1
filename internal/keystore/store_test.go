package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"

	"go.horsed.dev/horsed/internal/appconfig"
	"go.horsed.dev/horsed/schema"
)

func genKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))) + " test@example.com"
}

func TestStoreRejectsInvalidUserID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	store, err := New(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.AddUser(User{ID: "Alice Bad!"}, nil); err == nil {
		t.Fatalf("expected invalid user id error")
	}
}

func TestStoreLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	store, err := New(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	pubKey := genKey(t)
	if err := store.AddUser(User{ID: "alice", Name: "Alice"}, []string{pubKey}); err != nil {
		t.Fatalf("add user: %v", err)
	}

	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubKey))
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	id, ok, err := store.Lookup(key)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok || id != "alice" {
		t.Fatalf("expected lookup to resolve alice, got %q ok=%v", id, ok)
	}

	other := genKey(t)
	otherKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(other))
	if err != nil {
		t.Fatalf("parse other key: %v", err)
	}
	if _, ok, err := store.Lookup(otherKey); err != nil || ok {
		t.Fatalf("expected unknown key to miss, ok=%v err=%v", ok, err)
	}
}

func TestStoreDeleteUserCascadesKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	store, err := New(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	pubKey := genKey(t)
	if err := store.AddUser(User{ID: "bob"}, []string{pubKey}); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if err := store.DeleteUser("bob"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubKey))
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	if _, ok, err := store.Lookup(key); err != nil || ok {
		t.Fatalf("expected key to be gone after cascade delete, ok=%v err=%v", ok, err)
	}
}

func TestStoreAddAuthorizedKeyRejectsDuplicate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	store, err := New(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	pubKey := genKey(t)
	if err := store.AddUser(User{ID: "carol"}, []string{pubKey}); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if err := store.AddAuthorizedKey("carol", pubKey); err == nil {
		t.Fatalf("expected duplicate key rejection")
	}
}

func TestStoreSeedsFromConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	pubKey := genKey(t)
	store, err := New(path, []appconfig.SeedUser{{Name: "admin", Key: pubKey}}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	users := store.ListUsers()
	if len(users) != 1 || users[0].ID != "admin" {
		t.Fatalf("expected seeded admin user, got %+v", users)
	}
}

func TestStorePersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	pubKey := genKey(t)
	store, err := New(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.AddUser(User{ID: "dave"}, []string{pubKey}); err != nil {
		t.Fatalf("add user: %v", err)
	}

	reopened, err := New(path, nil, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubKey))
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	if _, ok, err := reopened.Lookup(key); err != nil || !ok {
		t.Fatalf("expected reloaded store to find key, ok=%v err=%v", ok, err)
	}
}
