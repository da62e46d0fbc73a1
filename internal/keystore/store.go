// Package keystore implements the (algorithm, key-bytes) -> user lookup used by
// C3 Auth & Key Store, adapted from the teacher's file-backed auth.Store (no
// password/TOTP fields survive: horsed authenticates by public key only).
package keystore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/crypto/ssh"

	"go.horsed.dev/horsed/internal/appconfig"
	"go.horsed.dev/horsed/internal/herrors"
	"go.horsed.dev/horsed/schema"
	"pkt.systems/pslog"
)

// User represents a stored account. Unlike the teacher's User, there is no
// password hash or TOTP secret: authentication is pubkey-only (§4.3).
type User struct {
	ID    schema.UserID `json:"id"`
	Name  string        `json:"name"`
	Email string        `json:"email,omitempty"`
}

// authorizedKey describes one AuthorizedKey row. The on-disk file does not
// use it: keys are stored as authorized_keys lines inside each record.
type authorizedKey struct {
	Algorithm string        `json:"algorithm"`
	KeyData   string        `json:"key_data"`
	UserID    schema.UserID `json:"user_id"`
}

// record is the on-disk shape: one entry per user, inlining its keys.
type record struct {
	User User     `json:"user"`
	Keys []string `json:"authorized_keys,omitempty"`
}

// Store manages users and their authorized keys, persisted as JSON.
type Store struct {
	path      string
	mu        sync.RWMutex
	users     map[schema.UserID]User
	keys      map[string]schema.UserID // "algorithm base64(key)" -> user id
	rawKeys   map[schema.UserID][]string
	fileState fileState
	log       pslog.Logger
}

// New loads or seeds the key store with logging.
func New(path string, seeds []appconfig.SeedUser, logger pslog.Logger) (*Store, error) {
	if path == "" {
		return nil, herrors.DatabaseErr("keystore.New", errors.New("key store path is required"))
	}
	if logger != nil {
		logger = logger.With("key_store", path)
	}
	store := &Store{
		path:    path,
		users:   make(map[schema.UserID]User),
		keys:    make(map[string]schema.UserID),
		rawKeys: make(map[schema.UserID][]string),
		log:     logger,
	}
	if err := store.ensureFile(seeds); err != nil {
		return nil, err
	}
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

// Lookup resolves an SSH public key to a user id via the (algorithm,
// base64(key-bytes)) composite key, per §4.3. It returns (id, true, nil) on a
// match, (_, false, nil) when the key is simply unknown, and a non-nil error
// only for store failures (e.g. unreadable file).
func (s *Store) Lookup(key ssh.PublicKey) (schema.UserID, bool, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return "", false, err
	}
	composite := compositeKey(key)
	s.mu.RLock()
	userID, ok := s.keys[composite]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	s.mu.RLock()
	_, userExists := s.users[userID]
	s.mu.RUnlock()
	if !userExists {
		return "", false, nil
	}
	return userID, true, nil
}

// AddUser inserts a new user with the given authorized keys and persists the
// store.
func (s *Store) AddUser(user User, authorizedKeys []string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	if err := schema.ValidateUserID(user.ID); err != nil {
		return herrors.DatabaseErr("keystore.AddUser", err)
	}
	normalizedKeys := make([]string, 0, len(authorizedKeys))
	for _, raw := range authorizedKeys {
		trimmed, _, err := normalizeKey(raw)
		if err != nil {
			return herrors.SshKeyErr("keystore.AddUser", err)
		}
		normalizedKeys = append(normalizedKeys, trimmed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; exists {
		return herrors.DatabaseErr("keystore.AddUser", errors.New("user already exists"))
	}
	s.users[user.ID] = user
	s.rawKeys[user.ID] = normalizedKeys
	s.reindexLocked()
	if err := s.saveLocked(); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Info("keystore user added", "user", user.ID, "keys", len(normalizedKeys))
	}
	return nil
}

// AddAuthorizedKey appends a key to an existing user.
func (s *Store) AddAuthorizedKey(userID schema.UserID, pubKey string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	trimmed, parsed, err := normalizeKey(pubKey)
	if err != nil {
		return herrors.SshKeyErr("keystore.AddAuthorizedKey", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return herrors.DatabaseErr("keystore.AddAuthorizedKey", errors.New("user not found"))
	}
	for _, existing := range s.rawKeys[userID] {
		if keyEqual(existing, parsed) {
			return herrors.DatabaseErr("keystore.AddAuthorizedKey", errors.New("authorized key already exists"))
		}
	}
	s.rawKeys[userID] = append(s.rawKeys[userID], trimmed)
	s.reindexLocked()
	if err := s.saveLocked(); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Info("keystore key added", "user", userID)
	}
	return nil
}

// RemoveAuthorizedKey removes the authorized key at the provided 1-based index.
func (s *Store) RemoveAuthorizedKey(userID schema.UserID, index int) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	if index <= 0 {
		return herrors.DatabaseErr("keystore.RemoveAuthorizedKey", errors.New("key index must be positive"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, ok := s.rawKeys[userID]
	if !ok {
		return herrors.DatabaseErr("keystore.RemoveAuthorizedKey", errors.New("user not found"))
	}
	if index > len(keys) {
		return herrors.DatabaseErr("keystore.RemoveAuthorizedKey", errors.New("key index out of range"))
	}
	s.rawKeys[userID] = append(keys[:index-1], keys[index:]...)
	s.reindexLocked()
	if err := s.saveLocked(); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Info("keystore key removed", "user", userID, "index", index)
	}
	return nil
}

// DeleteUser removes a user and cascades delete of its authorized keys.
func (s *Store) DeleteUser(userID schema.UserID) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return herrors.DatabaseErr("keystore.DeleteUser", errors.New("user not found"))
	}
	delete(s.users, userID)
	delete(s.rawKeys, userID)
	s.reindexLocked()
	if err := s.saveLocked(); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Info("keystore user deleted", "user", userID)
	}
	return nil
}

// ListUsers returns a snapshot of users, sorted by id.
func (s *Store) ListUsers() []User {
	if err := s.refreshIfNeeded(); err != nil && s.log != nil {
		s.log.Warn("keystore refresh failed", "err", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (s *Store) reindexLocked() {
	s.keys = make(map[string]schema.UserID, len(s.keys))
	for userID, keys := range s.rawKeys {
		for _, raw := range keys {
			key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(raw))
			if err != nil {
				continue
			}
			s.keys[compositeKey(key)] = userID
		}
	}
}

func (s *Store) ensureFile(seeds []appconfig.SeedUser) error {
	if _, statErr := os.Stat(s.path); statErr == nil {
		return nil
	} else if !os.IsNotExist(statErr) {
		return herrors.DatabaseErr("keystore.ensureFile", statErr)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return herrors.DatabaseErr("keystore.ensureFile", err)
	}
	records := make([]record, 0, len(seeds))
	for _, seed := range seeds {
		userID := schema.UserID(seed.Name)
		if err := schema.ValidateUserID(userID); err != nil {
			return herrors.DatabaseErr("keystore.ensureFile", err)
		}
		var keys []string
		if strings.TrimSpace(seed.Key) != "" {
			keys = []string{seed.Key}
		}
		records = append(records, record{
			User: User{ID: userID, Name: seed.Name, Email: seed.Email},
			Keys: keys,
		})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return herrors.DatabaseErr("keystore.ensureFile", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return herrors.DatabaseErr("keystore.ensureFile", err)
	}
	if s.log != nil {
		s.log.Info("keystore initialized", "users", len(records))
	}
	return nil
}

func (s *Store) saveLocked() error {
	ids := make([]schema.UserID, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	records := make([]record, 0, len(ids))
	for _, id := range ids {
		records = append(records, record{User: s.users[id], Keys: s.rawKeys[id]})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return herrors.DatabaseErr("keystore.save", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return herrors.DatabaseErr("keystore.save", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "keystore-*.json")
	if err != nil {
		return herrors.DatabaseErr("keystore.save", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return herrors.DatabaseErr("keystore.save", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return herrors.DatabaseErr("keystore.save", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return herrors.DatabaseErr("keystore.save", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return herrors.DatabaseErr("keystore.save", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return herrors.DatabaseErr("keystore.save", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.fileState = fileStateFromInfo(info)
	}
	if s.log != nil {
		s.log.Debug("keystore save ok", "users", len(records))
	}
	return nil
}

type fileState struct {
	modTime time.Time
	size    int64
	inode   uint64
	dev     uint64
}

func fileStateFromInfo(info os.FileInfo) fileState {
	state := fileState{modTime: info.ModTime(), size: info.Size()}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		state.inode = stat.Ino
		state.dev = stat.Dev
	}
	return state
}

func (s fileState) equal(other fileState) bool {
	return s.size == other.size && s.modTime.Equal(other.modTime) &&
		s.inode == other.inode && s.dev == other.dev
}

func (s *Store) refreshIfNeeded() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return herrors.DatabaseErr("keystore.refresh", err)
	}
	latest := fileStateFromInfo(info)
	s.mu.RLock()
	current := s.fileState
	s.mu.RUnlock()
	if current.equal(latest) {
		return nil
	}
	return s.loadFromDisk()
}

func (s *Store) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return herrors.DatabaseErr("keystore.load", err)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return herrors.DatabaseErr("keystore.load", err)
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return herrors.DatabaseErr("keystore.load", err)
	}
	users := make(map[schema.UserID]User, len(records))
	rawKeys := make(map[schema.UserID][]string, len(records))
	for _, rec := range records {
		if err := schema.ValidateUserID(rec.User.ID); err != nil {
			return herrors.DatabaseErr("keystore.load", err)
		}
		users[rec.User.ID] = rec.User
		rawKeys[rec.User.ID] = rec.Keys
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
	s.rawKeys = rawKeys
	s.reindexLocked()
	s.fileState = fileStateFromInfo(info)
	if s.log != nil {
		s.log.Debug("keystore load ok", "users", len(users))
	}
	return nil
}

func normalizeKey(raw string) (string, ssh.PublicKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil, errors.New("authorized key is required")
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(trimmed))
	if err != nil {
		return "", nil, errors.New("invalid authorized key")
	}
	return trimmed, key, nil
}

func keyEqual(raw string, key ssh.PublicKey) bool {
	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.TrimSpace(raw)))
	if err != nil {
		return false
	}
	return parsed.Type() == key.Type() && string(parsed.Marshal()) == string(key.Marshal())
}

// compositeKey builds the (algorithm, base64(key-bytes)) lookup key, per §3's
// AuthorizedKey composite primary key.
func compositeKey(key ssh.PublicKey) string {
	return key.Type() + " " + base64.StdEncoding.EncodeToString(key.Marshal())
}
