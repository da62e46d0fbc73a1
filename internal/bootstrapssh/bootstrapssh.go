// Package bootstrapssh implements the setup/enrollment listener (§B.1): a
// secondary, admin-only SSH listener, disabled unless an address is
// configured, that auto-provisions a User + AuthorizedKey for the first
// connection offering each not-yet-known public key instead of rejecting it.
// Grounded on the original Rust implementation's ssh/setup.rs.
package bootstrapssh

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"go.horsed.dev/horsed/internal/keystore"
	"go.horsed.dev/horsed/internal/supervisor"
	"go.horsed.dev/horsed/schema"
	"pkt.systems/pslog"
)

// Server is the enrollment-only SSH listener. It never routes to an action
// dispatcher — a connection is accepted, the key is enrolled (or confirmed
// already enrolled), and every channel the client opens is rejected until
// the client disconnects.
type Server struct {
	Addr       string
	HostSigner ssh.Signer
	KeyStore   *keystore.Store
	Supervisor *supervisor.Supervisor
	log        pslog.Logger
}

// ListenAndServe runs the enrollment listener as a non-essential supervised
// task: its failure is loud but must not tear down the main SSH listener.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log = pslog.Ctx(ctx)
	if s.Addr == "" {
		s.log.Info("setup listener disabled, no address configured")
		return nil
	}

	serverConfig := &ssh.ServerConfig{
		PublicKeyCallback: s.enroll,
	}
	serverConfig.AddHostKey(s.HostSigner)

	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("setup listen on %s: %w", s.Addr, err)
	}
	s.log.Warn("setup/enrollment listener started — any presented key will be auto-enrolled", "addr", s.Addr)

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		netConn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("setup accept: %w", err)
		}
		s.Supervisor.Spawn("setup-connection", func(connCtx context.Context) error {
			s.handleConn(netConn, serverConfig)
			return nil
		})
	}
}

func (s *Server) enroll(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
	userID, ok, err := s.KeyStore.Lookup(key)
	if err != nil {
		return nil, err
	}
	if ok {
		s.log.Info("setup listener: key already enrolled", "user", userID, "remote", conn.RemoteAddr())
		return &ssh.Permissions{Extensions: map[string]string{"user_id": string(userID), "enrolled": "false"}}, nil
	}

	name := keystore.User{ID: schema.UserID(uuid.NewString()), Name: "enrolled-" + conn.User()}
	authorizedKey := string(ssh.MarshalAuthorizedKey(key))
	if err := s.KeyStore.AddUser(name, []string{authorizedKey}); err != nil {
		return nil, fmt.Errorf("enroll new user: %w", err)
	}
	s.log.Warn("setup listener: auto-enrolled new key", "user", name.ID, "remote", conn.RemoteAddr())
	return &ssh.Permissions{Extensions: map[string]string{"user_id": string(name.ID), "enrolled": "true"}}, nil
}

func (s *Server) handleConn(netConn net.Conn, serverConfig *ssh.ServerConfig) {
	defer netConn.Close()
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, serverConfig)
	if err != nil {
		s.log.Debug("setup handshake failed", "remote", netConn.RemoteAddr(), "err", err)
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)
	for newChannel := range chans {
		_ = newChannel.Reject(ssh.Prohibited, "setup listener only enrolls keys, it does not carry sessions")
	}
}
