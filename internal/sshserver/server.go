// Package sshserver hosts the main SSH listener: public-key-only
// authentication against the key store (§4.3), one session channel per
// connection, and routing of its `env`/`exec` requests into the dispatcher
// (§4.5). Raw golang.org/x/crypto/ssh replaces the teacher's gliderlabs/ssh
// here since the core needs the low-level Channel/extended-data API
// gliderlabs hides (see DESIGN.md for the drop justification); the
// accept-loop/per-connection goroutine shape still follows the teacher's
// sshserver.Server.ListenAndServe.
package sshserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"go.horsed.dev/horsed/internal/dispatch"
	"go.horsed.dev/horsed/internal/keystore"
	"go.horsed.dev/horsed/internal/logx"
	"go.horsed.dev/horsed/internal/sshchannel"
	"go.horsed.dev/horsed/internal/supervisor"
	"go.horsed.dev/horsed/schema"
	"pkt.systems/pslog"
)

// Config carries the listener's network and timeout settings (§6, §5).
type Config struct {
	Addr        string
	IdleTimeout time.Duration
}

// Server is the main action-dispatching SSH listener.
type Server struct {
	Config     Config
	HostSigner ssh.Signer
	KeyStore   *keystore.Store
	Dispatcher *dispatch.Dispatcher
	Supervisor *supervisor.Supervisor
	log        pslog.Logger
}

// ListenAndServe accepts connections until ctx is canceled or the listener
// fails. Each connection is serviced under a non-essential supervised task
// so one misbehaving client cannot bring down the listener; the accept loop
// itself runs essential, since its failure means the server can no longer
// do its job.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log = pslog.Ctx(ctx)

	serverConfig := &ssh.ServerConfig{
		PublicKeyCallback: s.authenticate,
	}
	serverConfig.AddHostKey(s.HostSigner)

	listener, err := net.Listen("tcp", s.Config.Addr)
	if err != nil {
		return fmt.Errorf("ssh listen on %s: %w", s.Config.Addr, err)
	}
	s.log.Info("ssh listener started", "addr", s.Config.Addr)

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
			return fmt.Errorf("ssh accept: %w", err)
		}
		s.Supervisor.Spawn("ssh-connection", func(connCtx context.Context) error {
			s.handleConn(connCtx, netConn, serverConfig)
			return nil
		})
	}
}

// resetIdleDeadline pushes conn's read/write deadline out by IdleTimeout
// from now. Called on every sign of life a connection gives (handshake,
// global request, new channel, channel request); a connection with none of
// these has its connection closed (§5) IdleTimeout after the last one.
// Channel data does not count: a connection whose only traffic is channel
// data is closed IdleTimeout after its last request. A non-positive
// IdleTimeout disables the watchdog.
func (s *Server) resetIdleDeadline(conn net.Conn) {
	if s.Config.IdleTimeout <= 0 {
		return
	}
	_ = conn.SetDeadline(time.Now().Add(s.Config.IdleTimeout))
}

func (s *Server) authenticate(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
	if _, isCert := key.(*ssh.Certificate); isCert {
		return nil, errors.New("certificate authentication is not supported")
	}
	action := schema.Action(conn.User())
	if !action.Valid() {
		return nil, fmt.Errorf("unknown action %q", conn.User())
	}
	userID, ok, err := s.KeyStore.Lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("key not recognized")
	}
	return &ssh.Permissions{Extensions: map[string]string{"user_id": string(userID)}}, nil
}

func (s *Server) handleConn(ctx context.Context, netConn net.Conn, serverConfig *ssh.ServerConfig) {
	defer netConn.Close()

	s.resetIdleDeadline(netConn)
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, serverConfig)
	if err != nil {
		s.log.Debug("ssh handshake failed", "remote", netConn.RemoteAddr(), "err", err)
		return
	}
	defer sshConn.Close()
	s.resetIdleDeadline(netConn)

	connID := schema.ConnectionID(fmt.Sprintf("%x", sshConn.SessionID()))
	log := logx.WithConnection(logx.ContextWithConnection(ctx, connID), connID)
	log = log.With("user", sshConn.Permissions.Extensions["user_id"], "remote", netConn.RemoteAddr().String())
	ctx = pslog.ContextWithLogger(ctx, log)
	log.Info("ssh connection opened", "action", sshConn.User())

	go func() {
		for req := range reqs {
			s.resetIdleDeadline(netConn)
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}()

	action := schema.Action(sshConn.User())
	state := dispatch.NewState(action)

	for newChannel := range chans {
		s.resetIdleDeadline(netConn)
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		channel, channelReqs, err := newChannel.Accept()
		if err != nil {
			log.Warn("failed to accept channel", "err", err)
			continue
		}
		handle := sshchannel.New(channel, channelReqs, log)
		state.SetHandle(handle)
		s.serviceChannel(ctx, channelReqs, state, netConn)
	}
	log.Info("ssh connection closed", "action", sshConn.User())
}

func (s *Server) serviceChannel(ctx context.Context, reqs <-chan *ssh.Request, state *dispatch.State, netConn net.Conn) {
	log := pslog.Ctx(ctx)
	for req := range reqs {
		s.resetIdleDeadline(netConn)
		switch req.Type {
		case "env":
			var payload struct{ Name, Value string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				if req.WantReply {
					_ = req.Reply(false, nil)
				}
				continue
			}
			state.SetEnv(payload.Name, payload.Value)
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				if req.WantReply {
					_ = req.Reply(false, nil)
				}
				continue
			}
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
			s.Supervisor.Spawn("ssh-exec", func(execCtx context.Context) error {
				s.Dispatcher.Dispatch(execCtx, state, []byte(payload.Command))
				return nil
			})
		default:
			log.Trace("unhandled channel request", "type", req.Type)
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}
