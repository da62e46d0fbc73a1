// Package horsed composes the main dispatch SSH listener, the optional
// setup/enrollment listener, and the live log ring into one supervised
// process. Keeps the teacher's Start/Wait/Stop compositor lifecycle shape
// (server.go) over horsed's own component set.
package horsed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"pkt.systems/pslog"

	"go.horsed.dev/horsed/internal/actions"
	"go.horsed.dev/horsed/internal/appconfig"
	"go.horsed.dev/horsed/internal/bootstrapssh"
	"go.horsed.dev/horsed/internal/dispatch"
	"go.horsed.dev/horsed/internal/hostkey"
	"go.horsed.dev/horsed/internal/keystore"
	"go.horsed.dev/horsed/internal/logring"
	"go.horsed.dev/horsed/internal/sshserver"
	"go.horsed.dev/horsed/internal/supervisor"
	"go.horsed.dev/horsed/schema"
)

// Server runs the composed horsed process.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// New builds a composed horsed server from a loaded configuration. The log
// ring is wired as an additional write target on logger by the caller (see
// cmd/horsed) so logs produced anywhere in the process reach the `logs`
// action; New only needs the ring to hand to the action handler.
func New(cfg appconfig.Config, logger pslog.Logger, ring *logring.Ring) (Server, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	signer, err := hostkey.Ensure(cfg.HostKeyPath)
	if err != nil {
		return nil, fmt.Errorf("host key: %w", err)
	}

	store, err := keystore.New(cfg.Auth.KeyStorePath, cfg.Auth.SeedUsers, logger)
	if err != nil {
		return nil, fmt.Errorf("key store: %w", err)
	}

	if ring == nil {
		ring = logring.New(cfg.Logging.RingCapacity, logger)
	}

	handlers := dispatch.Table{
		schema.ActionGit:   actions.Git(cfg.RepoRoot),
		schema.ActionCmd:   actions.Cmd(),
		schema.ActionCargo: actions.Cargo(cfg.RepoRoot),
		schema.ActionJust:  actions.Just(cfg.RepoRoot),
		schema.ActionGet:   actions.Get(cfg.RepoRoot),
		schema.ActionSCP:   actions.SCP(cfg.RepoRoot),
		schema.ActionPing:  actions.Ping(),
		schema.ActionLogs:  actions.Logs(ring),
		schema.ActionSSH:   actions.SSHPassthrough(),
	}

	return &compositeServer{
		cfg:      cfg,
		logger:   logger,
		signer:   signer,
		keyStore: store,
		handlers: handlers,
	}, nil
}

type compositeServer struct {
	cfg      appconfig.Config
	logger   pslog.Logger
	signer   ssh.Signer
	keyStore *keystore.Store
	handlers dispatch.Table

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	sup     *supervisor.Supervisor
	errCh   chan error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.ctx = pslog.ContextWithLogger(s.ctx, s.logger)
	s.sup = supervisor.New(s.ctx, s.logger)
	s.errCh = make(chan error, 2)
	s.started = true
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"ssh_addr", s.cfg.SSH.Addr,
		"setup_addr", s.cfg.SSH.SetupAddr,
		"repo_root", s.cfg.RepoRoot,
	)

	sshSrv := &sshserver.Server{
		Config: sshserver.Config{
			Addr:        s.cfg.SSH.Addr,
			IdleTimeout: time.Duration(s.cfg.SSH.IdleTimeout) * time.Second,
		},
		HostSigner: s.signer,
		KeyStore:   s.keyStore,
		Dispatcher: dispatch.New(s.handlers, log),
		Supervisor: s.sup,
	}
	s.sup.SpawnEssential("ssh-listener", func(ctx context.Context) error {
		if err := sshSrv.ListenAndServe(ctx); err != nil {
			s.errCh <- err
			return err
		}
		return nil
	})

	if s.cfg.SSH.SetupAddr != "" {
		setupSrv := &bootstrapssh.Server{
			Addr:       s.cfg.SSH.SetupAddr,
			HostSigner: s.signer,
			KeyStore:   s.keyStore,
			Supervisor: s.sup.Child(),
		}
		s.sup.Spawn("setup-listener", func(ctx context.Context) error {
			return setupSrv.ListenAndServe(ctx)
		})
	}

	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	sup := s.sup
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	sup.Wait()
	select {
	case err := <-errCh:
		if err != nil {
			s.logger.Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
	default:
	}
	return nil
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	sup.Terminate()
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		sup.CleanShutdown()
		log.Info("server stop completed")
		return nil
	}
	done := make(chan struct{})
	go func() {
		sup.CleanShutdown()
		close(done)
	}()
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}
