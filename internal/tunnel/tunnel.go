// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package tunnel forwards a local TCP port to an address reachable only from an
// SSH host, the equivalent of `ssh -L 127.0.0.1:0:dbhost:dbport user@host`.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"
)

// DefaultLocalAddress binds an ephemeral loopback port.
const DefaultLocalAddress = "127.0.0.1:0"

// Config describes one SSH hop and the address to forward to.
type Config struct {
	// SSHAddress is host:port of the SSH server
	SSHAddress string
	User       string
	Password   string
	// KeyFile is a path to a PEM private key, read through FS
	KeyFile string
	// KnownHosts is a known_hosts file; empty accepts any host key
	KnownHosts string
	// RemoteAddress is host:port as dialed from the SSH server
	RemoteAddress string
	// LocalAddress defaults to DefaultLocalAddress
	LocalAddress string
	// Timeout bounds the TCP connect and SSH handshake; zero means no limit
	Timeout time.Duration
	FS      afero.Fs
	Logger  *slog.Logger
}

// Forwarder is an established SSH connection plus the local listener whose
// connections it forwards.
type Forwarder struct {
	client   *ssh.Client
	listener net.Listener
	remote   string
	logger   *slog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// Dial connects and authenticates to the SSH server, then binds the local
// listener and starts forwarding. If binding fails the SSH connection is closed.
func Dial(ctx context.Context, cfg Config) (*Forwarder, error) {
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.LocalAddress == "" {
		cfg.LocalAddress = DefaultLocalAddress
	}

	auth, err := authMethods(cfg.FS, cfg)
	if err != nil {
		return nil, err
	}
	hostKeys, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.KnownHosts == "" {
		cfg.Logger.Warn("host key verification disabled; set known_hosts to enable it", "ssh_host", cfg.SSHAddress)
	}

	client, err := dialSSH(ctx, cfg, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", cfg.LocalAddress)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("bind %s: %w", cfg.LocalAddress, err)
	}

	f := &Forwarder{
		client:   client,
		listener: listener,
		remote:   cfg.RemoteAddress,
		logger:   cfg.Logger,
		conns:    make(map[net.Conn]struct{}),
	}
	f.wg.Add(1)
	go f.serve()
	return f, nil
}

func dialSSH(ctx context.Context, cfg Config, clientCfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.SSHAddress)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.SSHAddress, err)
	}
	// ssh.NewClientConn takes neither a timeout nor a context. Bound the
	// handshake with a conn deadline and abort it by closing conn on cancel.
	var deadline time.Time
	if cfg.Timeout > 0 {
		deadline = time.Now().Add(cfg.Timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if !deadline.IsZero() {
		_ = conn.SetDeadline(deadline)
	}
	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-handshakeDone:
		}
	}()

	c, chans, reqs, err := ssh.NewClientConn(conn, cfg.SSHAddress, clientCfg)
	close(handshakeDone)
	if err != nil {
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}
		return nil, fmt.Errorf("ssh handshake with %s: %w", cfg.SSHAddress, err)
	}
	if ctx.Err() != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", cfg.SSHAddress, ctx.Err())
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// LocalPort returns the bound loopback port.
func (f *Forwarder) LocalPort() int {
	if addr, ok := f.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// LocalAddress returns the bound host:port.
func (f *Forwarder) LocalAddress() string {
	return f.listener.Addr().String()
}

func (f *Forwarder) serve() {
	defer f.wg.Done()
	for {
		local, err := f.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				f.logger.Warn("tunnel accept failed", "error", err)
			}
			return
		}
		f.wg.Add(1)
		go f.forward(local)
	}
}

func (f *Forwarder) forward(local net.Conn) {
	defer f.wg.Done()
	if !f.track(local) {
		_ = local.Close()
		return
	}
	defer f.untrack(local)

	remote, err := f.client.Dial("tcp", f.remote)
	if err != nil {
		f.logger.Warn("tunnel could not reach remote", "remote", f.remote, "error", err)
		_ = local.Close()
		return
	}
	if !f.track(remote) {
		_ = local.Close()
		_ = remote.Close()
		return
	}
	defer f.untrack(remote)

	f.logger.Debug("tunnel connection opened", "local", local.RemoteAddr().String(), "remote", f.remote)

	// Either side finishing ends the pair; closing both unblocks the other copy.
	done := make(chan struct{}, 2)
	pipe := func(dst, src net.Conn) {
		_, _ = io.Copy(dst, src)
		done <- struct{}{}
	}
	go pipe(remote, local)
	go pipe(local, remote)
	<-done
	_ = local.Close()
	_ = remote.Close()
	<-done

	f.logger.Debug("tunnel connection closed", "remote", f.remote)
}

func (f *Forwarder) track(c net.Conn) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.conns[c] = struct{}{}
	return true
}

func (f *Forwarder) untrack(c net.Conn) {
	f.mu.Lock()
	delete(f.conns, c)
	f.mu.Unlock()
}

// Close stops the listener, drops forwarded connections, then closes the SSH
// connection. Each step runs even if an earlier one failed. Close is idempotent.
func (f *Forwarder) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		conns := make([]net.Conn, 0, len(f.conns))
		for c := range f.conns {
			conns = append(conns, c)
		}
		f.mu.Unlock()

		var errs []error
		if err := f.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close listener: %w", err))
		}
		for _, c := range conns {
			_ = c.Close()
		}
		if err := f.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close ssh connection: %w", err))
		}
		f.wg.Wait()
		f.closeErr = errors.Join(errs...)
	})
	return f.closeErr
}
