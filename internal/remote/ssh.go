package remote

import (
	"bytes"
	"context"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/povsister/scp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHOptions configures how SSHExecutor authenticates and connects.
type SSHOptions struct {
	// IdentityFile is a private key used for public key auth (optional).
	IdentityFile string

	// Password enables password auth when non-empty.
	Password string

	// UseAgent adds the keys held by $SSH_AUTH_SOCK.
	UseAgent bool

	// KnownHostsFile enables host key checking. Empty disables it.
	KnownHostsFile string

	// ConnectTimeout bounds dialing and the SSH handshake.
	ConnectTimeout time.Duration
}

// SSHExecutor runs commands over SSH. Every call dials its own connection,
// so a host that rebooted in between never leaves a stale client behind.
type SSHExecutor struct {
	opts SSHOptions
}

// NewSSHExecutor creates an executor with the given options.
func NewSSHExecutor(opts SSHOptions) *SSHExecutor {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	return &SSHExecutor{opts: opts}
}

// Run executes req on target and returns its trimmed stdout.
func (e *SSHExecutor) Run(ctx context.Context, target Target, req Request) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	client, err := e.dial(ctx, target)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", &TransportError{Target: target.String(), Op: "session", Err: err}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(req.CommandLine())
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		client.Close()
		return "", &TransportError{Target: target.String(), Op: "run", Err: ctx.Err()}
	case err = <-done:
	}

	out := strings.TrimRight(stdout.String(), "\r\n")
	if err == nil {
		return out, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return out, &CommandError{
			Command:    req.Command,
			ExitStatus: exitErr.ExitStatus(),
			Stderr:     stderr.String(),
		}
	}
	// ExitMissingError and io errors mean the session went away under us.
	return out, &TransportError{Target: target.String(), Op: "run", Err: err}
}

// Upload copies u.LocalPath to u.RemotePath with scp.
func (e *SSHExecutor) Upload(ctx context.Context, target Target, u Upload) error {
	client, err := e.dial(ctx, target)
	if err != nil {
		return err
	}
	defer client.Close()

	scpClient, err := scp.NewClientFromExistingSSH(client, &scp.ClientOption{Sudo: u.Sudo})
	if err != nil {
		return &TransportError{Target: target.String(), Op: "scp", Err: err}
	}

	err = scpClient.CopyFileToRemote(u.LocalPath, u.RemotePath, &scp.FileTransferOption{
		Context: ctx,
		Perm:    u.Mode,
	})
	if err != nil {
		return &TransportError{
			Target: target.String(),
			Op:     "upload",
			Err:    errors.Wrapf(err, "copy %s to %s", u.LocalPath, u.RemotePath),
		}
	}
	return nil
}

func (e *SSHExecutor) dial(ctx context.Context, target Target) (*ssh.Client, error) {
	addr := target.hostPort()

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if e.opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(e.opts.KnownHostsFile)
		if err != nil {
			return nil, errors.Wrapf(err, "load known hosts %s", e.opts.KnownHostsFile)
		}
		hostKeyCallback = cb
	}

	auth, closeAgent := e.authMethods()
	defer closeAgent()

	d := net.Dialer{Timeout: e.opts.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Target: target.String(), Op: "dial", Err: err}
	}

	// Bound the handshake; the deadline is lifted once the client is up.
	deadline := time.Now().Add(e.opts.ConnectTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            target.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         e.opts.ConnectTimeout,
	})
	if err != nil {
		conn.Close()
		return nil, &TransportError{Target: target.String(), Op: "handshake", Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (e *SSHExecutor) authMethods() ([]ssh.AuthMethod, func()) {
	var methods []ssh.AuthMethod
	cleanup := func() {}

	if e.opts.UseAgent {
		if socket := os.Getenv("SSH_AUTH_SOCK"); socket != "" {
			if conn, err := net.Dial("unix", socket); err == nil {
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
				cleanup = func() { conn.Close() }
			}
		}
	}

	if e.opts.IdentityFile != "" {
		path := e.opts.IdentityFile
		methods = append(methods, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			key, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			signer, err := ssh.ParsePrivateKey(key)
			if err != nil {
				return nil, errors.Wrapf(err, "parse identity %s", path)
			}
			return []ssh.Signer{signer}, nil
		}))
	}

	if e.opts.Password != "" {
		methods = append(methods, ssh.Password(e.opts.Password))
	}

	return methods, cleanup
}
