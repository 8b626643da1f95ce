package guest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/containerd/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultSSHPort = "22"

// SSHConfig describes how to reach a guest over SSH
type SSHConfig struct {
	Address               string        // host[:port]
	User                  string        // Remote user, must be able to sudo without a password
	KeyPath               string        // Private key; the SSH agent is used when empty
	KnownHostsPath        string        // known_hosts file used to verify the guest
	InsecureIgnoreHostKey bool          // Skip host key verification (fresh boxes)
	Timeout               time.Duration // Dial and handshake timeout
}

// SSHCommunicator implements Communicator over an SSH connection
type SSHCommunicator struct {
	client *ssh.Client
	addr   string
}

// DialSSH connects to the guest described by cfg.
func DialSSH(ctx context.Context, cfg SSHConfig) (*SSHCommunicator, error) {
	addr := cfg.Address
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultSSHPort)
	}

	auth, err := authMethods(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	}

	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	// Handshake done; command lifetimes are bounded by their contexts instead.
	_ = conn.SetDeadline(time.Time{})

	log.G(ctx).WithField("address", addr).WithField("user", cfg.User).Debug("connected to guest")

	return &SSHCommunicator{client: ssh.NewClient(sshConn, chans, reqs), addr: addr}, nil
}

func authMethods(keyPath string) ([]ssh.AuthMethod, error) {
	if keyPath != "" {
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key %s: %w", keyPath, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("no private key configured and SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ssh agent: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(conn).Signers)}, nil
}

func hostKeyCallback(cfg SSHConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if cfg.KnownHostsPath == "" {
		return nil, fmt.Errorf("known hosts file is required unless host key checking is disabled")
	}
	cb, err := knownhosts.New(cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts: %w", err)
	}
	return cb, nil
}

// RunPrivileged implements Communicator.
func (c *SSHCommunicator) RunPrivileged(ctx context.Context, cmd string) (string, error) {
	return c.run(ctx, privileged(cmd), nil)
}

// RunPrivilegedFunc implements Communicator.
func (c *SSHCommunicator) RunPrivilegedFunc(ctx context.Context, cmd string, fn func(stdout string)) error {
	out, err := c.RunPrivileged(ctx, cmd)
	if err != nil {
		return err
	}
	fn(out)
	return nil
}

// Upload implements Communicator. The file is streamed into the remote path
// as the login user, not root.
func (c *SSHCommunicator) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := c.run(ctx, "cat > "+ShellQuote(remotePath), f); err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", localPath, remotePath, err)
	}
	return nil
}

// Close closes the underlying SSH connection.
func (c *SSHCommunicator) Close() error {
	return c.client.Close()
}

func (c *SSHCommunicator) run(ctx context.Context, cmd string, stdin io.Reader) (string, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open session to %s: %w", c.addr, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	if err := session.Start(cmd); err != nil {
		return "", fmt.Errorf("failed to start command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("command %q failed: %w: %s", cmd, err, strings.TrimSpace(stderr.String()))
		}
	}

	return stdout.String(), nil
}

func privileged(cmd string) string {
	return "sudo -n sh -c " + ShellQuote(cmd)
}
