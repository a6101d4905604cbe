// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package fabric

import (
	"bytes"
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/kballard/go-shellquote"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/juju/django-charm/internal/shell"
)

const (
	// DefaultUser is the account tasks log in as.
	DefaultUser = "ubuntu"

	// DefaultPort is the ssh port of the hosts.
	DefaultPort = 22

	defaultDialTimeout = 30 * time.Second
)

// DialConfig holds what is needed to log in to a host.
type DialConfig struct {
	User string
	Port int

	// KeyFiles are private keys offered in addition to the ones held by
	// the agent at $SSH_AUTH_SOCK.
	KeyFiles []string

	// KnownHostsFile verifies host keys. Unless InsecureIgnoreHostKey is
	// set, hosts must be listed in it.
	KnownHostsFile        string
	InsecureIgnoreHostKey bool

	Timeout time.Duration
}

// ClientConfig returns the ssh client configuration for c, together with
// a function releasing the agent connection, if one was made.
func (c DialConfig) ClientConfig() (*ssh.ClientConfig, func(), error) {
	release := func() {}
	var signers []ssh.Signer
	if socket := os.Getenv("SSH_AUTH_SOCK"); socket != "" {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			logger.Warningf("cannot connect to ssh agent: %v", err)
		} else {
			release = func() { _ = conn.Close() }
			agentSigners, err := agent.NewClient(conn).Signers()
			if err != nil {
				logger.Warningf("cannot list ssh agent keys: %v", err)
			}
			signers = append(signers, agentSigners...)
		}
	}
	for _, path := range c.KeyFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			release()
			return nil, nil, errors.Annotatef(err, "reading private key")
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			release()
			return nil, nil, errors.Annotatef(err, "parsing private key %s", path)
		}
		signers = append(signers, signer)
	}
	if len(signers) == 0 {
		release()
		return nil, nil, errors.NotFoundf("ssh keys")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if !c.InsecureIgnoreHostKey {
		if c.KnownHostsFile == "" {
			release()
			return nil, nil, errors.NotValidf("empty known hosts file")
		}
		var err error
		if hostKeyCallback, err = knownhosts.New(c.KnownHostsFile); err != nil {
			release()
			return nil, nil, errors.Annotate(err, "reading known hosts")
		}
	}
	user := c.User
	if user == "" {
		user = DefaultUser
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}
	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signers...)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, release, nil
}

// Dial logs in to address.
func Dial(ctx context.Context, address string, config DialConfig) (*Host, error) {
	clientConfig, release, err := config.ClientConfig()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer release()

	port := config.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(address, strconv.Itoa(port))
	logger.Debugf("dialing %s as %s", addr, clientConfig.User)
	dialer := net.Dialer{Timeout: clientConfig.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "dialing %s", addr)
	}
	// NewClientConn closes conn when it fails.
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		return nil, errors.Annotatef(err, "logging in to %s", addr)
	}
	return NewHost(address, ssh.NewClient(sshConn, chans, reqs)), nil
}

// Host runs commands on a remote host. It implements shell.Runner.
type Host struct {
	address string
	client  *ssh.Client
	files   *sftp.Client
}

// NewHost wraps an established ssh connection.
func NewHost(address string, client *ssh.Client) *Host {
	return &Host{address: address, client: client}
}

// Address returns the address the host was dialed at.
func (h *Host) Address() string {
	return h.address
}

// Run implements shell.Runner. The command line is built with
// RemoteCommandLine and run by the login shell of the remote user.
func (h *Host) Run(ctx context.Context, command shell.Command) (*shell.Result, error) {
	line, err := RemoteCommandLine(command)
	if err != nil {
		return nil, errors.Trace(err)
	}
	session, err := h.client.NewSession()
	if err != nil {
		return nil, errors.Annotatef(err, "opening session on %s", h.address)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if command.Stdin != nil {
		session.Stdin = bytes.NewReader(command.Stdin)
	}

	logger.Infof("[%s] run: %s", h.address, line)
	if err := session.Start(line); err != nil {
		return nil, errors.Annotatef(err, "running %s on %s", command, h.address)
	}
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()
	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		_ = session.Close()
		return nil, errors.Trace(ctx.Err())
	}

	result := &shell.Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		result.Code = exitErr.ExitStatus()
		return result, nil
	} else if err != nil {
		return nil, errors.Annotatef(err, "running %s on %s", command, h.address)
	}
	return result, nil
}

// Files returns an sftp client on the host, opened on first use.
func (h *Host) Files() (*sftp.Client, error) {
	if h.files != nil {
		return h.files, nil
	}
	files, err := sftp.NewClient(h.client)
	if err != nil {
		return nil, errors.Annotatef(err, "starting sftp on %s", h.address)
	}
	h.files = files
	return files, nil
}

// Append implements Remote.
func (h *Host) Append(path, content string, mode os.FileMode) (bool, error) {
	files, err := h.Files()
	if err != nil {
		return false, errors.Trace(err)
	}
	return AppendFile(files, path, content, mode)
}

// Close closes the connection.
func (h *Host) Close() error {
	if h.files != nil {
		_ = h.files.Close()
	}
	return errors.Trace(h.client.Close())
}

// RemoteCommandLine renders a command as a single POSIX shell line: the
// working directory is entered first and the extra environment is set
// with env(1).
func RemoteCommandLine(command shell.Command) (string, error) {
	if len(command.Args) == 0 {
		return "", errors.NotValidf("empty command")
	}
	var parts []string
	if command.Dir != "" {
		parts = append(parts, "cd", shellquote.Join(command.Dir), "&&")
	}
	if len(command.Env) > 0 {
		parts = append(parts, "env", shellquote.Join(command.Env...))
	}
	parts = append(parts, shellquote.Join(command.Args...))
	return strings.Join(parts, " "), nil
}
