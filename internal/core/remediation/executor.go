package remediation

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	apperrors "github.com/opswatch/opswatch-backend-go/pkg/errors"
)

// TimeoutExitCode is the synthetic exit code recorded when a command
// exceeds its hard timeout, matching coreutils timeout(1).
const TimeoutExitCode = 124

// Executor runs one command on a target host. A non-nil error means
// the command could not be run at all; a command that ran and failed
// is reported through the exit code.
type Executor interface {
	Run(ctx context.Context, host, command string, timeout time.Duration) (exitCode int, output string, err error)
}

// SSHConfig holds connection settings shared by all target hosts.
type SSHConfig struct {
	User           string
	Port           int
	PrivateKeyPath string
	Password       string
	ConnectTimeout time.Duration
}

// SSHExecutor runs commands over SSH, one session per command. Hosts
// are identified by name or address; port and credentials come from
// shared config.
type SSHExecutor struct {
	cfg SSHConfig
}

// NewSSHExecutor creates an SSH command executor.
func NewSSHExecutor(cfg SSHConfig) (*SSHExecutor, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("ssh executor needs a user")
	}
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.PrivateKeyPath == "" && cfg.Password == "" {
		return nil, fmt.Errorf("ssh executor needs a private key or password")
	}
	return &SSHExecutor{cfg: cfg}, nil
}

// DisabledExecutor stands in when no SSH credentials are configured.
// Every run fails as a configuration error, never retried.
type DisabledExecutor struct{}

// Run always fails: execution is not configured on this deployment.
func (DisabledExecutor) Run(ctx context.Context, host, command string, timeout time.Duration) (int, string, error) {
	return 0, "", fmt.Errorf("remediation execution is not configured (missing ssh credentials)")
}

func (e *SSHExecutor) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if e.cfg.PrivateKeyPath != "" {
		key, err := os.ReadFile(e.cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ssh key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if e.cfg.Password != "" {
		methods = append(methods, ssh.Password(e.cfg.Password))
	}
	return methods, nil
}

// Run executes a single command on the host. The timeout is a hard
// bound: on expiry the session is torn down and a synthetic non-zero
// exit code is returned so the caller treats it as a failed step.
func (e *SSHExecutor) Run(ctx context.Context, host, command string, timeout time.Duration) (int, string, error) {
	methods, err := e.authMethods()
	if err != nil {
		return 0, "", err
	}

	clientConfig := &ssh.ClientConfig{
		User:            e.cfg.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         e.cfg.ConnectTimeout,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", e.cfg.Port))
	client, err := ssh.Dial("tcp", addr, clientConfig)
	if err != nil {
		return 0, "", apperrors.Transient(fmt.Errorf("ssh dial %s failed: %w", addr, err))
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return 0, "", apperrors.Transient(fmt.Errorf("ssh session on %s failed: %w", host, err))
	}
	defer session.Close()

	var buf bytes.Buffer
	session.Stdout = &buf
	session.Stderr = &buf

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-runCtx.Done():
		// Stuck command: kill the session, report a timed-out step.
		session.Close()
		client.Close()
		<-done
		if ctx.Err() != nil {
			return TimeoutExitCode, buf.String(), ctx.Err()
		}
		return TimeoutExitCode, buf.String(), nil
	case err := <-done:
		if err == nil {
			return 0, buf.String(), nil
		}
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return exitErr.ExitStatus(), buf.String(), nil
		}
		return 0, buf.String(), apperrors.Transient(fmt.Errorf("ssh run on %s failed: %w", host, err))
	}
}
