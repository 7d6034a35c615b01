package reversessh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	gossh "golang.org/x/crypto/ssh"
)

const defaultInactivityTimeout = time.Hour

// connect opens the transport connection to Config.ServerAddr:ServerPort,
// negotiates the SSH handshake, and authenticates per 4.E's precedence
// (key before password). Returns the live *ssh.Client on success.
func (c *Client) connect() (*gossh.Client, error) {
	auth, err := c.authMethods()
	if err != nil {
		if errors.Is(err, ErrAuthenticationMissing) {
			return nil, newError(KindAuthenticationMissing, err)
		}
		return nil, newError(KindAuthenticationFailed, err)
	}

	cfg := &gossh.ClientConfig{
		User:            c.cfg.Username,
		Auth:            auth,
		HostKeyCallback: c.handler.hostKeyCallback(),
		ClientVersion:   c.cfg.clientVersion(),
		Timeout:         10 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.ServerAddr, c.cfg.ServerPort)
	c.log.Debug("dialing SSH server", "addr", addr, "user", c.cfg.Username)

	rawConn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, newError(KindTransportConnectFailed, fmt.Errorf("dialing %s: %w", addr, err))
	}

	conn := newIdleConn(rawConn, c.inactivityTimeout)

	sshConn, chans, reqs, err := gossh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		var kerr *Error
		if errors.As(err, &kerr) {
			return nil, kerr
		}
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, newError(KindAuthenticationFailed, fmt.Errorf("%w: %s", ErrAuthenticationFailed, err))
		}
		return nil, newError(KindTransportConnectFailed, fmt.Errorf("SSH handshake with %s: %w", addr, err))
	}

	client := gossh.NewClient(sshConn, chans, reqs)
	c.log.Info("authenticated", "addr", addr, "user", c.cfg.Username)
	return client, nil
}

// authMethods builds the auth method list per Config's precedence: a
// configured KeyPath always wins over a configured Password.
func (c *Client) authMethods() ([]gossh.AuthMethod, error) {
	if c.cfg.KeyPath != "" {
		keyData, err := os.ReadFile(c.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key %s: %w", c.cfg.KeyPath, err)
		}
		signer, err := gossh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parsing private key %s: %w", c.cfg.KeyPath, err)
		}
		return []gossh.AuthMethod{gossh.PublicKeys(signer)}, nil
	}
	if c.cfg.Password != "" {
		return []gossh.AuthMethod{gossh.Password(c.cfg.Password)}, nil
	}
	return nil, fmt.Errorf("%w: config has neither key_path nor password", ErrAuthenticationMissing)
}

// idleConn wraps a net.Conn and resets a rolling deadline on every
// Read/Write so the connection is torn down after timeout of inactivity
// in either direction, realizing 4.E's "configurable inactivity timeout".
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func newIdleConn(conn net.Conn, timeout time.Duration) *idleConn {
	if timeout <= 0 {
		timeout = defaultInactivityTimeout
	}
	ic := &idleConn{Conn: conn, timeout: timeout}
	ic.bump()
	return ic
}

func (c *idleConn) bump() {
	c.Conn.SetDeadline(time.Now().Add(c.timeout))
}

func (c *idleConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.bump()
	return n, err
}

func (c *idleConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.bump()
	return n, err
}
