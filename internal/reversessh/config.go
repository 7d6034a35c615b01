// Package reversessh implements a reverse SSH tunnel client: it connects
// outbound to a public SSH server, asks it to accept inbound TCP
// connections on a chosen port (ssh -R), and proxies each such connection
// to a local TCP service.
package reversessh

import "fmt"

// Config holds the immutable parameters of a single reverse tunnel.
//
// At least one of KeyPath or Password must be set. When both are set, key
// auth is attempted first and password auth is never tried.
type Config struct {
	// ServerAddr is the hostname or IP of the public SSH server.
	ServerAddr string
	// ServerPort is the SSH server's port, typically 22.
	ServerPort int
	// Username is the SSH user to authenticate as.
	Username string

	// KeyPath is a filesystem path to a private key in any format
	// golang.org/x/crypto/ssh can parse. Takes precedence over Password.
	KeyPath string
	// Password is used for password authentication when KeyPath is empty.
	Password string

	// RemotePort is the port the server should listen on. 0 asks the
	// server to choose a port.
	RemotePort int

	// LocalAddr is the local service's address, typically "127.0.0.1".
	LocalAddr string
	// LocalPort is the local service's port.
	LocalPort int

	// ClientVersion overrides the SSH client version string advertised
	// during the handshake. Defaults to "SSH-2.0-rtun" when empty; some
	// hosted tunnel providers key behavior off the advertised banner.
	ClientVersion string
}

// Validate checks the invariants spec'd for Config: ports in range, and
// at least one authentication credential configured.
func (c Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("reversessh: server address is required")
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("reversessh: server port %d out of range", c.ServerPort)
	}
	if c.Username == "" {
		return fmt.Errorf("reversessh: username is required")
	}
	if c.KeyPath == "" && c.Password == "" {
		return fmt.Errorf("reversessh: either key_path or password must be set: %w", ErrAuthenticationMissing)
	}
	if c.RemotePort < 0 || c.RemotePort > 65535 {
		return fmt.Errorf("reversessh: remote port %d out of range", c.RemotePort)
	}
	if c.LocalAddr == "" {
		return fmt.Errorf("reversessh: local address is required")
	}
	if c.LocalPort < 1 || c.LocalPort > 65535 {
		return fmt.Errorf("reversessh: local port %d out of range", c.LocalPort)
	}
	return nil
}

func (c Config) clientVersion() string {
	if c.ClientVersion != "" {
		return c.ClientVersion
	}
	return "SSH-2.0-rtun"
}
