package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alicommit-malp/rtun/internal/config"
	"github.com/alicommit-malp/rtun/internal/reversessh"
)

var (
	flagServerAddr string
	flagServerPort int
	flagUsername   string
	flagKeyPath    string
	flagPassword   string
	flagRemotePort int
	flagLocalAddr  string
	flagLocalPort  int
)

// passwordPromptValue is the value --password takes when given with no
// value; runConnect then prompts for the password on the terminal.
const passwordPromptValue = " "

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open a reverse SSH tunnel (ssh -R) to a remote server",
	RunE:  runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&flagServerAddr, "server", "", "SSH server hostname or IP (required)")
	connectCmd.Flags().IntVar(&flagServerPort, "server-port", 22, "SSH server port")
	connectCmd.Flags().StringVar(&flagUsername, "user", "", "SSH username (required)")
	connectCmd.Flags().StringVar(&flagKeyPath, "key-path", "", "path to a private key (env SSH_KEY)")
	connectCmd.Flags().StringVar(&flagPassword, "password", "", "password auth (--password=VALUE); pass with no value to be prompted")
	connectCmd.Flags().Lookup("password").NoOptDefVal = passwordPromptValue
	connectCmd.Flags().IntVar(&flagRemotePort, "remote-port", 0, "port the server should listen on (0 = server chooses)")
	connectCmd.Flags().StringVar(&flagLocalAddr, "local-addr", "127.0.0.1", "local service address")
	connectCmd.Flags().IntVar(&flagLocalPort, "local-port", 0, "local service port (env LOCAL_PORT, required)")
	rootCmd.AddCommand(connectCmd)
}

// runConnect recognizes the closed set of environment fallbacks named in
// spec.md §6 ({key-path, local-port} ⇄ {SSH_KEY, LOCAL_PORT}) with tilde
// expansion on the key path, then builds and runs a reversessh.Client.
// This environment contract is informative only — it belongs to this
// example front-end, not to the reversessh library.
func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	tcfg := cfg.Tunnel

	if flagServerAddr != "" {
		tcfg.ServerAddr = flagServerAddr
	}
	if cmd.Flags().Changed("server-port") {
		tcfg.ServerPort = flagServerPort
	}
	if flagUsername != "" {
		tcfg.Username = flagUsername
	}

	keyPath := flagKeyPath
	if keyPath == "" {
		keyPath = os.Getenv("SSH_KEY")
	}
	if keyPath != "" {
		tcfg.KeyPath = expandTilde(keyPath)
	}

	if cmd.Flags().Changed("password") {
		tcfg.Password = flagPassword
		if tcfg.Password == "" || tcfg.Password == passwordPromptValue {
			pw, err := promptPassword()
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
			tcfg.Password = pw
		}
	}

	if cmd.Flags().Changed("remote-port") {
		tcfg.RemotePort = flagRemotePort
	}
	if flagLocalAddr != "" {
		tcfg.LocalAddr = flagLocalAddr
	}

	localPort := flagLocalPort
	if localPort == 0 {
		if v := os.Getenv("LOCAL_PORT"); v != "" {
			p, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parsing LOCAL_PORT: %w", err)
			}
			localPort = p
		}
	}
	if localPort != 0 {
		tcfg.LocalPort = localPort
	}

	client, err := reversessh.New(tcfg)
	if err != nil {
		return fmt.Errorf("configuring tunnel: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("rtun: forwarding server:%d -> %s:%d\n", tcfg.RemotePort, tcfg.LocalAddr, tcfg.LocalPort)

	return client.RunWithMessageHandler(ctx, func(msg reversessh.ServerMessage) {
		fmt.Print(msg.Text)
	})
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func expandTilde(p string) string {
	if p == "~" || len(p) >= 2 && p[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[1:])
	}
	return p
}
