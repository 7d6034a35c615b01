package reversessh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gossh "golang.org/x/crypto/ssh"
)

// SessionState tracks where a Client is in its lifecycle. Only Running
// accepts forwarded-connection (B) and server-message (C) events.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateAuthenticated
	StateForwardingRequested
	StateRunning
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateAuthenticated:
		return "Authenticated"
	case StateForwardingRequested:
		return "ForwardingRequested"
	case StateRunning:
		return "Running"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

const (
	forwardQueueCapacity = 64
	messageQueueCapacity = 256
)

// Client is a self-contained reverse SSH tunnel. Multiple concurrent
// tunnels in one process are supported simply by constructing multiple
// Clients — there is no package-level shared state (spec.md §9).
type Client struct {
	cfg Config
	log *slog.Logger

	handler  *handler
	forwardQ *forwardQueue
	msgQ     *messageQueue

	inactivityTimeout time.Duration

	mu        sync.Mutex
	state     SessionState
	sshClient *gossh.Client
}

// New validates cfg and constructs a Client ready to Run.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log := slog.Default().With("tunnel", runID, "server", cfg.ServerAddr)

	forwardQ := newForwardQueue(forwardQueueCapacity)
	msgQ := newMessageQueue(messageQueueCapacity)

	return &Client{
		cfg:      cfg,
		log:      log,
		handler:  newHandler(log, forwardQ, msgQ),
		forwardQ: forwardQ,
		msgQ:     msgQ,
	}, nil
}

// SetServerKeyChecker installs a predicate used to verify the server's
// host key. Without one, the default accept-all policy applies (spec.md
// §4.D, §9) — replace this for any use on an untrusted network.
func (c *Client) SetServerKeyChecker(pred func(gossh.PublicKey) bool) {
	c.handler.keyChecker = pred
}

// SetInactivityTimeout overrides the default one-hour coarse inactivity
// timeout on the underlying transport (spec.md §4.E, §5).
func (c *Client) SetInactivityTimeout(d time.Duration) {
	c.inactivityTimeout = d
}

// State reports the Client's current lifecycle state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s SessionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run is equivalent to RunWithMessageHandler with a no-op message handler.
func (c *Client) Run(ctx context.Context) error {
	return c.RunWithMessageHandler(ctx, func(ServerMessage) {})
}

// RunWithMessageHandler connects, authenticates, requests the remote
// forward, and blocks proxying forwarded connections until ctx is
// cancelled or the session ends. f is invoked at most once per server
// message fragment, in receive order, and must return promptly — it runs
// on the messages-draining goroutine, not the SSH driver (spec.md §6, §8
// property 6).
func (c *Client) RunWithMessageHandler(ctx context.Context, f func(ServerMessage)) error {
	c.setState(StateConnecting)

	sshClient, err := c.connect()
	if err != nil {
		c.setState(StateClosed)
		return err
	}
	c.mu.Lock()
	c.sshClient = sshClient
	c.mu.Unlock()
	c.setState(StateAuthenticated)

	if _, err := c.requestForward(sshClient); err != nil {
		sshClient.Close()
		c.setState(StateClosed)
		return err
	}
	c.setState(StateForwardingRequested)

	c.openAuxiliaryShell(sshClient)
	c.setState(StateRunning)

	// The forwarder and messages goroutines never close either channel —
	// the handler (D) is the sole writer and keeps writing until the SSH
	// session itself tears down the producers underneath it. Instead the
	// forwarder loop stops on the forward queue's closed signal and the
	// messages loop on stopMessages, each after a final non-blocking drain
	// of whatever was already buffered.
	var proxies sync.WaitGroup
	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		for {
			select {
			case fc := <-c.forwardQ.ch:
				proxies.Add(1)
				go func(fc *ForwardedConnection) {
					defer proxies.Done()
					c.runProxy(fc)
				}(fc)
			case <-c.forwardQ.closed:
				c.drainForwardQueue(&proxies)
				return
			}
		}
	}()

	messagesDone := make(chan struct{})
	stopMessages := make(chan struct{})
	go func() {
		defer close(messagesDone)
		for {
			select {
			case msg := <-c.msgQ.ch:
				f(msg)
			case <-stopMessages:
				c.drainMessageQueue(f)
				return
			}
		}
	}()

	sessionEnded := make(chan error, 1)
	go func() { sessionEnded <- sshClient.Wait() }()

	select {
	case <-ctx.Done():
		c.log.Info("run cancelled, tearing down tunnel")
	case err := <-sessionEnded:
		c.log.Info("SSH session ended", "error", err)
	}

	c.shutdown(sshClient, &proxies, forwarderDone, messagesDone, stopMessages)
	c.setState(StateClosed)
	return nil
}

// drainForwardQueue flushes whatever forwarded connections were already
// buffered in B without blocking, spawning a proxy unit for each.
func (c *Client) drainForwardQueue(proxies *sync.WaitGroup) {
	for {
		select {
		case fc := <-c.forwardQ.ch:
			proxies.Add(1)
			go func(fc *ForwardedConnection) {
				defer proxies.Done()
				c.runProxy(fc)
			}(fc)
		default:
			return
		}
	}
}

// drainMessageQueue flushes whatever fragments were already buffered in C
// without blocking.
func (c *Client) drainMessageQueue(f func(ServerMessage)) {
	for {
		select {
		case msg := <-c.msgQ.ch:
			f(msg)
		default:
			return
		}
	}
}

// shutdown stops accepting new forwarded channels, closes the SSH session
// (which in turn causes every open channel's I/O to fail and every
// in-flight proxy's copy loops to unwind), waits for in-flight proxy
// units to finish, and signals the two consumer goroutines to drain and
// stop.
func (c *Client) shutdown(sshClient *gossh.Client, proxies *sync.WaitGroup, forwarderDone, messagesDone <-chan struct{}, stopMessages chan<- struct{}) {
	c.forwardQ.closeProducer()
	sshClient.Close()

	done := make(chan struct{})
	go func() {
		proxies.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		c.log.Warn("timed out waiting for proxy units to finish")
	}

	<-forwarderDone
	close(stopMessages)
	<-messagesDone
}
