package reversessh

import (
	"fmt"

	gossh "golang.org/x/crypto/ssh"
)

// channelForwardMsg is the wire format for the "tcpip-forward" global
// request (RFC 4254 §7.1). BindAddr MUST be the empty string — hosted
// tunnel services such as localhost.run key their DNS-driven response on
// the empty-string convention and respond with an error (e.g. "missing
// _lhr TXT record on 0.0.0.0") if "0.0.0.0" is sent instead. This is a
// protocol-level contract, not a style choice (spec.md §4.F, §8 property 1).
type channelForwardMsg struct {
	BindAddr string
	BindPort uint32
}

// tcpipForwardReply carries the server-assigned port when BindPort was
// requested as 0.
type tcpipForwardReply struct {
	BoundPort uint32
}

// requestForward issues the tcpip-forward global request and registers
// the forwarded-tcpip channel handler. Returns the actual bound port
// (equal to Config.RemotePort unless 0 was requested).
func (c *Client) requestForward(client *gossh.Client) (uint32, error) {
	// Register the handler BEFORE sending the request: the SSH library
	// routes the server's forwarded-tcpip channel opens to whichever
	// HandleChannelOpen call registered first, so registering late races
	// an eager server.
	c.handler.acceptForwardedChannels(client)

	msg := channelForwardMsg{BindAddr: "", BindPort: uint32(c.cfg.RemotePort)}
	ok, payload, err := client.SendRequest("tcpip-forward", true, gossh.Marshal(&msg))
	if err != nil {
		return 0, newError(KindForwardRequestRejected, fmt.Errorf("tcpip-forward request: %w", err))
	}
	if !ok {
		return 0, newError(KindForwardRequestRejected, fmt.Errorf("tcpip-forward denied by server"))
	}

	boundPort := uint32(c.cfg.RemotePort)
	if c.cfg.RemotePort == 0 && len(payload) > 0 {
		var reply tcpipForwardReply
		if err := gossh.Unmarshal(payload, &reply); err == nil {
			boundPort = reply.BoundPort
		}
	}
	return boundPort, nil
}

// openAuxiliaryShell opens a bare "session" channel and requests "shell"
// on it directly — want_reply=false, no PTY — purely to elicit welcome/
// banner text onto the channel's normal/extended-data streams (spec.md
// §4.F). ssh.Session's Shell() is not a substitute: it always sends
// want_reply=true, which some hosted tunnel gateways never answer,
// stalling the auxiliary path. Failure here is logged at warning level
// and does not fail the run — forwarding works independently of message
// capture.
func (c *Client) openAuxiliaryShell(client *gossh.Client) {
	ch, reqs, err := client.OpenChannel("session", nil)
	if err != nil {
		c.log.Warn("auxiliary shell unavailable", "kind", KindAuxiliaryShellUnavailable, "error", err)
		return
	}
	go gossh.DiscardRequests(reqs)

	if _, err := ch.SendRequest("shell", false, nil); err != nil {
		c.log.Warn("auxiliary shell unavailable", "kind", KindAuxiliaryShellUnavailable, "error", err)
		ch.Close()
		return
	}

	go func() {
		defer ch.Close()
		done := make(chan struct{}, 2)
		go func() { c.handler.captureStream(ch, StreamNormal); done <- struct{}{} }()
		go func() { c.handler.captureStream(ch.Stderr(), StreamExtended); done <- struct{}{} }()
		<-done
		<-done
	}()
}
