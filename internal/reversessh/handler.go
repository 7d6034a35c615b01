package reversessh

import (
	"io"
	"log/slog"
	"net"
	"unicode/utf8"

	gossh "golang.org/x/crypto/ssh"
)

// handler implements the SSH client-side event callbacks (4.D): the
// server-key check, forwarded-tcpip channel acceptance, and normal/
// extended-data capture on the auxiliary shell channel. It owns only the
// producer ends of the two dispatch queues, so it stays trivially
// movable/shareable by the SSH driver (design note, spec.md §9) and never
// calls into user code directly — it only enqueues.
type handler struct {
	log *slog.Logger

	forwardQ *forwardQueue
	msgQ     *messageQueue

	keyChecker func(gossh.PublicKey) bool
}

func newHandler(log *slog.Logger, forwardQ *forwardQueue, msgQ *messageQueue) *handler {
	return &handler{log: log, forwardQ: forwardQ, msgQ: msgQ}
}

// hostKeyCallback returns "accepted" unconditionally unless a pinning
// predicate was installed with SetServerKeyChecker. The default is
// explicit and logged at warning level (spec.md §4.D, §9).
func (h *handler) hostKeyCallback() gossh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key gossh.PublicKey) error {
		if h.keyChecker == nil {
			h.log.Warn("accepting server host key without verification",
				"hostname", hostname, "remote", remote.String(),
				"fingerprint", gossh.FingerprintSHA256(key))
			return nil
		}
		if h.keyChecker(key) {
			return nil
		}
		return &Error{Kind: KindTransportConnectFailed, Err: errHostKeyRejected}
	}
}

// acceptForwardedChannels registers the forwarded-tcpip handler on client
// and drains it, enqueueing every accepted channel on the dispatch queue
// until the channel of NewChannels closes (session teardown). Must be
// called before the tcpip-forward global request is sent, so the library
// routes forwarded-tcpip opens to us instead of rejecting them as
// "unknown channel type" (grounded on the pack's reverse-tunnel reference
// implementation working around exactly this ordering requirement).
func (h *handler) acceptForwardedChannels(client *gossh.Client) <-chan gossh.NewChannel {
	incoming := client.HandleChannelOpen("forwarded-tcpip")
	go func() {
		for newCh := range incoming {
			h.acceptOne(newCh)
		}
	}()
	return incoming
}

func (h *handler) acceptOne(newCh gossh.NewChannel) {
	var payload forwardedTCPPayload
	if err := gossh.Unmarshal(newCh.ExtraData(), &payload); err != nil {
		h.log.Warn("rejecting forwarded-tcpip with unparseable payload", "error", err)
		newCh.Reject(gossh.ConnectionFailed, "malformed forwarded-tcpip payload")
		return
	}

	ch, reqs, err := newCh.Accept()
	if err != nil {
		h.log.Warn("failed to accept forwarded-tcpip channel", "error", err)
		return
	}
	go gossh.DiscardRequests(reqs)

	fc := &ForwardedConnection{
		Channel:        ch,
		ConnectedAddr:  payload.ConnectedAddr,
		ConnectedPort:  payload.ConnectedPort,
		OriginatorAddr: payload.OriginatorAddr,
		OriginatorPort: payload.OriginatorPort,
	}

	if !h.forwardQ.trySend(fc) {
		h.log.Warn("dropping forwarded connection",
			"kind", newError(KindBackpressureDropped, nil), "originator", fc.Originator())
		ch.Close()
		return
	}
	h.log.Debug("accepted forwarded-tcpip channel", "originator", fc.Originator())
}

// captureStream reads raw bytes from r (the auxiliary shell's normal or
// extended-data stream), attempts a non-lossy UTF-8 decode of each chunk,
// and non-blockingly publishes successful decodes on the message queue.
// Invalid UTF-8 is dropped silently with a debug-level log event
// (spec.md §3 ServerMessage invariant).
func (h *handler) captureStream(r io.Reader, stream Stream) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if utf8.Valid(chunk) {
				msg := ServerMessage{Stream: stream, Text: string(chunk)}
				if !h.msgQ.trySend(msg) {
					h.log.Debug("dropping server message: dispatch queue full")
				}
			} else {
				h.log.Debug("dropping non-UTF-8 fragment on auxiliary shell stream", "stream", stream)
			}
		}
		if err != nil {
			if err != io.EOF {
				h.log.Debug("auxiliary shell stream closed", "error", err)
			}
			return
		}
	}
}
