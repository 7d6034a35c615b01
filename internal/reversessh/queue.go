package reversessh

import (
	"fmt"
	"sync"

	gossh "golang.org/x/crypto/ssh"
)

// ForwardedConnection is an owned handle to a server-initiated
// "forwarded-tcpip" channel plus the originating peer's address as
// reported by the server. It is created inside the event handler (4.D),
// transferred exactly once through the dispatch queue below, and closed
// by the proxy worker (4.G) when either end of the copy terminates.
type ForwardedConnection struct {
	Channel gossh.Channel

	// ConnectedAddr/ConnectedPort are the bind address/port the server
	// reports the channel connected to.
	ConnectedAddr string
	ConnectedPort uint32

	// OriginatorAddr/OriginatorPort identify the external peer that
	// dialed the server's listening socket.
	OriginatorAddr string
	OriginatorPort uint32
}

// Originator returns a printable "host:port" form of the originating peer.
func (f *ForwardedConnection) Originator() string {
	return fmt.Sprintf("%s:%d", f.OriginatorAddr, f.OriginatorPort)
}

// forwardedTCPPayload is the channel-open payload for "forwarded-tcpip"
// (RFC 4254 §7.2).
type forwardedTCPPayload struct {
	ConnectedAddr  string
	ConnectedPort  uint32
	OriginatorAddr string
	OriginatorPort uint32
}

// forwardQueue is the one-producer/one-consumer dispatch queue B: the
// handler (producer) enqueues accepted forwarded channels with a
// non-blocking try-send; the run loop (consumer) drains it and spawns a
// proxy worker (4.G) per item. A full queue means the channel is dropped
// and closed cleanly — the SSH driver must never block here (spec.md §5).
type forwardQueue struct {
	ch chan *ForwardedConnection

	closeOnce sync.Once
	closed    chan struct{}
}

func newForwardQueue(capacity int) *forwardQueue {
	return &forwardQueue{
		ch:     make(chan *ForwardedConnection, capacity),
		closed: make(chan struct{}),
	}
}

// trySend attempts to enqueue fc without blocking. It reports false if the
// queue is full or has been closed; the caller is responsible for closing
// fc.Channel in that case.
func (q *forwardQueue) trySend(fc *ForwardedConnection) bool {
	select {
	case <-q.closed:
		return false
	default:
	}
	select {
	case q.ch <- fc:
		return true
	default:
		return false
	}
}

// closeProducer stops accepting new sends; in-flight receives still drain
// whatever was already queued.
func (q *forwardQueue) closeProducer() {
	q.closeOnce.Do(func() { close(q.closed) })
}
