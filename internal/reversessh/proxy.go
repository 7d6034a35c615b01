package reversessh

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const copyBufferSize = 8 * 1024

// runProxy dials the configured local TCP endpoint and bridges fc's
// channel to it, copying bytes in both directions until either side
// closes (4.G). It never returns an error to the run loop: failures are
// logged and the forwarded channel is closed cleanly so the run
// continues (spec.md §7: LocalDialFailed, ProxyCopyInterrupted are both
// per-connection, not fatal).
func (c *Client) runProxy(fc *ForwardedConnection) {
	defer fc.Channel.Close()

	localAddr := fmt.Sprintf("%s:%d", c.cfg.LocalAddr, c.cfg.LocalPort)
	local, err := net.DialTimeout("tcp", localAddr, 10*time.Second)
	if err != nil {
		c.log.Warn("local dial failed, closing forwarded channel",
			"kind", newError(KindLocalDialFailed, err), "local_addr", localAddr,
			"originator", fc.Originator())
		return
	}
	defer local.Close()

	c.log.Info("proxying forwarded connection",
		"originator", fc.Originator(), "local_addr", localAddr)

	var wg sync.WaitGroup
	wg.Add(2)

	// remote-read → local-write
	go func() {
		defer wg.Done()
		buf := make([]byte, copyBufferSize)
		_, err := io.CopyBuffer(local, fc.Channel, buf)
		if err != nil {
			c.log.Debug("proxy copy remote→local ended", "kind", newError(KindProxyCopyInterrupted, err))
		}
		if tc, ok := local.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
	}()

	// local-read → remote-write
	go func() {
		defer wg.Done()
		buf := make([]byte, copyBufferSize)
		_, err := io.CopyBuffer(fc.Channel, local, buf)
		if err != nil {
			c.log.Debug("proxy copy local→remote ended", "kind", newError(KindProxyCopyInterrupted, err))
		}
		fc.Channel.CloseWrite()
	}()

	wg.Wait()
	c.log.Debug("proxy finished", "originator", fc.Originator())
}
