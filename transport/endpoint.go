// Package transport implements the secure multi-endpoint UDP layer:
// N sockets bound to distinct interfaces, redundantly carrying the
// same encrypted stream through one shared tunnel.
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redpath-audio/rxcore/stats"
	"github.com/redpath-audio/rxcore/tunnel"
	"github.com/sirupsen/logrus"
)

// scratchBufferSize is the fixed per-endpoint receive buffer size,
// comfortably above typical UDP MTU.
const scratchBufferSize = 1500

// readDeadline bounds each blocking recv so the receive goroutine can
// observe the running flag without an unbounded block.
const readDeadline = 200 * time.Millisecond

// OnPacket is the capability the demultiplexer implements to receive
// cleartext payloads from any endpoint.
type OnPacket interface {
	OnPacket(buf []byte, epIndex int)
}

// Endpoint owns one UDP socket bound to a specific local interface,
// plus its own scratch buffer so concurrent receive goroutines never
// share memory.
type Endpoint struct {
	index     int
	iface     string
	conn      net.PacketConn
	scratch   []byte
	peerAddr  net.Addr
	peerKnown bool
	mu        sync.Mutex
}

// newEndpoint binds a UDP socket on the given local interface address
// (host:port, or ":0" to pick an ephemeral port on all interfaces).
func newEndpoint(index int, localAddr string) (*Endpoint, error) {
	conn, err := net.ListenPacket("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: endpoint %d listen on %q: %w", index, localAddr, err)
	}
	return &Endpoint{
		index:   index,
		iface:   localAddr,
		conn:    conn,
		scratch: make([]byte, scratchBufferSize),
	}, nil
}

// PeerAddr returns the peer address discovered from the first
// datagram, or nil if none has arrived yet.
func (e *Endpoint) PeerAddr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peerAddr
}

func (e *Endpoint) recordPeer(addr net.Addr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.peerKnown {
		e.peerKnown = true
		e.peerAddr = addr
		logrus.WithFields(logrus.Fields{
			"function": "Endpoint.recordPeer",
			"endpoint": e.index,
			"peer":     addr.String(),
		}).Info("Peer address discovered")
	}
}

// recvLoop blocks in recv until running is cleared, dispatching each
// datagram through the shared tunnel via onPeerPacket.
func (e *Endpoint) recvLoop(running *boolFlag, tun *tunnel.Tunnel, onPacket OnPacket, sendAll func([]byte)) {
	for running.get() {
		_ = e.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, addr, err := e.conn.ReadFrom(e.scratch)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !running.get() {
				return
			}
			continue
		}

		e.recordPeer(addr)
		stats.Global.Endpoints[e.index].BytesIn.Add(uint64(n) + 28)

		e.onPeerPacket(e.scratch[:n], tun, onPacket, sendAll)
	}
}

// onPeerPacket implements the tunnel protocol: feed ciphertext into
// the tunnel, then act on the outcome.
func (e *Endpoint) onPeerPacket(datagram []byte, tun *tunnel.Tunnel, onPacket OnPacket, sendAll func([]byte)) {
	outcome, out, err := tun.Feed(datagram)
	if err != nil {
		if errors.Is(err, tunnel.ErrDuplicatePacket) {
			return
		}
		logrus.WithFields(logrus.Fields{
			"function": "Endpoint.onPeerPacket",
			"endpoint": e.index,
			"error":    err.Error(),
		}).Error("Tunnel decrypt error")
		return
	}

	switch outcome {
	case tunnel.OutcomeWriteToNetwork:
		sendAll(out)
	case tunnel.OutcomeDeliver:
		if len(out) < ipv4HeaderLen {
			return
		}
		onPacket.OnPacket(out[ipv4HeaderLen:], e.index)
	}
}

// Close releases the endpoint's socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

type boolFlag struct {
	mu sync.RWMutex
	v  bool
}

func newBoolFlag(v bool) *boolFlag {
	return &boolFlag{v: v}
}

func (f *boolFlag) get() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.v
}

func (f *boolFlag) set(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.v = v
}
