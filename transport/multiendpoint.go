package transport

import (
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/redpath-audio/rxcore/crypto"
	"github.com/redpath-audio/rxcore/stats"
	"github.com/redpath-audio/rxcore/tunnel"
	"github.com/sirupsen/logrus"
)

// ipv4HeaderLen is the size of the synthetic IPv4 header the sender
// prepends to every cleartext payload.
const ipv4HeaderLen = 20

// tickInterval is the tunnel's periodic tick cadence, sub-second. It
// must be short enough to keep the tunnel's internal handshake/rekey
// timer serviced.
const tickInterval = 250 * time.Millisecond

// EndpointConfig describes one local interface to bind.
type EndpointConfig struct {
	Interface string // local bind address, "host:port" or ":0"
}

// Config is the configuration surface transport.Open consumes,
// matching the endpoints.* and root.* configuration fields.
type Config struct {
	Endpoints       []EndpointConfig
	LocalPrivateKey [32]byte
	PeerPublicKey   [32]byte
}

// MultiEndpoint is the secure multi-path transport: N UDP sockets,
// one shared Noise-IK tunnel, a tick goroutine, and one receive
// goroutine per endpoint.
type MultiEndpoint struct {
	endpoints []*Endpoint
	tun       *tunnel.Tunnel
	running   *boolFlag
	wg        sync.WaitGroup
}

// Open reads the endpoint configuration, binds one socket per
// endpoint, initializes the shared tunnel, and starts the tick
// goroutine plus one receive goroutine per endpoint. onPacket receives
// every cleartext payload with the synthetic IPv4 header stripped.
func Open(cfg Config, onPacket OnPacket) (*MultiEndpoint, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("transport: at least one endpoint is required")
	}

	if _, err := crypto.FromPrivateKey(cfg.LocalPrivateKey); err != nil {
		return nil, fmt.Errorf("transport: local key: %w", err)
	}

	tun, err := tunnel.Open(tunnel.Responder, cfg.LocalPrivateKey, cfg.PeerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("transport: open tunnel: %w", err)
	}

	stats.Init(len(cfg.Endpoints))

	endpoints := make([]*Endpoint, 0, len(cfg.Endpoints))
	for i, ec := range cfg.Endpoints {
		ep, err := newEndpoint(i, ec.Interface)
		if err != nil {
			for _, prior := range endpoints {
				_ = prior.Close()
			}
			return nil, err
		}
		stats.Global.Endpoints[i].Open.Store(true)
		endpoints = append(endpoints, ep)
	}

	me := &MultiEndpoint{
		endpoints: endpoints,
		tun:       tun,
		running:   newBoolFlag(true),
	}

	for _, ep := range endpoints {
		ep := ep
		me.wg.Add(1)
		go func() {
			defer me.wg.Done()
			ep.recvLoop(me.running, me.tun, onPacket, me.sendAll)
		}()
	}

	me.wg.Add(1)
	go me.tickLoop()

	logrus.WithFields(logrus.Fields{
		"function":       "transport.Open",
		"endpoint_count": len(endpoints),
	}).Info("Secure multi-endpoint transport started")

	return me, nil
}

// Send wraps buf in a synthetic IPv4 header, encrypts it through the
// shared tunnel, and broadcasts the ciphertext to every endpoint.
func (m *MultiEndpoint) Send(buf []byte) error {
	framed := make([]byte, ipv4HeaderLen+len(buf))
	writeSyntheticIPv4Header(framed, len(buf))
	copy(framed[ipv4HeaderLen:], buf)

	ciphertext, err := m.tun.Write(framed)
	if err != nil {
		return fmt.Errorf("transport: encrypt: %w", err)
	}
	m.sendAll(ciphertext)
	return nil
}

// writeSyntheticIPv4Header fills in the minimal fields: version=4,
// IHL=5, total length = payload+20. Everything else is zero; the
// receiver only strips these 20 bytes, it never interprets them.
func writeSyntheticIPv4Header(buf []byte, payloadLen int) {
	buf[0] = 0x45 // version 4, IHL 5
	total := uint16(payloadLen + ipv4HeaderLen)
	buf[2] = byte(total >> 8)
	buf[3] = byte(total)
}

// sendAll iterates every endpoint, skipping any whose peer address is
// not yet known and any that fail to send. A transient send failure
// marks the endpoint congested.
func (m *MultiEndpoint) sendAll(data []byte) {
	if len(data) == 0 {
		return
	}
	for _, ep := range m.endpoints {
		addr := ep.PeerAddr()
		if addr == nil {
			continue
		}
		_, err := ep.conn.WriteTo(data, addr)
		if err != nil {
			stats.Global.Endpoints[ep.index].Congested.Store(isTransient(err))
			continue
		}
		stats.Global.Endpoints[ep.index].Congested.Store(false)
		stats.Global.Endpoints[ep.index].BytesOut.Add(uint64(len(data)) + 28)
	}
}

func isTransient(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// tickLoop calls the tunnel's tick routine on a fixed cadence and
// broadcasts any emitted keepalive bytes. It is run with
// LockOSThread and a best-effort niceness hint so receive-thread
// contention on the tunnel's internal lock cannot starve it.
func (m *MultiEndpoint) tickLoop() {
	defer m.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	elevatePriority()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for m.running.get() {
		<-ticker.C
		out, err := m.tun.Tick()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "MultiEndpoint.tickLoop",
				"error":    err.Error(),
			}).Warn("Tunnel tick failed")
			continue
		}
		if len(out) > 0 {
			m.sendAll(out)
		}
	}
}

// Deinit stops all threads and releases sockets. Best-effort: it does
// not block on threads that are mid-syscall beyond the read deadline.
func (m *MultiEndpoint) Deinit() error {
	m.running.set(false)
	for _, ep := range m.endpoints {
		_ = ep.Close()
	}
	m.wg.Wait()
	return nil
}
