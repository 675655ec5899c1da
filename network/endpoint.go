// Package network implements the UDP datagram transport: binding a
// socket, the bootstrap ping/pong handshake, and broadcast fanout to the
// roster.
package network

import (
	"context"
	"fmt"
	"net"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/avtzis/blockchat/internal/clog"
	"github.com/avtzis/blockchat/protocol"
)

// minBufferSize is the floor of the datagram sizing rule
// (4096 * capacity bytes), applied even at very small capacities so
// ping/key/activate exchanges never truncate.
const minBufferSize = 4096

// dedupCacheSize bounds the recently-seen envelope id cache. A
// long-lived UDP listener on a lossy/replaying transport benefits from
// one; sized generously relative to typical block capacities.
const dedupCacheSize = 4096

// Endpoint owns a bound UDP socket and provides the send/receive/
// broadcast primitives every node (bootstrap or peer) is built on.
type Endpoint struct {
	conn    *net.UDPConn
	log     *clog.Logger
	bufSize int
	seen    *lru.Cache
}

// Listen binds a UDP socket at host:port. port 0 lets the OS assign an
// ephemeral port, used by peers that bind before they know their
// identity.
func Listen(host string, port int, capacity int, log *clog.Logger) (*Endpoint, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("network: listen %s:%d: %w", host, port, err)
	}

	bufSize := minBufferSize * capacity
	if bufSize < minBufferSize {
		bufSize = minBufferSize
	}

	cache, err := lru.New(dedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("network: build dedup cache: %w", err)
	}

	return &Endpoint{conn: conn, log: log, bufSize: bufSize, seen: cache}, nil
}

// LocalAddr returns the bound host and port.
func (e *Endpoint) LocalAddr() (string, int) {
	addr := e.conn.LocalAddr().(*net.UDPAddr)
	return addr.IP.String(), addr.Port
}

// Close releases the socket; blocked Receive calls return an error, which
// worker goroutines treat as a shutdown signal.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// SendTo transmits a raw datagram to a single address.
func (e *Endpoint) SendTo(b []byte, host string, port int) error {
	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	_, err := e.conn.WriteToUDP(b, addr)
	if err != nil {
		return fmt.Errorf("network: send to %s:%d: %w", host, port, err)
	}
	return nil
}

// Broadcast transmits a raw datagram to every given address, logging
// (not aborting) on a per-recipient send failure. No envelope is
// retried by the network layer.
func (e *Endpoint) Broadcast(b []byte, recipients []Address) {
	for _, r := range recipients {
		if err := e.SendTo(b, r.Host, r.Port); err != nil {
			e.log.Warn("broadcast send failed", "to", fmt.Sprintf("%s:%d", r.Host, r.Port), "err", err)
		}
	}
}

// Address is a bare host:port send target, decoupling Broadcast from the
// chain package's richer Participant type.
type Address struct {
	Host string
	Port int
}

// Receive blocks for the next datagram, sized to the endpoint's
// configured buffer. Returns the sender's address alongside the payload.
func (e *Endpoint) Receive() ([]byte, *net.UDPAddr, error) {
	buf := make([]byte, e.bufSize)
	n, addr, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}
	return buf[:n], addr, nil
}

// Seen reports whether an envelope identity (transaction uuid or block
// hash) has already been processed, recording it if not. Used by intake
// loops to drop duplicate broadcasts without re-validating them.
func (e *Endpoint) Seen(id string) bool {
	if e.seen.Contains(id) {
		return true
	}
	e.seen.Add(id, struct{}{})
	return false
}

// PingBootstrap blocks, retrying a "ping" datagram on a short timeout
// until bootstrap answers the literal "pong" — the one timeout in the
// whole protocol. It returns when pong arrives or ctx is cancelled.
func PingBootstrap(ctx context.Context, e *Endpoint, bootstrapHost string, bootstrapPort int, retryTimeout time.Duration, log *clog.Logger) error {
	bootstrapAddr := &net.UDPAddr{IP: net.ParseIP(bootstrapHost), Port: bootstrapPort}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		log.Info("pinging bootstrap", "addr", bootstrapAddr.String())
		if _, err := e.conn.WriteToUDP([]byte("ping"), bootstrapAddr); err != nil {
			log.Warn("ping send failed", "err", err)
		}

		if err := e.conn.SetReadDeadline(time.Now().Add(retryTimeout)); err != nil {
			return fmt.Errorf("network: set read deadline: %w", err)
		}

		buf := make([]byte, 1024)
		n, from, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				log.Warn("bootstrap not available yet, retrying")
				continue
			}
			return fmt.Errorf("network: ping bootstrap: %w", err)
		}

		if string(buf[:n]) == protocol.PongLiteral && from.IP.Equal(bootstrapAddr.IP) && from.Port == bootstrapAddr.Port {
			log.Info("bootstrap available")
			return e.conn.SetReadDeadline(time.Time{})
		}
	}
}
