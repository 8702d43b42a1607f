// Package client implements the session engine: the protocol state machine,
// the TLS control and encrypted UDP voice transports, the per-speaker
// receive streams, and the command dispatcher driven over IPC.
package client

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/sornas/mum/pkg/protocol"
)

const dialTimeout = 10 * time.Second

// ControlClient manages the TLS control channel. Writes are serialized by a
// mutex; reads happen on the engine's read loop only.
type ControlClient struct {
	conn net.Conn
	mu   sync.Mutex
}

// DialControl connects to the server's control port via TLS.
func DialControl(ctx context.Context, addr string, acceptInvalidCert bool) (*ControlClient, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: acceptInvalidCert, //nolint:gosec // explicit opt-in for self-signed servers
		MinVersion:         tls.VersionTLS12,
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{Config: tlsCfg}
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}
	return &ControlClient{conn: conn}, nil
}

// Send writes one control message.
func (c *ControlClient) Send(msg *protocol.ControlMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteControlMessage(c.conn, msg)
}

// Read reads the next control message. Only the read loop calls this.
func (c *ControlClient) Read() (*protocol.ControlMessage, error) {
	return protocol.ReadControlMessage(c.conn)
}

// SetReadDeadline bounds the next Read, so a dead server cannot block the
// read loop past the keepalive window.
func (c *ControlClient) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close closes the control connection, unblocking any pending Read.
func (c *ControlClient) Close() error {
	return c.conn.Close()
}
