package ipc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// ErrDaemonNotRunning reports that nothing is listening on the daemon
// socket. The controller prints this as a plain message, never a crash.
var ErrDaemonNotRunning = errors.New("ipc: daemon not running")

// Client is the controller side of the IPC channel.
type Client struct {
	conn net.Conn
}

// Dial connects to the daemon socket. A missing socket or a connection
// refusal is normalized to ErrDaemonNotRunning.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || isRefused(err) {
			return nil, ErrDaemonNotRunning
		}
		return nil, fmt.Errorf("ipc: dial %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

// Do sends one request and reads one response. A response carrying an Error
// payload is returned as that *Error.
func (c *Client) Do(req *Request) (*Response, error) {
	if err := writeFrame(c.conn, req); err != nil {
		return nil, err
	}
	var resp Response
	if err := readFrame(c.conn, &resp); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrDaemonNotRunning
		}
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &resp, nil
}

// Follow sends an events request in follow mode and invokes fn for the
// initial batch and then once per streamed event. Returns when the daemon
// closes the stream, fn returns an error, or the read fails.
func (c *Client) Follow(req *EventsRequest, fn func(*Response) error) error {
	follow := *req
	follow.Follow = true
	if err := writeFrame(c.conn, &Request{Events: &follow}); err != nil {
		return err
	}
	for {
		var resp Response
		if err := readFrame(c.conn, &resp); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if resp.Error != nil {
			return resp.Error
		}
		if err := fn(&resp); err != nil {
			return err
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// isRefused matches only the errnos that mean no daemon is listening.
// Other dial failures (permissions, bad path) surface as-is.
func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}
