// Package transport implements the client side of the echo protocol: a
// connection with a blocking send, a background receive loop, and listener
// notification of incoming messages and connection status changes.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hasirciogluhq/xecho/cmd/echo/internal/logger"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/message"
)

var (
	// ErrUnknownHost is returned by Dial when the host name does not resolve.
	ErrUnknownHost = errors.New("unknown host")
	// ErrConnect is returned by Dial for every other connection failure.
	ErrConnect = errors.New("could not establish connection")
	// ErrNotConnected is returned by Send once the connection is closed or lost.
	ErrNotConnected = errors.New("not connected")
)

// Status is a connection lifecycle event.
type Status int

const (
	Connected Status = iota
	Disconnected
	ConnectionLost
)

func (s Status) String() string {
	switch s {
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	case ConnectionLost:
		return "CONNECTION_LOST"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Listener receives events from a Client. Methods are called from the
// Client's receive goroutine, never concurrently with each other.
type Listener interface {
	HandleMessage(msg message.TextMessage)
	HandleStatus(status Status)
}

// Client is a connection to an echo server.
type Client struct {
	conn net.Conn
	log  *slog.Logger

	mu        sync.Mutex
	listeners []Listener

	writeMu sync.Mutex

	running atomic.Bool
	closing atomic.Bool
	started atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// Dial connects to host:port. A nil log uses the global logger.
func Dial(ctx context.Context, host string, port int, log *slog.Logger) (*Client, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, classifyDialError(address, err)
	}

	c := &Client{
		conn: conn,
		log:  logger.Or(log).With("server_addr", address),
		done: make(chan struct{}),
	}
	c.running.Store(true)
	c.log.Debug("Connection established")
	return c, nil
}

func classifyDialError(address string, err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return fmt.Errorf("dial %s: %w: %v", address, ErrUnknownHost, err)
	}
	return fmt.Errorf("dial %s: %w: %v", address, ErrConnect, err)
}

// AddListener registers l for messages and status changes. Listeners should
// be added before Start.
func (c *Client) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Start reports Connected and begins the receive loop on its own goroutine.
// Calls after the first are ignored.
func (c *Client) Start() {
	if c.closing.Load() || !c.started.CompareAndSwap(false, true) {
		return
	}
	c.notifyStatus(Connected)
	go c.receive()
}

func (c *Client) receive() {
	defer close(c.done)

	r := message.NewReader(c.conn)
	for {
		msg, err := r.Read()
		if err != nil {
			c.running.Store(false)
			c.conn.Close()
			if c.closing.Load() {
				c.log.Debug("Connection closed")
				c.notifyStatus(Disconnected)
			} else {
				c.log.Warn("Connection lost", "error", err)
				c.notifyStatus(ConnectionLost)
			}
			return
		}
		c.notifyMessage(msg)
	}
}

// Send writes msg to the server. Concurrent calls are serialized.
func (c *Client) Send(msg message.TextMessage) error {
	if !c.running.Load() {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := message.Write(c.conn, msg); err != nil {
		return err
	}
	c.log.Debug("Sent message", "text", msg.Text())
	return nil
}

// IsRunning reports whether the connection is open and usable.
func (c *Client) IsRunning() bool {
	return c.running.Load()
}

// Close tears the connection down. Once the receive loop is running, Close
// waits for it to deliver its final status, so it must not be called from a
// Listener callback. Calling Close more than once is safe.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.closing.Store(true)
		c.running.Store(false)
		err = c.conn.Close()
		if !c.started.Load() {
			c.notifyStatus(Disconnected)
		}
	})
	if c.started.Load() {
		<-c.done
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

func (c *Client) snapshot() []Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Listener(nil), c.listeners...)
}

func (c *Client) notifyMessage(msg message.TextMessage) {
	for _, l := range c.snapshot() {
		l.HandleMessage(msg)
	}
}

func (c *Client) notifyStatus(status Status) {
	for _, l := range c.snapshot() {
		l.HandleStatus(status)
	}
}
