// Package console implements the interactive echo client: a line-oriented
// command interpreter driving a transport, and the listener that prints what
// the transport reports.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hasirciogluhq/xecho/cmd/echo/internal/config"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/core"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/logger"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/message"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/transport"
)

// Prompt precedes every interactive output line.
const Prompt = "EchoClient> "

// Transport is the part of transport.Client the console drives.
type Transport interface {
	AddListener(l transport.Listener)
	Start()
	Send(msg message.TextMessage) error
	IsRunning() bool
	Close() error
}

// DialFunc opens a Transport to host:port.
type DialFunc func(ctx context.Context, host string, port int) (Transport, error)

// App is the echo client application. Run drives it from a single goroutine;
// the transport calls HandleMessage and HandleStatus from its own.
type App struct {
	in       *bufio.Reader
	out      io.Writer
	outMu    sync.Mutex
	resolver core.HostResolver
	dial     DialFunc
	log      *slog.Logger

	stop atomic.Bool
	// client is only touched by the Run goroutine.
	client Transport

	targetMu      sync.RWMutex
	serverAddress string
	serverPort    int
}

// Option configures an App.
type Option func(*App)

// WithResolver sets the resolver applied to the host of connect commands.
func WithResolver(r core.HostResolver) Option {
	return func(a *App) { a.resolver = r }
}

// WithDialer replaces the function used to open transports.
func WithDialer(d DialFunc) Option {
	return func(a *App) { a.dial = d }
}

// WithLogger sets the diagnostic logger. User-facing output always goes to
// the App's writer.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// New returns an App reading commands from in and writing to out.
func New(in io.Reader, out io.Writer, opts ...Option) *App {
	a := &App{
		in:       bufio.NewReader(in),
		out:      out,
		resolver: core.PassthroughResolver{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logger.Or(a.log)
	if a.dial == nil {
		a.dial = func(ctx context.Context, host string, port int) (Transport, error) {
			return transport.Dial(ctx, host, port, a.log)
		}
	}
	return a
}

// Run reads and executes commands until quit or until input fails. End of
// input is reported to the user and returns nil; other read errors are
// returned.
func (a *App) Run(ctx context.Context) error {
	for !a.stop.Load() {
		a.print(Prompt)

		line, err := a.in.ReadString('\n')
		if line != "" {
			a.handleCommand(ctx, line)
		}
		if err != nil {
			if a.stop.Load() {
				return nil
			}
			a.stop.Store(true)
			a.disconnect()
			a.printError("CLI does not respond - Application terminated")
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}
	}
	return nil
}

func (a *App) handleCommand(ctx context.Context, line string) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return
	}

	switch tokens[0] {
	case "quit":
		a.stop.Store(true)
		a.disconnect()
		a.println(Prompt + "Application exit!")

	case "connect":
		if len(tokens) != 3 {
			a.printError("Invalid number of parameters!")
			return
		}
		port, err := config.ParsePort(tokens[2])
		if err != nil {
			a.printError("No valid address. Port must be a number!")
			return
		}
		// Never hold two live transports.
		a.disconnect()
		a.setTarget(tokens[1], port)

		if err := a.connect(ctx, tokens[1], port); err != nil {
			a.log.Debug("Connect failed", "host", tokens[1], "port", port, "error", err)
			if errors.Is(err, transport.ErrUnknownHost) {
				a.printError("Unknown Host!")
			} else {
				a.printError("Could not establish connection!")
			}
		}

	case "send":
		if len(tokens) < 2 {
			a.printError("No message passed!")
			return
		}
		if a.client == nil || !a.client.IsRunning() {
			a.printError("Not connected!")
			return
		}
		a.sendMessage(strings.Join(tokens[1:], " "))

	case "disconnect":
		a.disconnect()

	case "help":
		a.printHelp()

	default:
		a.printError("Unknown command")
		a.printHelp()
	}
}

func (a *App) connect(ctx context.Context, host string, port int) error {
	resolved, err := a.resolver.Resolve(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w: %v", host, transport.ErrUnknownHost, err)
	}
	if resolved != host {
		a.log.Debug("Resolved host", "host", host, "resolved", resolved)
	}

	client, err := a.dial(ctx, resolved, port)
	if err != nil {
		return err
	}
	client.AddListener(a)
	a.client = client
	client.Start()
	return nil
}

func (a *App) sendMessage(msg string) {
	if err := a.client.Send(message.New(msg)); err != nil {
		a.log.Debug("Send failed", "error", err)
		a.printError("Unable to send message!")
		a.disconnect()
	}
}

func (a *App) disconnect() {
	if a.client == nil {
		return
	}
	if err := a.client.Close(); err != nil {
		a.log.Debug("Close failed", "error", err)
	}
	a.client = nil
}

func (a *App) setTarget(address string, port int) {
	a.targetMu.Lock()
	defer a.targetMu.Unlock()
	a.serverAddress = address
	a.serverPort = port
}

func (a *App) target() string {
	a.targetMu.RLock()
	defer a.targetMu.RUnlock()
	return a.serverAddress + " / " + strconv.Itoa(a.serverPort)
}

// HandleMessage implements transport.Listener.
func (a *App) HandleMessage(msg message.TextMessage) {
	if a.stop.Load() {
		return
	}
	a.print(msg.Text() + "\n" + Prompt)
}

// HandleStatus implements transport.Listener.
func (a *App) HandleStatus(status transport.Status) {
	switch status {
	case transport.Connected:
	case transport.Disconnected:
		a.println(Prompt + "Connection terminated: " + a.target())
	case transport.ConnectionLost:
		a.print("Connection lost: " + a.target() + "\n" + Prompt)
	}
}

func (a *App) printHelp() {
	var sb strings.Builder
	sb.WriteString(Prompt + "ECHO CLIENT HELP (Usage):\n")
	sb.WriteString(Prompt + strings.Repeat(":", 64) + "\n")
	sb.WriteString(Prompt + "connect <host> <port>\t establishes a connection to a server\n")
	sb.WriteString(Prompt + "send <text message>\t\t sends a text message to the server\n")
	sb.WriteString(Prompt + "disconnect\t\t\t disconnects from the server\n")
	sb.WriteString(Prompt + "help\t\t\t\t shows this help\n")
	sb.WriteString(Prompt + "quit\t\t\t\t exits the program\n")
	a.print(sb.String())
}

func (a *App) printError(msg string) {
	a.println(Prompt + "Error! " + msg)
}

func (a *App) println(s string) {
	a.print(s + "\n")
}

func (a *App) print(s string) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	io.WriteString(a.out, s)
}
