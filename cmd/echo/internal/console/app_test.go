package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hasirciogluhq/xecho/cmd/echo/internal/logger"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/message"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/transport"
)

// syncBuffer is shared by the Run goroutine, listener callbacks and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeTransport behaves like transport.Client without a socket: Start reports
// Connected and Close reports Disconnected before returning.
type fakeTransport struct {
	mu        sync.Mutex
	listeners []transport.Listener
	sent      []string
	running   bool
	closed    bool
	sendErr   error
	started   chan<- *fakeTransport
}

func (f *fakeTransport) AddListener(l transport.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

func (f *fakeTransport) Start() {
	f.notify(transport.Connected)
	f.started <- f
}

func (f *fakeTransport) Send(msg message.TextMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg.Text())
	return nil
}

func (f *fakeTransport) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	wasRunning := f.running
	f.running = false
	f.closed = true
	f.mu.Unlock()
	if wasRunning {
		f.notify(transport.Disconnected)
	}
	return nil
}

func (f *fakeTransport) lose() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	f.notify(transport.ConnectionLost)
}

func (f *fakeTransport) notify(s transport.Status) {
	f.mu.Lock()
	ls := append([]transport.Listener(nil), f.listeners...)
	f.mu.Unlock()
	for _, l := range ls {
		l.HandleStatus(s)
	}
}

func (f *fakeTransport) state() (sent []string, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), f.closed
}

// fakeDialer hands out fakeTransports and records every dial. Each started
// transport is published on started once its listener is attached.
type fakeDialer struct {
	mu      sync.Mutex
	err     error
	dialed  []string
	clients []*fakeTransport
	started chan *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{started: make(chan *fakeTransport, 8)}
}

func (d *fakeDialer) dial(_ context.Context, host string, port int) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, fmt.Sprintf("%s:%d", host, port))
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeTransport{running: true, started: d.started}
	d.clients = append(d.clients, c)
	return c, nil
}

func (d *fakeDialer) calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dialed...)
}

type staticResolver map[string]string

func (r staticResolver) Resolve(_ context.Context, host string) (string, error) {
	if to, ok := r[host]; ok {
		return to, nil
	}
	return host, nil
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (string, error) {
	return "", errors.New("informer not synced")
}

func run(t *testing.T, input string, opts ...Option) (*syncBuffer, *fakeDialer) {
	t.Helper()
	out := &syncBuffer{}
	d := newFakeDialer()
	opts = append([]Option{WithDialer(d.dial), WithLogger(logger.New(io.Discard, false))}, opts...)
	app := New(strings.NewReader(input), out, opts...)
	if err := app.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out, d
}

func TestConnectRejectsNonNumericPort(t *testing.T) {
	out, d := run(t, "connect 127.0.0.1 abc\nquit\n")

	if !strings.Contains(out.String(), Prompt+"Error! No valid address. Port must be a number!\n") {
		t.Errorf("missing port error in output:\n%s", out)
	}
	if calls := d.calls(); len(calls) != 0 {
		t.Errorf("dialed %v, want no transport", calls)
	}
}

func TestConnectRequiresTwoParameters(t *testing.T) {
	for _, cmd := range []string{"connect", "connect 127.0.0.1", "connect 127.0.0.1 5000 extra"} {
		out, _ := run(t, cmd+"\nquit\n")
		if !strings.Contains(out.String(), "Error! Invalid number of parameters!") {
			t.Errorf("%q: missing parameter count error in output:\n%s", cmd, out)
		}
	}
}

func TestSendWithoutArguments(t *testing.T) {
	out, _ := run(t, "send\nquit\n")
	if !strings.Contains(out.String(), "Error! No message passed!") {
		t.Errorf("missing error in output:\n%s", out)
	}
}

func TestSendBeforeConnect(t *testing.T) {
	out, _ := run(t, "send hello\nquit\n")
	if !strings.Contains(out.String(), "Error! Not connected!") {
		t.Errorf("missing error in output:\n%s", out)
	}
}

func TestDisconnectBeforeConnectIsNoop(t *testing.T) {
	out, _ := run(t, "disconnect\nquit\n")
	want := Prompt + Prompt + Prompt + "Application exit!\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestSendCollapsesWhitespace(t *testing.T) {
	_, d := run(t, "connect 127.0.0.1 5000\nsend   hello   world \t again\nquit\n")

	if diff := cmp.Diff([]string{"127.0.0.1:5000"}, d.calls()); diff != "" {
		t.Errorf("dial mismatch (-want +got):\n%s", diff)
	}
	sent, _ := d.clients[0].state()
	if diff := cmp.Diff([]string{"hello world again"}, sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestQuitClosesTransportBeforeExit(t *testing.T) {
	out, d := run(t, "connect 127.0.0.1 5000\nquit\nsend never\n")

	_, closed := d.clients[0].state()
	if !closed {
		t.Fatal("transport still open after quit")
	}
	s := out.String()
	term := strings.Index(s, "Connection terminated: 127.0.0.1 / 5000")
	exit := strings.Index(s, "Application exit!")
	if term < 0 || exit < 0 || term > exit {
		t.Errorf("want termination before exit confirmation, got:\n%s", s)
	}
	if strings.Contains(s, "Not connected!") {
		t.Errorf("command after quit was executed:\n%s", s)
	}
}

func TestConnectWhileConnectedReplacesTransport(t *testing.T) {
	out, d := run(t, "connect first 1\nconnect second 2\nsend hi\nquit\n")

	if diff := cmp.Diff([]string{"first:1", "second:2"}, d.calls()); diff != "" {
		t.Errorf("dial mismatch (-want +got):\n%s", diff)
	}
	if _, closed := d.clients[0].state(); !closed {
		t.Error("first transport was not closed before reconnecting")
	}
	if sent, _ := d.clients[1].state(); !cmp.Equal([]string{"hi"}, sent) {
		t.Errorf("second transport sent %v, want [hi]", sent)
	}
	if !strings.Contains(out.String(), "Connection terminated: first / 1") {
		t.Errorf("auto-disconnect not reported against the old target:\n%s", out)
	}
}

func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		resolver Option
		want     string
	}{
		{name: "unknown host", err: fmt.Errorf("dial: %w", transport.ErrUnknownHost), want: "Error! Unknown Host!"},
		{name: "refused", err: fmt.Errorf("dial: %w", transport.ErrConnect), want: "Error! Could not establish connection!"},
		{name: "resolver failure", resolver: WithResolver(failingResolver{}), want: "Error! Unknown Host!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &syncBuffer{}
			d := newFakeDialer()
			d.err = tt.err
			opts := []Option{WithDialer(d.dial), WithLogger(logger.New(io.Discard, false))}
			if tt.resolver != nil {
				opts = append(opts, tt.resolver)
			}
			app := New(strings.NewReader("connect nowhere 5000\nsend hi\nquit\n"), out, opts...)
			if err := app.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}

			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("missing %q in output:\n%s", tt.want, out)
			}
			if !strings.Contains(out.String(), "Error! Not connected!") {
				t.Errorf("send after failed connect should report not connected:\n%s", out)
			}
		})
	}
}

func TestConnectUsesResolver(t *testing.T) {
	_, d := run(t, "connect echo 5000\nquit\n", WithResolver(staticResolver{"echo": "10.0.0.5"}))
	if diff := cmp.Diff([]string{"10.0.0.5:5000"}, d.calls()); diff != "" {
		t.Errorf("dial mismatch (-want +got):\n%s", diff)
	}
}

func TestSendFailureDisconnects(t *testing.T) {
	out := &syncBuffer{}
	in, w := io.Pipe()
	d := newFakeDialer()
	app := New(in, out, WithDialer(d.dial), WithLogger(logger.New(io.Discard, false)))

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	fmt.Fprintln(w, "connect 127.0.0.1 5000")
	c := <-d.started
	c.mu.Lock()
	c.sendErr = errors.New("broken pipe")
	c.mu.Unlock()

	fmt.Fprintln(w, "send hi")
	fmt.Fprintln(w, "send again")
	fmt.Fprintln(w, "quit")
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := out.String()
	if !strings.Contains(s, "Error! Unable to send message!") {
		t.Errorf("missing send failure in output:\n%s", s)
	}
	if _, closed := c.state(); !closed {
		t.Error("transport not closed after send failure")
	}
	if !strings.Contains(s, "Error! Not connected!") {
		t.Errorf("second send should find no connection:\n%s", s)
	}
}

func TestConnectionLostNamesTarget(t *testing.T) {
	out := &syncBuffer{}
	in, w := io.Pipe()
	d := newFakeDialer()
	app := New(in, out, WithDialer(d.dial), WithLogger(logger.New(io.Discard, false)))

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	fmt.Fprintln(w, "connect example.org 50000")
	c := <-d.started
	c.lose()

	if !strings.Contains(out.String(), "Connection lost: example.org / 50000\n"+Prompt) {
		t.Errorf("missing loss notification in output:\n%s", out)
	}

	fmt.Fprintln(w, "send hi")
	fmt.Fprintln(w, "quit")
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Error! Not connected!") {
		t.Errorf("send after loss should report not connected:\n%s", out)
	}
}

func TestUnknownCommandPrintsHelp(t *testing.T) {
	out, _ := run(t, "frobnicate\nquit\n")
	s := out.String()
	if !strings.Contains(s, "Error! Unknown command\n"+Prompt+"ECHO CLIENT HELP (Usage):") {
		t.Errorf("unknown command not followed by help:\n%s", s)
	}
}

func TestHelpAndEmptyLines(t *testing.T) {
	out, _ := run(t, "\n   \nhelp\nquit\n")
	s := out.String()
	if strings.Contains(s, "Error!") {
		t.Errorf("empty lines or help produced an error:\n%s", s)
	}
	if !strings.Contains(s, "connect <host> <port>") {
		t.Errorf("help text missing:\n%s", s)
	}
}

func TestEndOfInputTerminates(t *testing.T) {
	out, d := run(t, "connect 127.0.0.1 5000")

	if _, closed := d.clients[0].state(); !closed {
		t.Error("transport left open after input ended")
	}
	if !strings.Contains(out.String(), "Error! CLI does not respond - Application terminated") {
		t.Errorf("missing termination message:\n%s", out)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("stdin gone")
}

func TestReadErrorIsReturned(t *testing.T) {
	out := &syncBuffer{}
	app := New(failingReader{}, out, WithLogger(logger.New(io.Discard, false)))
	if err := app.Run(context.Background()); err == nil {
		t.Fatal("Run returned nil for a failing reader")
	}
	if !strings.Contains(out.String(), "CLI does not respond") {
		t.Errorf("missing termination message:\n%s", out)
	}
}

func TestMessagesSuppressedAfterStop(t *testing.T) {
	out := &syncBuffer{}
	app := New(strings.NewReader(""), out, WithLogger(logger.New(io.Discard, false)))

	app.HandleMessage(message.New("echoed"))
	if got, want := out.String(), "echoed\n"+Prompt; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	app.stop.Store(true)
	app.HandleMessage(message.New("late"))
	if strings.Contains(out.String(), "late") {
		t.Errorf("message printed after stop: %q", out)
	}
}

func TestCallbacksRaceWithCommands(t *testing.T) {
	out := &syncBuffer{}
	in, w := io.Pipe()
	d := newFakeDialer()
	app := New(in, out, WithDialer(d.dial), WithLogger(logger.New(io.Discard, false)))

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	fmt.Fprintln(w, "connect 127.0.0.1 5000")
	<-d.started

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			app.HandleMessage(message.New("tick"))
			app.HandleStatus(transport.Connected)
		}
	}()
	for i := 0; i < 10; i++ {
		fmt.Fprintf(w, "send %d\n", i)
	}
	wg.Wait()
	fmt.Fprintln(w, "quit")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if n := strings.Count(out.String(), "tick\n"); n != 50 {
		t.Errorf("printed %d messages, want 50", n)
	}
}
