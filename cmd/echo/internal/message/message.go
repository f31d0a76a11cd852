// Package message defines the text message exchanged between the echo client
// and server, and its line-delimited wire encoding.
package message

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxSize is the largest payload, terminator excluded, a Reader accepts.
const MaxSize = 128 * 1024

// ErrTooLong is returned by Reader.Read when a line exceeds MaxSize.
var ErrTooLong = errors.New("message exceeds maximum size")

// TextMessage is a single line of text. The payload never contains the
// terminator.
type TextMessage struct {
	text string
}

// New builds a message from text. Any line breaks are replaced by spaces so
// the message survives line framing intact.
func New(text string) TextMessage {
	if strings.ContainsAny(text, "\r\n") {
		text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	}
	return TextMessage{text: text}
}

// Text returns the payload.
func (m TextMessage) Text() string {
	return m.text
}

func (m TextMessage) String() string {
	return m.text
}

// Bytes returns the wire form: the payload followed by '\n'.
func (m TextMessage) Bytes() []byte {
	b := make([]byte, 0, len(m.text)+1)
	b = append(b, m.text...)
	return append(b, '\n')
}

// Reader reads line-delimited messages from a stream. A trailing '\r' is
// stripped, so CRLF peers such as telnet work.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), MaxSize+2)
	return &Reader{scanner: s}
}

// Read returns the next message. It returns io.EOF when the stream ends
// cleanly and ErrTooLong when a line is too large to frame.
func (r *Reader) Read() (TextMessage, error) {
	if !r.scanner.Scan() {
		err := r.scanner.Err()
		switch {
		case err == nil:
			return TextMessage{}, io.EOF
		case errors.Is(err, bufio.ErrTooLong):
			return TextMessage{}, ErrTooLong
		default:
			return TextMessage{}, err
		}
	}
	line := r.scanner.Text()
	if len(line) > MaxSize {
		return TextMessage{}, ErrTooLong
	}
	return TextMessage{text: line}, nil
}

// Write writes m to w in wire form.
func Write(w io.Writer, m TextMessage) error {
	if _, err := w.Write(m.Bytes()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
