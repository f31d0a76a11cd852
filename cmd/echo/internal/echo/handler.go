package echo

import (
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/hasirciogluhq/xecho/cmd/echo/internal/logger"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/message"
)

// Handler writes every message it reads back to the sender.
type Handler struct {
	Log *slog.Logger
}

// NewHandler returns a Handler logging to log, or to the global logger if nil.
func NewHandler(log *slog.Logger) *Handler {
	return &Handler{Log: log}
}

// HandleConnection implements core.ConnectionHandler.
// It takes full ownership of the connection lifecycle.
func (h *Handler) HandleConnection(conn net.Conn) {
	defer conn.Close()

	log := logger.Or(h.Log).With("remote_addr", conn.RemoteAddr().String())
	r := message.NewReader(conn)

	for {
		msg, err := r.Read()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Info("Connection closed by peer")
			case errors.Is(err, message.ErrTooLong):
				log.Warn("Dropping connection, message too long", "max", message.MaxSize)
			default:
				log.Warn("Read failed", "error", err)
			}
			return
		}

		log.Debug("Received message", "text", msg.Text())

		if err := message.Write(conn, msg); err != nil {
			log.Warn("Write failed", "error", err)
			return
		}
	}
}
