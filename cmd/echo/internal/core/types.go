package core

import (
	"context"
	"net"
)

// ConnectionHandler serves a single accepted connection.
// It takes full ownership of conn and must close it before returning.
type ConnectionHandler interface {
	HandleConnection(conn net.Conn)
}

// ConnectionHandlerFunc adapts a plain function to ConnectionHandler.
type ConnectionHandlerFunc func(conn net.Conn)

func (f ConnectionHandlerFunc) HandleConnection(conn net.Conn) {
	f(conn)
}

// HostResolver maps the host a user asked for to the host that is dialed.
// It is purely a lookup mechanism and knows nothing about the network.
// Hosts it has no opinion on are returned unchanged.
type HostResolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}

// PassthroughResolver returns every host unchanged, leaving resolution to DNS
// at dial time.
type PassthroughResolver struct{}

func (PassthroughResolver) Resolve(_ context.Context, host string) (string, error) {
	return host, nil
}
