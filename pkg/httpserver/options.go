package httpserver

import (
	"log/slog"
	"net"
)

type Option func(*Server)

// WithAddr sets the listen address. Panics on empty input.
func WithAddr(addr string) Option {
	if addr == "" {
		panic("WithAddr: addr cannot be empty")
	}
	return func(s *Server) { s.addr = addr }
}

// WithListener serves on an existing listener instead of binding addr.
func WithListener(l net.Listener) Option {
	if l == nil {
		panic("WithListener: nil listener")
	}
	return func(s *Server) { s.listener = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
