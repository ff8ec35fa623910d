package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

type HTTPServer struct {
	handler  http.Handler
	listener net.Listener
	srv      *http.Server
}

var _ Server = (*HTTPServer)(nil)

// NewHTTPServer serves handler on an already bound listener.
func NewHTTPServer(handler http.Handler, listener net.Listener) *HTTPServer {
	return &HTTPServer{
		handler:  handler,
		listener: listener,
		// WebSocket connections are hijacked, so the timeouts only
		// apply to plain HTTP requests.
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Addr returns the bound address, useful when listening on port 0.
func (h *HTTPServer) Addr() net.Addr {
	return h.listener.Addr()
}

func (h *HTTPServer) Start(ctx context.Context) error {
	h.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	var eg errgroup.Group
	eg.Go(func() error {
		err := h.srv.Serve(h.listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
