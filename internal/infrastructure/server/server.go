package server

import (
	"context"
	"fmt"
	"net"
)

type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// BindError reports that the listening socket could not be opened.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Listen opens a TCP listener on addr. Failures are returned as *BindError
// and leave no listener behind.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	return ln, nil
}
