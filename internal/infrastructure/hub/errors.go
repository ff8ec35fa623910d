package hub

import "errors"

var (
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrConnectionClosed  = errors.New("connection is closed")
	ErrSendQueueFull     = errors.New("send queue is full")
)
