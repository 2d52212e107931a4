package client

import (
	"errors"
	"fmt"
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrTimeout      = errors.New("request timed out")
	ErrSendFailed   = errors.New("send failed")
	ErrDuplicateID  = errors.New("duplicate request id")
	// ErrHandshakeFailed is delivered when the server refuses the pre-shared key.
	ErrHandshakeFailed = errors.New("handshake failed")
	// ErrHandshakeSuperseded is delivered to a request waiting for the handshake
	// when a newer challenged request takes its place.
	ErrHandshakeSuperseded = errors.New("handshake superseded by a newer request")
)

// RemoteError is an ERROR message received for a request.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return "server error: " + e.Message
	}
	return fmt.Sprintf("server error [%s]: %s", e.Code, e.Message)
}
