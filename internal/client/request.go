package client

import (
	"time"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/message"
)

// Request is what a caller hands to Client.Send. Exactly one of the three
// callbacks is invoked per Send. Nil callbacks are skipped.
type Request struct {
	Command string
	Params  message.Params
	// Timeout of zero uses the client default.
	Timeout time.Duration

	OnSuccess func(params message.Params)
	OnError   func(err error)
	OnTimeout func()
}

func (r *Request) succeed(params message.Params) {
	if r.OnSuccess != nil {
		r.OnSuccess(params)
	}
}

func (r *Request) fail(err error) {
	if r.OnError != nil {
		r.OnError(err)
	}
}

func (r *Request) expire() {
	if r.OnTimeout != nil {
		r.OnTimeout()
	}
}
