package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/config"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/connection"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/message"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/transport"
)

const DefaultRequestTimeout = time.Second

type Options struct {
	Address string
	TLS     config.TLSConfig
	// Key is the pre-shared key offered when the server challenges a request.
	Key            string
	RequestTimeout time.Duration
	DialTimeout    time.Duration
	MaxMessageSize int
	Codec          message.Codec
}

func OptionsFromConfig(cfg config.ClientConfig) Options {
	return Options{
		Address:        cfg.Address(),
		TLS:            cfg.TLS,
		Key:            cfg.Key,
		RequestTimeout: cfg.RequestTimeoutDuration(),
		DialTimeout:    cfg.DialTimeoutDuration(),
		MaxMessageSize: cfg.MaxMessageSize,
	}
}

// Client sends requests over one connection and routes the replies back to
// the callbacks of each Request.
type Client struct {
	opts    Options
	conn    *connection.Conn
	connId  string
	pending *PendingTable
	session *Session

	closing atomic.Bool
	done    chan struct{}
}

// Dial connects to opts.Address and starts the reader.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	conn, err := transport.Dial(ctx, opts.Address, opts.TLS, opts.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("fail to connect to %s: %w", opts.Address, err)
	}
	return New(conn, opts), nil
}

// New wraps an established connection and starts the reader.
func New(conn net.Conn, opts Options) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Codec == nil {
		opts.Codec = message.DefaultCodec
	}
	c := &Client{
		opts:    opts,
		conn:    connection.NewConn(conn, opts.Codec, opts.MaxMessageSize),
		pending: NewPendingTable(),
		session: NewSession(),
		done:    make(chan struct{}),
	}
	c.connId = c.conn.ID()
	go c.readLoop()
	return c
}

// Token is the session token issued by the last successful handshake.
func (c *Client) Token() string {
	return c.session.Token()
}

// Done is closed once the reader has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) closed() bool {
	if c.closing.Load() {
		return true
	}
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Send writes req under a fresh id. The outcome arrives through exactly one
// of the request callbacks; the returned error only reports invalid input.
func (c *Client) Send(req *Request) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", message.ErrInvalidArgument)
	}
	if strings.TrimSpace(req.Command) == "" {
		return fmt.Errorf("%w: command must not be blank", message.ErrInvalidArgument)
	}

	r := *req
	r.Params = req.Params.Clone()
	if r.Timeout <= 0 {
		r.Timeout = c.opts.RequestTimeout
	}
	c.send(&r)
	return nil
}

func (c *Client) send(req *Request) {
	if c.closed() {
		req.fail(ErrClientClosed)
		return
	}

	params := req.Params.Clone()
	if token := c.session.Token(); token != "" {
		if params == nil {
			params = message.Params{}
		}
		params[message.ParamToken] = token
	}

	m, err := message.NewRequest(req.Command, params)
	if err != nil {
		req.fail(err)
		return
	}
	if _, err := c.pending.Add(m.ID(), req); err != nil {
		req.fail(err)
		return
	}
	if err := c.conn.SendMessage(m); err != nil {
		c.pending.Fail(m.ID(), fmt.Errorf("%w: %v", ErrSendFailed, err))
	}
}

// Call sends command and blocks until its reply, its timeout or ctx.
func (c *Client) Call(ctx context.Context, command string, params message.Params) (message.Params, error) {
	type result struct {
		params message.Params
		err    error
	}
	ch := make(chan result, 1)

	req := &Request{
		Command:   command,
		Params:    params,
		OnSuccess: func(p message.Params) { ch <- result{params: p} },
		OnError:   func(err error) { ch <- result{err: err} },
		OnTimeout: func() { ch <- result{err: ErrTimeout} },
	}
	if deadline, ok := ctx.Deadline(); ok {
		req.Timeout = time.Until(deadline)
	}
	if err := c.Send(req); err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.params, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the reader and closes the socket. Requests still in flight are
// left to their timers.
func (c *Client) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		<-c.done
		return nil
	}
	err := c.conn.Close()
	<-c.done
	if err != nil && !connection.IsNetClosedError(err) {
		return err
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer func() { _ = c.conn.Close() }()

	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			c.logReadError(err)
			return
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		go c.handleLine(line)
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case c.closing.Load():
		logger.DebugF("[%s] Reader stopped", c.connId)
	case errors.Is(err, io.EOF):
		logger.WarnF("[%s] Server closed connection", c.connId)
	default:
		connection.HandleReadError(c.connId, err)
	}
}

func (c *Client) handleLine(line []byte) {
	m, err := c.opts.Codec.Decode(line)
	if err != nil {
		logger.WarnF("[%s] Dropping undecodable message: %v", c.connId, err)
		return
	}
	logger.DebugF("[%s] Receive %s", c.connId, m)

	switch {
	case m.Type() == message.Auth && m.IsBroadcast():
		c.handleAuthResponse(m)
	case m.Type() == message.Auth:
		c.handleChallenge(m)
	case m.Type() == message.Request:
		logger.WarnF("[%s] Ignoring request %s from server", c.connId, m.ID())
	case m.IsBroadcast():
		c.handleGlobal(m)
	default:
		c.pending.Resolve(m)
	}
}

// handleChallenge parks the challenged request and offers the pre-shared key.
func (c *Client) handleChallenge(m *message.Message) {
	req, ok := c.pending.Withdraw(m.ID())
	if !ok {
		logger.InfoF("[%s] Challenge for unknown request %s dropped", c.connId, m.ID())
		return
	}
	if c.closed() {
		req.fail(ErrClientClosed)
		return
	}

	c.session.ClearToken()
	if displaced := c.session.Cache(req, c.expireCached); displaced != nil {
		logger.WarnF("[%s] Handshake already in flight, dropping the earlier %q request", c.connId, displaced.Command)
		displaced.fail(ErrHandshakeSuperseded)
	}

	var params message.Params
	if c.opts.Key != "" {
		params = message.Params{message.ParamKey: c.opts.Key}
	}
	auth, err := message.NewAuth(message.BroadcastID, params)
	if err == nil {
		err = c.conn.SendMessage(auth)
	}
	if err != nil {
		if cached, ok := c.session.TakeCached(); ok {
			cached.fail(fmt.Errorf("%w: %v", ErrSendFailed, err))
		}
	}
}

// handleAuthResponse stores the issued token and resends the parked request.
func (c *Client) handleAuthResponse(m *message.Message) {
	token, err := m.StringParam(message.ParamKey)
	if err != nil || token == "" {
		logger.WarnF("[%s] AUTH response without a token", c.connId)
		if cached, ok := c.session.TakeCached(); ok {
			cached.fail(fmt.Errorf("%w: no token issued", ErrHandshakeFailed))
		}
		return
	}

	c.session.SetToken(token)
	logger.DebugF("[%s] Authenticated", c.connId)

	req, ok := c.session.TakeCached()
	if !ok {
		logger.InfoF("[%s] AUTH response without a waiting request dropped", c.connId)
		return
	}
	c.send(req)
}

func (c *Client) handleGlobal(m *message.Message) {
	if m.Type() != message.Error {
		logger.InfoF("[%s] Server notice: %v", c.connId, m.Params())
		return
	}

	code := m.StringParamOr(message.ParamCode, "")
	text := m.StringParamOr(message.ParamMessage, "unknown error")
	logger.WarnF("[%s] Server error: %s", c.connId, text)

	if code != message.CodeAuthFailed {
		return
	}
	c.session.ClearToken()
	if cached, ok := c.session.TakeCached(); ok {
		cached.fail(fmt.Errorf("%w: %s", ErrHandshakeFailed, text))
	}
}

func (c *Client) expireCached(req *Request) {
	logger.DebugF("[%s] Handshake for %q did not complete in %v", c.connId, req.Command, req.Timeout)
	req.expire()
}
