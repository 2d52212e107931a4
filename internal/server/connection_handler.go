package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/auth"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/connection"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/message"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/registry"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/transport"
	"golang.org/x/time/rate"
)

type ConnectionHandler struct {
	server  *Server
	conn    *connection.Conn
	connId  string
	session *auth.Session
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc
	tasks   sync.WaitGroup
}

func newConnectionHandler(s *Server, c net.Conn) *ConnectionHandler {
	ctx, cancel := context.WithCancel(s.ctx)
	conn := connection.NewConn(c, s.opts.Codec, s.opts.MaxMessageSize)
	h := &ConnectionHandler{
		server: s,
		conn:   conn,
		connId: conn.ID(),
		ctx:    ctx,
		cancel: cancel,
	}
	if rl := s.opts.RateLimit; rl.RequestsPerSecond > 0 {
		burst := rl.Burst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst)
	}
	return h
}

func (c *ConnectionHandler) ID() string {
	return c.connId
}

// Close stops the handler from outside: pending handlers see their context
// cancelled and the read loop ends on the closed socket.
func (c *ConnectionHandler) Close() error {
	c.cancel()
	return c.conn.Close()
}

func (c *ConnectionHandler) handleConnection() {
	defer func() {
		if err := c.Close(); err != nil && !connection.IsNetClosedError(err) {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", c.connId, err)
		}
		logger.DebugF("[%s] Connection closed", c.connId)
	}()

	if !c.server.connections.TryAdd(c, c.server.opts.MaxConnections) {
		logger.WarnF("[%s] Connection limit reached, rejecting client", c.connId)
		// a TLS write runs the handshake first, which reads the ClientHello
		_ = c.conn.NetConn().SetDeadline(time.Now().Add(time.Second))
		c.sendError(message.BroadcastID, message.CodeServerBusy, "server busy", nil)
		return
	}
	defer c.server.connections.Remove(c.connId)

	if err := transport.Handshake(c.ctx, c.conn.NetConn(), c.server.opts.HandshakeTimeout); err != nil {
		logger.WarnF("[%s] %v", c.connId, err)
		return
	}

	session, err := auth.NewSession(c.connId)
	if err != nil {
		logger.ErrorF("[%s] Fail to create session, details: %v", c.connId, err)
		return
	}
	c.session = session

	c.readLoop()

	// stop in-flight handlers and wait for their replies before the socket goes away
	c.cancel()
	c.tasks.Wait()
}

func (c *ConnectionHandler) readLoop() {
	idle := c.server.opts.IdleTimeout
	for {
		if idle > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(idle))
		}

		line, err := c.conn.ReadLine()
		if err != nil {
			connection.HandleReadError(c.connId, err)
			return
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		c.tasks.Add(1)
		go func(line []byte) {
			defer c.tasks.Done()
			c.handleLine(line)
		}(line)
	}
}

func (c *ConnectionHandler) handleLine(line []byte) {
	replyID := message.BroadcastID
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorF("[%s] Panic while handling message: %v\n%s", c.connId, r, debug.Stack())
			func() {
				// the codec itself may be what panicked
				defer func() { _ = recover() }()
				c.sendError(replyID, message.CodeHandlerFailed, fmt.Sprintf("internal error: %v", r), nil)
			}()
		}
	}()

	msg, err := c.conn.Codec().Decode(line)
	if err != nil {
		logger.WarnF("[%s] Invalid message received, details: %v", c.connId, err)
		c.sendError(recoverID(line), message.CodeMalformedMessage, err.Error(), nil)
		return
	}
	replyID = msg.ID()

	logger.DebugF("[%s] Receive %s message", c.connId, msg)

	switch msg.Type() {
	case message.Request:
		c.handleRequest(msg)
	case message.Auth:
		c.handleAuth(msg)
	default:
		c.sendError(msg.ID(), message.CodeProtocolViolation,
			fmt.Sprintf("unexpected %s message from client", msg.Type()), nil)
	}
}

// recoverID digs the id out of a line the codec rejected so the error can
// still reach the caller waiting on it. Anything unreadable maps to "*".
func recoverID(line []byte) string {
	var head struct {
		ID *string `json:"id"`
	}
	if err := json.Unmarshal(line, &head); err != nil || head.ID == nil {
		return message.BroadcastID
	}
	id := strings.TrimSpace(*head.ID)
	if id == "" {
		return message.BroadcastID
	}
	return *head.ID
}

func (c *ConnectionHandler) handleRequest(msg *message.Message) {
	if msg.IsBroadcast() {
		c.sendError(message.BroadcastID, message.CodeProtocolViolation, "requests must not use the broadcast id", nil)
		return
	}

	if c.limiter != nil && !c.limiter.Allow() {
		c.sendError(msg.ID(), message.CodeRateLimited, "rate limit exceeded", nil)
		return
	}

	if !c.session.Verify(msg.StringParamOr(message.ParamToken, "")) {
		logger.DebugF("[%s] Request %s is not authenticated, sending challenge", c.connId, msg.ID())
		challenge, err := message.NewAuth(msg.ID(), nil)
		if err == nil {
			c.send(challenge)
		}
		return
	}

	command := strings.TrimSpace(msg.StringParamOr(message.ParamCommand, ""))
	if command == "" {
		c.sendError(msg.ID(), message.CodeMissingParameter, "no command specified", nil)
		return
	}

	cmd, ok := c.server.registry.Lookup(command)
	if !ok {
		c.sendError(msg.ID(), message.CodeUnknownCommand, fmt.Sprintf("%v: %s", ErrUnknownCommand, command),
			message.Params{message.ParamCommand: command})
		return
	}

	if !c.session.Permission().Allows(cmd.Permission) {
		c.sendError(msg.ID(), message.CodePermissionDenied,
			fmt.Sprintf("permission denied: %s requires %s", command, cmd.Permission), nil)
		return
	}

	params := msg.Params()
	delete(params, message.ParamCommand)
	delete(params, message.ParamToken)

	result, err := c.invoke(cmd, params)
	if err != nil {
		logger.WarnF("[%s] Command %s failed, details: %v", c.connId, command, err)
		c.sendError(msg.ID(), message.CodeHandlerFailed, "command execution failed: "+err.Error(), nil)
		return
	}

	resp, err := message.NewResponse(msg.ID(), result)
	if err != nil {
		c.sendError(msg.ID(), message.CodeHandlerFailed, "command execution failed: "+err.Error(), nil)
		return
	}
	c.send(resp)
}

func (c *ConnectionHandler) invoke(cmd registry.Command, params message.Params) (result message.Params, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorF("[%s] Command %s panicked: %v\n%s", c.connId, cmd.Name, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cmd.Handler(c.ctx, params)
}

func (c *ConnectionHandler) handleAuth(msg *message.Message) {
	if !msg.IsBroadcast() {
		c.sendError(msg.ID(), message.CodeProtocolViolation, "AUTH messages must use the broadcast id", nil)
		return
	}

	key := msg.StringParamOr(message.ParamKey, "")
	token, err := c.session.Authenticate(c.ctx, c.server.credentials, key)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNoKey):
			c.sendError(message.BroadcastID, message.CodeAuthFailed, "authentication failed: no key provided", nil)
		case errors.Is(err, auth.ErrUnknownKey):
			c.sendError(message.BroadcastID, message.CodeAuthFailed, "authentication failed: key invalid", nil)
		default:
			c.sendError(message.BroadcastID, message.CodeAuthFailed, "authentication failed: credential lookup failed", nil)
		}
		return
	}

	resp, err := message.NewAuth(message.BroadcastID, message.Params{message.ParamKey: token})
	if err != nil {
		logger.ErrorF("[%s] Fail to build AUTH response, details: %v", c.connId, err)
		return
	}
	c.send(resp)
}
