package server

import (
	"github.com/life-stream-dev/life-stream-go-jtp/internal/connection"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/message"
)

func (c *ConnectionHandler) send(msg *message.Message) {
	if err := c.conn.SendMessage(msg); err != nil && !connection.IsNetClosedError(err) {
		logger.WarnF("[%s] Fail to send %s message, details: %v", c.connId, msg.Type(), err)
	}
}

func (c *ConnectionHandler) sendError(id, code, text string, extra message.Params) {
	msg, err := message.NewError(id, code, text)
	if err != nil {
		logger.ErrorF("[%s] Fail to build ERROR message, details: %v", c.connId, err)
		return
	}
	for k, v := range extra {
		if msg, err = msg.WithParam(k, v); err != nil {
			logger.ErrorF("[%s] Fail to build ERROR message, details: %v", c.connId, err)
			return
		}
	}
	c.send(msg)
}
