package connection

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
)

func IsNetClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// HandleReadError logs why a read loop ended.
func HandleReadError(connID string, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[%s] Client close connection", connID)
	case IsNetClosedError(err):
		logger.DebugF("[%s] Connection closed locally", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	case errors.Is(err, ErrLineTooLong):
		logger.WarnF("[%s] %v, closing connection", connID, err)
	default:
		logger.ErrorF("[%s] Error occured while reading message, details: %v", connID, err)
	}
}
