package connection

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/message"
)

const DefaultMaxLineSize = 1 << 20

var ErrLineTooLong = errors.New("line exceeds maximum message size")

// MessageSender 消息发送器接口
type MessageSender interface {
	SendMessage(m *message.Message) error
}

// Conn frames messages as newline terminated lines over a stream. Reads must
// come from a single goroutine. Writes may come from any goroutine.
type Conn struct {
	conn        net.Conn
	id          string
	codec       message.Codec
	reader      *bufio.Reader
	maxLineSize int
	writeMu     sync.Mutex
	closeOnce   sync.Once
	closeErr    error
}

func NewConn(conn net.Conn, codec message.Codec, maxLineSize int) *Conn {
	if codec == nil {
		codec = message.DefaultCodec
	}
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}
	return &Conn{
		conn:        conn,
		id:          conn.RemoteAddr().String(),
		codec:       codec,
		reader:      bufio.NewReaderSize(conn, 64*1024),
		maxLineSize: maxLineSize,
	}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) NetConn() net.Conn {
	return c.conn
}

func (c *Conn) Codec() message.Codec {
	return c.codec
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// ReadLine returns the next line without its terminator. A final line that is
// not newline terminated is still returned before io.EOF.
func (c *Conn) ReadLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := c.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > c.maxLineSize+1 {
			return nil, ErrLineTooLong
		}
		switch {
		case err == nil:
			return bytes.TrimRight(line, "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0:
			return line, nil
		default:
			return nil, err
		}
	}
}

// SendMessage encodes m and writes it as one line.
func (c *Conn) SendMessage(m *message.Message) error {
	data, err := c.codec.Encode(m)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := Send(c.conn, data, c.id); err != nil {
		return fmt.Errorf("failed to send %s: %w", m, err)
	}
	return nil
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Send 发送数据到对端
func Send(conn net.Conn, data []byte, connID string) error {
	total := 0
	for total < len(data) {
		n, err := conn.Write(data[total:])
		if err != nil {
			if !IsNetClosedError(err) {
				logger.ErrorF("[%s] Fail to send data, details: %v", connID, err)
			}
			return err
		}
		total += n
	}
	logger.DebugF("[%s] Send %d bytes, data %s", connID, total, bytes.TrimRight(data, "\n"))
	return nil
}
