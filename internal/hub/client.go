// internal/hub/client.go
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultQueueSize is the number of frames a client may have pending before new ones are dropped.
	DefaultQueueSize = 64

	writeTimeout = 5 * time.Second
)

// FrameWriter is the subset of *websocket.Conn used by the write pump.
type FrameWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// Client is one live hub connection with a bounded outbound queue.
type Client struct {
	ID string

	out  chan []byte
	done chan struct{}
	once sync.Once
	log  logrus.FieldLogger
}

// NewClient builds a client with its own outbound queue. queueSize <= 0 selects DefaultQueueSize.
func NewClient(id string, queueSize int, logger logrus.FieldLogger) *Client {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		ID:   id,
		out:  make(chan []byte, queueSize),
		done: make(chan struct{}),
		log:  logger.WithField("connection", id),
	}
}

// Enqueue pushes a frame without blocking. It returns false if the client is closed or its queue is full.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- frame:
		return true
	default:
		c.log.Warnf("Outbound queue full (%d frames). Dropped frame.", cap(c.out))
		return false
	}
}

// Close stops the write pump. Frames still queued are discarded.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// WritePump drains the queue into w until ctx ends or the client is closed. A failed write closes the client.
func (c *Client) WritePump(ctx context.Context, w FrameWriter) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case frame := <-c.out:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := w.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				c.log.Warnf("Failed to write to websocket: %v", err)
				c.Close()
				return
			}
		}
	}
}
