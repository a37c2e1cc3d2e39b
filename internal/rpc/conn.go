package rpc

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Conn is a framed msgpack stream. Reads must come from one goroutine;
// writes are serialized.
type Conn struct {
	r *bufio.Reader

	wmu sync.Mutex
	w   io.Writer
}

func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{r: bufio.NewReader(r), w: w}
}

// Read returns the next message. A message of another protocol version
// is rejected with ErrVersionMismatch.
func (c *Conn) Read() (*Message, error) {
	payload, err := ReadFrame(c.r)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := msgpack.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.Version != ProtocolVersion {
		return &msg, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, msg.Version, ProtocolVersion)
	}
	return &msg, nil
}

func (c *Conn) Write(msg *Message) error {
	payload, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := WriteFrame(c.w, payload); err != nil {
		return err
	}
	if f, ok := c.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
