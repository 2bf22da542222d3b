package tlv

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// writeTimeout bounds how long a single frame write may block, mirroring
// the teacher's Stratum v1 Codec.
const writeTimeout = 10 * time.Second

// MaxFrameSize bounds a single decoded payload. Per §6 it must be at
// least 2^20 bytes; a miner that frames a larger payload is speaking a
// malformed or hostile protocol.
const MaxFrameSize = 1 << 20

// Codec reads and writes TLV frames over a net.Conn. Unlike the
// one-shot Decode, Codec buffers partial reads across calls so a
// caller can feed it a stream one frame at a time.
type Codec struct {
	conn net.Conn
	buf  []byte
}

// NewCodec creates a TLV codec for the given connection.
func NewCodec(conn net.Conn) *Codec {
	return &Codec{conn: conn}
}

// ReadFrame blocks until a full frame has arrived, reading from the
// connection as needed.
func (c *Codec) ReadFrame() (tag uint16, payload []byte, err error) {
	for {
		if len(c.buf) >= HeaderSize {
			length := binary.LittleEndian.Uint32(c.buf[2:6])
			if length > MaxFrameSize {
				return 0, nil, fmt.Errorf("tlv: frame length %d exceeds max %d", length, MaxFrameSize)
			}
			if uint32(len(c.buf)-HeaderSize) >= length {
				tag, payload, consumed, decErr := Decode(c.buf)
				if decErr != nil {
					return 0, nil, decErr
				}
				c.buf = c.buf[consumed:]
				return tag, payload, nil
			}
		}

		chunk := make([]byte, 4096)
		n, readErr := c.conn.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
		}
		if readErr != nil {
			if readErr == io.EOF && len(c.buf) == 0 {
				return 0, nil, io.EOF
			}
			return 0, nil, fmt.Errorf("tlv: read: %w", readErr)
		}
	}
}

// WriteFrame encodes and writes a single frame, honoring writeTimeout.
func (c *Codec) WriteFrame(tag uint16, payload []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := c.conn.Write(Encode(tag, payload))
	return err
}

// Close closes the underlying connection.
func (c *Codec) Close() error {
	return c.conn.Close()
}
