package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Socket is the atomic multi-frame transport contract required by
// spec.md §4.2: Send transmits msg as a single unit and clears it; Receive
// replaces msg's contents with the next unit to arrive.
type Socket interface {
	Send(msg *Message) error
	Receive(msg *Message) error
	Close() error
}

// maxFrameBytes bounds a single frame so a corrupt or hostile peer cannot
// make Receive allocate unbounded memory from a forged length prefix.
const maxFrameBytes = 64 << 20

// TCPSocket implements Socket over a net.Conn using a simple wire format:
// a 32-bit BE frame count, followed by that many (32-bit BE length, bytes)
// frame records. This is the concrete encoding of the multi-frame unit
// spec.md §4.2 leaves transport-defined.
type TCPSocket struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewTCPSocket wraps an established connection as a Socket.
func NewTCPSocket(conn net.Conn) *TCPSocket {
	return &TCPSocket{conn: conn, r: bufio.NewReader(conn)}
}

// Send writes msg as one unit (a frame-count Write, then a length Write and
// a body Write per non-empty frame, under no concurrent writer per spec.md
// §5 single-threaded model) and clears msg's frames.
func (s *TCPSocket) Send(msg *Message) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(msg.Frames)))
	if _, err := s.conn.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write frame count: %w", err)
	}
	for _, f := range msg.Frames {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		if _, err := s.conn.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("wire: write frame length: %w", err)
		}
		if len(f) > 0 {
			if _, err := s.conn.Write(f); err != nil {
				return fmt.Errorf("wire: write frame body: %w", err)
			}
		}
	}
	msg.Frames = nil
	return nil
}

// Receive reads the next multi-frame unit and replaces msg's contents.
func (s *TCPSocket) Receive(msg *Message) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(s.r, lenBuf[:]); err != nil {
		return fmt.Errorf("wire: read frame count: %w", err)
	}
	count := binary.BigEndian.Uint32(lenBuf[:])
	frames := make([]Frame, 0, count)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(s.r, lenBuf[:]); err != nil {
			return fmt.Errorf("wire: read frame length: %w", err)
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n > maxFrameBytes {
			return fmt.Errorf("wire: frame length %d exceeds maximum %d", n, maxFrameBytes)
		}
		f := make(Frame, n)
		if n > 0 {
			if _, err := io.ReadFull(s.r, f); err != nil {
				return fmt.Errorf("wire: read frame body: %w", err)
			}
		}
		frames = append(frames, f)
	}
	msg.Frames = frames
	return nil
}

// Close closes the underlying connection.
func (s *TCPSocket) Close() error {
	return s.conn.Close()
}
