package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MarshalBinary renders m into a single byte slice using the same
// length-prefixed layout TCPSocket writes to a net.Conn (spec.md §4.2): a
// 32-bit BE frame count followed by (32-bit BE length, bytes) per frame.
// Transports whose payload is already a single opaque blob — a NATS
// message body, for instance — use this instead of the socket framing.
func (m Message) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(m.Frames)))
	buf.Write(lenBuf[:])
	for _, f := range m.Frames {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		buf.Write(lenBuf[:])
		buf.Write(f)
	}
	return buf.Bytes(), nil
}

// UnmarshalMessage is the inverse of MarshalBinary.
func UnmarshalMessage(data []byte) (Message, error) {
	if len(data) < 4 {
		return Message{}, fmt.Errorf("wire: payload too short for frame count")
	}
	count := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	frames := make([]Frame, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(data) < 4 {
			return Message{}, fmt.Errorf("wire: payload truncated reading frame %d length", i)
		}
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint64(len(data)) < uint64(n) {
			return Message{}, fmt.Errorf("wire: payload truncated reading frame %d body", i)
		}
		f := make(Frame, n)
		copy(f, data[:n])
		data = data[n:]
		frames = append(frames, f)
	}
	return Message{Frames: frames}, nil
}
