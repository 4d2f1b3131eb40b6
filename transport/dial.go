package transport

import (
	"fmt"
	"net"

	"github.com/dsbsim/dsb/model"
	"github.com/dsbsim/dsb/wire"
)

// DialTCP establishes a control connection to e and wraps it as a
// FrameChannel, ready to be handed to controller.New. e.Transport must be
// "tcp" per spec.md §6.
func DialTCP(e model.Endpoint) (*FrameChannel, error) {
	if e.Transport != "tcp" {
		return nil, fmt.Errorf("transport: unsupported transport %q", e.Transport)
	}
	conn, err := net.Dial("tcp", e.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", e.Address, err)
	}
	return NewFrameChannel(wire.NewTCPSocket(conn)), nil
}
