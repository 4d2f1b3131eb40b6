package transport

import (
	"github.com/dsbsim/dsb/wire"
	"github.com/sirupsen/logrus"
)

// FrameChannel bridges a blocking wire.Socket into the reactor's readiness
// model: a background goroutine loops on Receive and hands each message to
// the reactor thread via a buffered queue plus a readiness signal, so the
// reactor never calls Receive itself and keeps its single-goroutine
// dispatch guarantee (spec.md §4.1, §5).
type FrameChannel struct {
	socket wire.Socket
	inbox  chan wire.Message
	ready  chan struct{}
	done   chan struct{}
}

// NewFrameChannel starts the pump goroutine for socket and returns the
// channel. Pump exits (closing Done) on the first Receive error.
func NewFrameChannel(socket wire.Socket) *FrameChannel {
	fc := &FrameChannel{
		socket: socket,
		inbox:  make(chan wire.Message, 64),
		ready:  make(chan struct{}, 64),
		done:   make(chan struct{}),
	}
	go fc.pump()
	return fc
}

func (fc *FrameChannel) pump() {
	defer close(fc.done)
	for {
		var msg wire.Message
		if err := fc.socket.Receive(&msg); err != nil {
			logrus.WithField("component", "transport").Debugf("frame pump exiting: %v", err)
			return
		}
		fc.inbox <- msg
		fc.ready <- struct{}{}
	}
}

// Ready is the reactor-facing readiness channel: fires once per message
// queued for Recv.
func (fc *FrameChannel) Ready() <-chan struct{} { return fc.ready }

// Recv pops the next queued message. Only safe to call after Ready has
// fired, from the reactor thread (spec.md §4.1 "exactly one handler at a
// time").
func (fc *FrameChannel) Recv() wire.Message { return <-fc.inbox }

// Done closes when the pump goroutine has exited, e.g. because the peer
// closed the connection.
func (fc *FrameChannel) Done() <-chan struct{} { return fc.done }

// Send writes msg on the underlying socket. Safe to call from the reactor
// thread; spec.md's single-threaded model means no concurrent Send ever
// races with this one.
func (fc *FrameChannel) Send(msg *wire.Message) error { return fc.socket.Send(msg) }

// Close releases the underlying socket.
func (fc *FrameChannel) Close() error { return fc.socket.Close() }
