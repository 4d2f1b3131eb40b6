package controller

import (
	"testing"
	"time"

	"github.com/dsbsim/dsb/model"
	"github.com/dsbsim/dsb/protocol"
	"github.com/dsbsim/dsb/reactor"
	"github.com/dsbsim/dsb/transport"
	"github.com/dsbsim/dsb/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSocket is an in-memory wire.Socket: Send appends the encoded message
// to a log the test can inspect; Receive blocks on an inbound channel the
// test feeds via deliver, so the transport.FrameChannel pump goroutine
// drives it exactly like a real net.Conn-backed socket.
type fakeSocket struct {
	sent    []wire.Message
	inbound chan wire.Message
	closed  bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{inbound: make(chan wire.Message, 16)}
}

func (s *fakeSocket) Send(msg *wire.Message) error {
	s.sent = append(s.sent, msg.Clone())
	*msg = wire.Message{}
	return nil
}

func (s *fakeSocket) Receive(msg *wire.Message) error {
	*msg = <-s.inbound
	return nil
}

func (s *fakeSocket) Close() error { s.closed = true; return nil }

func (s *fakeSocket) deliver(reply interface{}) {
	msg, err := protocol.EncodeReply(reply)
	if err != nil {
		panic(err)
	}
	s.inbound <- msg
}

func newTestController(re *reactor.Reactor, sock *fakeSocket) *Controller {
	return New(re, "h1", transport.NewFrameChannel(sock))
}

func TestControllerMatchesReplyToQueueHead(t *testing.T) {
	re := reactor.New()
	sock := newFakeSocket()
	c := newTestController(re, sock)

	var got interface{}
	var gotErr error
	done := make(chan struct{})
	err := c.Send(protocol.HelloCommand{ProtocolVersion: 1}, time.Second, func(reply interface{}, err error) {
		got, gotErr = reply, err
		close(done)
		re.Stop()
	})
	require.NoError(t, err)

	go sock.deliver(protocol.ReadyReply{})
	go re.Run()
	<-done

	assert.NoError(t, gotErr)
	assert.Equal(t, protocol.ReadyReply{}, got)
	require.Len(t, sock.sent, 1)
}

func TestControllerQueuesSecondCommandUntilFirstResolved(t *testing.T) {
	re := reactor.New()
	sock := newFakeSocket()
	c := newTestController(re, sock)

	firstDone := make(chan struct{})
	secondDone := make(chan struct{})
	require.NoError(t, c.Send(protocol.HelloCommand{ProtocolVersion: 1}, time.Second, func(reply interface{}, err error) {
		close(firstDone)
	}))
	require.NoError(t, c.Send(protocol.DescribeCommand{}, time.Second, func(reply interface{}, err error) {
		close(secondDone)
		re.Stop()
	}))

	go func() {
		sock.deliver(protocol.ReadyReply{})
		<-firstDone
		sock.deliver(protocol.DescriptionReply{Type: model.SlaveTypeDescription{Name: "x", UUID: "u"}})
	}()
	go re.Run()
	<-secondDone

	require.Len(t, sock.sent, 2)
}

func TestControllerRejectsMismatchedReply(t *testing.T) {
	re := reactor.New()
	sock := newFakeSocket()
	c := newTestController(re, sock)

	done := make(chan struct{})
	var gotErr error
	require.NoError(t, c.Send(protocol.HelloCommand{ProtocolVersion: 1}, time.Second, func(reply interface{}, err error) {
		gotErr = err
		close(done)
		re.Stop()
	}))

	go sock.deliver(protocol.StepOkReply{}) // wrong reply for HELLO
	go re.Run()
	<-done

	require.Error(t, gotErr)
	assert.Equal(t, model.SlaveDisconnected, c.State())
}

func TestControllerTimeoutFailsCallback(t *testing.T) {
	re := reactor.New()
	sock := newFakeSocket()
	c := newTestController(re, sock)

	done := make(chan struct{})
	var gotErr error
	require.NoError(t, c.Send(protocol.HelloCommand{ProtocolVersion: 1}, 10*time.Millisecond, func(reply interface{}, err error) {
		gotErr = err
		close(done)
		re.Stop()
	}))

	go re.Run()
	<-done

	require.Error(t, gotErr)
	assert.Equal(t, model.SlaveDisconnected, c.State())
}

func TestAbortFailsQueuedCallbacksWithAborted(t *testing.T) {
	re := reactor.New()
	sock := newFakeSocket()
	c := newTestController(re, sock)

	var err1, err2 error
	require.NoError(t, c.Send(protocol.HelloCommand{ProtocolVersion: 1}, time.Second, func(reply interface{}, err error) { err1 = err }))
	require.NoError(t, c.Send(protocol.DescribeCommand{}, time.Second, func(reply interface{}, err error) { err2 = err }))

	c.Abort()

	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, model.SlaveTerminated, c.State())
}
