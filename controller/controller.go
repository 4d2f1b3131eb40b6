// Package controller implements the master-side proxy for one remote slave
// (spec.md §4.6): a FIFO command queue enforcing at most one outstanding
// command on the wire per slave, per-command timeout, and reply matching
// against the queue head.
package controller

import (
	"fmt"
	"time"

	"github.com/dsbsim/dsb/dsberrors"
	"github.com/dsbsim/dsb/model"
	"github.com/dsbsim/dsb/protocol"
	"github.com/dsbsim/dsb/reactor"
	"github.com/dsbsim/dsb/transport"
	"github.com/dsbsim/dsb/wire"
	"github.com/sirupsen/logrus"
)

// Callback is invoked exactly once per Send call, on the reactor thread,
// with either the decoded reply or a classified error.
type Callback func(reply interface{}, err error)

type pending struct {
	msg      wire.Message
	cmd      interface{}
	callback Callback
	timeout  time.Duration
	timer    reactor.TimerID
	hasTimer bool
}

// Controller is the master's handle to one remote slave's control channel.
type Controller struct {
	re     *reactor.Reactor
	fc     *transport.FrameChannel
	handle reactor.SocketHandle

	state model.SlaveLifecycleState
	queue []*pending

	log *logrus.Entry
}

// New wraps fc's socket as a controller, registering it with re under
// handle so inbound replies are dispatched to the queue head on the
// reactor thread.
func New(re *reactor.Reactor, handle reactor.SocketHandle, fc *transport.FrameChannel) *Controller {
	c := &Controller{
		re:     re,
		fc:     fc,
		handle: handle,
		state:  model.SlaveNotConnected,
		log:    logrus.WithField("component", "controller"),
	}
	re.AddSocket(handle, fc.Ready(), c.onReadable)
	return c
}

// State reports the controller's last-known lifecycle view of the slave.
func (c *Controller) State() model.SlaveLifecycleState { return c.state }

// HasPending reports whether a command is currently on the wire or queued
// for this slave, so a caller unwinding an execution (Manager.Terminate)
// can tell a slave with dangling work from an idle one.
func (c *Controller) HasPending() bool { return len(c.queue) > 0 }

// SetState lets the owning execution manager record a lifecycle transition
// learned from a reply's semantics (the controller itself only ever forces
// a transition to Disconnected, on protocol error or timeout).
func (c *Controller) SetState(s model.SlaveLifecycleState) { c.state = s }

// Send encodes cmd, enqueues it, and transmits it immediately if the queue
// was empty (spec.md §4.6: "at most one command on the wire per slave at a
// time; further commands are queued FIFO"). callback fires exactly once,
// with the decoded reply on success or a classified error otherwise.
func (c *Controller) Send(cmd interface{}, timeout time.Duration, callback Callback) error {
	if c.state == model.SlaveDisconnected || c.state == model.SlaveTerminated {
		return dsberrors.Wrap(fmt.Errorf("controller is disconnected"), dsberrors.KindProtocolViolation, "controller", "send")
	}
	msg, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	p := &pending{msg: msg, cmd: cmd, callback: callback, timeout: timeout}
	c.queue = append(c.queue, p)
	if len(c.queue) == 1 {
		c.transmit(p)
	}
	return nil
}

func (c *Controller) transmit(p *pending) {
	msg := p.msg.Clone()
	if err := c.fc.Send(&msg); err != nil {
		c.failAll(dsberrors.KindFatal, fmt.Sprintf("send failed: %v", err))
		return
	}
	if p.timeout > 0 {
		p.timer = c.re.AddTimer(p.timeout, 1, func() { c.onTimeout(p) })
		p.hasTimer = true
	}
}

func (c *Controller) onTimeout(p *pending) {
	if len(c.queue) == 0 || c.queue[0] != p {
		return // already resolved
	}
	c.log.WithField("cmd", fmt.Sprintf("%T", p.cmd)).Warn("command timed out")
	c.failAll(dsberrors.KindTimeout, "no reply within deadline")
}

func (c *Controller) onReadable() {
	msg := c.fc.Recv()
	reply, err := protocol.DecodeReply(msg)
	if err != nil {
		c.failAll(dsberrors.KindProtocolViolation, fmt.Sprintf("undecodable reply: %v", err))
		return
	}
	c.dispatch(reply)
}

func (c *Controller) dispatch(reply interface{}) {
	if len(c.queue) == 0 {
		c.failAll(dsberrors.KindProtocolViolation, "reply arrived with no outstanding command")
		return
	}
	head := c.queue[0]
	if !acceptable(head.cmd, reply) {
		c.failAll(dsberrors.KindProtocolViolation, fmt.Sprintf("reply %T does not match outstanding command %T", reply, head.cmd))
		return
	}
	c.queue = c.queue[1:]
	if head.hasTimer {
		c.re.RemoveTimer(head.timer)
	}
	if len(c.queue) > 0 {
		c.transmit(c.queue[0])
	}
	head.callback(reply, nil)
}

func acceptable(cmd interface{}, reply interface{}) bool {
	if _, ok := reply.(protocol.FatalReply); ok {
		return true
	}
	switch cmd.(type) {
	case protocol.HelloCommand:
		_, ok := reply.(protocol.ReadyReply)
		return ok
	case protocol.SetupCommand, protocol.SetVarsCommand, protocol.ConnectVarsCommand, protocol.AcceptStepCommand, protocol.TerminateCommand:
		_, ok := reply.(protocol.OkReply)
		return ok
	case protocol.StepCommand:
		switch reply.(type) {
		case protocol.StepOkReply, protocol.StepFailedReply:
			return true
		}
		return false
	case protocol.DescribeCommand:
		_, ok := reply.(protocol.DescriptionReply)
		return ok
	default:
		return false
	}
}

// failAll transitions to Disconnected and fires every queued callback with
// a classified error exactly once, then drops the queue (spec.md §4.6, §5
// "no hanging callbacks").
func (c *Controller) failAll(kind dsberrors.Kind, message string) {
	c.state = model.SlaveDisconnected
	queue := c.queue
	c.queue = nil
	c.re.RemoveSocket(c.handle)
	for _, p := range queue {
		if p.hasTimer {
			c.re.RemoveTimer(p.timer)
		}
		p.callback(nil, dsberrors.Wrap(fmt.Errorf("%s", message), kind, "controller", "dispatch"))
	}
}

// Abort fires every queued callback with Aborted and transitions to
// Terminated, for use when the owning execution manager enters Terminated
// while this controller has an outstanding barrier command (spec.md §4.5
// "Abort semantics").
func (c *Controller) Abort() {
	c.state = model.SlaveTerminated
	queue := c.queue
	c.queue = nil
	c.re.RemoveSocket(c.handle)
	for _, p := range queue {
		if p.hasTimer {
			c.re.RemoveTimer(p.timer)
		}
		p.callback(nil, dsberrors.Wrap(fmt.Errorf("execution terminated"), dsberrors.KindAborted, "controller", "dispatch"))
	}
}

// Close releases the underlying socket.
func (c *Controller) Close() error {
	return c.fc.Close()
}
