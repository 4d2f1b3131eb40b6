// Package agent implements the per-slave state machine that runs inside a
// slave process (spec.md §4.4): it mirrors the execution manager's view of
// one slave, translating control-channel commands into calls on the
// slave's instance.Slave and replies back onto the control channel, while
// independently draining published input values from the data bus into a
// per-variable mailbox.
package agent

import (
	"fmt"
	"time"

	"github.com/dsbsim/dsb/dsberrors"
	"github.com/dsbsim/dsb/instance"
	"github.com/dsbsim/dsb/model"
	"github.com/dsbsim/dsb/protocol"
	"github.com/dsbsim/dsb/reactor"
	"github.com/dsbsim/dsb/transport"
	"github.com/sirupsen/logrus"
)

const protocolVersion uint16 = 1

// Publisher is the data-channel capability the agent needs to announce
// output values after a successful step.
type Publisher interface {
	Publish(v model.Variable, step model.StepID, value model.ScalarValue) error
}

// Subscriber is the data-channel capability the agent needs to receive
// published input values. The callback may be invoked from a different
// goroutine than the agent's own reactor turn (a NATS dispatch goroutine,
// or another slave's reactor in the in-process demo bus); Agent.onPublish
// never touches agent state directly from that goroutine. Instead it
// queues the value and signals the agent's own reactor, the same
// pump-goroutine-to-readiness-signal bridge transport.FrameChannel uses
// to get inbound frames onto the reactor thread (transport/framepump.go).
type Subscriber interface {
	Subscribe(v model.Variable, onValue func(step model.StepID, value model.ScalarValue)) (unsubscribe func() error, err error)
}

type mailboxEntry struct {
	step  model.StepID
	value model.ScalarValue
}

// publishEvent is one queued data-bus delivery, produced on the
// subscriber's goroutine and consumed on the agent's reactor thread.
type publishEvent struct {
	localInput model.VariableID
	step       model.StepID
	value      model.ScalarValue
}

// Agent is the slave-side state machine for one slave process.
type Agent struct {
	inst instance.Slave
	pub  Publisher
	sub  Subscriber

	slaveID model.SlaveID
	state   model.SlaveLifecycleState

	lastStepID  model.StepID
	commTimeout time.Duration

	// connections maps a local input variable to the remote source
	// feeding it, per the most recent CONNECT_VARS.
	connections map[model.VariableID]protocol.VariableConnection
	unsubs      map[model.VariableID]func() error
	mailbox     map[model.VariableID]mailboxEntry

	// pubEvents/pubReady bridge Subscribe callbacks (which run on a
	// foreign goroutine) onto the reactor thread, mirroring
	// transport.FrameChannel's pump-to-readiness-signal pattern: every
	// onPublish queues one event and signals once, and drainPublishEvent
	// receives exactly one event per signal from the reactor goroutine.
	pubEvents chan publishEvent
	pubReady  chan struct{}

	re              *reactor.Reactor
	timeoutTimer    reactor.TimerID
	hasTimeoutTimer bool

	log *logrus.Entry
}

// New creates an unstarted Agent in state NotConnected.
func New(re *reactor.Reactor, inst instance.Slave, pub Publisher, sub Subscriber) *Agent {
	a := &Agent{
		inst:        inst,
		pub:         pub,
		sub:         sub,
		state:       model.SlaveNotConnected,
		lastStepID:  model.NoStep,
		connections: make(map[model.VariableID]protocol.VariableConnection),
		unsubs:      make(map[model.VariableID]func() error),
		mailbox:     make(map[model.VariableID]mailboxEntry),
		pubEvents:   make(chan publishEvent, 64),
		pubReady:    make(chan struct{}, 64),
		re:          re,
		log:         logrus.WithField("component", "agent"),
	}
	re.AddSocket(a, a.pubReady, a.drainPublishEvent)
	return a
}

// State reports the agent's current lifecycle state.
func (a *Agent) State() model.SlaveLifecycleState { return a.state }

// Handle processes one inbound control-channel command and returns the
// reply to send back. It is the pure transition function described by
// spec.md §4.4's state table; Serve layers the reactor and the control
// connection around this.
func (a *Agent) Handle(cmd interface{}) (reply interface{}) {
	if a.hasTimeoutTimer {
		a.re.RestartTimer(a.timeoutTimer)
	}
	a.log.WithFields(logrus.Fields{"slave_id": a.slaveID, "state": a.state.String(), "cmd": fmt.Sprintf("%T", cmd)}).Debug("handling command")

	switch c := cmd.(type) {
	case protocol.HelloCommand:
		return a.handleHello(c)
	case protocol.SetupCommand:
		return a.handleSetup(c)
	case protocol.SetVarsCommand:
		return a.handleSetVars(c)
	case protocol.ConnectVarsCommand:
		return a.handleConnectVars(c)
	case protocol.DescribeCommand:
		return protocol.DescriptionReply{Type: a.inst.TypeDescription()}
	case protocol.StepCommand:
		return a.handleStep(c)
	case protocol.AcceptStepCommand:
		return a.handleAcceptStep()
	case protocol.TerminateCommand:
		return a.handleTerminate()
	default:
		return fatal(dsberrors.KindProtocolViolation, fmt.Sprintf("unexpected command %T in state %s", cmd, a.state))
	}
}

func (a *Agent) handleHello(c protocol.HelloCommand) interface{} {
	if a.state != model.SlaveNotConnected {
		return fatal(dsberrors.KindProtocolViolation, "HELLO received outside NotConnected")
	}
	if c.ProtocolVersion != protocolVersion {
		// spec.md §4.4: a version-mismatched HELLO replies FATAL(version)
		// then closes, the same teardown handleTerminate does, rather than
		// leaving a slave no master will ever talk to again listening forever.
		a.state = model.SlaveTerminated
		a.re.Stop()
		return fatal(dsberrors.KindVersionMismatch, fmt.Sprintf("unsupported protocol version %d", c.ProtocolVersion))
	}
	a.state = model.SlaveConnected
	return protocol.ReadyReply{}
}

func (a *Agent) handleSetup(c protocol.SetupCommand) interface{} {
	if a.state != model.SlaveConnected {
		return fatal(dsberrors.KindProtocolViolation, "SETUP received outside Connected")
	}
	if !a.inst.Setup(c.StartTime, c.StopTime, c.ExecutionName, c.SlaveName) {
		return fatal(dsberrors.KindSetupRejected, "instance rejected setup interval")
	}
	a.commTimeout = time.Duration(c.CommTimeoutMs) * time.Millisecond
	if a.commTimeout > 0 {
		a.timeoutTimer = a.re.AddTimer(a.commTimeout, 1, a.onCommTimeout)
		a.hasTimeoutTimer = true
	}
	a.state = model.SlaveReady
	return protocol.OkReply{}
}

func (a *Agent) handleSetVars(c protocol.SetVarsCommand) interface{} {
	if a.state != model.SlaveReady {
		return fatal(dsberrors.KindProtocolViolation, "SET_VARS received outside Ready")
	}
	if c.StepID < a.lastStepID {
		return fatal(dsberrors.KindStaleStep, fmt.Sprintf("step %d is older than last acknowledged step %d", c.StepID, a.lastStepID))
	}
	td := a.inst.TypeDescription()
	for _, setting := range c.Settings {
		if !setting.HasValue {
			continue
		}
		vd, ok := td.VariableByID(setting.Target.Variable)
		if !ok {
			return fatal(dsberrors.KindUnknownVariable, fmt.Sprintf("unknown variable %d", setting.Target.Variable))
		}
		if err := instance.SetScalar(a.inst, vd, setting.Value); err != nil {
			return fatal(dsberrors.KindTypeMismatch, err.Error())
		}
	}
	return protocol.OkReply{}
}

func (a *Agent) handleConnectVars(c protocol.ConnectVarsCommand) interface{} {
	if a.state != model.SlaveReady {
		return fatal(dsberrors.KindProtocolViolation, "CONNECT_VARS received outside Ready")
	}
	for _, conn := range c.Connections {
		if unsub, ok := a.unsubs[conn.LocalInput]; ok {
			_ = unsub()
			delete(a.unsubs, conn.LocalInput)
			delete(a.connections, conn.LocalInput)
			delete(a.mailbox, conn.LocalInput)
		}
		if conn.SourceSlave == model.UnassignedSlaveID {
			continue // disconnect only
		}
		source := model.Variable{Slave: conn.SourceSlave, Variable: conn.SourceVar}
		localInput := conn.LocalInput
		unsub, err := a.sub.Subscribe(source, func(step model.StepID, value model.ScalarValue) {
			a.onPublish(localInput, step, value)
		})
		if err != nil {
			return fatal(dsberrors.KindFatal, fmt.Sprintf("subscribe to %+v: %v", source, err))
		}
		a.connections[conn.LocalInput] = conn
		a.unsubs[conn.LocalInput] = unsub
	}
	return protocol.OkReply{}
}

// onPublish is the Subscribe callback: it runs on whatever goroutine the
// data bus dispatches on (spec.md §4.4 "Data-bus consumption" happens
// independently of the control channel), never on the agent's own reactor
// thread. It must not touch agent state directly, so it only queues the
// delivery and wakes the reactor; applyPublish does the actual mailbox
// update on the reactor thread.
func (a *Agent) onPublish(localInput model.VariableID, step model.StepID, value model.ScalarValue) {
	a.pubEvents <- publishEvent{localInput: localInput, step: step, value: value}
	a.pubReady <- struct{}{}
}

// drainPublishEvent runs on the reactor thread, once per pubReady signal:
// exactly one queued event is waiting, by construction of onPublish.
func (a *Agent) drainPublishEvent() {
	ev := <-a.pubEvents
	a.applyPublish(ev.localInput, ev.step, ev.value)
}

// applyPublish only keeps the value with the highest StepID that is still
// <= the next step this agent will run; everything else is a stale
// publish and is dropped in place (spec.md §8 scenario 6).
func (a *Agent) applyPublish(localInput model.VariableID, step model.StepID, value model.ScalarValue) {
	threshold := a.lastStepID + 1
	if step > threshold {
		return
	}
	existing, ok := a.mailbox[localInput]
	if ok && existing.step >= step {
		return
	}
	a.mailbox[localInput] = mailboxEntry{step: step, value: value}
}

func (a *Agent) handleStep(c protocol.StepCommand) interface{} {
	if a.state != model.SlaveReady {
		return fatal(dsberrors.KindProtocolViolation, "STEP received outside Ready")
	}
	if c.StepID != a.lastStepID+1 {
		return fatal(dsberrors.KindProtocolViolation, fmt.Sprintf("step %d is not the successor of %d", c.StepID, a.lastStepID))
	}

	a.state = model.SlaveStepping
	td := a.inst.TypeDescription()
	for localInput, entry := range a.mailbox {
		vd, ok := td.VariableByID(localInput)
		if !ok {
			continue
		}
		if err := instance.SetScalar(a.inst, vd, entry.value); err != nil {
			a.state = model.SlaveReady
			return fatal(dsberrors.KindTypeMismatch, err.Error())
		}
	}

	result, err := a.inst.DoStep(c.Current, c.StepSize)
	if err != nil {
		a.state = model.SlaveTerminated
		return fatal(dsberrors.KindFatal, err.Error())
	}
	switch result {
	case instance.StepOk:
		a.lastStepID = c.StepID
		a.state = model.SlaveStepOk
		a.publishOutputs(td, c.StepID)
		return protocol.StepOkReply{}
	case instance.StepTooBig:
		a.state = model.SlaveStepFailed
		return protocol.StepFailedReply{}
	default:
		a.state = model.SlaveTerminated
		return fatal(dsberrors.KindFatal, fmt.Sprintf("unknown step result %v", result))
	}
}

func (a *Agent) publishOutputs(td model.SlaveTypeDescription, step model.StepID) {
	for _, vd := range td.Variables {
		if vd.Causality != model.CausalityOutput && vd.Causality != model.CausalityCalculatedParameter {
			continue
		}
		value, err := instance.GetScalar(a.inst, vd)
		if err != nil {
			a.log.WithError(err).Warnf("reading output %d for publish", vd.ID)
			continue
		}
		v := model.Variable{Slave: a.slaveID, Variable: vd.ID}
		if err := a.pub.Publish(v, step, value); err != nil {
			a.log.WithError(err).Warnf("publishing output %d", vd.ID)
		}
	}
}

func (a *Agent) handleAcceptStep() interface{} {
	switch a.state {
	case model.SlaveStepOk:
		a.state = model.SlaveReady
		return protocol.OkReply{}
	case model.SlaveStepFailed:
		return fatal(dsberrors.KindStepFailed, "step was not accepted: previous step failed")
	default:
		return fatal(dsberrors.KindProtocolViolation, "ACCEPT_STEP received outside StepOk/StepFailed")
	}
}

func (a *Agent) handleTerminate() interface{} {
	a.state = model.SlaveTerminated
	if a.hasTimeoutTimer {
		a.re.RemoveTimer(a.timeoutTimer)
	}
	a.re.Stop()
	return protocol.OkReply{}
}

func (a *Agent) onCommTimeout() {
	a.log.WithField("slave_id", a.slaveID).Error("comm timeout: no control frame received in time")
	a.state = model.SlaveTerminated
	a.re.Stop()
}

// Serve registers fc's control connection with the agent's reactor: each
// inbound command frame is decoded, run through Handle, and the reply
// written back, one at a time on the reactor thread (spec.md §4.4's dialog
// is inherently one-command-at-a-time from the slave's perspective).
func (a *Agent) Serve(fc *transport.FrameChannel) {
	a.re.AddSocket(fc, fc.Ready(), func() { a.onControlFrame(fc) })
}

func (a *Agent) onControlFrame(fc *transport.FrameChannel) {
	msg := fc.Recv()
	cmd, err := protocol.DecodeCommand(msg)
	if err != nil {
		a.log.WithError(err).Warn("undecodable command")
		return
	}
	reply := a.Handle(cmd)
	replyMsg, err := protocol.EncodeReply(reply)
	if err != nil {
		a.log.WithError(err).Error("failed to encode reply")
		return
	}
	if err := fc.Send(&replyMsg); err != nil {
		a.log.WithError(err).Warn("failed to send reply")
	}
}

// SetSlaveID records the id this slave was assigned by the master, used to
// tag published values. It is set once, out of band from the control
// protocol (which never names the slave's own id to itself).
func (a *Agent) SetSlaveID(id model.SlaveID) { a.slaveID = id }

func fatal(kind dsberrors.Kind, message string) protocol.FatalReply {
	return protocol.FatalReply{Kind: uint8(kind), Message: message}
}
