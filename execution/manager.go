// Package execution implements the master-side execution manager state
// machine (spec.md §4.5): the top-level orchestrator that sequences
// Reconstitute, Reconfigure, Step, AcceptStep, and Terminate across every
// slave in one execution, barrier-joining their individual outcomes.
package execution

import (
	"fmt"
	"time"

	"github.com/dsbsim/dsb/controller"
	"github.com/dsbsim/dsb/dsberrors"
	"github.com/dsbsim/dsb/model"
	"github.com/dsbsim/dsb/protocol"
	"github.com/dsbsim/dsb/reactor"
	"github.com/dsbsim/dsb/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const protocolVersion uint16 = 1

// slaveRecord is the manager's bookkeeping for one slave (spec.md §4.5
// "map SlaveID -> SlaveRecord{controller, locator, description,
// lifecycle_state}").
type slaveRecord struct {
	id        model.SlaveID
	name      string
	locator   model.SlaveLocator
	ctrl      *controller.Controller
	typeDesc  model.SlaveTypeDescription
	lifecycle model.SlaveLifecycleState
}

// SlaveToAdd describes one slave to bring up via Reconstitute.
type SlaveToAdd struct {
	Name      string
	Locator   model.SlaveLocator
	SlaveUUID string
}

// SlaveConfig targets a Reconfigure at one already-added slave: Settings
// become a SET_VARS command, Connections a CONNECT_VARS command, sent as
// the "combined pair" spec.md §4.5 describes.
type SlaveConfig struct {
	SlaveID     model.SlaveID
	Settings    []model.VariableSetting
	Connections []protocol.VariableConnection
}

// Manager is the execution manager for one execution.
type Manager struct {
	re            *reactor.Reactor
	name          string
	start, stop   model.StepTime
	commTimeoutMs uint32

	// Dial establishes the control connection for a slave's locator.
	// Defaults to transport.DialTCP; tests substitute an in-process dialer.
	Dial func(model.Endpoint) (*transport.FrameChannel, error)

	slaves map[model.SlaveID]*slaveRecord
	nextID model.SlaveID

	state       model.ExecutionState
	stepID      model.StepID
	currentTime model.StepTime
	stepDT      model.StepTime

	activeBarrier *barrier
	metrics       *metrics
	log           *logrus.Entry
}

// New creates a Manager for one execution named name, covering simulated
// time [start, stop]. commTimeoutMs is the per-slave SETUP comm timeout
// advertised during Reconstitute. Metrics register onto reg (pass
// prometheus.NewRegistry() for an isolated registry in tests).
func New(re *reactor.Reactor, name string, start, stop model.StepTime, commTimeoutMs uint32, reg prometheus.Registerer) *Manager {
	return &Manager{
		re:            re,
		name:          name,
		start:         start,
		stop:          stop,
		commTimeoutMs: commTimeoutMs,
		Dial:          transport.DialTCP,
		slaves:        make(map[model.SlaveID]*slaveRecord),
		state:         model.ExecutionReady,
		stepID:        model.NoStep,
		currentTime:   start,
		metrics:       newMetrics(reg),
		log:           logrus.WithField("component", "execution"),
	}
}

// State reports the manager's current logical state.
func (m *Manager) State() model.ExecutionState { return m.state }

// StepID reports the id of the most recently issued Step (set when Step
// dispatches it, whatever its outcome), or model.NoStep before the first.
func (m *Manager) StepID() model.StepID { return m.stepID }

// CurrentTime reports the simulated time after the last successful
// AcceptStep.
func (m *Manager) CurrentTime() model.StepTime { return m.currentTime }

type command uint8

const (
	cmdReconstitute command = iota
	cmdReconfigure
	cmdStep
	cmdAcceptStep
	cmdTerminate
)

// allowed implements spec.md §4.5's state table: whether cmd may run from
// state, and the transient "busy" state entered while its barrier is
// outstanding.
func allowed(state model.ExecutionState, cmd command) (ok bool, busy model.ExecutionState) {
	if cmd == cmdTerminate {
		return state != model.ExecutionTerminated, model.ExecutionTerminated
	}
	switch state {
	case model.ExecutionReady, model.ExecutionPrimed:
		switch cmd {
		case cmdReconstitute, cmdReconfigure:
			return true, model.ExecutionConfigBusy
		case cmdStep:
			return true, model.ExecutionStepBusy
		}
		return false, state
	case model.ExecutionStepOk:
		if cmd == cmdAcceptStep {
			return true, model.ExecutionConfigBusy
		}
		return false, state
	default: // ConfigBusy, StepBusy, StepFailed, Terminated
		return false, state
	}
}

func (m *Manager) enter(cmd command) (busy model.ExecutionState, ok bool) {
	allow, busy := allowed(m.state, cmd)
	if !allow {
		return busy, false
	}
	m.state = busy
	m.metrics.setSlaveCounts(m.slaves)
	return busy, true
}

// Reconstitute adds new slaves to the execution (spec.md §4.5). onSlaveDone
// fires once per requested slave; onAllDone fires once after every one has
// either succeeded or failed, bounded by timeout.
func (m *Manager) Reconstitute(toAdd []SlaveToAdd, timeout time.Duration, onSlaveDone func(name string, id model.SlaveID, err error), onAllDone func()) error {
	if _, ok := m.enter(cmdReconstitute); !ok {
		return dsberrors.New(dsberrors.KindProtocolViolation, "execution", "reconstitute")
	}
	started := time.Now()
	m.activeBarrier = newBarrier(len(toAdd), func(aborted bool) {
		m.metrics.observeBarrier("reconstitute", started)
		if !aborted && m.state == model.ExecutionConfigBusy {
			m.state = model.ExecutionPrimed
		}
		m.activeBarrier = nil
		m.metrics.setSlaveCounts(m.slaves)
		if onAllDone != nil {
			onAllDone()
		}
	})
	b := m.activeBarrier

	for _, add := range toAdd {
		add := add
		fc, err := m.Dial(add.Locator.Control)
		if err != nil {
			m.log.WithError(err).WithField("slave", add.Name).Warn("dial failed")
			onSlaveDone(add.Name, model.UnassignedSlaveID, err)
			b.done()
			continue
		}
		handle := fmt.Sprintf("reconstitute:%s", add.Name)
		ctrl := controller.New(m.re, handle, fc)

		ctrl.Send(protocol.HelloCommand{ProtocolVersion: protocolVersion, SlaveUUID: add.SlaveUUID}, timeout, func(reply interface{}, err error) {
			if err != nil {
				onSlaveDone(add.Name, model.UnassignedSlaveID, err)
				b.done()
				return
			}
			if fatal, ok := reply.(protocol.FatalReply); ok {
				onSlaveDone(add.Name, model.UnassignedSlaveID, fatalErr(fatal))
				b.done()
				return
			}
			ctrl.SetState(model.SlaveConnected)
			ctrl.Send(protocol.SetupCommand{
				StartTime: m.start, StopTime: m.stop,
				ExecutionName: m.name, SlaveName: add.Name,
				CommTimeoutMs: m.commTimeoutMs,
			}, timeout, func(reply interface{}, err error) {
				if err != nil {
					onSlaveDone(add.Name, model.UnassignedSlaveID, err)
					b.done()
					return
				}
				if fatal, ok := reply.(protocol.FatalReply); ok {
					onSlaveDone(add.Name, model.UnassignedSlaveID, fatalErr(fatal))
					b.done()
					return
				}
				ctrl.SetState(model.SlaveReady)
				m.nextID++
				id := m.nextID
				m.slaves[id] = &slaveRecord{id: id, name: add.Name, locator: add.Locator, ctrl: ctrl, lifecycle: model.SlaveReady}
				onSlaveDone(add.Name, id, nil)
				b.done()
			})
		})
	}
	return nil
}

// Reconfigure applies per-slave variable settings and connections (spec.md
// §4.5): for each targeted slave, one SET_VARS and one CONNECT_VARS command
// are emitted, joined by the same barrier.
func (m *Manager) Reconfigure(configs []SlaveConfig, timeout time.Duration, onSlaveDone func(id model.SlaveID, err error), onAllDone func()) error {
	if _, ok := m.enter(cmdReconfigure); !ok {
		return dsberrors.New(dsberrors.KindProtocolViolation, "execution", "reconfigure")
	}
	started := time.Now()
	b := newBarrier(len(configs), func(aborted bool) {
		m.metrics.observeBarrier("reconfigure", started)
		if !aborted && m.state == model.ExecutionConfigBusy {
			m.state = model.ExecutionPrimed
		}
		m.activeBarrier = nil
		m.metrics.setSlaveCounts(m.slaves)
		if onAllDone != nil {
			onAllDone()
		}
	})
	m.activeBarrier = b

	for _, cfg := range configs {
		cfg := cfg
		rec, ok := m.slaves[cfg.SlaveID]
		if !ok {
			onSlaveDone(cfg.SlaveID, dsberrors.New(dsberrors.KindUnknownVariable, "execution", "reconfigure"))
			b.done()
			continue
		}
		rec.ctrl.Send(protocol.SetVarsCommand{StepID: m.stepID, Settings: cfg.Settings}, timeout, func(reply interface{}, err error) {
			if err := reconfigureErr(reply, err); err != nil {
				onSlaveDone(cfg.SlaveID, err)
				b.done()
				return
			}
			rec.ctrl.Send(protocol.ConnectVarsCommand{Connections: cfg.Connections}, timeout, func(reply interface{}, err error) {
				if err := reconfigureErr(reply, err); err != nil {
					onSlaveDone(cfg.SlaveID, err)
					b.done()
					return
				}
				onSlaveDone(cfg.SlaveID, nil)
				b.done()
			})
		})
	}
	return nil
}

func reconfigureErr(reply interface{}, err error) error {
	if err != nil {
		return err
	}
	if fatal, ok := reply.(protocol.FatalReply); ok {
		return fatalErr(fatal)
	}
	return nil
}

// StepOutcome is the aggregate result of a Step barrier (spec.md §4.5
// "Step" aggregation rule).
type StepOutcome struct {
	// Rejected is true when every slave replied but at least one returned
	// STEP_FAILED and none returned FATAL.
	Rejected bool
	// FailedSlaves lists slaves whose reply was FATAL or that timed out.
	FailedSlaves []model.SlaveID
}

// Step issues STEP to every Ready slave in parallel (spec.md §4.5). Per
// §4.5, simulated time does not advance here; only AcceptStep advances it.
func (m *Manager) Step(dt model.StepTime, timeout time.Duration, onAllDone func(StepOutcome, error)) error {
	if _, ok := m.enter(cmdStep); !ok {
		return dsberrors.New(dsberrors.KindProtocolViolation, "execution", "step")
	}
	nextStepID := m.stepID + 1
	targets := make([]*slaveRecord, 0, len(m.slaves))
	for _, rec := range m.slaves {
		if rec.lifecycle == model.SlaveReady {
			targets = append(targets, rec)
		}
	}

	started := time.Now()
	var anyFatal, anyRejected bool
	var failed []model.SlaveID

	b := newBarrier(len(targets), func(aborted bool) {
		m.metrics.observeBarrier("step", started)
		outcome := StepOutcome{Rejected: anyRejected && !anyFatal && !aborted, FailedSlaves: failed}
		switch {
		case aborted, anyFatal, anyRejected:
			m.state = model.ExecutionStepFailed
		default:
			m.state = model.ExecutionStepOk
		}
		m.activeBarrier = nil
		m.metrics.setSlaveCounts(m.slaves)
		if onAllDone != nil {
			switch {
			case aborted:
				onAllDone(outcome, dsberrors.New(dsberrors.KindAborted, "execution", "step"))
			case anyFatal:
				onAllDone(outcome, dsberrors.New(dsberrors.KindFatal, "execution", "step"))
			default:
				onAllDone(outcome, nil)
			}
		}
	})
	m.activeBarrier = b
	m.stepDT = dt

	for _, rec := range targets {
		rec := rec
		rec.lifecycle = model.SlaveStepping
		rec.ctrl.Send(protocol.StepCommand{StepID: nextStepID, Current: m.currentTime, StepSize: dt}, timeout, func(reply interface{}, err error) {
			if err != nil {
				rec.lifecycle = model.SlaveDisconnected
				anyFatal = true
				failed = append(failed, rec.id)
				b.done()
				return
			}
			switch reply.(type) {
			case protocol.StepOkReply:
				rec.lifecycle = model.SlaveStepOk
			case protocol.StepFailedReply:
				rec.lifecycle = model.SlaveStepFailed
				anyRejected = true
			case protocol.FatalReply:
				rec.lifecycle = model.SlaveDisconnected
				anyFatal = true
				failed = append(failed, rec.id)
			}
			b.done()
		})
	}
	if len(targets) > 0 {
		m.stepID = nextStepID
	}
	return nil
}

// AcceptStep issues ACCEPT_STEP to every slave that replied STEP_OK (spec.md
// §4.5). On universal OK, simulated time advances by the dt used in the
// preceding Step and the manager returns to Ready.
func (m *Manager) AcceptStep(timeout time.Duration, onAllDone func(error)) error {
	if _, ok := m.enter(cmdAcceptStep); !ok {
		return dsberrors.New(dsberrors.KindProtocolViolation, "execution", "accept_step")
	}
	targets := make([]*slaveRecord, 0, len(m.slaves))
	for _, rec := range m.slaves {
		if rec.lifecycle == model.SlaveStepOk {
			targets = append(targets, rec)
		}
	}

	started := time.Now()
	var anyErr bool
	b := newBarrier(len(targets), func(aborted bool) {
		m.metrics.observeBarrier("accept_step", started)
		m.activeBarrier = nil
		if aborted {
			m.state = model.ExecutionStepFailed
			m.metrics.setSlaveCounts(m.slaves)
			if onAllDone != nil {
				onAllDone(dsberrors.New(dsberrors.KindAborted, "execution", "accept_step"))
			}
			return
		}
		if anyErr {
			m.state = model.ExecutionStepFailed
			m.metrics.setSlaveCounts(m.slaves)
			if onAllDone != nil {
				onAllDone(dsberrors.New(dsberrors.KindFatal, "execution", "accept_step"))
			}
			return
		}
		m.currentTime += m.stepDT
		m.state = model.ExecutionReady
		m.metrics.setSlaveCounts(m.slaves)
		if onAllDone != nil {
			onAllDone(nil)
		}
	})
	m.activeBarrier = b

	for _, rec := range targets {
		rec := rec
		rec.ctrl.Send(protocol.AcceptStepCommand{}, timeout, func(reply interface{}, err error) {
			if err != nil {
				anyErr = true
				rec.lifecycle = model.SlaveDisconnected
				b.done()
				return
			}
			if _, ok := reply.(protocol.FatalReply); ok {
				anyErr = true
				rec.lifecycle = model.SlaveDisconnected
				b.done()
				return
			}
			rec.lifecycle = model.SlaveReady
			b.done()
		})
	}
	return nil
}

// Terminate broadcasts TERMINATE to every non-disconnected slave (spec.md
// §4.5). If a barrier is outstanding, the overall callback fires with
// Aborted first; any slave that still has a command on the wire under that
// barrier is aborted rather than handed a TERMINATE it would only queue
// behind the dangling one, so its original per-command callback fires with
// Aborted too instead of leaking forever (spec.md §9 "no hanging
// callbacks", §8 scenario 5).
func (m *Manager) Terminate(grace time.Duration) {
	if m.state == model.ExecutionTerminated {
		return
	}
	if m.activeBarrier != nil {
		m.activeBarrier.abort()
		m.activeBarrier = nil
	}
	for _, rec := range m.slaves {
		if rec.lifecycle == model.SlaveTerminated || rec.lifecycle == model.SlaveDisconnected {
			continue
		}
		if rec.ctrl.HasPending() {
			rec.ctrl.Abort()
			rec.lifecycle = model.SlaveTerminated
			continue
		}
		rec.ctrl.Send(protocol.TerminateCommand{}, grace, func(reply interface{}, err error) {
			rec.lifecycle = model.SlaveTerminated
		})
	}
	m.state = model.ExecutionTerminated
	m.metrics.setSlaveCounts(m.slaves)
}

func fatalErr(f protocol.FatalReply) error {
	return dsberrors.Wrap(fmt.Errorf("%s", f.Message), dsberrors.Kind(f.Kind), "execution", "slave-reply")
}
