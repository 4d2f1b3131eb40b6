package cmd

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dsbsim/dsb/agent"
	"github.com/dsbsim/dsb/execution"
	"github.com/dsbsim/dsb/instance"
	"github.com/dsbsim/dsb/model"
	"github.com/dsbsim/dsb/protocol"
	"github.com/dsbsim/dsb/reactor"
	"github.com/dsbsim/dsb/transport"
	"github.com/dsbsim/dsb/wire"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// localBus fans variable publications out to local subscribers. It is the
// demo's stand-in for a real databus.Bus: the dsbdemo command runs every slave as
// a goroutine of the same process, so there is no need to stand up a NATS
// broker just to move values between them. It satisfies the same
// agent.Publisher/agent.Subscriber contract databus.Bus does, so swapping
// one for the other never touches agent.go.
type localBus struct {
	mu   sync.Mutex
	subs map[model.Variable][]func(model.StepID, model.ScalarValue)
}

func newLocalBus() *localBus {
	return &localBus{subs: make(map[model.Variable][]func(model.StepID, model.ScalarValue))}
}

func (b *localBus) Publish(v model.Variable, step model.StepID, value model.ScalarValue) error {
	b.mu.Lock()
	fns := append([]func(model.StepID, model.ScalarValue){}, b.subs[v]...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(step, value)
	}
	return nil
}

func (b *localBus) Subscribe(v model.Variable, onValue func(step model.StepID, value model.ScalarValue)) (func() error, error) {
	b.mu.Lock()
	b.subs[v] = append(b.subs[v], onValue)
	b.mu.Unlock()
	return func() error { return nil }, nil
}

// feedbackSourceType and feedbackSinkType are the two fake slave shapes
// exercised by the built-in demo scenario (spec.md §8 scenario 1): a
// source publishing a single real output, and a sink with one real input
// and one real output to show the loop closing.
func feedbackSourceType() model.SlaveTypeDescription {
	return model.SlaveTypeDescription{
		Name: "feedback-source",
		UUID: "dsb-demo-feedback-source",
		Variables: []model.VariableDescription{
			{ID: 1, Name: "outY", DataType: model.DataTypeReal, Causality: model.CausalityOutput, Variability: model.VariabilityContinuous},
		},
	}
}

func feedbackSinkType() model.SlaveTypeDescription {
	return model.SlaveTypeDescription{
		Name: "feedback-sink",
		UUID: "dsb-demo-feedback-sink",
		Variables: []model.VariableDescription{
			{ID: 1, Name: "inX", DataType: model.DataTypeReal, Causality: model.CausalityInput, Variability: model.VariabilityContinuous},
			{ID: 2, Name: "outZ", DataType: model.DataTypeReal, Causality: model.CausalityOutput, Variability: model.VariabilityContinuous},
		},
	}
}

func typeDescFor(name string) (model.SlaveTypeDescription, error) {
	switch name {
	case "feedback-source":
		return feedbackSourceType(), nil
	case "feedback-sink":
		return feedbackSinkType(), nil
	default:
		return model.SlaveTypeDescription{}, fmt.Errorf("cmd: unknown slave type %q", name)
	}
}

func varIDByName(td model.SlaveTypeDescription, name string) (model.VariableID, error) {
	for _, vd := range td.Variables {
		if vd.Name == name {
			return vd.ID, nil
		}
	}
	return 0, fmt.Errorf("cmd: type %q has no variable %q", td.Name, name)
}

// runningSlave is one slave process's in-process stand-in: its own
// reactor, agent, and control-channel listener.
type runningSlave struct {
	name    string
	fake    *instance.FakeSlave
	agent   *agent.Agent
	re      *reactor.Reactor
	ln      net.Listener
	locator model.SlaveLocator
}

// startSlave brings up one fake slave as a goroutine of the demo process:
// its own reactor driving its own agent, listening for the master's
// control connection on an ephemeral TCP port (spec.md §4.1, §6).
func startSlave(cfg SlaveConfig, bus *localBus) (*runningSlave, error) {
	td, err := typeDescFor(cfg.Type)
	if err != nil {
		return nil, err
	}
	controlEP, err := transport.ParseEndpoint(cfg.ControlAddr)
	if err != nil {
		return nil, err
	}
	addr, err := transport.ListenAddr(controlEP)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("cmd: listen for slave %s: %w", cfg.Name, err)
	}

	re := reactor.New()
	fake := instance.NewFakeSlave(td)
	a := agent.New(re, fake, bus, bus)

	rs := &runningSlave{
		name:    cfg.Name,
		fake:    fake,
		agent:   a,
		re:      re,
		ln:      ln,
		locator: model.SlaveLocator{Control: transport.EndpointFromListener("tcp", ln, "127.0.0.1")},
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		fc := transport.NewFrameChannel(wire.NewTCPSocket(conn))
		a.Serve(fc)
	}()
	go func() {
		if err := re.Run(); err != nil {
			logrus.WithError(err).WithField("slave", cfg.Name).Warn("slave reactor stopped")
		}
	}()

	return rs, nil
}

func (rs *runningSlave) stop() {
	rs.re.Stop()
	_ = rs.ln.Close()
}

// RunFeedbackDemo drives one execution end to end against in-process fake
// slaves: Reconstitute, Reconfigure (settings and connections), Step,
// AcceptStep, Terminate, then reports the sink's observed input — the
// scripted walkthrough of spec.md §8 scenario 1.
func RunFeedbackDemo(cfg *ExecutionConfig) error {
	log := logrus.WithField("component", "dsbdemo")
	bus := newLocalBus()

	slaves := make(map[string]*runningSlave, len(cfg.Slaves))
	for _, sc := range cfg.Slaves {
		rs, err := startSlave(sc, bus)
		if err != nil {
			return err
		}
		slaves[sc.Name] = rs
		defer rs.stop()
	}

	re := reactor.New()
	go re.Run()
	defer re.Stop()

	mgr := execution.New(re, cfg.Name, model.StepTime(cfg.Start), model.StepTime(cfg.Stop), 5000, prometheus.NewRegistry())

	var toAdd []execution.SlaveToAdd
	for _, sc := range cfg.Slaves {
		toAdd = append(toAdd, execution.SlaveToAdd{
			Name:      sc.Name,
			Locator:   slaves[sc.Name].locator,
			SlaveUUID: uuid.NewString(),
		})
	}

	ids := map[string]model.SlaveID{}
	reconstituteDone := make(chan struct{})
	if err := mgr.Reconstitute(toAdd, 2*time.Second, func(name string, id model.SlaveID, err error) {
		if err != nil {
			log.WithError(err).WithField("slave", name).Error("reconstitute failed")
			return
		}
		ids[name] = id
	}, func() { close(reconstituteDone) }); err != nil {
		return err
	}
	if err := awaitBarrier(reconstituteDone); err != nil {
		return err
	}
	// Assign each slave's own agent the SlaveID the manager just handed
	// out, out of band from the control protocol (agent.SetSlaveID's
	// contract): publishOutputs tags every publication with this id, and
	// subscribers key their subscriptions on it.
	for name, id := range ids {
		slaves[name].agent.SetSlaveID(id)
	}
	log.WithField("slaves", ids).Info("reconstitute complete, execution primed")

	var configs []execution.SlaveConfig
	for _, conn := range cfg.Connect {
		fromTD, _ := typeDescFor(slaveTypeOf(cfg, conn.FromSlave))
		toTD, _ := typeDescFor(slaveTypeOf(cfg, conn.ToSlave))
		fromVarID, err := varIDByName(fromTD, conn.FromVar)
		if err != nil {
			return err
		}
		toVarID, err := varIDByName(toTD, conn.ToVar)
		if err != nil {
			return err
		}
		configs = append(configs, execution.SlaveConfig{
			SlaveID: ids[conn.ToSlave],
			Connections: []protocol.VariableConnection{{
				LocalInput:  toVarID,
				SourceSlave: ids[conn.FromSlave],
				SourceVar:   fromVarID,
			}},
		})
	}
	// Scenario 1's SET happens on the source slave, expressed here as a
	// SlaveConfig carrying only Settings (no Connections) for that slave.
	if sourceID, ok := ids["source"]; ok {
		sourceTD, _ := typeDescFor(slaveTypeOf(cfg, "source"))
		if outID, err := varIDByName(sourceTD, "outY"); err == nil {
			configs = append(configs, execution.SlaveConfig{
				SlaveID: sourceID,
				Settings: []model.VariableSetting{{
					Target:   model.Variable{Slave: sourceID, Variable: outID},
					Value:    model.RealValue(2.5),
					HasValue: true,
				}},
			})
		}
	}

	reconfigureDone := make(chan struct{})
	if err := mgr.Reconfigure(configs, 2*time.Second, func(id model.SlaveID, err error) {
		if err != nil {
			log.WithError(err).WithField("slave_id", id).Error("reconfigure failed")
		}
	}, func() { close(reconfigureDone) }); err != nil {
		return err
	}
	if err := awaitBarrier(reconfigureDone); err != nil {
		return err
	}
	log.Info("reconfigure complete: connections wired, initial value set")

	stepErrCh := make(chan error, 1)
	if err := mgr.Step(model.StepTime(cfg.Step), 2*time.Second, func(outcome execution.StepOutcome, err error) {
		if outcome.Rejected {
			err = fmt.Errorf("step rejected by %v", outcome.FailedSlaves)
		}
		stepErrCh <- err
	}); err != nil {
		return err
	}
	if err := <-stepErrCh; err != nil {
		return fmt.Errorf("cmd: step failed: %w", err)
	}
	log.Info("step complete")

	acceptErrCh := make(chan error, 1)
	if err := mgr.AcceptStep(2*time.Second, func(err error) { acceptErrCh <- err }); err != nil {
		return err
	}
	if err := <-acceptErrCh; err != nil {
		return fmt.Errorf("cmd: accept_step failed: %w", err)
	}
	log.WithField("simulated_time", mgr.CurrentTime()).Info("accept_step complete, time advanced")

	if sink, ok := slaves["sink"]; ok {
		if sinkTD, err := typeDescFor(slaveTypeOf(cfg, "sink")); err == nil {
			if inID, err := varIDByName(sinkTD, "inX"); err == nil {
				if v, err := sink.fake.GetReal(inID); err == nil {
					log.WithField("inX", v).Info("sink observed connected value")
				}
			}
		}
	}

	mgr.Terminate(time.Second)
	log.Info("execution terminated")
	return nil
}

func slaveTypeOf(cfg *ExecutionConfig, name string) string {
	for _, sc := range cfg.Slaves {
		if sc.Name == name {
			return sc.Type
		}
	}
	return ""
}

// awaitBarrier blocks until a manager operation's onAllDone callback
// closes done, since the demo CLI is a straight-line script rather than
// an event-driven program.
func awaitBarrier(done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("cmd: barrier did not complete in time")
	}
}
