package agent

import (
	"testing"
	"time"

	"github.com/dsbsim/dsb/instance"
	"github.com/dsbsim/dsb/model"
	"github.com/dsbsim/dsb/protocol"
	"github.com/dsbsim/dsb/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	published []publishedValue
	subs      map[model.Variable][]func(step model.StepID, value model.ScalarValue)
}

type publishedValue struct {
	v     model.Variable
	step  model.StepID
	value model.ScalarValue
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[model.Variable][]func(model.StepID, model.ScalarValue))}
}

func (b *fakeBus) Publish(v model.Variable, step model.StepID, value model.ScalarValue) error {
	b.published = append(b.published, publishedValue{v, step, value})
	return nil
}

func (b *fakeBus) Subscribe(v model.Variable, onValue func(step model.StepID, value model.ScalarValue)) (func() error, error) {
	b.subs[v] = append(b.subs[v], onValue)
	return func() error { return nil }, nil
}

func (b *fakeBus) deliver(v model.Variable, step model.StepID, value model.ScalarValue) {
	for _, cb := range b.subs[v] {
		cb(step, value)
	}
}

func testTypeDesc() model.SlaveTypeDescription {
	return model.SlaveTypeDescription{
		Name: "Adder", UUID: "adder-1",
		Variables: []model.VariableDescription{
			{ID: 1, Name: "x", DataType: model.DataTypeReal, Causality: model.CausalityInput, Variability: model.VariabilityContinuous},
			{ID: 2, Name: "y", DataType: model.DataTypeReal, Causality: model.CausalityOutput, Variability: model.VariabilityContinuous},
		},
	}
}

func newTestAgent() (*Agent, *instance.FakeSlave, *fakeBus) {
	inst := instance.NewFakeSlave(testTypeDesc())
	bus := newFakeBus()
	a := New(reactor.New(), inst, bus, bus)
	return a, inst, bus
}

func mustSetUpReady(t *testing.T, a *Agent) {
	t.Helper()
	require.Equal(t, protocol.ReadyReply{}, a.Handle(protocol.HelloCommand{ProtocolVersion: protocolVersion}))
	require.Equal(t, protocol.OkReply{}, a.Handle(protocol.SetupCommand{StartTime: 0, StopTime: 10, ExecutionName: "e", SlaveName: "s"}))
	require.Equal(t, model.SlaveReady, a.State())
}

func TestHelloRejectsVersionMismatch(t *testing.T) {
	a, _, _ := newTestAgent()

	runDone := make(chan error, 1)
	go func() { runDone <- a.re.Run() }()

	reply := a.Handle(protocol.HelloCommand{ProtocolVersion: protocolVersion + 1})
	fatal, ok := reply.(protocol.FatalReply)
	require.True(t, ok)
	assert.EqualValues(t, 10 /* KindVersionMismatch */, fatal.Kind)
	// spec.md §4.4: a version-mismatched HELLO doesn't just reply FATAL, it
	// closes — the agent must not be left listening in NotConnected forever.
	assert.Equal(t, model.SlaveTerminated, a.State())

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reactor did not stop after version-mismatched HELLO")
	}
}

func TestSetupRejectedBySlaveReturnsFatal(t *testing.T) {
	a, inst, _ := newTestAgent()
	inst.SetupOK = false
	require.Equal(t, protocol.ReadyReply{}, a.Handle(protocol.HelloCommand{ProtocolVersion: protocolVersion}))
	reply := a.Handle(protocol.SetupCommand{StartTime: 0, StopTime: 1})
	_, ok := reply.(protocol.FatalReply)
	assert.True(t, ok)
}

func TestFullStepCycle(t *testing.T) {
	a, _, bus := newTestAgent()
	mustSetUpReady(t, a)

	reply := a.Handle(protocol.SetVarsCommand{StepID: model.NoStep, Settings: []model.VariableSetting{
		{Target: model.Variable{Variable: 1}, HasValue: true, Value: model.RealValue(2)},
	}})
	assert.Equal(t, protocol.OkReply{}, reply)

	reply = a.Handle(protocol.StepCommand{StepID: 0, Current: 0, StepSize: 1})
	assert.Equal(t, protocol.StepOkReply{}, reply)
	assert.Equal(t, model.SlaveStepOk, a.State())
	require.Len(t, bus.published, 1)
	assert.Equal(t, model.StepID(0), bus.published[0].step)

	reply = a.Handle(protocol.AcceptStepCommand{})
	assert.Equal(t, protocol.OkReply{}, reply)
	assert.Equal(t, model.SlaveReady, a.State())
}

func TestStepRejectsNonSuccessorStepID(t *testing.T) {
	a, _, _ := newTestAgent()
	mustSetUpReady(t, a)

	reply := a.Handle(protocol.StepCommand{StepID: 5, Current: 0, StepSize: 1})
	fatal, ok := reply.(protocol.FatalReply)
	require.True(t, ok)
	assert.NotEmpty(t, fatal.Message)
	assert.Equal(t, model.SlaveReady, a.State())
}

func TestStepTooBigMovesToStepFailed(t *testing.T) {
	a, inst, _ := newTestAgent()
	inst.TooBigAbove = 0.5
	mustSetUpReady(t, a)

	reply := a.Handle(protocol.StepCommand{StepID: 0, Current: 0, StepSize: 1})
	assert.Equal(t, protocol.StepFailedReply{}, reply)
	assert.Equal(t, model.SlaveStepFailed, a.State())

	reply = a.Handle(protocol.AcceptStepCommand{})
	_, ok := reply.(protocol.FatalReply)
	assert.True(t, ok, "ACCEPT_STEP after StepFailed must be rejected")
}

func TestConnectVarsDeliversMailboxValueIntoNextStep(t *testing.T) {
	a, inst, bus := newTestAgent()
	mustSetUpReady(t, a)

	reply := a.Handle(protocol.ConnectVarsCommand{Connections: []protocol.VariableConnection{
		{LocalInput: 1, SourceSlave: 9, SourceVar: 2},
	}})
	assert.Equal(t, protocol.OkReply{}, reply)

	bus.deliver(model.Variable{Slave: 9, Variable: 2}, 0, model.RealValue(42))
	// onPublish only queues the delivery for the agent's own reactor turn
	// (agent.go's pump-to-readiness-signal bridge); drain it directly here
	// since this test never runs the reactor loop.
	a.drainPublishEvent()

	var seen float64
	inst.OnStep = func(s *instance.FakeSlave, currentT, deltaT model.StepTime) {
		seen, _ = s.GetReal(1)
	}
	reply = a.Handle(protocol.StepCommand{StepID: 0, Current: 0, StepSize: 1})
	assert.Equal(t, protocol.StepOkReply{}, reply)
	assert.Equal(t, float64(42), seen)
}

func TestStaleMailboxValueIsDropped(t *testing.T) {
	a, inst, bus := newTestAgent()
	mustSetUpReady(t, a)
	_ = a.Handle(protocol.ConnectVarsCommand{Connections: []protocol.VariableConnection{
		{LocalInput: 1, SourceSlave: 9, SourceVar: 2},
	}})

	bus.deliver(model.Variable{Slave: 9, Variable: 2}, 0, model.RealValue(1))
	bus.deliver(model.Variable{Slave: 9, Variable: 2}, 0, model.RealValue(2)) // same step, not newer: dropped, the first value stays (applyPublish's >= check)
	bus.deliver(model.Variable{Slave: 9, Variable: 2}, 5, model.RealValue(999)) // far future: beyond threshold, dropped
	a.drainPublishEvent()
	a.drainPublishEvent()
	a.drainPublishEvent()

	var seen float64
	inst.OnStep = func(s *instance.FakeSlave, currentT, deltaT model.StepTime) {
		seen, _ = s.GetReal(1)
	}
	_ = a.Handle(protocol.StepCommand{StepID: 0, Current: 0, StepSize: 1})
	assert.NotEqual(t, float64(999), seen)
}

func TestSetVarsRejectsStaleStep(t *testing.T) {
	a, _, _ := newTestAgent()
	mustSetUpReady(t, a)
	_ = a.Handle(protocol.StepCommand{StepID: 0, Current: 0, StepSize: 1})
	_ = a.Handle(protocol.AcceptStepCommand{})

	reply := a.Handle(protocol.SetVarsCommand{StepID: -1, Settings: nil})
	_, ok := reply.(protocol.FatalReply)
	assert.True(t, ok)
}

func TestTerminateStopsReactorAndTransitions(t *testing.T) {
	a, _, _ := newTestAgent()
	mustSetUpReady(t, a)
	reply := a.Handle(protocol.TerminateCommand{})
	assert.Equal(t, protocol.OkReply{}, reply)
	assert.Equal(t, model.SlaveTerminated, a.State())
}

func TestDescribeReturnsTypeDescription(t *testing.T) {
	a, _, _ := newTestAgent()
	reply := a.Handle(protocol.DescribeCommand{})
	desc, ok := reply.(protocol.DescriptionReply)
	require.True(t, ok)
	assert.Equal(t, "Adder", desc.Type.Name)
}
