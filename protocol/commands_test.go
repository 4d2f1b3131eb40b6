package protocol

import (
	"testing"

	"github.com/dsbsim/dsb/model"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRoundTrip(t *testing.T) {
	cases := []interface{}{
		HelloCommand{ProtocolVersion: 1, SlaveUUID: "abc-123"},
		SetupCommand{StartTime: 0, StopTime: 10, ExecutionName: "exec", SlaveName: "slave-a", CommTimeoutMs: 5000},
		SetVarsCommand{StepID: 3, Settings: []model.VariableSetting{
			{Target: model.Variable{Slave: 1, Variable: 2}, HasValue: true, Value: model.RealValue(2.5)},
			{Target: model.Variable{Slave: 1, Variable: 3}, HasSource: true, Source: model.Variable{Slave: 2, Variable: 1}},
			{Target: model.Variable{Slave: 1, Variable: 4}, Disconnect: true},
		}},
		ConnectVarsCommand{Connections: []VariableConnection{{LocalInput: 2, SourceSlave: 1, SourceVar: 5}}},
		StepCommand{StepID: 4, Current: 1.0, StepSize: 0.1},
		AcceptStepCommand{},
		TerminateCommand{},
		DescribeCommand{},
	}
	for _, c := range cases {
		msg, err := EncodeCommand(c)
		require.NoError(t, err)
		decoded, err := DecodeCommand(msg)
		require.NoError(t, err)
		if diff := cmp.Diff(c, decoded, cmp.AllowUnexported(model.ScalarValue{})); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestReplyRoundTrip(t *testing.T) {
	td := model.SlaveTypeDescription{
		Name: "SlaveA", UUID: "uuid-1", Description: "d", Author: "a", Version: "1.0",
		Variables: []model.VariableDescription{
			{ID: 1, Name: "y", DataType: model.DataTypeReal, Causality: model.CausalityOutput, Variability: model.VariabilityContinuous},
		},
	}
	cases := []interface{}{
		ReadyReply{},
		OkReply{},
		StepOkReply{},
		StepFailedReply{},
		FatalReply{Kind: 6, Message: "setup rejected"},
		DescriptionReply{Type: td},
	}
	for _, c := range cases {
		msg, err := EncodeReply(c)
		require.NoError(t, err)
		decoded, err := DecodeReply(msg)
		require.NoError(t, err)
		assert.Equal(t, c, decoded)
	}
}

func TestPeekCodeMatchesEncodedCommand(t *testing.T) {
	msg, err := EncodeCommand(TerminateCommand{})
	require.NoError(t, err)
	code, err := PeekCode(msg)
	require.NoError(t, err)
	assert.Equal(t, CodeTerminate, code)
}
