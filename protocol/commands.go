// Package protocol codes the control protocol and variable-publish
// messages of spec.md §4.3 onto wire.Message frames: frame 0 is a 2-byte
// big-endian command code, frame 1 is an optional serialized payload.
package protocol

import (
	"fmt"

	"github.com/dsbsim/dsb/model"
	"github.com/dsbsim/dsb/wire"
)

// Code is a 2-byte big-endian command or reply code.
type Code uint16

const (
	CodeHello Code = iota + 1
	CodeSetup
	CodeSetVars
	CodeConnectVars
	CodeStep
	CodeAcceptStep
	CodeTerminate
	CodeDescribe

	CodeReady
	CodeOk
	CodeStepOk
	CodeStepFailed
	CodeFatal
	CodeDescription
)

func (c Code) String() string {
	switch c {
	case CodeHello:
		return "HELLO"
	case CodeSetup:
		return "SETUP"
	case CodeSetVars:
		return "SET_VARS"
	case CodeConnectVars:
		return "CONNECT_VARS"
	case CodeStep:
		return "STEP"
	case CodeAcceptStep:
		return "ACCEPT_STEP"
	case CodeTerminate:
		return "TERMINATE"
	case CodeDescribe:
		return "DESCRIBE"
	case CodeReady:
		return "READY"
	case CodeOk:
		return "OK"
	case CodeStepOk:
		return "STEP_OK"
	case CodeStepFailed:
		return "STEP_FAILED"
	case CodeFatal:
		return "FATAL"
	case CodeDescription:
		return "DESCRIPTION"
	default:
		return fmt.Sprintf("Code(%d)", uint16(c))
	}
}

// HelloCommand advertises the caller's protocol version and carries the
// slave UUID (spec.md §4.3, §4.4). The agent checks only the version; the
// READY reply carries no payload.
type HelloCommand struct {
	ProtocolVersion uint16
	SlaveUUID       string
}

// SetupCommand configures a freshly-connected slave for one execution.
type SetupCommand struct {
	StartTime     model.StepTime
	StopTime      model.StepTime
	ExecutionName string
	SlaveName     string
	CommTimeoutMs uint32
}

// SetVarsCommand applies a batch of variable settings at a given step.
type SetVarsCommand struct {
	StepID   model.StepID
	Settings []model.VariableSetting
}

// VariableConnection is one entry of a CONNECT_VARS command: the local
// input variable to bind, and the remote (source_slave, source_var) that
// feeds it.
type VariableConnection struct {
	LocalInput  model.VariableID
	SourceSlave model.SlaveID
	SourceVar   model.VariableID
}

// ConnectVarsCommand updates a slave's set of input connections.
type ConnectVarsCommand struct {
	Connections []VariableConnection
}

// StepCommand asks a slave to advance local time by StepSize.
type StepCommand struct {
	StepID    model.StepID
	Current   model.StepTime
	StepSize  model.StepTime
}

// AcceptStepCommand and the other zero-payload commands/replies below
// carry no fields; they exist as distinct types for clarity at call sites
// and to keep the Encode/Decode dispatch exhaustive over spec.md's command
// list.
type AcceptStepCommand struct{}
type TerminateCommand struct{}
type DescribeCommand struct{}

type ReadyReply struct{}
type OkReply struct{}
type StepOkReply struct{}
type StepFailedReply struct{}

// FatalReply carries the classified failure kind and a human-readable
// message (spec.md §4.3, §7).
type FatalReply struct {
	Kind    uint8
	Message string
}

// DescriptionReply answers a DESCRIBE command.
type DescriptionReply struct {
	Type model.SlaveTypeDescription
}

// EncodeCommand renders any of the *Command types above into a wire
// message: frame 0 is the 2-byte code, frame 1 the serialized payload
// (absent entirely for zero-payload commands).
func EncodeCommand(cmd interface{}) (wire.Message, error) {
	switch c := cmd.(type) {
	case HelloCommand:
		w := &writer{}
		w.u16(c.ProtocolVersion)
		w.str(c.SlaveUUID)
		return frame(CodeHello, w.bytes()), nil
	case SetupCommand:
		w := &writer{}
		w.f64(float64(c.StartTime))
		w.f64(float64(c.StopTime))
		w.str(c.ExecutionName)
		w.str(c.SlaveName)
		w.u32(c.CommTimeoutMs)
		return frame(CodeSetup, w.bytes()), nil
	case SetVarsCommand:
		w := &writer{}
		w.i64(int64(c.StepID))
		w.u32(uint32(len(c.Settings)))
		for _, s := range c.Settings {
			encodeVariableSetting(w, s)
		}
		return frame(CodeSetVars, w.bytes()), nil
	case ConnectVarsCommand:
		w := &writer{}
		w.u32(uint32(len(c.Connections)))
		for _, conn := range c.Connections {
			w.u32(uint32(conn.LocalInput))
			w.u16(uint16(conn.SourceSlave))
			w.u32(uint32(conn.SourceVar))
		}
		return frame(CodeConnectVars, w.bytes()), nil
	case StepCommand:
		w := &writer{}
		w.i64(int64(c.StepID))
		w.f64(float64(c.Current))
		w.f64(float64(c.StepSize))
		return frame(CodeStep, w.bytes()), nil
	case AcceptStepCommand:
		return frameNoPayload(CodeAcceptStep), nil
	case TerminateCommand:
		return frameNoPayload(CodeTerminate), nil
	case DescribeCommand:
		return frameNoPayload(CodeDescribe), nil
	default:
		return wire.Message{}, fmt.Errorf("protocol: unknown command type %T", cmd)
	}
}

// EncodeReply renders any of the reply types above into a wire message.
func EncodeReply(reply interface{}) (wire.Message, error) {
	switch r := reply.(type) {
	case ReadyReply:
		return frameNoPayload(CodeReady), nil
	case OkReply:
		return frameNoPayload(CodeOk), nil
	case StepOkReply:
		return frameNoPayload(CodeStepOk), nil
	case StepFailedReply:
		return frameNoPayload(CodeStepFailed), nil
	case FatalReply:
		w := &writer{}
		w.byte_(r.Kind)
		w.str(r.Message)
		return frame(CodeFatal, w.bytes()), nil
	case DescriptionReply:
		w := &writer{}
		encodeSlaveTypeDescription(w, r.Type)
		return frame(CodeDescription, w.bytes()), nil
	default:
		return wire.Message{}, fmt.Errorf("protocol: unknown reply type %T", reply)
	}
}

func frame(code Code, payload []byte) wire.Message {
	var codeBuf [2]byte
	codeBuf[0] = byte(code >> 8)
	codeBuf[1] = byte(code)
	return wire.Message{Frames: []wire.Frame{codeBuf[:], payload}}
}

func frameNoPayload(code Code) wire.Message {
	var codeBuf [2]byte
	codeBuf[0] = byte(code >> 8)
	codeBuf[1] = byte(code)
	return wire.Message{Frames: []wire.Frame{codeBuf[:]}}
}

// PeekCode reads the command/reply code from frame 0 of msg without
// decoding the payload.
func PeekCode(msg wire.Message) (Code, error) {
	if len(msg.Frames) < 1 || len(msg.Frames[0]) != 2 {
		return 0, fmt.Errorf("protocol: message has no valid code frame")
	}
	return Code(uint16(msg.Frames[0][0])<<8 | uint16(msg.Frames[0][1])), nil
}

func payloadOf(msg wire.Message) []byte {
	if len(msg.Frames) < 2 {
		return nil
	}
	return msg.Frames[1]
}

// DecodeCommand decodes msg's payload according to its code, returning one
// of the *Command types above.
func DecodeCommand(msg wire.Message) (interface{}, error) {
	code, err := PeekCode(msg)
	if err != nil {
		return nil, err
	}
	r := newReader(payloadOf(msg))
	switch code {
	case CodeHello:
		ver, err := r.u16()
		if err != nil {
			return nil, err
		}
		uuid, err := r.str()
		if err != nil {
			return nil, err
		}
		return HelloCommand{ProtocolVersion: ver, SlaveUUID: uuid}, nil
	case CodeSetup:
		start, err := r.f64()
		if err != nil {
			return nil, err
		}
		stop, err := r.f64()
		if err != nil {
			return nil, err
		}
		exec, err := r.str()
		if err != nil {
			return nil, err
		}
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		timeout, err := r.u32()
		if err != nil {
			return nil, err
		}
		return SetupCommand{
			StartTime: model.StepTime(start), StopTime: model.StepTime(stop),
			ExecutionName: exec, SlaveName: name, CommTimeoutMs: timeout,
		}, nil
	case CodeSetVars:
		stepID, err := r.i64()
		if err != nil {
			return nil, err
		}
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		settings := make([]model.VariableSetting, n)
		for i := range settings {
			settings[i], err = decodeVariableSetting(r)
			if err != nil {
				return nil, err
			}
		}
		return SetVarsCommand{StepID: model.StepID(stepID), Settings: settings}, nil
	case CodeConnectVars:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		conns := make([]VariableConnection, n)
		for i := range conns {
			local, err := r.u32()
			if err != nil {
				return nil, err
			}
			slave, err := r.u16()
			if err != nil {
				return nil, err
			}
			v, err := r.u32()
			if err != nil {
				return nil, err
			}
			conns[i] = VariableConnection{
				LocalInput: model.VariableID(local), SourceSlave: model.SlaveID(slave), SourceVar: model.VariableID(v),
			}
		}
		return ConnectVarsCommand{Connections: conns}, nil
	case CodeStep:
		stepID, err := r.i64()
		if err != nil {
			return nil, err
		}
		current, err := r.f64()
		if err != nil {
			return nil, err
		}
		size, err := r.f64()
		if err != nil {
			return nil, err
		}
		return StepCommand{StepID: model.StepID(stepID), Current: model.StepTime(current), StepSize: model.StepTime(size)}, nil
	case CodeAcceptStep:
		return AcceptStepCommand{}, nil
	case CodeTerminate:
		return TerminateCommand{}, nil
	case CodeDescribe:
		return DescribeCommand{}, nil
	default:
		return nil, fmt.Errorf("protocol: %s is not a command code", code)
	}
}

// DecodeReply decodes msg's payload according to its code, returning one of
// the reply types above.
func DecodeReply(msg wire.Message) (interface{}, error) {
	code, err := PeekCode(msg)
	if err != nil {
		return nil, err
	}
	r := newReader(payloadOf(msg))
	switch code {
	case CodeReady:
		return ReadyReply{}, nil
	case CodeOk:
		return OkReply{}, nil
	case CodeStepOk:
		return StepOkReply{}, nil
	case CodeStepFailed:
		return StepFailedReply{}, nil
	case CodeFatal:
		kind, err := r.byte_()
		if err != nil {
			return nil, err
		}
		message, err := r.str()
		if err != nil {
			return nil, err
		}
		return FatalReply{Kind: kind, Message: message}, nil
	case CodeDescription:
		td, err := decodeSlaveTypeDescription(r)
		if err != nil {
			return nil, err
		}
		if err := ValidateSlaveTypeDescription(td); err != nil {
			return nil, err
		}
		return DescriptionReply{Type: td}, nil
	default:
		return nil, fmt.Errorf("protocol: %s is not a reply code", code)
	}
}

func encodeVariableSetting(w *writer, s model.VariableSetting) {
	w.u16(uint16(s.Target.Slave))
	w.u32(uint32(s.Target.Variable))
	w.bool_(s.HasValue)
	if s.HasValue {
		encodeScalarValue(w, s.Value)
	}
	w.bool_(s.HasSource)
	if s.HasSource {
		w.u16(uint16(s.Source.Slave))
		w.u32(uint32(s.Source.Variable))
	}
	w.bool_(s.Disconnect)
}

func decodeVariableSetting(r *reader) (model.VariableSetting, error) {
	var s model.VariableSetting
	slave, err := r.u16()
	if err != nil {
		return s, err
	}
	v, err := r.u32()
	if err != nil {
		return s, err
	}
	s.Target = model.Variable{Slave: model.SlaveID(slave), Variable: model.VariableID(v)}
	hasValue, err := r.bool_()
	if err != nil {
		return s, err
	}
	s.HasValue = hasValue
	if hasValue {
		s.Value, err = decodeScalarValue(r)
		if err != nil {
			return s, err
		}
	}
	hasSource, err := r.bool_()
	if err != nil {
		return s, err
	}
	s.HasSource = hasSource
	if hasSource {
		srcSlave, err := r.u16()
		if err != nil {
			return s, err
		}
		srcVar, err := r.u32()
		if err != nil {
			return s, err
		}
		s.Source = model.Variable{Slave: model.SlaveID(srcSlave), Variable: model.VariableID(srcVar)}
	}
	disconnect, err := r.bool_()
	if err != nil {
		return s, err
	}
	s.Disconnect = disconnect
	return s, nil
}

func encodeSlaveTypeDescription(w *writer, td model.SlaveTypeDescription) {
	w.str(td.Name)
	w.str(td.UUID)
	w.str(td.Description)
	w.str(td.Author)
	w.str(td.Version)
	w.u32(uint32(len(td.Variables)))
	for _, v := range td.Variables {
		w.u32(uint32(v.ID))
		w.str(v.Name)
		w.byte_(uint8(v.DataType))
		w.byte_(uint8(v.Causality))
		w.byte_(uint8(v.Variability))
	}
}

func decodeSlaveTypeDescription(r *reader) (model.SlaveTypeDescription, error) {
	var td model.SlaveTypeDescription
	var err error
	if td.Name, err = r.str(); err != nil {
		return td, err
	}
	if td.UUID, err = r.str(); err != nil {
		return td, err
	}
	if td.Description, err = r.str(); err != nil {
		return td, err
	}
	if td.Author, err = r.str(); err != nil {
		return td, err
	}
	if td.Version, err = r.str(); err != nil {
		return td, err
	}
	n, err := r.u32()
	if err != nil {
		return td, err
	}
	td.Variables = make([]model.VariableDescription, n)
	for i := range td.Variables {
		id, err := r.u32()
		if err != nil {
			return td, err
		}
		name, err := r.str()
		if err != nil {
			return td, err
		}
		dt, err := r.byte_()
		if err != nil {
			return td, err
		}
		causality, err := r.byte_()
		if err != nil {
			return td, err
		}
		variability, err := r.byte_()
		if err != nil {
			return td, err
		}
		td.Variables[i] = model.VariableDescription{
			ID: model.VariableID(id), Name: name,
			DataType: model.DataType(dt), Causality: model.Causality(causality), Variability: model.Variability(variability),
		}
	}
	return td, nil
}
