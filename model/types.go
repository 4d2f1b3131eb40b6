// Package model defines the transport-independent data model shared by the
// master's execution manager, the slave agent, and the wire protocol: slave
// and variable identifiers, typed variable descriptions, scalar values, and
// the lifecycle/state enumerations that both sides of the bus agree on.
package model

import "fmt"

// SlaveID is a small positive integer identifier, unique within an
// execution and stable for the slave's lifetime. Zero means "unassigned".
type SlaveID uint16

// UnassignedSlaveID is the reserved zero value meaning "no slave".
const UnassignedSlaveID SlaveID = 0

// StepID is a monotonically increasing step counter. -1 means "no step has
// been taken yet" (the execution manager's initial value).
type StepID int64

// NoStep is the execution manager's StepID before the first Step call.
const NoStep StepID = -1

// StepTime is a point in simulated time, or a duration of simulated time,
// expressed in the execution's own time units (spec.md §4.3: "64-bit
// IEEE-754 doubles in simulated-time units; durations likewise").
type StepTime float64

// VariableID is unique within one slave's type description.
type VariableID uint32

// DataType is the tag of a ScalarValue / VariableDescription.
type DataType uint8

const (
	DataTypeReal DataType = iota
	DataTypeInteger
	DataTypeBoolean
	DataTypeString
)

func (t DataType) String() string {
	switch t {
	case DataTypeReal:
		return "Real"
	case DataTypeInteger:
		return "Integer"
	case DataTypeBoolean:
		return "Boolean"
	case DataTypeString:
		return "String"
	default:
		return fmt.Sprintf("DataType(%d)", uint8(t))
	}
}

// Causality classifies how a variable participates in data flow.
type Causality uint8

const (
	CausalityParameter Causality = iota
	CausalityCalculatedParameter
	CausalityInput
	CausalityOutput
	CausalityLocal
)

func (c Causality) String() string {
	switch c {
	case CausalityParameter:
		return "Parameter"
	case CausalityCalculatedParameter:
		return "CalculatedParameter"
	case CausalityInput:
		return "Input"
	case CausalityOutput:
		return "Output"
	case CausalityLocal:
		return "Local"
	default:
		return fmt.Sprintf("Causality(%d)", uint8(c))
	}
}

// Variability classifies how often a variable may change value.
type Variability uint8

const (
	VariabilityConstant Variability = iota
	VariabilityFixed
	VariabilityTunable
	VariabilityDiscrete
	VariabilityContinuous
)

func (v Variability) String() string {
	switch v {
	case VariabilityConstant:
		return "Constant"
	case VariabilityFixed:
		return "Fixed"
	case VariabilityTunable:
		return "Tunable"
	case VariabilityDiscrete:
		return "Discrete"
	case VariabilityContinuous:
		return "Continuous"
	default:
		return fmt.Sprintf("Variability(%d)", uint8(v))
	}
}

// VariableDescription is an immutable description of one variable exposed
// by a slave type.
type VariableDescription struct {
	ID          VariableID
	Name        string
	DataType    DataType
	Causality   Causality
	Variability Variability
}

// Variable identifies one variable instance in an execution: the slave that
// owns it and the variable id within that slave's type description.
type Variable struct {
	Slave    SlaveID
	Variable VariableID
}

// SlaveTypeDescription describes a slave's static shape: its name, version
// metadata, and the ordered set of variables it exposes.
type SlaveTypeDescription struct {
	Name        string
	UUID        string
	Description string
	Author      string
	Version     string
	Variables   []VariableDescription
}

// VariableByID returns the description for id, or false if id is not part
// of this type.
func (t SlaveTypeDescription) VariableByID(id VariableID) (VariableDescription, bool) {
	for _, v := range t.Variables {
		if v.ID == id {
			return v, true
		}
	}
	return VariableDescription{}, false
}

// SlaveDescription is a named, located slave within one execution.
type SlaveDescription struct {
	ID              SlaveID
	Name            string
	TypeDescription SlaveTypeDescription
	Locator         SlaveLocator
}

// ExecutionState is the execution manager's top-level logical state
// (spec.md §3, §4.5).
type ExecutionState uint8

const (
	ExecutionReady ExecutionState = iota
	ExecutionConfigBusy
	ExecutionPrimed
	ExecutionStepBusy
	ExecutionStepOk
	ExecutionStepFailed
	ExecutionTerminated
)

func (s ExecutionState) String() string {
	switch s {
	case ExecutionReady:
		return "Ready"
	case ExecutionConfigBusy:
		return "ConfigBusy"
	case ExecutionPrimed:
		return "Primed"
	case ExecutionStepBusy:
		return "StepBusy"
	case ExecutionStepOk:
		return "StepOk"
	case ExecutionStepFailed:
		return "StepFailed"
	case ExecutionTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("ExecutionState(%d)", uint8(s))
	}
}

// SlaveLifecycleState is the master's view of one slave's lifecycle
// (spec.md §3, §4.4).
type SlaveLifecycleState uint8

const (
	SlaveNotConnected SlaveLifecycleState = iota
	SlaveConnected
	SlaveReady
	SlaveStepping
	SlaveStepOk
	SlaveStepFailed
	SlaveTerminated
	SlaveDisconnected
)

func (s SlaveLifecycleState) String() string {
	switch s {
	case SlaveNotConnected:
		return "NotConnected"
	case SlaveConnected:
		return "Connected"
	case SlaveReady:
		return "Ready"
	case SlaveStepping:
		return "Stepping"
	case SlaveStepOk:
		return "StepOk"
	case SlaveStepFailed:
		return "StepFailed"
	case SlaveTerminated:
		return "Terminated"
	case SlaveDisconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("SlaveLifecycleState(%d)", uint8(s))
	}
}
