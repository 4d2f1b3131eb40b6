// Package instance defines the slave instance interface (spec.md §6): the
// abstract collaborator every FMU wrapper (or test double) must implement
// for the agent FSM to drive it through setup and stepping. Nothing in
// this package knows about the wire protocol or the reactor; it is the
// pure local computation boundary.
package instance

import "github.com/dsbsim/dsb/model"

// StepResult is the outcome of one DoStep call.
type StepResult uint8

const (
	StepOk StepResult = iota
	StepTooBig
)

// Slave is the capability set an FMU wrapper (or any other local
// sub-simulator) must expose to be driven by the agent FSM.
type Slave interface {
	// Setup prepares the instance for the interval [start, stop] within
	// the named execution. It returns false if the instance cannot
	// operate over the requested interval.
	Setup(start, stop model.StepTime, executionName, slaveName string) bool

	// TypeDescription returns this slave's static shape. Stable across
	// the slave's life.
	TypeDescription() model.SlaveTypeDescription

	GetReal(id model.VariableID) (float64, error)
	SetReal(id model.VariableID, value float64) error
	GetInteger(id model.VariableID) (int64, error)
	SetInteger(id model.VariableID, value int64) error
	GetBoolean(id model.VariableID) (bool, error)
	SetBoolean(id model.VariableID, value bool) error
	GetString(id model.VariableID) (string, error)
	SetString(id model.VariableID, value string) error

	// DoStep advances the instance's local state from currentT by deltaT.
	// A non-nil error signals a fatal, unrecoverable failure; StepTooBig
	// is a normal return value, not an error.
	DoStep(currentT, deltaT model.StepTime) (StepResult, error)
}

// GetScalar reads id's current value as a ScalarValue, dispatching to the
// typed getter matching vd's data type.
func GetScalar(s Slave, vd model.VariableDescription) (model.ScalarValue, error) {
	switch vd.DataType {
	case model.DataTypeReal:
		v, err := s.GetReal(vd.ID)
		return model.RealValue(v), err
	case model.DataTypeInteger:
		v, err := s.GetInteger(vd.ID)
		return model.IntegerValue(v), err
	case model.DataTypeBoolean:
		v, err := s.GetBoolean(vd.ID)
		return model.BooleanValue(v), err
	case model.DataTypeString:
		v, err := s.GetString(vd.ID)
		return model.StringValue(v), err
	default:
		return model.ScalarValue{}, errUnknownDataType(vd.DataType)
	}
}

// SetScalar writes value to id, dispatching to the typed setter matching
// value's data type. Returns an error if value's type does not match vd's.
func SetScalar(s Slave, vd model.VariableDescription, value model.ScalarValue) error {
	if vd.DataType != value.DataType() {
		return errTypeMismatch(vd, value)
	}
	switch vd.DataType {
	case model.DataTypeReal:
		v, _ := value.Real()
		return s.SetReal(vd.ID, v)
	case model.DataTypeInteger:
		v, _ := value.Integer()
		return s.SetInteger(vd.ID, v)
	case model.DataTypeBoolean:
		v, _ := value.Boolean()
		return s.SetBoolean(vd.ID, v)
	case model.DataTypeString:
		v, _ := value.String()
		return s.SetString(vd.ID, v)
	default:
		return errUnknownDataType(vd.DataType)
	}
}
