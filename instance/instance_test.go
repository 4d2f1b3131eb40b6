package instance

import (
	"testing"

	"github.com/dsbsim/dsb/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outputReal(id model.VariableID, name string) model.VariableDescription {
	return model.VariableDescription{ID: id, Name: name, DataType: model.DataTypeReal, Causality: model.CausalityOutput}
}

func TestGetSetScalarRoundTrip(t *testing.T) {
	td := model.SlaveTypeDescription{Name: "t", Variables: []model.VariableDescription{outputReal(1, "y")}}
	s := NewFakeSlave(td)

	require.NoError(t, SetScalar(s, td.Variables[0], model.RealValue(3.25)))
	got, err := GetScalar(s, td.Variables[0])
	require.NoError(t, err)
	v, ok := got.Real()
	assert.True(t, ok)
	assert.Equal(t, 3.25, v)
}

func TestSetScalarTypeMismatch(t *testing.T) {
	td := model.SlaveTypeDescription{Name: "t", Variables: []model.VariableDescription{outputReal(1, "y")}}
	s := NewFakeSlave(td)

	err := SetScalar(s, td.Variables[0], model.IntegerValue(1))
	assert.Error(t, err)
}

func TestUnknownVariable(t *testing.T) {
	td := model.SlaveTypeDescription{Name: "t"}
	s := NewFakeSlave(td)
	_, err := s.GetReal(99)
	assert.Error(t, err)
}
