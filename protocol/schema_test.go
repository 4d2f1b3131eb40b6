package protocol

import (
	"testing"

	"github.com/dsbsim/dsb/model"
	"github.com/stretchr/testify/assert"
)

func TestValidateSlaveTypeDescriptionAcceptsWellFormed(t *testing.T) {
	td := model.SlaveTypeDescription{
		Name: "SlaveA", UUID: "uuid-1",
		Variables: []model.VariableDescription{
			{ID: 1, Name: "y", DataType: model.DataTypeReal, Causality: model.CausalityOutput, Variability: model.VariabilityContinuous},
		},
	}
	assert.NoError(t, ValidateSlaveTypeDescription(td))
}

func TestValidateSlaveTypeDescriptionRejectsMissingName(t *testing.T) {
	td := model.SlaveTypeDescription{UUID: "uuid-1"}
	assert.Error(t, ValidateSlaveTypeDescription(td))
}
