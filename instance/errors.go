package instance

import (
	"fmt"

	"github.com/dsbsim/dsb/dsberrors"
	"github.com/dsbsim/dsb/model"
)

func errUnknownDataType(dt model.DataType) error {
	return dsberrors.New(dsberrors.KindUnknownVariable, "instance", fmt.Sprintf("unsupported data type %s", dt))
}

func errTypeMismatch(vd model.VariableDescription, value model.ScalarValue) error {
	return dsberrors.Wrap(
		fmt.Errorf("variable %d (%s) is %s, got %s", vd.ID, vd.Name, vd.DataType, value.DataType()),
		dsberrors.KindTypeMismatch, "instance", "SetScalar",
	)
}

// ErrUnknownVariable reports that id is not part of a slave's type
// description, for use by Slave implementations (spec.md §6).
func ErrUnknownVariable(id model.VariableID) error {
	return dsberrors.New(dsberrors.KindUnknownVariable, "instance", fmt.Sprintf("unknown variable id %d", id))
}
