package model

import "fmt"

// ScalarValue is a proper sum type over the four supported data types.
// There is no implicit coercion between variants: callers must match the
// DataType of the variable they are reading or writing.
type ScalarValue struct {
	dataType DataType
	real     float64
	integer  int64
	boolean  bool
	str      string
}

// RealValue wraps a Real scalar.
func RealValue(v float64) ScalarValue { return ScalarValue{dataType: DataTypeReal, real: v} }

// IntegerValue wraps an Integer scalar.
func IntegerValue(v int64) ScalarValue { return ScalarValue{dataType: DataTypeInteger, integer: v} }

// BooleanValue wraps a Boolean scalar.
func BooleanValue(v bool) ScalarValue { return ScalarValue{dataType: DataTypeBoolean, boolean: v} }

// StringValue wraps a String scalar.
func StringValue(v string) ScalarValue { return ScalarValue{dataType: DataTypeString, str: v} }

// DataType reports which variant is populated.
func (v ScalarValue) DataType() DataType { return v.dataType }

// Real returns the Real payload. ok is false if v is not a Real.
func (v ScalarValue) Real() (value float64, ok bool) {
	return v.real, v.dataType == DataTypeReal
}

// Integer returns the Integer payload. ok is false if v is not an Integer.
func (v ScalarValue) Integer() (value int64, ok bool) {
	return v.integer, v.dataType == DataTypeInteger
}

// Boolean returns the Boolean payload. ok is false if v is not a Boolean.
func (v ScalarValue) Boolean() (value bool, ok bool) {
	return v.boolean, v.dataType == DataTypeBoolean
}

// String returns the String payload. ok is false if v is not a String.
func (v ScalarValue) String() (value string, ok bool) {
	return v.str, v.dataType == DataTypeString
}

// Equal reports whether two values have the same data type and payload.
func (v ScalarValue) Equal(other ScalarValue) bool {
	if v.dataType != other.dataType {
		return false
	}
	switch v.dataType {
	case DataTypeReal:
		return v.real == other.real
	case DataTypeInteger:
		return v.integer == other.integer
	case DataTypeBoolean:
		return v.boolean == other.boolean
	case DataTypeString:
		return v.str == other.str
	default:
		return false
	}
}

// GoString renders the value for debugging/logging.
func (v ScalarValue) GoString() string {
	switch v.dataType {
	case DataTypeReal:
		return fmt.Sprintf("Real(%v)", v.real)
	case DataTypeInteger:
		return fmt.Sprintf("Integer(%v)", v.integer)
	case DataTypeBoolean:
		return fmt.Sprintf("Boolean(%v)", v.boolean)
	case DataTypeString:
		return fmt.Sprintf("String(%q)", v.str)
	default:
		return "ScalarValue(invalid)"
	}
}

// VariableSetting is applied atomically to one variable at reconfiguration:
// it carries a new value (HasValue), a connection source (HasSource), both,
// or a disconnect (Disconnect).
type VariableSetting struct {
	Target    Variable
	Value     ScalarValue
	HasValue  bool
	Source    Variable
	HasSource bool
	Disconnect bool
}
