package protocol

import (
	"fmt"

	"github.com/dsbsim/dsb/model"
)

// encodeScalarValue writes a tagged ScalarValue: a 1-byte discriminant
// (matching model.DataType's values) followed by the type-specific payload
// (spec.md §4.3: "ScalarValue (tagged 1-byte discriminant + payload)").
func encodeScalarValue(w *writer, v model.ScalarValue) {
	w.byte_(uint8(v.DataType()))
	switch v.DataType() {
	case model.DataTypeReal:
		f, _ := v.Real()
		w.f64(f)
	case model.DataTypeInteger:
		i, _ := v.Integer()
		w.i64(i)
	case model.DataTypeBoolean:
		b, _ := v.Boolean()
		w.bool_(b)
	case model.DataTypeString:
		s, _ := v.String()
		w.str(s)
	}
}

func decodeScalarValue(r *reader) (model.ScalarValue, error) {
	tag, err := r.byte_()
	if err != nil {
		return model.ScalarValue{}, err
	}
	switch model.DataType(tag) {
	case model.DataTypeReal:
		f, err := r.f64()
		if err != nil {
			return model.ScalarValue{}, err
		}
		return model.RealValue(f), nil
	case model.DataTypeInteger:
		i, err := r.i64()
		if err != nil {
			return model.ScalarValue{}, err
		}
		return model.IntegerValue(i), nil
	case model.DataTypeBoolean:
		b, err := r.bool_()
		if err != nil {
			return model.ScalarValue{}, err
		}
		return model.BooleanValue(b), nil
	case model.DataTypeString:
		s, err := r.str()
		if err != nil {
			return model.ScalarValue{}, err
		}
		return model.StringValue(s), nil
	default:
		return model.ScalarValue{}, fmt.Errorf("protocol: unknown scalar value tag %d", tag)
	}
}

// EncodeScalarValue is the exported form EncodePublish uses to encode the
// third publish frame (spec.md §4.3).
func EncodeScalarValue(v model.ScalarValue) []byte {
	w := &writer{}
	encodeScalarValue(w, v)
	return w.bytes()
}

// DecodeScalarValue is the exported inverse of EncodeScalarValue.
func DecodeScalarValue(data []byte) (model.ScalarValue, error) {
	return decodeScalarValue(newReader(data))
}
