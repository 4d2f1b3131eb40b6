package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/dsbsim/dsb/model"
	"github.com/dsbsim/dsb/wire"
)

// TopicSize is the fixed length of a variable-publish topic frame: a
// 16-bit SlaveID followed by a 32-bit VariableID, both big-endian
// (spec.md §4.3, §9 Open Question on topic width).
const TopicSize = 6

// EncodeTopic renders the 6-byte (SlaveID, VariableID) topic used as frame
// 0 of a publish message and as the subscription prefix.
func EncodeTopic(v model.Variable) []byte {
	buf := make([]byte, TopicSize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(v.Slave))
	binary.BigEndian.PutUint32(buf[2:6], uint32(v.Variable))
	return buf
}

// DecodeTopic is the inverse of EncodeTopic.
func DecodeTopic(topic []byte) (model.Variable, error) {
	if len(topic) != TopicSize {
		return model.Variable{}, fmt.Errorf("protocol: topic must be %d bytes, got %d", TopicSize, len(topic))
	}
	return model.Variable{
		Slave:    model.SlaveID(binary.BigEndian.Uint16(topic[0:2])),
		Variable: model.VariableID(binary.BigEndian.Uint32(topic[2:6])),
	}, nil
}

// PublishMessage is one variable-value publication: frame 0 is the topic,
// frame 1 the StepID, frame 2 the tagged ScalarValue (spec.md §4.3).
type PublishMessage struct {
	Variable model.Variable
	Step     model.StepID
	Value    model.ScalarValue
}

// EncodePublish renders a PublishMessage as a three-frame wire.Message.
func EncodePublish(p PublishMessage) wire.Message {
	var stepBuf [8]byte
	binary.BigEndian.PutUint64(stepBuf[:], uint64(p.Step))
	return wire.Message{Frames: []wire.Frame{
		EncodeTopic(p.Variable),
		stepBuf[:],
		EncodeScalarValue(p.Value),
	}}
}

// DecodePublish is the inverse of EncodePublish.
func DecodePublish(msg wire.Message) (PublishMessage, error) {
	if len(msg.Frames) != 3 {
		return PublishMessage{}, fmt.Errorf("protocol: publish message must have 3 frames, got %d", len(msg.Frames))
	}
	v, err := DecodeTopic(msg.Frames[0])
	if err != nil {
		return PublishMessage{}, err
	}
	if len(msg.Frames[1]) != 8 {
		return PublishMessage{}, fmt.Errorf("protocol: step id frame must be 8 bytes, got %d", len(msg.Frames[1]))
	}
	step := model.StepID(binary.BigEndian.Uint64(msg.Frames[1]))
	value, err := DecodeScalarValue(msg.Frames[2])
	if err != nil {
		return PublishMessage{}, err
	}
	return PublishMessage{Variable: v, Step: step, Value: value}, nil
}
