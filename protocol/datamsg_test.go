package protocol

import (
	"testing"

	"github.com/dsbsim/dsb/model"
	"github.com/dsbsim/dsb/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicRoundTrip(t *testing.T) {
	v := model.Variable{Slave: 42, Variable: 123456}
	topic := EncodeTopic(v)
	assert.Len(t, topic, TopicSize)

	got, err := DecodeTopic(topic)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestPublishMessageRoundTrip(t *testing.T) {
	p := PublishMessage{
		Variable: model.Variable{Slave: 1, Variable: 2},
		Step:     7,
		Value:    model.RealValue(3.75),
	}
	msg := EncodePublish(p)
	require.Len(t, msg.Frames, 3)

	got, err := DecodePublish(msg)
	require.NoError(t, err)
	assert.Equal(t, p.Variable, got.Variable)
	assert.Equal(t, p.Step, got.Step)
	assert.True(t, p.Value.Equal(got.Value))
}

func TestDecodePublishRejectsWrongFrameCount(t *testing.T) {
	_, err := DecodePublish(wire.NewMessage([]byte("topic")))
	assert.Error(t, err)
}
