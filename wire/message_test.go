package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPopEnvelopeRoundTrip exercises T6: composing an envelope and body
// then popping it yields the original envelope and body, and popping an
// envelopeless message is a no-op.
func TestPopEnvelopeRoundTrip(t *testing.T) {
	env := []Frame{[]byte("route-a"), []byte("route-b")}
	body := NewMessage([]byte("cmd"), []byte("payload"))

	composed := Compose(env, body)
	gotEnv, gotBody := PopEnvelope(composed)

	assert.Equal(t, env, gotEnv)
	assert.Equal(t, body, gotBody)
}

func TestPopEnvelopeIdempotentWithoutEnvelope(t *testing.T) {
	body := NewMessage([]byte("cmd"), []byte("payload"))
	gotEnv, gotBody := PopEnvelope(body)

	assert.Nil(t, gotEnv)
	assert.Equal(t, body, gotBody)

	// Popping again changes nothing further.
	gotEnv2, gotBody2 := PopEnvelope(gotBody)
	assert.Nil(t, gotEnv2)
	assert.Equal(t, gotBody, gotBody2)
}

func TestPopEnvelopeEmptyMessage(t *testing.T) {
	gotEnv, gotBody := PopEnvelope(Message{})
	assert.Nil(t, gotEnv)
	assert.True(t, gotBody.Empty())
}

func TestTCPSocketSendReceiveRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewTCPSocket(clientConn)
	server := NewTCPSocket(serverConn)

	sent := NewMessage([]byte{0x00, 0x07}, []byte("payload"), []byte{})
	sentCopy := sent.Clone()

	done := make(chan error, 1)
	go func() {
		done <- client.Send(&sent)
	}()

	var received Message
	require.NoError(t, server.Receive(&received))
	require.NoError(t, <-done)

	assert.Equal(t, sentCopy, received)
	assert.Nil(t, sent.Frames, "Send must clear the caller's message")
}
