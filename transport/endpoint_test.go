package transport

import (
	"net"
	"testing"

	"github.com/dsbsim/dsb/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	e, err := ParseEndpoint("tcp://localhost:5432")
	require.NoError(t, err)
	assert.Equal(t, model.Endpoint{Transport: "tcp", Address: "localhost:5432"}, e)
}

func TestParseEndpointMalformed(t *testing.T) {
	_, err := ParseEndpoint("not-a-url")
	assert.Error(t, err)
}

func TestListenAddrWildcardHostAndPort(t *testing.T) {
	addr, err := ListenAddr(model.Endpoint{Transport: "tcp", Address: "*:*"})
	require.NoError(t, err)
	assert.Equal(t, ":0", addr)
}

func TestListenAddrConcreteHostAndPort(t *testing.T) {
	addr, err := ListenAddr(model.Endpoint{Transport: "tcp", Address: "127.0.0.1:9000"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", addr)
}

func TestEndpointFromListenerUsesActualPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	e := EndpointFromListener("tcp", ln, "192.168.1.5")
	assert.Equal(t, "tcp", e.Transport)
	host, port, err := net.SplitHostPort(e.Address)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.5", host)
	assert.NotEqual(t, "0", port)
}
