package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpointString(t *testing.T) {
	e := Endpoint{Transport: "tcp", Address: "localhost:5432"}
	assert.Equal(t, "tcp://localhost:5432", e.String())
}

func TestEndpointResolveRewritesWildcardHost(t *testing.T) {
	e := Endpoint{Transport: "tcp", Address: "*:5432"}
	resolved := e.Resolve("192.168.1.10")
	assert.Equal(t, "tcp://192.168.1.10:5432", resolved.String())
}

func TestEndpointResolveLeavesConcreteHostUnchanged(t *testing.T) {
	e := Endpoint{Transport: "tcp", Address: "10.0.0.1:5432"}
	resolved := e.Resolve("192.168.1.10")
	assert.Equal(t, e, resolved)
}
