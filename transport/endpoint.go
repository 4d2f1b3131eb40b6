// Package transport resolves spec.md's transport-independent Endpoint
// model onto real TCP sockets, and bridges those sockets into the reactor
// as readiness-signaled handles.
//
// Grounded on the net.Listen/net.ResolveTCPAddr idioms used across the
// pack's network-facing repos (e.g. C360Studio-semstreams/gateway,
// rhombus-tech-hypersdk/api) for "*"-host / ephemeral-port handling.
package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/dsbsim/dsb/model"
)

// ParseEndpoint parses a canonical "transport://address" URL into a
// model.Endpoint. Only "tcp" is required by spec.md §6.
func ParseEndpoint(url string) (model.Endpoint, error) {
	parts := strings.SplitN(url, "://", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return model.Endpoint{}, fmt.Errorf("transport: malformed endpoint URL %q", url)
	}
	return model.Endpoint{Transport: parts[0], Address: parts[1]}, nil
}

// ListenAddr translates an Endpoint's address into the form net.Listen
// expects: "*" as a host means bind to all interfaces (empty host to
// net.Listen), and "*" as a port means let the OS choose an ephemeral one
// ("0").
func ListenAddr(e model.Endpoint) (string, error) {
	host, port, err := net.SplitHostPort(e.Address)
	if err != nil {
		return "", fmt.Errorf("transport: invalid address %q: %w", e.Address, err)
	}
	if host == "*" {
		host = ""
	}
	if port == "*" {
		port = "0"
	} else if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("transport: invalid port %q: %w", port, err)
	}
	return net.JoinHostPort(host, port), nil
}

// EndpointFromListener builds the Endpoint a peer should use to dial back
// to ln, substituting the listener's actual (possibly ephemeral) port.
func EndpointFromListener(transportName string, ln net.Listener, advertiseHost string) model.Endpoint {
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	return model.Endpoint{Transport: transportName, Address: net.JoinHostPort(advertiseHost, port)}
}
