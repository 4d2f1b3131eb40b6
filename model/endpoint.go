package model

import (
	"fmt"
	"net"
)

// Endpoint is a transport-independent address: a transport name ("tcp" is
// the only one required by spec.md §6) plus a transport-specific address
// string. Its canonical URL form is "transport://address".
type Endpoint struct {
	Transport string
	Address   string
}

// String renders the endpoint in canonical "transport://address" form.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s", e.Transport, e.Address)
}

// IsZero reports whether e is the unset endpoint.
func (e Endpoint) IsZero() bool {
	return e.Transport == "" && e.Address == ""
}

// SlaveLocator is the pair of endpoints at which a slave is reachable: its
// control request/reply socket and its data publish socket.
type SlaveLocator struct {
	Control SlaveLocatorEndpoint
	DataPub SlaveLocatorEndpoint
}

// SlaveLocatorEndpoint is an alias kept distinct from Endpoint so locator
// fields read clearly at call sites (Control vs DataPub); the underlying
// shape is identical.
type SlaveLocatorEndpoint = Endpoint

// Resolve rewrites a "*" (bind-all) host in e into advertiseHost, the
// concrete address peers should use to reach this endpoint. A slave that
// binds "tcp://*:5432" still must advertise a routable host to the master
// during Reconstitute; Resolve performs that one-time, static rewrite. It
// leaves e unchanged if its host is not the wildcard.
//
// Grounded on original_source's locator resolution: a bound "*" host is
// never itself a dialable address, only what the OS resolves it to.
func (e Endpoint) Resolve(advertiseHost string) Endpoint {
	host, port, err := net.SplitHostPort(e.Address)
	if err != nil || host != "*" {
		return e
	}
	return Endpoint{Transport: e.Transport, Address: net.JoinHostPort(advertiseHost, port)}
}
