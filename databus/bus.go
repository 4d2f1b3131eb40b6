// Package databus implements the publish/subscribe variable data bus
// (spec.md §4.3) over a real NATS broker. Every publication is addressed
// by the 6-byte (SlaveID, VariableID) topic spec.md §4.2/§4.3 define; this
// package base64-encodes that topic into a NATS subject so a subscriber
// can still filter by byte-prefix (here, a NATS single-token wildcard)
// the way the spec's own transport-agnostic framing intends.
package databus

import (
	"encoding/base64"
	"fmt"

	"github.com/dsbsim/dsb/model"
	"github.com/dsbsim/dsb/protocol"
	"github.com/dsbsim/dsb/wire"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const subjectNamespace = "dsb.var"

// Bus is a NATS-backed publish/subscribe handle, grounded on
// _examples/C360Studio-semstreams/natsclient's connection-wrapping style
// but scoped to core request-less pub/sub rather than JetStream, since the
// data bus is fire-and-forget broadcast with no replay requirement
// (spec.md §4.3: "a slave that misses a publication because it was not
// yet subscribed simply does not receive it").
type Bus struct {
	conn *nats.Conn
	log  *logrus.Entry
}

// Dial connects to the NATS server at url (see EndpointToNATSURL for
// turning a SlaveLocator.DataPub endpoint into this form).
func Dial(url string, opts ...nats.Option) (*Bus, error) {
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("databus: connect %s: %w", url, err)
	}
	return &Bus{conn: conn, log: logrus.WithField("component", "databus")}, nil
}

// EndpointToNATSURL rewrites a spec.md §6 "tcp://host:port" endpoint into
// the "nats://host:port" form nats.Connect expects.
func EndpointToNATSURL(e model.Endpoint) (string, error) {
	if e.Transport != "tcp" {
		return "", fmt.Errorf("databus: unsupported transport %q", e.Transport)
	}
	return "nats://" + e.Address, nil
}

func subjectFor(v model.Variable) string {
	topic := protocol.EncodeTopic(v)
	slaveTok := base64.RawURLEncoding.EncodeToString(topic[:2])
	varTok := base64.RawURLEncoding.EncodeToString(topic[2:])
	return fmt.Sprintf("%s.%s.%s", subjectNamespace, slaveTok, varTok)
}

func slaveSubjectPrefix(slave model.SlaveID) string {
	topic := protocol.EncodeTopic(model.Variable{Slave: slave})
	slaveTok := base64.RawURLEncoding.EncodeToString(topic[:2])
	return fmt.Sprintf("%s.%s.*", subjectNamespace, slaveTok)
}

// Publish announces v's value at step (spec.md §4.3). It satisfies
// agent.Publisher.
func (b *Bus) Publish(v model.Variable, step model.StepID, value model.ScalarValue) error {
	msg := protocol.EncodePublish(protocol.PublishMessage{Variable: v, Step: step, Value: value})
	payload, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("databus: encode publish: %w", err)
	}
	subject := subjectFor(v)
	if err := b.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("databus: publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe delivers every publication of v to onValue, on NATS's own
// dispatch goroutine, until the returned unsubscribe is called. It
// satisfies agent.Subscriber.
func (b *Bus) Subscribe(v model.Variable, onValue func(step model.StepID, value model.ScalarValue)) (func() error, error) {
	subject := subjectFor(v)
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		pm, err := decodePublishPayload(msg.Data)
		if err != nil {
			b.log.WithError(err).Warn("undecodable publish payload")
			return
		}
		onValue(pm.Step, pm.Value)
	})
	if err != nil {
		return nil, fmt.Errorf("databus: subscribe %s: %w", subject, err)
	}
	return sub.Unsubscribe, nil
}

// SubscribeSlave delivers every publication from any variable of slave to
// onValue: a prefix subscription over just the SlaveID portion of the
// topic, matching spec.md §4.3's byte-prefix filtering via a NATS
// single-token wildcard.
func (b *Bus) SubscribeSlave(slave model.SlaveID, onValue func(model.Variable, model.StepID, model.ScalarValue)) (func() error, error) {
	subject := slaveSubjectPrefix(slave)
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		pm, err := decodePublishPayload(msg.Data)
		if err != nil {
			b.log.WithError(err).Warn("undecodable publish payload")
			return
		}
		onValue(pm.Variable, pm.Step, pm.Value)
	})
	if err != nil {
		return nil, fmt.Errorf("databus: subscribe %s: %w", subject, err)
	}
	return sub.Unsubscribe, nil
}

func decodePublishPayload(data []byte) (protocol.PublishMessage, error) {
	msg, err := wire.UnmarshalMessage(data)
	if err != nil {
		return protocol.PublishMessage{}, err
	}
	return protocol.DecodePublish(msg)
}

// Close drains in-flight publications and closes the underlying
// connection.
func (b *Bus) Close() error {
	return b.conn.Drain()
}
