// Package wire implements multi-frame message framing (spec.md §4.2): the
// envelope convention used by both the request/reply control channel and
// the publish/subscribe data channel, and the atomic Send/Receive contract
// a transport must honor.
//
// Grounded on the general shape of a framed packet transport as described
// in _examples/other_examples/creachadair-chirp__doc.go (peers exchanging
// binary packets over a Channel); unlike chirp's single-packet RPC frame,
// spec.md requires a ZeroMQ-style ordered sequence of opaque frames with an
// optional envelope prefix, which this package implements directly.
package wire

// Frame is one opaque byte frame within a Message.
type Frame []byte

// Message is an ordered sequence of frames. A Message may carry a leading
// envelope: zero or more non-empty frames followed by a single empty
// (zero-length) delimiter frame, with the body frames following it.
type Message struct {
	Frames []Frame
}

// NewMessage builds a Message from the given frames, body only (no
// envelope).
func NewMessage(frames ...Frame) Message {
	return Message{Frames: frames}
}

// Empty reports whether the message carries no frames at all.
func (m Message) Empty() bool {
	return len(m.Frames) == 0
}

// Clone returns a deep copy of m. Send clears its argument, so callers that
// need to keep a message around after sending should Clone it first.
func (m Message) Clone() Message {
	out := make([]Frame, len(m.Frames))
	for i, f := range m.Frames {
		cp := make(Frame, len(f))
		copy(cp, f)
		out[i] = cp
	}
	return Message{Frames: out}
}

// PopEnvelope removes the envelope prefix from m, if any, and returns it
// separately from the remaining body. The envelope is the run of frames up
// to and including the first zero-length frame. If m contains no
// zero-length frame, m has no envelope: PopEnvelope returns a nil envelope
// and m's frames unchanged as the body (T6 idempotence: calling
// PopEnvelope again on the returned body is a no-op for the same reason).
func PopEnvelope(m Message) (envelope []Frame, body Message) {
	for i, f := range m.Frames {
		if len(f) == 0 {
			env := make([]Frame, i)
			copy(env, m.Frames[:i])
			rest := make([]Frame, len(m.Frames)-i-1)
			copy(rest, m.Frames[i+1:])
			return env, Message{Frames: rest}
		}
	}
	return nil, m
}

// Compose builds a full message from an envelope prefix, the zero-length
// delimiter, and body frames — the inverse of PopEnvelope, used by tests
// exercising T6.
func Compose(envelope []Frame, body Message) Message {
	frames := make([]Frame, 0, len(envelope)+1+len(body.Frames))
	frames = append(frames, envelope...)
	frames = append(frames, Frame{})
	frames = append(frames, body.Frames...)
	return Message{Frames: frames}
}
