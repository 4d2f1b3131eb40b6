package execution

// barrier joins N outstanding per-slave operations into one overall
// completion callback, firing it exactly once (spec.md §4.5 "operation
// counter", §9 design notes: "represent it as a small value with
// {remaining, overall_cb} rather than captured mutable state").
//
// The callback takes an aborted flag so a caller that has to unwind mid-way
// through (Manager.Terminate, spec.md §4.5 "Abort semantics") can force the
// overall completion to fire as Aborted rather than let it reach zero
// through the normal done() countdown and report a fabricated success.
type barrier struct {
	remaining int
	overallCB func(aborted bool)
}

// newBarrier creates a barrier for n outstanding operations. n == 0 fires
// onAllDone immediately.
func newBarrier(n int, onAllDone func(aborted bool)) *barrier {
	b := &barrier{remaining: n, overallCB: onAllDone}
	if n == 0 {
		b.fire(false)
	}
	return b
}

// done records one operation's completion, firing the overall callback
// when the last one lands.
func (b *barrier) done() {
	b.remaining--
	if b.remaining <= 0 {
		b.fire(false)
	}
}

// abort fires the overall callback with aborted=true immediately, even if
// operations are still outstanding, and nulls the stored callback first so
// any later done()/abort() call is a no-op — "Aborted must null the stored
// overall_cb before invoking it, to make double-fire impossible" (spec.md
// §9). Callers still owe each outstanding operation its own Aborted
// resolution; abort only settles the overall callback.
func (b *barrier) abort() {
	b.fire(true)
}

func (b *barrier) fire(aborted bool) {
	cb := b.overallCB
	b.overallCB = nil
	if cb != nil {
		cb(aborted)
	}
}
