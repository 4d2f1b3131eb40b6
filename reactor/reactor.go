// Package reactor implements the single-threaded I/O and timer event loop
// underlying both the master and slave processes (spec.md §4.1, §5).
//
// The timer ordering is grounded on the teacher's deterministic event-heap
// pattern in sim/cluster/event_heap.go (a container/heap keyed first on
// timestamp, with a secondary deterministic tie-breaker); here the
// tie-breaker is registration order rather than an event-type priority
// table, per spec.md §4.1 ("ready sockets are serviced in registration
// order; timers whose deadline has passed fire before sockets").
//
// A "socket" is represented not by a raw fd but by a readiness channel:
// whatever goroutine owns the actual I/O (e.g. a net.Conn reader loop in
// package transport) sends on that channel each time a frame is available,
// and the reactor is the only goroutine that ever invokes handler code.
// This keeps the "exactly one handler runs at a time" guarantee without a
// busy-polling loop.
package reactor

import (
	"container/heap"
	"fmt"
	"reflect"
	"time"

	"github.com/sirupsen/logrus"
)

// SocketHandle identifies a registered readable resource, for logging and
// for RemoveSocket. Any comparable value works.
type SocketHandle interface{}

// TimerID identifies a registered timer, returned by AddTimer.
type TimerID uint64

// Reactor is a single-threaded multiplexer: exactly one ready socket or due
// timer is serviced at a time, always on the goroutine that calls Run.
type Reactor struct {
	sockets []*socketReg

	timers   *timerHeap
	timerIdx map[TimerID]*timerReg
	nextID   TimerID

	removeSocket chan SocketHandle
	removeTimer  chan TimerID
	addSocket    chan *socketReg
	addTimer     chan *timerReg
	restartTimer chan TimerID
	stopCh       chan struct{}

	running bool
	now     func() time.Time
}

type socketReg struct {
	handle  SocketHandle
	ready   <-chan struct{}
	handler func()
}

type timerReg struct {
	id       TimerID
	interval time.Duration
	count    int // remaining fires; -1 = infinite
	onTick   func()
	next     time.Time
	index    int
}

type timerHeap []*timerReg

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].next.Equal(h[j].next) {
		return h[i].id < h[j].id
	}
	return h[i].next.Before(h[j].next)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x interface{}) {
	t := x.(*timerReg)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// New creates an unstarted Reactor.
func New() *Reactor {
	return &Reactor{
		timers:       &timerHeap{},
		timerIdx:     make(map[TimerID]*timerReg),
		removeSocket: make(chan SocketHandle, 16),
		removeTimer:  make(chan TimerID, 16),
		addSocket:    make(chan *socketReg, 16),
		addTimer:     make(chan *timerReg, 16),
		restartTimer: make(chan TimerID, 16),
		stopCh:       make(chan struct{}, 1),
		now:          time.Now,
	}
}

// AddSocket registers handle: whenever ready is sent to or closed,
// onReadable runs on the reactor goroutine. Registration order determines
// dispatch order among sockets ready in the same wakeup (spec.md §4.1).
// Safe to call before Run or from within a handler.
func (r *Reactor) AddSocket(handle SocketHandle, ready <-chan struct{}, onReadable func()) {
	reg := &socketReg{handle: handle, ready: ready, handler: onReadable}
	if !r.running {
		r.sockets = append(r.sockets, reg)
		logrus.WithField("component", "reactor").Debugf("socket registered: %v", handle)
		return
	}
	r.addSocket <- reg
}

// RemoveSocket unregisters handle. Safe from within any handler: the
// removal is deferred and takes effect before the next dispatch.
func (r *Reactor) RemoveSocket(handle SocketHandle) {
	if !r.running {
		r.removeSocketNow(handle)
		return
	}
	r.removeSocket <- handle
}

func (r *Reactor) removeSocketNow(handle SocketHandle) {
	for i, s := range r.sockets {
		if s.handle == handle {
			r.sockets = append(r.sockets[:i], r.sockets[i+1:]...)
			logrus.WithField("component", "reactor").Debugf("socket removed: %v", handle)
			return
		}
	}
}

// AddTimer schedules a periodic timer. count=-1 means fire forever; count=1
// means fire exactly once. Returns an id usable with RemoveTimer /
// RestartTimer. Safe to call before Run or from within a handler.
func (r *Reactor) AddTimer(interval time.Duration, count int, onTick func()) TimerID {
	r.nextID++
	id := r.nextID
	t := &timerReg{id: id, interval: interval, count: count, onTick: onTick, next: r.now().Add(interval)}
	if !r.running {
		heap.Push(r.timers, t)
		r.timerIdx[id] = t
		return id
	}
	r.addTimer <- t
	return id
}

// RemoveTimer unregisters a timer. Safe from within any handler.
func (r *Reactor) RemoveTimer(id TimerID) {
	if !r.running {
		r.removeTimerNow(id)
		return
	}
	r.removeTimer <- id
}

func (r *Reactor) removeTimerNow(id TimerID) {
	t, ok := r.timerIdx[id]
	if !ok {
		return
	}
	heap.Remove(r.timers, t.index)
	delete(r.timerIdx, id)
}

// RestartTimer resets a timer's next deadline to now+interval, without
// changing its remaining fire count. Safe from within any handler.
func (r *Reactor) RestartTimer(id TimerID) {
	if !r.running {
		r.restartTimerNow(id)
		return
	}
	r.restartTimer <- id
}

func (r *Reactor) restartTimerNow(id TimerID) {
	t, ok := r.timerIdx[id]
	if !ok {
		return
	}
	t.next = r.now().Add(t.interval)
	heap.Fix(r.timers, t.index)
}

// Run drives the loop until Stop is called. A handler that panics aborts
// Run; the panic is recovered and returned as an error to the caller, per
// spec.md §4.1 ("exceptions escaping a handler abort Run").
func (r *Reactor) Run() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reactor: handler panicked: %v", rec)
		}
		r.running = false
	}()

	logrus.WithField("component", "reactor").Info("Run: starting")
	r.running = true
	for {
		select {
		case <-r.stopCh:
			logrus.WithField("component", "reactor").Info("Run: stopped")
			return nil
		case reg := <-r.addSocket:
			r.sockets = append(r.sockets, reg)
			continue
		case t := <-r.addTimer:
			heap.Push(r.timers, t)
			r.timerIdx[t.id] = t
			continue
		case h := <-r.removeSocket:
			r.removeSocketNow(h)
			continue
		case id := <-r.removeTimer:
			r.removeTimerNow(id)
			continue
		case id := <-r.restartTimer:
			r.restartTimerNow(id)
			continue
		default:
		}

		if r.fireOverdueTimer() {
			continue
		}
		if r.serviceReadySocket() {
			continue
		}

		if r.block() {
			return nil
		}
	}
}

// fireOverdueTimer pops and fires at most one timer whose deadline has
// passed, returning true if it did.
func (r *Reactor) fireOverdueTimer() bool {
	if r.timers.Len() == 0 {
		return false
	}
	next := (*r.timers)[0]
	if next.next.After(r.now()) {
		return false
	}
	heap.Pop(r.timers)
	delete(r.timerIdx, next.id)
	if next.count > 0 {
		next.count--
	}
	// Reschedule against the previous fire time, not wall clock at
	// dispatch, so slow handlers don't cause long-term drift (spec.md
	// §4.1 "Timer drift").
	if next.count != 0 {
		next.next = next.next.Add(next.interval)
		heap.Push(r.timers, next)
		r.timerIdx[next.id] = next
	}
	next.onTick()
	return true
}

// serviceReadySocket runs the handler of the first (in registration order)
// socket with a pending readiness signal, returning true if it serviced
// one.
func (r *Reactor) serviceReadySocket() bool {
	for _, s := range r.sockets {
		select {
		case <-s.ready:
			s.handler()
			return true
		default:
		}
	}
	return false
}

// block waits for the earliest timer deadline or any socket/control signal
// using a dynamic reflect.Select over every registered readiness channel,
// without running handlers itself; it returns true only if Stop fired
// while blocked.
func (r *Reactor) block() bool {
	const (
		idxStop = iota
		idxAddSocket
		idxAddTimer
		idxRemoveSocket
		idxRemoveTimer
		idxRestartTimer
		idxTimerDeadline
		numFixed
	)
	cases := make([]reflect.SelectCase, numFixed, numFixed+len(r.sockets))
	cases[idxStop] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.stopCh)}
	cases[idxAddSocket] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.addSocket)}
	cases[idxAddTimer] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.addTimer)}
	cases[idxRemoveSocket] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.removeSocket)}
	cases[idxRemoveTimer] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.removeTimer)}
	cases[idxRestartTimer] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.restartTimer)}

	if r.timers.Len() > 0 {
		d := (*r.timers)[0].next.Sub(r.now())
		if d < 0 {
			d = 0
		}
		cases[idxTimerDeadline] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(time.After(d))}
	} else {
		cases[idxTimerDeadline] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(make(chan time.Time))}
	}

	for _, s := range r.sockets {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.ready)})
	}

	chosen, recv, _ := reflect.Select(cases)
	switch chosen {
	case idxStop:
		return true
	case idxAddSocket:
		r.sockets = append(r.sockets, recv.Interface().(*socketReg))
	case idxAddTimer:
		t := recv.Interface().(*timerReg)
		heap.Push(r.timers, t)
		r.timerIdx[t.id] = t
	case idxRemoveSocket:
		r.removeSocketNow(recv.Interface().(SocketHandle))
	case idxRemoveTimer:
		r.removeTimerNow(recv.Interface().(TimerID))
	case idxRestartTimer:
		r.restartTimerNow(recv.Interface().(TimerID))
	case idxTimerDeadline:
		// Next loop iteration's fireOverdueTimer picks this up.
	default:
		// A socket's readiness channel fired; the reflect.Select already
		// consumed the signal, so dispatch its handler directly here
		// rather than letting serviceReadySocket try to receive again.
		r.sockets[chosen-numFixed].handler()
	}
	return false
}

// Stop requests the loop to exit. Run returns after the currently-running
// handler (if any) completes.
func (r *Reactor) Stop() {
	select {
	case r.stopCh <- struct{}{}:
	default:
	}
}
