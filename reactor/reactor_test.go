package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketHandlerRunsOnReadySignal(t *testing.T) {
	r := New()
	ready := make(chan struct{}, 1)
	var fired bool

	r.AddSocket("sock-a", ready, func() {
		fired = true
		r.Stop()
	})

	ready <- struct{}{}

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reactor did not stop")
	}
	assert.True(t, fired)
}

func TestSocketsServicedInRegistrationOrder(t *testing.T) {
	r := New()
	var order []string

	readyA := make(chan struct{}, 1)
	readyB := make(chan struct{}, 1)

	r.AddSocket("a", readyA, func() { order = append(order, "a") })
	r.AddSocket("b", readyB, func() {
		order = append(order, "b")
		r.Stop()
	})

	readyA <- struct{}{}
	readyB <- struct{}{}

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reactor did not stop")
	}
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestTimerFiresBeforeSocketInSameWakeup(t *testing.T) {
	r := New()
	var order []string

	ready := make(chan struct{}, 1)
	ready <- struct{}{}
	r.AddSocket("sock", ready, func() {
		order = append(order, "socket")
		r.Stop()
	})
	r.AddTimer(0, 1, func() {
		order = append(order, "timer")
	})

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reactor did not stop")
	}
	require.Len(t, order, 2)
	assert.Equal(t, "timer", order[0])
	assert.Equal(t, "socket", order[1])
}

func TestRemoveTimerFromWithinHandlerTakesEffect(t *testing.T) {
	r := New()
	fires := 0
	var id TimerID
	id = r.AddTimer(0, -1, func() {
		fires++
		if fires == 1 {
			r.RemoveTimer(id)
		}
		if fires >= 1 {
			r.Stop()
		}
	})

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reactor did not stop")
	}
	assert.Equal(t, 1, fires)
}

func TestHandlerPanicAbortsRunWithError(t *testing.T) {
	r := New()
	ready := make(chan struct{}, 1)
	ready <- struct{}{}
	r.AddSocket("sock", ready, func() {
		panic("boom")
	})

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	case <-time.After(time.Second):
		t.Fatal("reactor did not return")
	}
}
