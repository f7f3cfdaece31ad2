package timer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/display-powerd/internal/eventloop"
)

func startLoop(t *testing.T) (*eventloop.Loop, context.Context) {
	t.Helper()
	l := eventloop.New(16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go l.Run(ctx)
	return l, ctx
}

func TestLoopTimerFiresOnce(t *testing.T) {
	l, ctx := startLoop(t)
	svc := NewLoop(l)
	fired := make(chan struct{}, 4)

	require.NoError(t, l.Call(ctx, func() {
		svc.Arm("state", 10*time.Millisecond, false, func() { fired <- struct{}{} })
	}))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	var active bool
	require.NoError(t, l.Call(ctx, func() { active = svc.Active("state") }))
	assert.False(t, active, "one-shot slot should be free after firing")

	select {
	case <-fired:
		t.Fatal("one-shot timer fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoopRearmCancelsPrevious(t *testing.T) {
	l, ctx := startLoop(t)
	svc := NewLoop(l)
	fired := make(chan string, 4)

	require.NoError(t, l.Call(ctx, func() {
		svc.Arm("state", 10*time.Millisecond, false, func() { fired <- "first" })
		svc.Arm("state", 30*time.Millisecond, false, func() { fired <- "second" })
	}))

	select {
	case got := <-fired:
		assert.Equal(t, "second", got)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestLoopCancel(t *testing.T) {
	l, ctx := startLoop(t)
	svc := NewLoop(l)
	fired := make(chan struct{}, 1)

	require.NoError(t, l.Call(ctx, func() {
		h := svc.Arm("smartstay", 10*time.Millisecond, false, func() { fired <- struct{}{} })
		svc.Cancel(h)
	}))

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoopPeriodic(t *testing.T) {
	l, ctx := startLoop(t)
	svc := NewLoop(l)
	fired := make(chan struct{}, 8)

	require.NoError(t, l.Call(ctx, func() {
		svc.Arm("state", 5*time.Millisecond, true, func() { fired <- struct{}{} })
	}))

	for i := 0; i < 3; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("periodic timer stopped after %d firings", i)
		}
	}
	require.NoError(t, l.Call(ctx, func() { svc.CancelSlot("state") }))
}

func TestFakeAdvanceFiresInDeadlineOrder(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var got []string
	f.Arm("b", 2*time.Second, false, func() { got = append(got, "b") })
	f.Arm("a", time.Second, false, func() { got = append(got, "a") })

	f.Advance(500 * time.Millisecond)
	assert.Empty(t, got)

	f.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.False(t, f.Active("a"))
	assert.False(t, f.Active("b"))
}

func TestFakePeriodicRefires(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	n := 0
	f.Arm("state", time.Second, true, func() { n++ })

	f.Advance(3500 * time.Millisecond)
	assert.Equal(t, 3, n)
	assert.True(t, f.Periodic("state"))
}

func TestFakeRearmFromCallback(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	n := 0
	var rearm func()
	rearm = func() {
		n++
		if n < 3 {
			f.Arm("state", time.Second, false, rearm)
		}
	}
	f.Arm("state", time.Second, false, rearm)

	f.Advance(10 * time.Second)
	assert.Equal(t, 3, n)
}

func TestFakeFireIgnoresDeadline(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fired := false
	f.Arm("smartstay", time.Hour, false, func() { fired = true })

	assert.True(t, f.Fire("smartstay"))
	assert.True(t, fired)
	assert.False(t, f.Fire("smartstay"))
}

func TestFakeArmedLog(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	f.Arm("state", 10*time.Second, false, func() {})
	f.Arm("smartstay", 3*time.Second, false, func() {})

	assert.Equal(t, []string{"state/10s", "smartstay/3s"}, f.Armed)
}
