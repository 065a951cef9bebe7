package importer

import (
	"context"
	"testing"
	"time"
)

func TestSetReadyStateNotifiesOnChange(t *testing.T) {
	rec := &recorder{}
	imp := New(WithObserver(rec.observe))

	if got := imp.setReadyState(Running); got != Running {
		t.Fatalf("setReadyState = %v", got)
	}
	if rec.count(EventReadyStateChanged) != 1 || rec.events[0].State != Running {
		t.Fatalf("events = %#v", rec.events)
	}

	imp.setReadyState(Running)
	if rec.count(EventReadyStateChanged) != 1 {
		t.Fatal("setting the current state notified")
	}
}

func TestSetReadyStateIsMonotonic(t *testing.T) {
	rec := &recorder{}
	imp := New(WithObserver(rec.observe))
	imp.setReadyState(Running)
	if got := imp.setReadyState(Initialized); got != Running {
		t.Fatalf("regressed to %v", got)
	}
	if got := imp.setReadyState(ReadyState(7)); got != Running {
		t.Fatalf("unknown state accepted: %v", got)
	}
	if rec.count(EventReadyStateChanged) != 1 {
		t.Fatalf("events = %v", rec.kinds())
	}
}

func TestSetReadyStateByName(t *testing.T) {
	imp := New()
	if got := imp.setReadyStateByName("initialized"); got != Initialized {
		t.Fatalf("got %v", got)
	}
	if got := imp.setReadyStateByName("bogus"); got != Initialized {
		t.Fatalf("unknown name changed state to %v", got)
	}
}

func TestEnteringCompleteClosesDone(t *testing.T) {
	rec := &recorder{}
	imp := New(WithObserver(rec.observe))
	imp.setReadyState(Complete)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := imp.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rec.count(EventSuccess) != 1 || rec.count(EventComplete) != 1 {
		t.Fatalf("events = %v", rec.kinds())
	}
}

func TestParseReadyState(t *testing.T) {
	for _, s := range []ReadyState{Uninitialized, Initialized, Running, Complete} {
		got, ok := ParseReadyState(s.String())
		if !ok || got != s {
			t.Fatalf("ParseReadyState(%q) = %v, %v", s.String(), got, ok)
		}
	}
	if _, ok := ParseReadyState("done"); ok {
		t.Fatal("unexpected state name")
	}
}
