package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func frame(seq uint64) Frame {
	return &BasicFrame{Seq: seq, W: 640, H: 360}
}

func TestFrameQueue_NonBlockingKeepsNewest(t *testing.T) {
	q := NewFrameQueue(1, false)

	for i := uint64(1); i <= 5; i++ {
		if !q.Push(frame(i)) {
			t.Fatalf("Push(%d) rejected", i)
		}
	}

	f, err := q.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if f.Sequence() != 5 {
		t.Errorf("Expected newest frame 5, got %d", f.Sequence())
	}
	if q.Dropped() != 4 {
		t.Errorf("Expected 4 dropped frames, got %d", q.Dropped())
	}
	if q.Pushed() != 5 {
		t.Errorf("Expected 5 pushed frames, got %d", q.Pushed())
	}
}

func TestFrameQueue_BlockingWaitsForConsumer(t *testing.T) {
	q := NewFrameQueue(1, true)
	q.Push(frame(1))

	done := make(chan bool)
	go func() { done <- q.Push(frame(2)) }()

	select {
	case <-done:
		t.Fatal("blocking Push returned while queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	if f, _ := q.Get(context.Background()); f.Sequence() != 1 {
		t.Errorf("Expected frame 1, got %d", f.Sequence())
	}
	if ok := <-done; !ok {
		t.Error("Expected second Push to succeed")
	}
	if q.Dropped() != 0 {
		t.Errorf("Blocking queue must not drop, dropped %d", q.Dropped())
	}
}

func TestFrameQueue_EmptyFrame(t *testing.T) {
	q := NewFrameQueue(2, false)
	q.Push(nil)

	if _, err := q.Get(context.Background()); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Expected ErrNoFrame, got %v", err)
	}
}

func TestFrameQueue_CloseAndCancel(t *testing.T) {
	q := NewFrameQueue(1, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Get(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	q.Close()
	q.Close() // idempotent
	if _, err := q.Get(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
	if q.Push(frame(1)) {
		t.Error("Expected Push on closed queue to fail")
	}
}

func TestRegistry(t *testing.T) {
	Register("test-registry", func(opts Options) (Pipeline, error) {
		return nil, errors.New("boom")
	})

	found := false
	for _, name := range Backends() {
		if name == "test-registry" {
			found = true
		}
	}
	if !found {
		t.Error("Expected registered backend in Backends()")
	}

	_, err := Open("test-registry", Options{})
	var be *BackendError
	if !errors.As(err, &be) || be.Backend != "test-registry" || be.Op != "open" {
		t.Errorf("Expected BackendError from opener, got %v", err)
	}

	if _, err := Open("does-not-exist", Options{}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	Register("test-dup", func(Options) (Pipeline, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	Register("test-dup", func(Options) (Pipeline, error) { return nil, nil })
}

func TestWrapError(t *testing.T) {
	if WrapError("mock", "start", nil) != nil {
		t.Error("Expected nil for nil error")
	}
	err := WrapError("mock", "start", ErrStopped)
	if !errors.Is(err, ErrStopped) {
		t.Error("Expected wrapped error to match ErrStopped")
	}
	if err.Error() != "pipeline [mock]: start: pipeline: stopped" {
		t.Errorf("Unexpected message: %q", err.Error())
	}
}

func TestOptionsClock(t *testing.T) {
	fixed := time.Unix(100, 0)
	o := Options{Now: func() time.Time { return fixed }}
	if !o.Clock()().Equal(fixed) {
		t.Error("Expected custom clock")
	}
	if (Options{}).Clock() == nil {
		t.Error("Expected default clock")
	}
}
