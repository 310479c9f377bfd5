package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/grantwriter/internal/telemetry"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed while waiting for event")
		}
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	return nil
}

// TestPublishSubscribe verifies basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)

	bus.Publish(TaskStartedEvent{
		ID:         "rfp-analysis",
		Role:       "rfp-analysis",
		ExecutedBy: "rfp-analysis",
		Timestamp:  time.Now(),
	})

	received := receive(t, ch)
	if received.TaskID() != "rfp-analysis" {
		t.Errorf("expected task ID 'rfp-analysis', got '%s'", received.TaskID())
	}
	if received.EventType() != EventTypeTaskStarted {
		t.Errorf("expected event type '%s', got '%s'", EventTypeTaskStarted, received.EventType())
	}
}

// TestMultipleSubscribers verifies multiple subscribers receive the same event.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicTask, 10)
	ch2 := bus.Subscribe(TopicTask, 10)

	bus.Publish(TaskCompletedEvent{ID: "proposal-writing", Result: "draft", Attempts: 1})

	for i, ch := range []<-chan Event{ch1, ch2} {
		received := receive(t, ch)
		if received.TaskID() != "proposal-writing" {
			t.Errorf("subscriber %d: expected task ID 'proposal-writing', got '%s'", i+1, received.TaskID())
		}
	}
}

// TestNonBlockingSend verifies a full subscriber never blocks the publisher.
func TestNonBlockingSend(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TaskStartedEvent{ID: "budget-preparation"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if len(ch) != 1 {
		t.Errorf("expected 1 buffered event, got %d", len(ch))
	}
	if bus.Dropped() != 9 {
		t.Errorf("Dropped() = %d, want 9", bus.Dropped())
	}
}

// TestCloseSignalsSubscribers verifies Close closes every channel and is idempotent.
func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewBus()
	taskCh := bus.Subscribe(TopicTask, 10)
	allCh := bus.SubscribeAll(10)

	bus.Close()
	bus.Close()

	for _, ch := range []<-chan Event{taskCh, allCh} {
		if _, ok := <-ch; ok {
			t.Error("expected closed channel")
		}
	}

	bus.Publish(TaskStartedEvent{ID: "late"})

	late := bus.Subscribe(TopicRun, 1)
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed")
	}
}

// TestTopicRouting verifies events reach only their own topic plus SubscribeAll.
func TestTopicRouting(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	runCh := bus.Subscribe(TopicRun, 10)
	allCh := bus.SubscribeAll(10)

	bus.Publish(TaskStartedEvent{ID: "quality-review"})
	bus.Publish(RunProgressEvent{Total: 5, Succeeded: 4, Pending: 1})

	if ev := receive(t, taskCh); ev.EventType() != EventTypeTaskStarted {
		t.Errorf("task topic got %s", ev.EventType())
	}
	if ev := receive(t, runCh); ev.EventType() != EventTypeRunProgress {
		t.Errorf("run topic got %s", ev.EventType())
	}
	if len(taskCh) != 0 || len(runCh) != 0 {
		t.Error("event leaked across topics")
	}

	var types []string
	for i := 0; i < 2; i++ {
		types = append(types, receive(t, allCh).EventType())
	}
	if types[0] != EventTypeTaskStarted || types[1] != EventTypeRunProgress {
		t.Errorf("SubscribeAll got %v", types)
	}
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(RunFinishedEvent{RunID: "x"})
	bus.Close()
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.SubscribeAll(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(TaskAttemptEvent{ID: "t", Attempt: j + 1})
			}
		}()
	}
	wg.Wait()

	if len(ch) != 500 {
		t.Errorf("expected 500 events, got %d", len(ch))
	}
}

func TestBusSink(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ch := bus.Subscribe(TopicTask, 10)

	callErr := errors.New("429")
	NewBusSink(bus).Record(telemetry.Event{
		Stage:   "rfp-analysis",
		Attempt: 2,
		Outcome: telemetry.OutcomeRateLimited,
		Wait:    time.Second,
		Err:     callErr,
	})

	ev, ok := receive(t, ch).(TaskAttemptEvent)
	if !ok {
		t.Fatal("expected TaskAttemptEvent")
	}
	if ev.ID != "rfp-analysis" || ev.Attempt != 2 || ev.Outcome != "rate_limited" || ev.Wait != time.Second {
		t.Errorf("unexpected event: %+v", ev)
	}
	if !errors.Is(ev.Err, callErr) {
		t.Errorf("Err = %v, want %v", ev.Err, callErr)
	}
}
