package graph

import (
	"sync"
	"time"
)

// EventKind identifies the type of executor event.
type EventKind string

const (
	EventUserInput        EventKind = "user_input"
	EventAssistantMessage EventKind = "assistant_message"
	EventToolCallStart    EventKind = "tool_call_start"
	EventToolCallEnd      EventKind = "tool_call_end"
	EventStepLimit        EventKind = "step_limit"
	EventLoopDetected     EventKind = "loop_detected"
	EventTurnEnd          EventKind = "turn_end"
	EventError            EventKind = "error"
)

// Event is a typed notification emitted while a turn runs.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	ThreadID  string         `json:"thread_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter delivers events through a buffered channel. When the buffer
// is full events are dropped so a slow consumer never stalls a turn.
type EventEmitter struct {
	ch      chan Event
	closed  bool
	dropped int
	mu      sync.Mutex
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{ch: make(chan Event, bufferSize)}
}

// Emit sends an event. It never blocks and is a no-op on a nil emitter.
func (e *EventEmitter) Emit(threadID string, kind EventKind, data map[string]any) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := Event{
		Kind:      kind,
		Timestamp: time.Now(),
		ThreadID:  threadID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
		e.dropped++
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.ch
}

// Dropped returns how many events were discarded because the buffer was full.
func (e *EventEmitter) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
