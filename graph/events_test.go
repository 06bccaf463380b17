package graph

import "testing"

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter(2)
	e.Emit("t", EventUserInput, nil)
	e.Emit("t", EventAssistantMessage, nil)
	e.Emit("t", EventTurnEnd, nil)

	if got := e.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}

	e.Close()
	e.Close()
	e.Emit("t", EventError, nil)

	var kinds []EventKind
	for ev := range e.Events() {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 2 || kinds[0] != EventUserInput || kinds[1] != EventAssistantMessage {
		t.Errorf("events = %v", kinds)
	}
}

func TestNilEmitterIsSilent(t *testing.T) {
	var e *EventEmitter
	e.Emit("t", EventUserInput, map[string]any{"content": "x"})
}
