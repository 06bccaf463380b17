package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/RaghavMittal2005/speech2speech/conversation"
	"github.com/RaghavMittal2005/speech2speech/graph"
)

// turnPrinter renders executor events while a turn runs. The emitter drops
// events when its buffer is full, so finish falls back to the returned
// history for the answer.
type turnPrinter struct {
	w        io.Writer
	events   <-chan graph.Event
	stop     chan struct{}
	done     chan struct{}
	answered bool
}

func startTurnPrinter(w io.Writer, events <-chan graph.Event) *turnPrinter {
	p := &turnPrinter{
		w:      w,
		events: events,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *turnPrinter) loop() {
	defer close(p.done)
	for {
		select {
		case ev, ok := <-p.events:
			if !ok {
				return
			}
			p.render(ev)
		case <-p.stop:
			p.drain()
			return
		}
	}
}

// drain renders whatever is still buffered without waiting for more.
func (p *turnPrinter) drain() {
	for {
		select {
		case ev, ok := <-p.events:
			if !ok {
				return
			}
			p.render(ev)
		default:
			return
		}
	}
}

func (p *turnPrinter) render(ev graph.Event) {
	renderEvent(p.w, ev)
	if ev.Kind == graph.EventAssistantMessage && str(ev.Data["node"]) == string(graph.NodeChatbot) {
		if n, _ := ev.Data["tool_calls"].(int); n == 0 {
			p.answered = true
		}
	}
}

// finish is called once Run has returned. Every event of the turn has been
// emitted by then, so stopping and draining sees all that were kept. When
// the terminal assistant message was among the dropped ones it is printed
// from state.
func (p *turnPrinter) finish(state *conversation.State) {
	close(p.stop)
	<-p.done
	if p.answered || state == nil {
		return
	}
	if msg, ok := state.Last(); ok && msg.Role == conversation.RoleAssistant && !msg.HasToolCalls() {
		if content := strings.TrimSpace(msg.Content); content != "" {
			fmt.Fprintf(p.w, "assistant: %s\n", content)
		}
	}
}

func renderEvent(w io.Writer, ev graph.Event) {
	switch ev.Kind {
	case graph.EventAssistantMessage:
		content := strings.TrimSpace(str(ev.Data["content"]))
		if content == "" {
			return
		}
		if str(ev.Data["node"]) == string(graph.NodePlanner) {
			fmt.Fprintf(w, "plan: %s\n", content)
			return
		}
		fmt.Fprintf(w, "assistant: %s\n", content)
	case graph.EventToolCallStart:
		fmt.Fprintf(w, "  -> %s %s\n", str(ev.Data["tool_name"]), str(ev.Data["arguments"]))
	case graph.EventToolCallEnd:
		if msg := str(ev.Data["error"]); msg != "" {
			fmt.Fprintf(w, "  <- %s failed: %s\n", str(ev.Data["tool_name"]), msg)
			return
		}
		fmt.Fprintf(w, "  <- %s ok\n", str(ev.Data["tool_name"]))
	case graph.EventStepLimit:
		fmt.Fprintf(w, "step limit reached (%v)\n", ev.Data["max_steps"])
	}
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func threadID(flag string) string {
	if id := strings.TrimSpace(flag); id != "" {
		return id
	}
	return uuid.NewString()
}
