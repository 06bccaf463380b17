package graph

import (
	"encoding/json"
	"testing"

	"github.com/RaghavMittal2005/speech2speech/conversation"
)

func TestRoute(t *testing.T) {
	call := conversation.ToolCall{ID: "a", Name: "read_file", Arguments: json.RawMessage(`{}`)}

	tests := []struct {
		name string
		msgs []conversation.Message
		want Node
	}{
		{name: "empty history", want: NodeEnd},
		{
			name: "final answer",
			msgs: []conversation.Message{conversation.NewAssistantMessage("done", nil)},
			want: NodeEnd,
		},
		{
			name: "one call",
			msgs: []conversation.Message{conversation.NewAssistantMessage("", []conversation.ToolCall{call})},
			want: NodeTools,
		},
		{
			name: "text with calls",
			msgs: []conversation.Message{conversation.NewAssistantMessage("working on it", []conversation.ToolCall{
				call,
				{ID: "b", Name: "run_command", Arguments: json.RawMessage(`{}`)},
			})},
			want: NodeTools,
		},
		{
			name: "latest is user",
			msgs: []conversation.Message{conversation.NewUserMessage("hi")},
			want: NodeEnd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := conversation.NewState("t")
			if err != nil {
				t.Fatal(err)
			}
			state.Append(tt.msgs...)
			if got := Route(state); got != tt.want {
				t.Errorf("Route() = %q, want %q", got, tt.want)
			}
		})
	}
}
