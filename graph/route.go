package graph

import "github.com/RaghavMittal2005/speech2speech/conversation"

// Node names a state of the turn state machine.
type Node string

const (
	NodePlanner Node = "planner"
	NodeChatbot Node = "chatbot"
	NodeTools   Node = "tools"
	NodeEnd     Node = "end"
)

// Route decides where a turn goes after a tool-enabled reasoning pass: to
// the tool dispatcher when the latest assistant message requests tools, to
// the end of the turn otherwise.
func Route(state *conversation.State) Node {
	last, ok := state.Last()
	if !ok || !last.HasToolCalls() {
		return NodeEnd
	}
	return NodeTools
}
