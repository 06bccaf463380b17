package graph

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/RaghavMittal2005/speech2speech/conversation"
)

func callSignature(name string, args json.RawMessage) string {
	h := sha256.Sum256(args)
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// recentSignatures returns the signatures of the last count tool calls in
// the history, oldest first.
func recentSignatures(state *conversation.State, count int) []string {
	var sigs []string
	for i := len(state.Messages) - 1; i >= 0 && len(sigs) < count; i-- {
		calls := state.Messages[i].ToolCalls
		for j := len(calls) - 1; j >= 0 && len(sigs) < count; j-- {
			sigs = append(sigs, callSignature(calls[j].Name, calls[j].Arguments))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop reports whether the last window tool calls repeat a pattern of
// length 1, 2 or 3.
func DetectLoop(state *conversation.State, window int) bool {
	if window <= 0 {
		return false
	}
	sigs := recentSignatures(state, window)
	if len(sigs) < window {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if window%patternLen != 0 {
			continue
		}
		match := true
		for i := patternLen; i < window && match; i++ {
			if sigs[i] != sigs[i%patternLen] {
				match = false
			}
		}
		if match {
			return true
		}
	}
	return false
}

func loopWarning(window int) string {
	return fmt.Sprintf("WARNING: the last %d tool calls follow a repeating pattern and are not making progress. Try a different approach or explain what is blocking you.", window)
}
