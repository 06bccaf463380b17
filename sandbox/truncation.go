package sandbox

import (
	"fmt"
	"unicode/utf8"
)

// DefaultMaxOutputChars bounds each captured stream of a command.
const DefaultMaxOutputChars = 30000

// TruncateOutput keeps the head and tail of output and replaces the middle
// with a marker when it is longer than maxChars bytes. Cut points fall on
// rune boundaries. maxChars <= 0 disables truncation.
func TruncateOutput(output string, maxChars int) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	half := maxChars / 2

	head := half
	for head > 0 && !utf8.RuneStart(output[head]) {
		head--
	}
	tail := len(output) - half
	for tail < len(output) && !utf8.RuneStart(output[tail]) {
		tail++
	}

	return output[:head] +
		fmt.Sprintf("\n\n[output truncated: %d bytes removed from the middle]\n\n", tail-head) +
		output[tail:]
}
