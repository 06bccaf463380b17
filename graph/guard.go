package graph

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// InputGuard screens user input before it reaches the history. A non-nil
// error rejects the turn.
type InputGuard interface {
	Check(ctx context.Context, input string) error
}

// InputGuardFunc adapts a function to InputGuard.
type InputGuardFunc func(ctx context.Context, input string) error

func (f InputGuardFunc) Check(ctx context.Context, input string) error {
	return f(ctx, input)
}

// PatternGuard rejects input that is too long or matches a blocked pattern.
type PatternGuard struct {
	maxChars int
	patterns []*regexp.Regexp
}

// NewPatternGuard compiles patterns. maxChars <= 0 disables the length check.
func NewPatternGuard(maxChars int, patterns ...string) (*PatternGuard, error) {
	g := &PatternGuard{maxChars: maxChars}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("graph: invalid guard pattern %q: %w", p, err)
		}
		g.patterns = append(g.patterns, re)
	}
	return g, nil
}

func (g *PatternGuard) Check(_ context.Context, input string) error {
	if g.maxChars > 0 {
		if n := utf8.RuneCountInString(input); n > g.maxChars {
			return fmt.Errorf("input is %d characters, limit is %d", n, g.maxChars)
		}
	}
	for _, re := range g.patterns {
		if re.MatchString(input) {
			return fmt.Errorf("input matches blocked pattern %q", re.String())
		}
	}
	return nil
}
