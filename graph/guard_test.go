package graph

import (
	"context"
	"errors"
	"testing"
)

func TestPatternGuard(t *testing.T) {
	g, err := NewPatternGuard(10, `(?i)password`)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		input   string
		wantErr bool
	}{
		{"hello", false},
		{"héllo wörl", false},
		{"this is far too long", true},
		{"PASSWORD", true},
	}
	for _, tt := range tests {
		err := g.Check(context.Background(), tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("Check(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestPatternGuardInvalidPattern(t *testing.T) {
	if _, err := NewPatternGuard(0, `(`); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestInputGuardFunc(t *testing.T) {
	want := errors.New("nope")
	var g InputGuard = InputGuardFunc(func(context.Context, string) error { return want })
	if err := g.Check(context.Background(), "x"); !errors.Is(err, want) {
		t.Errorf("Check() = %v, want %v", err, want)
	}
}
