package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyCheckCommand(t *testing.T) {
	p := DefaultConfig().Policy()

	tests := []struct {
		cmd     string
		allowed bool
	}{
		{"python chat_gpt/hello.py", true},
		{"   node app.js", true},
		{"npm install", true},
		{"mkdir chat_gpt/x", true},
		{"type chat_gpt\\hello.py", true},
		{"pythonista", true}, // literal prefix test
		{"rm -rf /", false},
		{"Python hello.py", false},
		{"echo hi && python x.py", false},
		{"", false},
		{"   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			d := p.CheckCommand(tt.cmd)
			assert.Equal(t, tt.allowed, d.Allowed, "reason: %s", d.Reason)
			if !tt.allowed {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestPolicyCheckPath(t *testing.T) {
	p := Policy{Root: "chat_gpt/"}

	tests := []struct {
		path    string
		allowed bool
	}{
		{"chat_gpt/hello.py", true},
		{"chat_gpt/sub/dir/a.txt", true},
		{"chat_gpt/./a.txt", true},
		{"/etc/passwd", false},
		{"other/a.txt", false},
		{"chat_gpt", false},
		{"chat_gpt/../secret.txt", false},
		{"chat_gpt/a/../../x", false},
		{"chat_gpt/a/../b.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.allowed, p.CheckPath(tt.path).Allowed)
		})
	}
}

func TestPolicyCheckPathWithoutRoot(t *testing.T) {
	assert.False(t, Policy{}.CheckPath("anything").Allowed)
}
