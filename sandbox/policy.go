package sandbox

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Decision is the verdict of a policy check. It is computed per invocation
// and never cached.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Policy is the security boundary around what the model may touch.
type Policy struct {
	// Root is the sandbox directory prefix, relative to the working
	// directory, e.g. "chat_gpt/".
	Root string
	// AllowedPrefixes lists the literal command prefixes that may run.
	AllowedPrefixes []string
}

// CheckCommand allows a command only if, after trimming leading whitespace,
// it starts with one of the allowed prefixes. The test is a literal,
// case-sensitive prefix match.
func (p Policy) CheckCommand(cmd string) Decision {
	trimmed := strings.TrimLeft(cmd, " \t\r\n")
	if trimmed == "" {
		return deny("empty command")
	}
	for _, prefix := range p.AllowedPrefixes {
		if prefix != "" && strings.HasPrefix(trimmed, prefix) {
			return allow()
		}
	}
	return deny("%s", cmd)
}

// CheckPath allows a path only if it lexically begins with the sandbox root
// and its cleaned form stays inside the root.
func (p Policy) CheckPath(name string) Decision {
	if p.Root == "" {
		return deny("no sandbox root configured")
	}
	if !strings.HasPrefix(name, p.Root) {
		return deny("%s is outside %s", name, p.Root)
	}

	root := path.Clean(filepath.ToSlash(p.Root))
	cleaned := path.Clean(filepath.ToSlash(name))
	dir := root
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	if cleaned != root && !strings.HasPrefix(cleaned, dir) {
		return deny("%s escapes %s", name, p.Root)
	}
	return allow()
}
