package graph

import (
	"fmt"
	"strings"
	"time"
)

// PromptConfig describes the host the tool-enabled node should assume.
type PromptConfig struct {
	Platform        string // runtime.GOOS value
	WorkDir         string
	Root            string
	AllowedPrefixes []string
	Model           string
	Now             func() time.Time
}

// BuildEnvironmentContext renders the environment block shared by both
// reasoning prompts.
func BuildEnvironmentContext(cfg PromptConfig) string {
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	if cfg.WorkDir != "" {
		fmt.Fprintf(&sb, "Working directory: %s\n", cfg.WorkDir)
	}
	fmt.Fprintf(&sb, "Platform: %s\n", cfg.Platform)
	fmt.Fprintf(&sb, "Today's date: %s\n", now().Format("2006-01-02"))
	if cfg.Model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", cfg.Model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// BuildToolPrompt returns the system instruction for the tool-enabled node.
func BuildToolPrompt(cfg PromptConfig) string {
	var sb strings.Builder

	if cfg.Platform == "windows" {
		sb.WriteString("You are an AI coding assistant running on Windows CMD.\n\n")
		sb.WriteString("SHELL RULES:\n")
		sb.WriteString("- Use Windows commands only (dir, type, mkdir, cd).\n")
		sb.WriteString("- Paths use backslashes in commands; never use ls, cat or rm.\n")
		sb.WriteString("- Chain commands with &&.\n\n")
	} else {
		sb.WriteString("You are an AI coding assistant running in a POSIX shell (/bin/sh).\n\n")
		sb.WriteString("SHELL RULES:\n")
		sb.WriteString("- Use POSIX shell syntax. Paths use forward slashes.\n")
		sb.WriteString("- Chain commands with &&.\n\n")
	}

	sb.WriteString("SANDBOX:\n")
	fmt.Fprintf(&sb, "- Every file you create or read must live under %s\n", cfg.Root)
	if len(cfg.AllowedPrefixes) > 0 {
		fmt.Fprintf(&sb, "- Commands must start with one of: %s\n", strings.Join(cfg.AllowedPrefixes, ", "))
	}
	sb.WriteString("- Anything else is rejected and reported back to you as an error.\n\n")

	sb.WriteString("TOOLS RULES:\n")
	sb.WriteString("- Write code -> write_file\n")
	sb.WriteString("- Run code -> run_command\n")
	sb.WriteString("- Inspect a file -> read_file\n")
	sb.WriteString("- Never print code in chat.\n")
	fmt.Fprintf(&sb, "- Always use the %s directory.\n", cfg.Root)
	sb.WriteString("- If a command fails, read stderr and fix it.\n\n")

	sb.WriteString(BuildEnvironmentContext(cfg))
	return sb.String()
}

// BuildPlannerPrompt returns the system instruction for the plain node. It
// never offers tools, so it only plans.
func BuildPlannerPrompt(cfg PromptConfig) string {
	var sb strings.Builder
	sb.WriteString("You are the planning stage of an AI coding assistant.\n")
	sb.WriteString("Read the conversation and describe, in a few short steps, how to satisfy the latest request.\n")
	sb.WriteString("Do not write code and do not call tools; a later stage carries out the plan.\n\n")
	sb.WriteString(BuildEnvironmentContext(cfg))
	return sb.String()
}
