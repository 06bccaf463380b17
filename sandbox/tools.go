package sandbox

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Tool names as presented to the model.
const (
	ToolRunCommand = "run_command"
	ToolWriteFile  = "write_file"
	ToolReadFile   = "read_file"
)

// CoreTools returns the run_command, write_file and read_file tools backed
// by tb.
func CoreTools(tb *Toolbox) []Tool {
	return []Tool{runCommandTool(tb), writeFileTool(tb), readFileTool(tb)}
}

// NewCoreRegistry builds a registry holding the core tools.
func NewCoreRegistry(tb *Toolbox, logger *zap.Logger, metrics *Metrics) (*Registry, error) {
	return NewRegistry(logger, metrics, CoreTools(tb)...)
}

func runCommandTool(tb *Toolbox) Tool {
	return Tool{
		Definition: Definition{
			Name:        ToolRunCommand,
			Description: "Run an allow-listed shell command in the project directory. Returns exit_code, stdout and stderr.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"cmd": map[string]any{
						"type":        "string",
						"description": "The command line to execute.",
					},
				},
				"required": []string{"cmd"},
			},
		},
		Handler: func(ctx context.Context, raw json.RawMessage) Outcome {
			var args struct {
				Cmd *string `json:"cmd"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return Fail(err)
			}
			if args.Cmd == nil {
				return Fail(newError(KindInvalidArguments, "cmd is required"))
			}
			return tb.RunCommand(ctx, *args.Cmd)
		},
	}
}

func writeFileTool(tb *Toolbox) Tool {
	return Tool{
		Definition: Definition{
			Name:        ToolWriteFile,
			Description: "Write content to a file inside the sandbox directory. Creates parent directories and overwrites existing files.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "File path, which must start with the sandbox directory.",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The full file content.",
					},
				},
				"required": []string{"path", "content"},
			},
		},
		Handler: func(_ context.Context, raw json.RawMessage) Outcome {
			var args struct {
				Path    *string `json:"path"`
				Content *string `json:"content"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return Fail(err)
			}
			if args.Path == nil || *args.Path == "" {
				return Fail(newError(KindInvalidArguments, "path is required"))
			}
			if args.Content == nil {
				return Fail(newError(KindInvalidArguments, "content is required"))
			}
			return tb.WriteFile(*args.Path, *args.Content)
		},
	}
}

func readFileTool(tb *Toolbox) Tool {
	return Tool{
		Definition: Definition{
			Name:        ToolReadFile,
			Description: "Read a file inside the sandbox directory.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "File path, which must start with the sandbox directory.",
					},
				},
				"required": []string{"path"},
			},
		},
		Handler: func(_ context.Context, raw json.RawMessage) Outcome {
			var args struct {
				Path *string `json:"path"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return Fail(err)
			}
			if args.Path == nil || *args.Path == "" {
				return Fail(newError(KindInvalidArguments, "path is required"))
			}
			return tb.ReadFile(*args.Path)
		},
	}
}

func decodeArgs(raw json.RawMessage, v any) *Error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return newError(KindInvalidArguments, "invalid tool arguments: %v", err)
	}
	return nil
}
