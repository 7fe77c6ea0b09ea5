/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import (
	"context"
	"fmt"
	"os"

	"chainguard.dev/smartfix/agents/agenttrace"
	"chainguard.dev/smartfix/agents/toolcall/callbacks"
	"github.com/chainguard-dev/clog"
)

const (
	ToolReadFile       = "read_file"
	ToolWriteFile      = "write_file"
	ToolDeleteFile     = "delete_file"
	ToolListDirectory  = "list_directory"
	ToolSearchCodebase = "search_codebase"
)

// Argument structs below exist to reflect the tool input schemas.

type readFileArgs struct {
	Reasoning string `json:"reasoning" jsonschema:"required,description=Explain why you are reading this file."`
	Path      string `json:"path" jsonschema:"required,description=The path to the file to read (relative to repository root)"`
}

type writeFileArgs struct {
	Reasoning  string `json:"reasoning" jsonschema:"required,description=Explain why you are writing this file."`
	Path       string `json:"path" jsonschema:"required,description=The path to the file to write (relative to repository root)"`
	Content    string `json:"content" jsonschema:"required,description=The complete content to write to the file"`
	Executable bool   `json:"executable,omitempty" jsonschema:"description=Whether the file should be executable (default: false)"`
}

type deleteFileArgs struct {
	Reasoning string `json:"reasoning" jsonschema:"required,description=Explain why you are deleting this file."`
	Path      string `json:"path" jsonschema:"required,description=The path to the file to delete (relative to repository root)"`
}

type listDirectoryArgs struct {
	Reasoning string `json:"reasoning" jsonschema:"required,description=Explain why you are listing this directory."`
	Path      string `json:"path" jsonschema:"required,description=The directory to list (relative to repository root; use . for the root)"`
}

type searchCodebaseArgs struct {
	Reasoning string `json:"reasoning" jsonschema:"required,description=Explain what you are searching for and why."`
	Pattern   string `json:"pattern" jsonschema:"required,description=The regular expression to search for"`
}

// WorktreeTools returns the file tools backed by cb.
func WorktreeTools(cb callbacks.WorktreeCallbacks) (*Set, error) {
	if err := cb.Validate(); err != nil {
		return nil, err
	}
	return NewSet(
		NewTool[readFileArgs](ToolReadFile, "Read the complete content of a file from the codebase.", readFileHandler(cb.ReadFile)),
		NewTool[writeFileArgs](ToolWriteFile, "Create or update a file in the codebase.", writeFileHandler(cb.WriteFile)),
		NewTool[deleteFileArgs](ToolDeleteFile, "Delete a file from the codebase.", deleteFileHandler(cb.DeleteFile)),
		NewTool[listDirectoryArgs](ToolListDirectory, "List the contents of a directory.", listDirectoryHandler(cb.ListDirectory)),
		NewTool[searchCodebaseArgs](ToolSearchCodebase, "Search for a pattern across all files in the codebase.", searchCodebaseHandler(cb.SearchCodebase)),
	)
}

// reasoned extracts and logs the reasoning argument every tool requires.
func reasoned(ctx context.Context, call Call, trace *agenttrace.Trace) map[string]any {
	reasoning, errResp := Param[string](call, trace, "reasoning")
	if errResp != nil {
		return errResp
	}
	clog.FromContext(ctx).With("tool", call.Name).With("reasoning", reasoning).Info("Tool call reasoning")
	return nil
}

func readFileHandler(readFile func(context.Context, string) (string, error)) Handler {
	return func(ctx context.Context, call Call, trace *agenttrace.Trace) map[string]any {
		if errResp := reasoned(ctx, call, trace); errResp != nil {
			return errResp
		}
		path, errResp := Param[string](call, trace, "path")
		if errResp != nil {
			return errResp
		}

		tc := trace.StartToolCall(call.ID, call.Name, map[string]any{"path": path})
		content, err := readFile(ctx, path)
		if err != nil {
			clog.FromContext(ctx).With("path", path).With("error", err).Warn("Failed to read file")
			result := ErrorWithContext(err, map[string]any{"path": path})
			tc.Complete(result, err)
			return result
		}
		result := map[string]any{"path": path, "content": content, "size": len(content)}
		tc.Complete(map[string]any{"path": path, "size": len(content)}, nil)
		return result
	}
}

func writeFileHandler(writeFile func(context.Context, string, string, os.FileMode) error) Handler {
	return func(ctx context.Context, call Call, trace *agenttrace.Trace) map[string]any {
		if errResp := reasoned(ctx, call, trace); errResp != nil {
			return errResp
		}
		path, errResp := Param[string](call, trace, "path")
		if errResp != nil {
			return errResp
		}
		content, errResp := Param[string](call, trace, "content")
		if errResp != nil {
			return errResp
		}
		executable, errResp := OptionalParam(call, "executable", false)
		if errResp != nil {
			return errResp
		}

		mode := os.FileMode(0o644)
		if executable {
			mode = 0o755
		}

		tc := trace.StartToolCall(call.ID, call.Name, map[string]any{"path": path, "size": len(content), "executable": executable})
		if err := writeFile(ctx, path, content, mode); err != nil {
			clog.FromContext(ctx).With("path", path).With("error", err).Warn("Failed to write file")
			result := ErrorWithContext(err, map[string]any{"path": path})
			tc.Complete(result, err)
			return result
		}
		result := map[string]any{"path": path, "written": len(content), "mode": fmt.Sprintf("%04o", mode)}
		tc.Complete(result, nil)
		return result
	}
}

func deleteFileHandler(deleteFile func(context.Context, string) error) Handler {
	return func(ctx context.Context, call Call, trace *agenttrace.Trace) map[string]any {
		if errResp := reasoned(ctx, call, trace); errResp != nil {
			return errResp
		}
		path, errResp := Param[string](call, trace, "path")
		if errResp != nil {
			return errResp
		}

		tc := trace.StartToolCall(call.ID, call.Name, map[string]any{"path": path})
		if err := deleteFile(ctx, path); err != nil {
			clog.FromContext(ctx).With("path", path).With("error", err).Warn("Failed to delete file")
			result := ErrorWithContext(err, map[string]any{"path": path})
			tc.Complete(result, err)
			return result
		}
		result := map[string]any{"path": path, "deleted": true}
		tc.Complete(result, nil)
		return result
	}
}

func listDirectoryHandler(listDirectory func(context.Context, string) ([]string, error)) Handler {
	return func(ctx context.Context, call Call, trace *agenttrace.Trace) map[string]any {
		if errResp := reasoned(ctx, call, trace); errResp != nil {
			return errResp
		}
		path, errResp := Param[string](call, trace, "path")
		if errResp != nil {
			return errResp
		}

		tc := trace.StartToolCall(call.ID, call.Name, map[string]any{"path": path})
		entries, err := listDirectory(ctx, path)
		if err != nil {
			clog.FromContext(ctx).With("path", path).With("error", err).Warn("Failed to list directory")
			result := ErrorWithContext(err, map[string]any{"path": path})
			tc.Complete(result, err)
			return result
		}
		result := map[string]any{"path": path, "entries": entries, "count": len(entries)}
		tc.Complete(map[string]any{"path": path, "count": len(entries)}, nil)
		return result
	}
}

// maxSearchMatches bounds how many matches are returned to the model.
const maxSearchMatches = 200

func searchCodebaseHandler(searchCodebase func(context.Context, string) ([]callbacks.Match, error)) Handler {
	return func(ctx context.Context, call Call, trace *agenttrace.Trace) map[string]any {
		if errResp := reasoned(ctx, call, trace); errResp != nil {
			return errResp
		}
		pattern, errResp := Param[string](call, trace, "pattern")
		if errResp != nil {
			return errResp
		}

		tc := trace.StartToolCall(call.ID, call.Name, map[string]any{"pattern": pattern})
		matches, err := searchCodebase(ctx, pattern)
		if err != nil {
			clog.FromContext(ctx).With("pattern", pattern).With("error", err).Warn("Failed to search codebase")
			result := ErrorWithContext(err, map[string]any{"pattern": pattern})
			tc.Complete(result, err)
			return result
		}
		result := map[string]any{"pattern": pattern, "count": len(matches)}
		if len(matches) > maxSearchMatches {
			matches = matches[:maxSearchMatches]
			result["truncated"] = true
		}
		result["matches"] = matches
		tc.Complete(map[string]any{"pattern": pattern, "count": result["count"]}, nil)
		return result
	}
}
