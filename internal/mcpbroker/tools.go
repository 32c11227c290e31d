// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcpbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dcsandbox/dcsandbox/internal/errs"
)

// errUnknownTool is returned by dispatchTool when call.Name doesn't match
// any built-in tool, so callers can distinguish it from a runtime failure
// and map it to JSON-RPC's method-not-found code (spec §8 boundary case).
var errUnknownTool = errors.New("unknown tool")

// ToolDescriptor is one entry of the static tools/list reply.
type ToolDescriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

// BuiltinTools is the static list the broker returns for tools/list
// (spec §4.2).
var BuiltinTools = []ToolDescriptor{
	{
		Name:        "filesystem_read",
		Description: "Read a file from the sandbox workspace.",
		InputSchema: jsonSchemaObject(map[string]string{"path": "string"}, "path"),
	},
	{
		Name:        "filesystem_write",
		Description: "Write a file in the sandbox workspace.",
		InputSchema: jsonSchemaObject(map[string]string{"path": "string", "content": "string"}, "path", "content"),
	},
	{
		Name:        "shell_execute",
		Description: "Run a shell command in the sandbox workspace.",
		InputSchema: jsonSchemaObject(map[string]string{"command": "string"}, "command"),
	},
}

func jsonSchemaObject(props map[string]string, required ...string) map[string]interface{} {
	p := make(map[string]interface{}, len(props))
	for name, typ := range props {
		p[name] = map[string]string{"type": typ}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": p,
		"required":   required,
	}
}

// toolCallParams is the params shape for tools/call.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// dispatchTool executes one of the three built-in tools against
// containerID, per spec §4.2's container-mapped semantics.
func (b *Broker) dispatchTool(ctx context.Context, containerID string, raw json.RawMessage) (ToolResult, error) {
	var call toolCallParams
	if err := json.Unmarshal(raw, &call); err != nil {
		return ToolResult{}, errs.New(errs.CodeValidation, "invalid tools/call params: %v", err)
	}

	switch call.Name {
	case "filesystem_read":
		var args struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return ToolResult{}, errs.New(errs.CodeValidation, "invalid filesystem_read arguments: %v", err)
		}
		p, err := safeWorkspacePath(args.Path)
		if err != nil {
			return textResult(true, err.Error()), nil
		}
		res, err := b.driver.Exec(ctx, containerID, []string{"cat", p}, nil, "/workspace")
		if err != nil {
			return ToolResult{}, err
		}
		if res.ExitCode != 0 {
			return textResult(true, string(res.Stderr)+string(res.Stdout)), nil
		}
		return textResult(false, string(res.Stdout)), nil

	case "filesystem_write":
		var args struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return ToolResult{}, errs.New(errs.CodeValidation, "invalid filesystem_write arguments: %v", err)
		}
		p, err := safeWorkspacePath(args.Path)
		if err != nil {
			return textResult(true, err.Error()), nil
		}
		mkdir := path.Dir(p)
		if _, err := b.driver.Exec(ctx, containerID, []string{"mkdir", "-p", mkdir}, nil, "/workspace"); err != nil {
			return ToolResult{}, err
		}
		res, err := b.driver.Exec(ctx, containerID, []string{"tee", p}, strings.NewReader(args.Content), "/workspace")
		if err != nil {
			return ToolResult{}, err
		}
		if res.ExitCode != 0 {
			return textResult(true, string(res.Stderr)+string(res.Stdout)), nil
		}
		return textResult(false, "written"), nil

	case "shell_execute":
		var args struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return ToolResult{}, errs.New(errs.CodeValidation, "invalid shell_execute arguments: %v", err)
		}
		res, err := b.driver.Exec(ctx, containerID, []string{"/bin/bash", "-c", args.Command}, nil, "/workspace")
		if err != nil {
			return ToolResult{}, err
		}
		combined := string(res.Stdout) + string(res.Stderr)
		return textResult(res.ExitCode != 0, combined), nil

	default:
		return ToolResult{}, fmt.Errorf("%w: %q", errUnknownTool, call.Name)
	}
}

// safeWorkspacePath normalizes a tool-supplied relative path and rejects
// any resolution that escapes /workspace (spec §4.2).
func safeWorkspacePath(p string) (string, error) {
	rel := path.Clean(p)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", errs.New(errs.CodeValidation, "path escapes workspace: %q", p)
	}
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", errs.New(errs.CodeValidation, "path escapes workspace: %q", p)
	}
	return "/workspace" + clean, nil
}
