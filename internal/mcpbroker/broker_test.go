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
	"testing"

	"github.com/dcsandbox/dcsandbox/internal/runtime"
)

func TestAllocateAndReleasePort(t *testing.T) {
	b := New(runtime.NewFakeDriver(), "", PortRange{Lo: 50000, Hi: 50001})

	p1, err := b.AllocatePort("sandbox-a")
	if err != nil {
		t.Fatalf("AllocatePort: %v", err)
	}
	p2, err := b.AllocatePort("sandbox-b")
	if err != nil {
		t.Fatalf("AllocatePort: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("expected distinct ports, got %d and %d", p1, p2)
	}

	if _, err := b.AllocatePort("sandbox-c"); err == nil {
		t.Fatal("expected port range exhaustion error")
	}

	b.ReleasePort(p1)
	p3, err := b.AllocatePort("sandbox-c")
	if err != nil {
		t.Fatalf("AllocatePort after release: %v", err)
	}
	if p3 != p1 {
		t.Fatalf("expected released port %d to be reused, got %d", p1, p3)
	}
}

func TestHandleMessageInitializeAndToolsList(t *testing.T) {
	b := New(runtime.NewFakeDriver(), "", DefaultPortRange)
	sess := &sandboxSession{sandboxID: "s1", containerID: "c1", children: map[string]*capabilityChild{}}

	resp := b.handleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("initialize: unexpected error response: %+v", resp)
	}

	resp = b.handleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("tools/list: unexpected error response: %+v", resp)
	}
}

func TestHandleMessageParseError(t *testing.T) {
	b := New(runtime.NewFakeDriver(), "", DefaultPortRange)
	sess := &sandboxSession{sandboxID: "s1", containerID: "c1", children: map[string]*capabilityChild{}}

	resp := b.handleMessage(context.Background(), sess, []byte(`not json`))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Fatalf("expected parse error response, got %+v", resp)
	}
}

func TestHandleMessageMethodNotFound(t *testing.T) {
	b := New(runtime.NewFakeDriver(), "", DefaultPortRange)
	sess := &sandboxSession{sandboxID: "s1", containerID: "c1", children: map[string]*capabilityChild{}}

	resp := b.handleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":3,"method":"nonexistent"}`))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method-not-found response, got %+v", resp)
	}
}

func TestDispatchToolShellExecute(t *testing.T) {
	fd := runtime.NewFakeDriver()
	b := New(fd, "", DefaultPortRange)
	params, _ := json.Marshal(toolCallParams{
		Name:      "shell_execute",
		Arguments: json.RawMessage(`{"command":"echo hi"}`),
	})

	result, err := b.dispatchTool(context.Background(), "c1", params)
	if err != nil {
		t.Fatalf("dispatchTool: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error result: %+v", result)
	}
}

func TestDispatchToolUnknownToolReturnsErrUnknownTool(t *testing.T) {
	b := New(runtime.NewFakeDriver(), "", DefaultPortRange)
	params, _ := json.Marshal(toolCallParams{Name: "does_not_exist", Arguments: json.RawMessage(`{}`)})

	_, err := b.dispatchTool(context.Background(), "c1", params)
	if !errors.Is(err, errUnknownTool) {
		t.Fatalf("dispatchTool(unknown tool) error = %v, want errUnknownTool", err)
	}
}

func TestHandleMessageUnknownToolNameMapsToMethodNotFound(t *testing.T) {
	b := New(runtime.NewFakeDriver(), "", DefaultPortRange)
	sess := &sandboxSession{sandboxID: "s1", containerID: "c1", children: map[string]*capabilityChild{}}

	resp := b.handleMessage(context.Background(), sess, []byte(
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"does_not_exist","arguments":{}}}`))
	if resp == nil || resp.Error == nil {
		t.Fatalf("expected an error response, got %+v", resp)
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("Error.Code = %d, want %d (CodeMethodNotFound)", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestSafeWorkspacePathRejectsEscape(t *testing.T) {
	if _, err := safeWorkspacePath("../../etc/passwd"); err == nil {
		t.Fatal("expected path escaping workspace to be rejected")
	}
	p, err := safeWorkspacePath("foo/bar.txt")
	if err != nil {
		t.Fatalf("safeWorkspacePath: %v", err)
	}
	if p != "/workspace/foo/bar.txt" {
		t.Fatalf("safeWorkspacePath = %q, want /workspace/foo/bar.txt", p)
	}
}

func TestCapabilityServerForPrefixMatch(t *testing.T) {
	b := New(runtime.NewFakeDriver(), "", DefaultPortRange)
	sess := &sandboxSession{
		sandboxID: "s1",
		children:  map[string]*capabilityChild{"npm": {}},
	}
	child, ok := b.capabilityServerFor(sess, "npm.install")
	if !ok || child == nil {
		t.Fatal("expected npm.install to resolve to the npm capability child")
	}
	if _, ok := b.capabilityServerFor(sess, "unknown.method"); ok {
		t.Fatal("expected no match for an unregistered capability server prefix")
	}
}
