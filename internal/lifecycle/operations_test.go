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

package lifecycle

import (
	"context"
	"testing"

	"github.com/dcsandbox/dcsandbox/internal/errs"
	"github.com/dcsandbox/dcsandbox/internal/mcpbroker"
	"github.com/dcsandbox/dcsandbox/internal/record"
	"github.com/dcsandbox/dcsandbox/internal/runtime"
	"github.com/dcsandbox/dcsandbox/internal/store"
	"github.com/dcsandbox/dcsandbox/internal/template"
)

func newTestEngine(t *testing.T) (*Engine, *runtime.FakeDriver) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	reg, err := template.NewRegistry("")
	if err != nil {
		t.Fatalf("template.NewRegistry: %v", err)
	}
	driver := runtime.NewFakeDriver()
	// dockerBin is left empty: capability-server children simply fail to
	// spawn (logged, non-fatal) since no test in this package depends on a
	// live docker binary. A narrow, test-local port range keeps repeated
	// runs from colliding with each other or with a real broker on the
	// machine running the test.
	broker := mcpbroker.New(driver, "", mcpbroker.PortRange{Lo: 58100, Hi: 58110})
	return New(st, reg, driver, broker, t.TempDir()), driver
}

func baseCreateRequest() CreateRequest {
	return CreateRequest{
		Template:    "base",
		Memory:      "512M",
		CPU:         "1",
		TimeoutMins: 30,
	}
}

func TestCreateStartStopRemove(t *testing.T) {
	e, _ := newTestEngine(t)

	r, err := e.Create(context.Background(), baseCreateRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Status != record.StatusRunning {
		t.Fatalf("Status after Create = %q, want running", r.Status)
	}
	if r.ContainerID == "" {
		t.Fatal("expected a container id after Create")
	}
	if r.MCP.Port == 0 {
		t.Fatal("expected an allocated MCP port after Create")
	}
	if r.ImageDigest == "" {
		t.Error("expected a non-empty ImageDigest after Create")
	}
	if r.Platform == nil || r.Platform.OS == "" || r.Platform.Architecture == "" {
		t.Errorf("expected Platform to be populated after Create, got %+v", r.Platform)
	}

	if err := e.Stop(context.Background(), r.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	stopped, err := e.Info(r.ID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if stopped.Status != record.StatusStopped {
		t.Fatalf("Status after Stop = %q, want stopped", stopped.Status)
	}
	if stopped.MCP.Port != 0 {
		t.Fatalf("MCP.Port after Stop = %d, want 0", stopped.MCP.Port)
	}

	started, err := e.Start(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != record.StatusRunning {
		t.Fatalf("Status after Start = %q, want running", started.Status)
	}
	if started.MCP.Port == 0 {
		t.Fatal("expected a freshly allocated MCP port after Start")
	}

	if err := e.Remove(context.Background(), r.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := e.Info(r.ID); err == nil {
		t.Fatal("expected Info to fail after Remove")
	}
}

func TestStartRequiresStopped(t *testing.T) {
	e, _ := newTestEngine(t)
	r, err := e.Create(context.Background(), baseCreateRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.Start(context.Background(), r.ID); err == nil {
		t.Fatal("expected Start on a running sandbox to fail")
	} else if !errs.Is(err, errs.CodeInvalidState) {
		t.Fatalf("expected CodeInvalidState, got %v", err)
	}
}

func TestStopRequiresRunning(t *testing.T) {
	e, _ := newTestEngine(t)
	r, err := e.Create(context.Background(), baseCreateRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.Stop(context.Background(), r.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := e.Stop(context.Background(), r.ID); err == nil {
		t.Fatal("expected Stop on an already-stopped sandbox to fail")
	} else if !errs.Is(err, errs.CodeInvalidState) {
		t.Fatalf("expected CodeInvalidState, got %v", err)
	}
}

func TestCreateDuplicateNameRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	req := baseCreateRequest()
	req.Name = "dup-name"
	if _, err := e.Create(context.Background(), req); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := e.Create(context.Background(), req); err == nil {
		t.Fatal("expected second Create with the same name to fail")
	} else if !errs.Is(err, errs.CodeDuplicateName) {
		t.Fatalf("expected CodeDuplicateName, got %v", err)
	}
}

func TestCreateUnknownTemplateFails(t *testing.T) {
	e, _ := newTestEngine(t)
	req := baseCreateRequest()
	req.Template = "does-not-exist"
	r, err := e.Create(context.Background(), req)
	if err == nil {
		t.Fatal("expected Create with an unknown template to fail")
	}
	if r != nil {
		t.Fatalf("expected nil record on failure, got %+v", r)
	}

	// The record should still be persisted, flipped to error.
	list, lerr := e.List()
	if lerr != nil {
		t.Fatalf("List: %v", lerr)
	}
	if len(list) != 1 || list[0].Status != record.StatusError {
		t.Fatalf("expected one errored record, got %+v", list)
	}
}

func TestCreateInvalidResourcesFails(t *testing.T) {
	e, _ := newTestEngine(t)
	req := baseCreateRequest()
	req.Memory = "not-a-memory-string"
	if _, err := e.Create(context.Background(), req); err == nil {
		t.Fatal("expected Create with invalid memory string to fail")
	}
}

func TestListNewestFirst(t *testing.T) {
	e, _ := newTestEngine(t)
	first, err := e.Create(context.Background(), baseCreateRequest())
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second, err := e.Create(context.Background(), baseCreateRequest())
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}
	list, err := e.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(list))
	}
	ids := map[string]bool{first.ID: true, second.ID: true}
	if !ids[list[0].ID] || !ids[list[1].ID] {
		t.Fatalf("List() returned unexpected ids: %+v", list)
	}
	if list[0].ID != second.ID {
		t.Fatalf("List()[0] = %q, want newest %q", list[0].ID, second.ID)
	}
}

func TestLogsNoContainer(t *testing.T) {
	e, _ := newTestEngine(t)
	req := baseCreateRequest()
	req.Template = "does-not-exist"
	_, _ = e.Create(context.Background(), req)
	list, err := e.List()
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one errored record, got %+v err=%v", list, err)
	}
	if _, err := e.Logs(context.Background(), list[0].ID, LogOptions{}); err == nil {
		t.Fatal("expected Logs on a containerless record to fail")
	} else if !errs.Is(err, errs.CodeNoContainer) {
		t.Fatalf("expected CodeNoContainer, got %v", err)
	}
}

func TestCleanupSelectors(t *testing.T) {
	e, _ := newTestEngine(t)

	running, err := e.Create(context.Background(), baseCreateRequest())
	if err != nil {
		t.Fatalf("Create running: %v", err)
	}

	toStop, err := e.Create(context.Background(), baseCreateRequest())
	if err != nil {
		t.Fatalf("Create toStop: %v", err)
	}
	if err := e.Stop(context.Background(), toStop.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	errReq := baseCreateRequest()
	errReq.Template = "does-not-exist"
	_, _ = e.Create(context.Background(), errReq)

	result, err := e.Cleanup(context.Background(), CleanupAll)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.Removed != 2 {
		t.Fatalf("Cleanup(CleanupAll).Removed = %d, want 2 (stopped + errored)", result.Removed)
	}

	remaining, err := e.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != running.ID {
		t.Fatalf("expected only the running sandbox to remain, got %+v", remaining)
	}
}
