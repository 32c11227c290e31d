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
	"time"

	"github.com/dcsandbox/dcsandbox/internal/record"
)

func TestReconcileFlipsDeadContainerToError(t *testing.T) {
	e, _ := newTestEngine(t)

	r, err := e.Create(context.Background(), baseCreateRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Simulate the container having vanished out from under the record
	// (e.g. removed by hand) before the engine restarts.
	if err := e.driver.RemoveContainer(context.Background(), r.ContainerID, true); err != nil {
		t.Fatalf("RemoveContainer: %v", err)
	}

	if err := e.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	after, err := e.Info(r.ID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if after.Status != record.StatusError {
		t.Fatalf("Status after Reconcile = %q, want error", after.Status)
	}
}

func TestReconcileLeavesHealthyRunningAlone(t *testing.T) {
	e, _ := newTestEngine(t)

	r, err := e.Create(context.Background(), baseCreateRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := e.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	after, err := e.Info(r.ID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if after.Status != record.StatusRunning {
		t.Fatalf("Status after Reconcile = %q, want running", after.Status)
	}
	if after.LastObservedAt.IsZero() {
		t.Fatal("expected LastObservedAt to be set for a healthy container")
	}
}

func TestReaperStopsExpiredNonPersistSandbox(t *testing.T) {
	e, _ := newTestEngine(t)

	req := baseCreateRequest()
	req.TimeoutMins = record.MinTimeoutMinutes // 30 minutes = 1800s
	r, err := e.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	realNow := nowFunc
	defer func() { nowFunc = realNow }()
	base := time.Now()
	nowFunc = func() time.Time { return base.Add(2 * time.Hour) }

	e.reapOnce(context.Background())

	after, err := e.Info(r.ID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if after.Status != record.StatusStopped {
		t.Fatalf("Status after reapOnce = %q, want stopped", after.Status)
	}
}

func TestReaperSkipsPersistedSandbox(t *testing.T) {
	e, _ := newTestEngine(t)

	req := baseCreateRequest()
	req.TimeoutMins = record.MinTimeoutMinutes
	req.Persist = true
	r, err := e.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	realNow := nowFunc
	defer func() { nowFunc = realNow }()
	base := time.Now()
	nowFunc = func() time.Time { return base.Add(24 * time.Hour) }

	e.reapOnce(context.Background())

	after, err := e.Info(r.ID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if after.Status != record.StatusRunning {
		t.Fatalf("Status after reapOnce on a persisted sandbox = %q, want running", after.Status)
	}
}

func TestStartStopReaperIsSafeNoOp(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.StartReaper(ctx)
	e.StopReaper()
}
