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
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dcsandbox/dcsandbox/internal/errs"
	"github.com/dcsandbox/dcsandbox/internal/mcpbroker"
	"github.com/dcsandbox/dcsandbox/internal/record"
	"github.com/dcsandbox/dcsandbox/internal/runtime"
	"github.com/dcsandbox/dcsandbox/internal/store"
	"github.com/dcsandbox/dcsandbox/internal/template"
)

// reaperInterval is the background reaper's scan period (SPEC_FULL §4.1).
const reaperInterval = 30 * time.Second

// reconcileConcurrency bounds the errgroup fan-out for startup
// reconciliation and cleanup (SPEC_FULL §4.1).
const reconcileConcurrency = 8

// Engine is the Lifecycle Engine (spec §4.1): the single owner of the
// sandbox state machine.
type Engine struct {
	store    *store.Store
	registry *template.Registry
	driver   runtime.Driver
	broker   *mcpbroker.Broker
	gitCache string
	mutexes  *idMutexes

	stopReaper chan struct{}
}

// New constructs an Engine. gitCacheDir is <home>/.dcsandbox/git-cache.
func New(st *store.Store, reg *template.Registry, driver runtime.Driver, broker *mcpbroker.Broker, gitCacheDir string) *Engine {
	return &Engine{
		store:    st,
		registry: reg,
		driver:   driver,
		broker:   broker,
		gitCache: gitCacheDir,
		mutexes:  newIDMutexes(),
	}
}

// Reconcile runs the startup reconciliation scan (SPEC_FULL §4.1): for
// every `running` record, confirm the container still exists; flip to
// `error` otherwise. Bounded concurrency via errgroup so a large sandbox
// count doesn't serialize startup.
func (e *Engine) Reconcile(ctx context.Context) error {
	records, err := e.store.List()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for _, r := range records {
		r := r
		if r.Status != record.StatusRunning {
			continue
		}
		g.Go(func() error {
			e.reconcileOne(gctx, r)
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) reconcileOne(ctx context.Context, r *record.Record) {
	unlock := e.mutexes.lock(r.ID)
	defer unlock()

	fresh, err := e.store.Get(r.ID)
	if err != nil {
		return
	}
	info, err := e.driver.InspectContainer(ctx, fresh.ContainerID)
	if err != nil || !info.Running {
		fresh.Status = record.StatusError
		if saveErr := e.store.Save(fresh); saveErr != nil {
			log.Printf("lifecycle: reconcile: failed to persist error status for %s: %v", fresh.ID, saveErr)
		}
		return
	}
	fresh.LastObservedAt = nowFunc()
	if err := e.store.Save(fresh); err != nil {
		log.Printf("lifecycle: reconcile: failed to persist lastObservedAt for %s: %v", fresh.ID, err)
	}
}

// StartReaper launches the background reaper goroutine (SPEC_FULL §4.1):
// every reaperInterval, stop any `running` sandbox past
// createdAt+timeoutSeconds unless resources.persist is set.
func (e *Engine) StartReaper(ctx context.Context) {
	e.stopReaper = make(chan struct{})
	ticker := time.NewTicker(reaperInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopReaper:
				return
			case <-ticker.C:
				e.reapOnce(ctx)
			}
		}
	}()
}

// StopReaper halts the background reaper goroutine.
func (e *Engine) StopReaper() {
	if e.stopReaper != nil {
		close(e.stopReaper)
		e.stopReaper = nil
	}
}

func (e *Engine) reapOnce(ctx context.Context) {
	records, err := e.store.List()
	if err != nil {
		log.Printf("lifecycle: reaper: list failed: %v", err)
		return
	}
	now := nowFunc()
	for _, r := range records {
		if r.Status != record.StatusRunning || r.Resources.Persist {
			continue
		}
		deadline := r.CreatedAt.Add(time.Duration(r.Resources.TimeoutSecs) * time.Second)
		if now.Before(deadline) {
			continue
		}
		if err := e.Stop(ctx, r.ID); err != nil {
			log.Printf("lifecycle: reaper: stop %s failed: %v", r.ID, err)
		}
	}
}

// nowFunc is overridden in tests to avoid depending on wall-clock time.
var nowFunc = time.Now

func invalidState(op, id string, got record.Status) *errs.Error {
	return errs.New(errs.CodeInvalidState, "%s: sandbox %s is %s", op, id, got).WithContext("id", id)
}

func notFound(id string) *errs.Error {
	return errs.New(errs.CodeNotFound, "sandbox %s not found", id).WithContext("id", id)
}
