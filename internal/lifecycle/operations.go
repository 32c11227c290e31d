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
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dcsandbox/dcsandbox/internal/detect"
	"github.com/dcsandbox/dcsandbox/internal/errs"
	"github.com/dcsandbox/dcsandbox/internal/gitutil"
	"github.com/dcsandbox/dcsandbox/internal/record"
	"github.com/dcsandbox/dcsandbox/internal/runtime"
	"github.com/dcsandbox/dcsandbox/pkg/codecutil"
)

// Create runs the eight-step create algorithm (spec §4.1): assign an id,
// persist `creating`, optionally clone the source repo, resolve a
// template, materialize the workspace, synthesize and build the image,
// create and start the container, allocate an MCP port, start the broker,
// and finally persist `running`.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*record.Record, error) {
	if req.Name != "" {
		if err := record.ValidateName(req.Name); err != nil {
			return nil, err
		}
		inUse, err := e.store.NameInUse(req.Name, "")
		if err != nil {
			return nil, err
		}
		if inUse {
			return nil, errs.New(errs.CodeDuplicateName, "sandbox named %q already exists", req.Name).WithContext("name", req.Name)
		}
	}

	id, err := newID()
	if err != nil {
		return nil, errs.New(errs.CodeInternal, "generate sandbox id: %v", err)
	}

	name := req.Name
	if name == "" {
		if req.GitURL != "" {
			name = record.DeriveName(req.GitURL)
		} else {
			name = id
		}
	}

	memBytes, cpuMillicores, timeoutSecs, err := resolveResources(req)
	if err != nil {
		return nil, err
	}

	r := &record.Record{
		ID:        id,
		Name:      name,
		Status:    record.StatusCreating,
		CreatedAt: nowFunc(),
		Resources: record.Resources{
			MemoryBytes:   memBytes,
			CPUMillicores: cpuMillicores,
			TimeoutSecs:   timeoutSecs,
			Persist:       req.Persist,
		},
	}
	if req.GitURL != "" {
		r.Git = &record.GitSpec{URL: req.GitURL, Branch: req.GitBranch}
	}

	if err := e.store.Create(r); err != nil {
		return nil, err
	}

	unlock := e.mutexes.lock(id)
	defer unlock()

	if failErr := e.create(ctx, r, req); failErr != nil {
		r.Status = record.StatusError
		if saveErr := e.store.Save(r); saveErr != nil {
			log.Printf("lifecycle: create %s: failed to persist error status: %v", id, saveErr)
		}
		return nil, failErr
	}
	return r, nil
}

// create performs the body of Create once the record shell is persisted.
// Split out so the caller can uniformly flip the record to `error` on any
// failure path.
func (e *Engine) create(ctx context.Context, r *record.Record, req CreateRequest) error {
	workspaceSrc := ""
	if r.Git != nil {
		cloneDir := filepath.Join(e.gitCache, r.ID)
		if err := gitutil.Clone(ctx, gitutil.CloneOptions{
			URL:    r.Git.URL,
			Branch: r.Git.Branch,
			Dest:   cloneDir,
			Token:  req.GitToken,
		}); err != nil {
			return err
		}
		r.Git.ClonePath = cloneDir
		workspaceSrc = cloneDir
	}

	templateName := req.Template
	if templateName == "" {
		if req.AutoDetect {
			root := workspaceSrc
			if root == "" {
				root = "."
			}
			d, err := detect.DetectProject(root)
			if err != nil {
				return errs.Wrap(errs.CodeWorkspaceSetupError, err)
			}
			templateName = d.Template
			if templateName == "" {
				templateName = "base"
			}
		} else {
			templateName = "base"
		}
	}

	tmpl, err := e.registry.Lookup(templateName)
	if err != nil {
		return err
	}
	r.Template = tmpl.Name

	workspaceDir := e.store.WorkspaceDir(r.ID)
	if err := materializeWorkspace(workspaceSrc, workspaceDir); err != nil {
		return err
	}

	sandboxDir := e.store.SandboxDir(r.ID)
	if err := writeBuildContext(sandboxDir, tmpl, r.Name); err != nil {
		return err
	}

	tagPrefix := fmt.Sprintf("dcsandbox/%s", tmpl.Name)
	tag, imageDigest, err := e.driver.BuildImage(ctx, sandboxDir, tagPrefix)
	if err != nil {
		return errs.Wrap(errs.CodeBuildFailed, err)
	}
	r.ImageDigest = imageDigest
	platform := runtime.HostPlatform()
	r.Platform = &platform

	containerID, err := e.driver.CreateContainer(ctx, runtime.ContainerSpec{
		Image:        tag,
		Name:         "dcsandbox-" + r.ID,
		Workdir:      "/workspace",
		Env:          tmpl.Env,
		BindMounts:   map[string]string{workspaceDir: "/workspace"},
		MemoryBytes:  r.Resources.MemoryBytes,
		NanoCPUs:     record.NanoCPUs(r.Resources.CPUMillicores),
		NetworkMode:  "bridge",
		ExposedPorts: tmpl.Ports,
		Labels:       map[string]string{"dcsandbox.id": r.ID, "dcsandbox.name": r.Name},
	})
	if err != nil {
		return errs.Wrap(errs.CodeRuntime, err)
	}
	r.ContainerID = containerID
	if err := e.store.Save(r); err != nil {
		return err
	}

	if err := e.driver.StartContainer(ctx, containerID); err != nil {
		return errs.Wrap(errs.CodeRuntime, err)
	}

	port, err := e.broker.AllocatePort(r.ID)
	if err != nil {
		return err
	}

	specs := make([]record.CapabilityServerSpec, 0, len(tmpl.CapabilityServers))
	for _, cs := range tmpl.CapabilityServers {
		enabled := cs.IsEnabled()
		specs = append(specs, record.CapabilityServerSpec{
			Name: cs.Name, Command: cs.Command, Args: cs.Args, Env: cs.Env, Enabled: enabled,
		})
	}

	if err := e.broker.Start(ctx, r.ID, containerID, port, specs); err != nil {
		e.broker.ReleasePort(port)
		return err
	}

	r.MCP = record.MCPSpec{Enabled: true, Servers: specs, Port: port}
	r.Status = record.StatusRunning
	if err := e.store.Save(r); err != nil {
		return err
	}

	runPostCreate(ctx, e.driver, containerID, tmpl.PostCreate)
	return nil
}

// runPostCreate runs each post-create command, logging (not failing) on
// error — spec §4.1: "post-create failures are warnings, not fatal".
func runPostCreate(ctx context.Context, driver runtime.Driver, containerID string, cmds []string) {
	for _, c := range cmds {
		res, err := driver.Exec(ctx, containerID, []string{"/bin/sh", "-c", c}, nil, "/workspace")
		if err != nil {
			log.Printf("lifecycle: post-create command %q failed: %v", c, err)
			continue
		}
		if res.ExitCode != 0 {
			log.Printf("lifecycle: post-create command %q exited %d: %s", c, res.ExitCode, res.Stderr)
		}
	}
}

// Start transitions a `stopped` sandbox back to `running` (spec §4.1).
func (e *Engine) Start(ctx context.Context, id string) (*record.Record, error) {
	unlock := e.mutexes.lock(id)
	defer unlock()

	r, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if r.Status != record.StatusStopped {
		return nil, invalidState("start", id, r.Status)
	}

	if err := e.driver.StartContainer(ctx, r.ContainerID); err != nil {
		return nil, errs.Wrap(errs.CodeRuntime, err)
	}

	port, err := e.broker.AllocatePort(r.ID)
	if err != nil {
		return nil, err
	}
	if err := e.broker.Start(ctx, r.ID, r.ContainerID, port, r.MCP.Servers); err != nil {
		e.broker.ReleasePort(port)
		return nil, err
	}

	r.MCP.Port = port
	r.Status = record.StatusRunning
	if err := e.store.Save(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Stop transitions a `running` sandbox to `stopped`, stopping its broker
// session and container but leaving its record and workspace intact (spec
// §4.1).
func (e *Engine) Stop(ctx context.Context, id string) error {
	unlock := e.mutexes.lock(id)
	defer unlock()

	r, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if r.Status != record.StatusRunning {
		return invalidState("stop", id, r.Status)
	}

	e.broker.Stop(r.ID)
	e.broker.ReleasePort(r.MCP.Port)

	if err := e.driver.StopContainer(ctx, r.ContainerID, int(runtime.DefaultStopGrace.Seconds())); err != nil {
		return errs.Wrap(errs.CodeRuntime, err)
	}

	r.MCP.Port = 0
	r.Status = record.StatusStopped
	return e.store.Save(r)
}

// Remove deletes a sandbox outright: stops the broker/container if still
// running, force-removes the container, archives its logs, and deletes
// its on-disk tree (spec §4.1, §4.5).
func (e *Engine) Remove(ctx context.Context, id string) error {
	unlock := e.mutexes.lock(id)
	defer unlock()

	r, err := e.store.Get(id)
	if err != nil {
		return err
	}

	if r.Status == record.StatusRunning {
		e.broker.Stop(r.ID)
		e.broker.ReleasePort(r.MCP.Port)
	}

	if r.ContainerID != "" {
		e.archiveLogs(ctx, r)
		if err := e.driver.RemoveContainer(ctx, r.ContainerID, true); err != nil {
			log.Printf("lifecycle: remove %s: container removal failed (continuing): %v", id, err)
		}
	}

	return e.store.Remove(id)
}

// Info returns the current record for id (spec §4.1).
func (e *Engine) Info(id string) (*record.Record, error) {
	return e.store.Get(id)
}

// List enumerates all sandbox records, newest first (spec §4.1).
func (e *Engine) List() ([]*record.Record, error) {
	return e.store.List()
}

// Logs streams a sandbox's container logs (spec §4.1).
func (e *Engine) Logs(ctx context.Context, id string, opts LogOptions) (io.ReadCloser, error) {
	r, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if r.ContainerID == "" {
		return nil, errs.New(errs.CodeNoContainer, "sandbox %s has no container", id).WithContext("id", id)
	}
	return e.driver.Logs(ctx, r.ContainerID, runtime.LogOptions{Follow: opts.Follow, TailLines: opts.Tail})
}

// Cleanup removes every record matching selector, tallying successes and
// failures rather than aborting on the first error (spec §4.1).
func (e *Engine) Cleanup(ctx context.Context, selector CleanupSelector) (CleanupResult, error) {
	records, err := e.store.List()
	if err != nil {
		return CleanupResult{}, err
	}

	var targets []*record.Record
	for _, r := range records {
		if matchesSelector(r.Status, selector) {
			targets = append(targets, r)
		}
	}

	var (
		result CleanupResult
		mu     sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for _, r := range targets {
		r := r
		g.Go(func() error {
			err := e.Remove(gctx, r.ID)
			mu.Lock()
			if err != nil {
				result.Failed++
				log.Printf("lifecycle: cleanup: remove %s failed: %v", r.ID, err)
			} else {
				result.Removed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result, nil
}

func matchesSelector(status record.Status, selector CleanupSelector) bool {
	switch selector {
	case CleanupStopped:
		return status == record.StatusStopped
	case CleanupErrored:
		return status == record.StatusError
	case CleanupAll:
		return status == record.StatusStopped || status == record.StatusError
	default:
		return false
	}
}

// archiveLogs snapshots the container's logs into the store's archive
// directory, compressed, before the container is removed (SPEC_FULL §4.5).
func (e *Engine) archiveLogs(ctx context.Context, r *record.Record) {
	rc, err := e.driver.Logs(ctx, r.ContainerID, runtime.LogOptions{Follow: false})
	if err != nil {
		log.Printf("lifecycle: archive logs for %s: %v", r.ID, err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		log.Printf("lifecycle: archive logs for %s: read: %v", r.ID, err)
		return
	}

	if err := ensureArchiveDir(e.store.ArchiveDir()); err != nil {
		log.Printf("lifecycle: archive logs for %s: %v", r.ID, err)
		return
	}
	if err := compressToArchive(e.store.ArchivePath(r.ID), data); err != nil {
		log.Printf("lifecycle: archive logs for %s: %v", r.ID, err)
	}
}

func ensureArchiveDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New(errs.CodeIO, "create archive directory: %v", err)
	}
	return nil
}

func compressToArchive(path string, data []byte) error {
	if err := codecutil.CompressToFile(path, data); err != nil {
		return errs.New(errs.CodeIO, "compress log archive: %v", err)
	}
	return nil
}

func resolveResources(req CreateRequest) (memBytes int64, cpuMillicores int64, timeoutSecs int64, err error) {
	memBytes, err = record.ParseMemory(req.Memory)
	if err != nil {
		return 0, 0, 0, err
	}
	cores, err := record.ParseCPU(req.CPU)
	if err != nil {
		return 0, 0, 0, err
	}
	cpuMillicores = record.CPUMillicores(cores)
	timeoutSecs, err = record.ParseTimeoutMinutes(req.TimeoutMins)
	if err != nil {
		return 0, 0, 0, err
	}
	return memBytes, cpuMillicores, timeoutSecs, nil
}

// newID returns a 10-character random hex id, within spec §3's 8-12
// character id length constraint.
func newID() (string, error) {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
