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

package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	digest "github.com/opencontainers/go-digest"

	"github.com/dcsandbox/dcsandbox/internal/errs"
)

// FakeDriver is an in-memory Driver used by Lifecycle Engine tests so they
// don't require a live Docker daemon.
type FakeDriver struct {
	mu         sync.Mutex
	nextID     int
	containers map[string]*fakeContainer
	images     map[string]bool
	// BuildErr, when set, is returned by every BuildImage call.
	BuildErr error
	// BuildCount counts actual (non-skipped) BuildImage calls, so tests can
	// assert the content-addressed skip path was taken.
	BuildCount int
	// ExecFunc, when set, overrides the default echo-argv Exec behavior.
	ExecFunc func(argv []string) (ExecResult, error)
}

type fakeContainer struct {
	spec    ContainerSpec
	running bool
}

// NewFakeDriver returns an empty FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{containers: make(map[string]*fakeContainer), images: make(map[string]bool)}
}

// BuildImage mirrors DockerDriver's content-addressed tagging without
// touching a real daemon: the tag is derived from a digest of the
// contextDir path string (not its contents), and a repeat call with the
// same inputs is a no-op.
func (f *FakeDriver) BuildImage(ctx context.Context, contextDir, tagPrefix string) (string, string, error) {
	if f.BuildErr != nil {
		return "", "", f.BuildErr
	}
	dgst := digest.FromString(contextDir)
	tag := fmt.Sprintf("%s:%s", tagPrefix, dgst.Encoded()[:12])

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.images[tag] {
		return tag, dgst.String(), nil
	}
	f.images[tag] = true
	f.BuildCount++
	return tag, dgst.String(), nil
}

func (f *FakeDriver) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("fake-container-%d", f.nextID)
	f.containers[id] = &fakeContainer{spec: spec}
	return id, nil
}

func (f *FakeDriver) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return errs.New(errs.CodeNotFound, "fake container %s not found", id)
	}
	c.running = true
	return nil
}

func (f *FakeDriver) StopContainer(ctx context.Context, id string, graceSeconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return errs.New(errs.CodeNotFound, "fake container %s not found", id)
	}
	c.running = false
	return nil
}

func (f *FakeDriver) RemoveContainer(ctx context.Context, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
	return nil
}

func (f *FakeDriver) InspectContainer(ctx context.Context, id string) (ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return ContainerInfo{}, errs.New(errs.CodeNotFound, "fake container %s not found", id)
	}
	return ContainerInfo{ID: id, Name: c.spec.Name, Running: c.running, Image: c.spec.Image}, nil
}

func (f *FakeDriver) Exec(ctx context.Context, id string, argv []string, stdin io.Reader, workdir string) (ExecResult, error) {
	if f.ExecFunc != nil {
		return f.ExecFunc(argv)
	}
	return ExecResult{Stdout: []byte(strings.Join(argv, " ")), ExitCode: 0}, nil
}

func (f *FakeDriver) Logs(ctx context.Context, id string, opts LogOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *FakeDriver) ListContainers(ctx context.Context, labelSelector map[string]string) ([]ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ContainerInfo, 0, len(f.containers))
	for id, c := range f.containers {
		out = append(out, ContainerInfo{ID: id, Name: c.spec.Name, Running: c.running, Image: c.spec.Image})
	}
	return out, nil
}
