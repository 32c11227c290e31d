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

// Package runtime defines the Runtime Driver surface (spec §4.6) and its
// real Docker Engine API implementation.
package runtime

import (
	"context"
	"io"
	goruntime "runtime"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// ContainerSpec is the input to CreateContainer.
type ContainerSpec struct {
	Image          string
	Name           string
	Workdir        string
	Env            map[string]string
	BindMounts     map[string]string // host path -> container path
	MemoryBytes    int64
	NanoCPUs       int64
	NetworkMode    string
	ExposedPorts   []int
	AutoRemove     bool
	Labels         map[string]string
}

// ContainerInfo is the result of InspectContainer.
type ContainerInfo struct {
	ID      string
	Name    string
	Running bool
	Status  string
	Image   string
}

// ExecResult is the result of a one-shot Exec call.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// LogOptions controls Logs streaming.
type LogOptions struct {
	Follow    bool
	TailLines int
}

// Driver is the minimum surface the Lifecycle Engine needs from a
// container runtime (spec §4.6). It is implemented for real by
// *DockerDriver and, for tests, by *FakeDriver.
type Driver interface {
	// BuildImage content-addresses contextDir and tags the result
	// "<tagPrefix>:<digest prefix>", skipping the actual build if an image
	// under that tag already exists. The Lifecycle Engine passes the whole
	// sandbox directory, record file included, so separate creates never
	// share a tag. It returns the resolved tag and the full digest string.
	BuildImage(ctx context.Context, contextDir, tagPrefix string) (tag string, imageDigest string, err error)
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, graceSeconds int) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	InspectContainer(ctx context.Context, id string) (ContainerInfo, error)
	Exec(ctx context.Context, id string, argv []string, stdin io.Reader, workdir string) (ExecResult, error)
	Logs(ctx context.Context, id string, opts LogOptions) (io.ReadCloser, error)
	ListContainers(ctx context.Context, labelSelector map[string]string) ([]ContainerInfo, error)
}

// DefaultStopGrace is the grace period used when the caller doesn't name
// one explicitly.
const DefaultStopGrace = 10 * time.Second

// HostPlatform reports the OS/architecture images are built for, recorded
// on the sandbox record for diagnostics (SPEC_FULL §6). Builds always
// target the host the daemon runs on; there is no cross-platform build
// support.
func HostPlatform() ocispec.Platform {
	return ocispec.Platform{OS: goruntime.GOOS, Architecture: goruntime.GOARCH}
}
