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
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/distribution/reference"
	"github.com/docker/docker/api/types"
	containerTypes "github.com/docker/docker/api/types/container"
	imageTypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	digest "github.com/opencontainers/go-digest"

	"github.com/dcsandbox/dcsandbox/internal/errs"
	"github.com/dcsandbox/dcsandbox/pkg/targz"
)

// DockerDriver implements Driver against the real Docker Engine API.
type DockerDriver struct {
	cli *client.Client
}

// NewDockerDriver dials the daemon named by DOCKER_HOST (or the platform
// default socket), negotiating the API version like the reference provider
// this is grounded on.
func NewDockerDriver() (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errs.New(errs.CodeRuntime, "create docker client: %v", err)
	}
	return &DockerDriver{cli: cli}, nil
}

// Close releases the underlying client's connections.
func (d *DockerDriver) Close() error {
	return d.cli.Close()
}

// BuildImage streams contextDir as an in-memory tar+gzip archive to
// ImageBuild and tags the result, per SPEC_FULL §4.6. tagPrefix is
// validated as a normalized repository reference (spec §4.6:
// "github.com/docker/distribution/reference before being sent to the
// daemon") before anything is sent to the daemon. The final tag is
// content-addressed from the build archive (file contents and tar headers),
// and the build is skipped when an image under that tag already exists.
func (d *DockerDriver) BuildImage(ctx context.Context, contextDir, tagPrefix string) (string, string, error) {
	if _, err := reference.ParseNormalizedNamed(tagPrefix); err != nil {
		return "", "", errs.New(errs.CodeValidation, "invalid image tag %q: %v", tagPrefix, err)
	}

	buf, err := tarGzDir(contextDir)
	if err != nil {
		return "", "", errs.New(errs.CodeBuildFailed, "prepare build context: %v", err)
	}
	dgst := digest.FromBytes(buf.Bytes())
	tag := fmt.Sprintf("%s:%s", tagPrefix, dgst.Encoded()[:12])

	if _, err := d.cli.ImageInspect(ctx, tag); err == nil {
		return tag, dgst.String(), nil
	}

	resp, err := d.cli.ImageBuild(ctx, buf, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return "", "", errs.New(errs.CodeBuildFailed, "image build: %v", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return "", "", errs.New(errs.CodeBuildFailed, "read build output: %v", err)
	}
	return tag, dgst.String(), nil
}

func tarGzDir(dir string) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	if err := targz.WriteDir(&buf, dir); err != nil {
		return nil, err
	}
	return &buf, nil
}

// CreateContainer translates spec into a ContainerCreate call: memory/CPU
// limits, bridge network, bind mounts, env, exposed ports (SPEC_FULL §4.1
// step 6).
func (d *DockerDriver) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}
	for _, p := range spec.ExposedPorts {
		port := nat.Port(fmt.Sprintf("%d/tcp", p))
		exposedPorts[port] = struct{}{}
		portBindings[port] = []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: fmt.Sprintf("%d", p)}}
	}

	binds := make([]string, 0, len(spec.BindMounts))
	for host, container := range spec.BindMounts {
		binds = append(binds, fmt.Sprintf("%s:%s", host, container))
	}

	containerConfig := &containerTypes.Config{
		Image:        spec.Image,
		Env:          env,
		WorkingDir:   spec.Workdir,
		ExposedPorts: exposedPorts,
		Labels:       spec.Labels,
		Tty:          false,
	}
	networkMode := containerTypes.NetworkMode(spec.NetworkMode)
	if networkMode == "" {
		networkMode = "bridge"
	}
	hostConfig := &containerTypes.HostConfig{
		Binds:        binds,
		PortBindings: portBindings,
		NetworkMode:  networkMode,
		AutoRemove:   spec.AutoRemove,
		Resources: containerTypes.Resources{
			Memory:   spec.MemoryBytes,
			NanoCPUs: spec.NanoCPUs,
		},
	}

	resp, err := d.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", errs.New(errs.CodeRuntime, "container create: %v", err)
	}
	return resp.ID, nil
}

// StartContainer starts an existing container.
func (d *DockerDriver) StartContainer(ctx context.Context, id string) error {
	if err := d.cli.ContainerStart(ctx, id, containerTypes.StartOptions{}); err != nil {
		return errs.New(errs.CodeRuntime, "container start: %v", err).WithContext("containerId", id)
	}
	return nil
}

// StopContainer sends SIGTERM, waiting up to graceSeconds before SIGKILL
// (handled by the daemon's own stop timeout semantics).
func (d *DockerDriver) StopContainer(ctx context.Context, id string, graceSeconds int) error {
	timeout := graceSeconds
	if err := d.cli.ContainerStop(ctx, id, containerTypes.StopOptions{Timeout: &timeout}); err != nil {
		return errs.New(errs.CodeRuntime, "container stop: %v", err).WithContext("containerId", id)
	}
	return nil
}

// RemoveContainer removes a container, optionally forcing removal of a
// still-running one.
func (d *DockerDriver) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := d.cli.ContainerRemove(ctx, id, containerTypes.RemoveOptions{Force: force}); err != nil {
		return errs.New(errs.CodeRuntime, "container remove: %v", err).WithContext("containerId", id)
	}
	return nil
}

// InspectContainer reports whether id still exists and is running.
func (d *DockerDriver) InspectContainer(ctx context.Context, id string) (ContainerInfo, error) {
	info, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return ContainerInfo{}, errs.New(errs.CodeNotFound, "container inspect: %v", err).WithContext("containerId", id)
	}
	ci := ContainerInfo{ID: info.ID, Name: info.Name}
	if info.State != nil {
		ci.Running = info.State.Running
		ci.Status = info.State.Status
	}
	if info.Config != nil {
		ci.Image = info.Config.Image
	}
	return ci, nil
}

// Exec runs argv as a one-shot command in id, demultiplexing combined
// stdout/stderr via stdcopy (the pattern the reference provider uses).
func (d *DockerDriver) Exec(ctx context.Context, id string, argv []string, stdin io.Reader, workdir string) (ExecResult, error) {
	execConfig := containerTypes.ExecOptions{
		Cmd:          argv,
		WorkingDir:   workdir,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  stdin != nil,
	}
	created, err := d.cli.ContainerExecCreate(ctx, id, execConfig)
	if err != nil {
		return ExecResult{}, errs.New(errs.CodeRuntime, "exec create: %v", err).WithContext("containerId", id)
	}
	resp, err := d.cli.ContainerExecAttach(ctx, created.ID, containerTypes.ExecStartOptions{})
	if err != nil {
		return ExecResult{}, errs.New(errs.CodeRuntime, "exec attach: %v", err).WithContext("containerId", id)
	}
	defer resp.Close()

	if stdin != nil {
		go func() {
			io.Copy(resp.Conn, stdin)
			resp.CloseWrite()
		}()
	}

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, resp.Reader); err != nil {
		return ExecResult{}, errs.New(errs.CodeRuntime, "exec read output: %v", err).WithContext("containerId", id)
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, errs.New(errs.CodeRuntime, "exec inspect: %v", err).WithContext("containerId", id)
	}
	return ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: inspect.ExitCode}, nil
}

// Logs streams container log output.
func (d *DockerDriver) Logs(ctx context.Context, id string, opts LogOptions) (io.ReadCloser, error) {
	tail := "all"
	if opts.TailLines > 0 {
		tail = fmt.Sprintf("%d", opts.TailLines)
	}
	rc, err := d.cli.ContainerLogs(ctx, id, containerTypes.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       tail,
	})
	if err != nil {
		return nil, errs.New(errs.CodeRuntime, "container logs: %v", err).WithContext("containerId", id)
	}
	return rc, nil
}

// ListContainers lists containers matching labelSelector, or all
// dcsandbox-managed ones when labelSelector is empty.
func (d *DockerDriver) ListContainers(ctx context.Context, labelSelector map[string]string) ([]ContainerInfo, error) {
	containers, err := d.cli.ContainerList(ctx, containerTypes.ListOptions{All: true})
	if err != nil {
		return nil, errs.New(errs.CodeRuntime, "container list: %v", err)
	}
	out := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		if !matchesLabels(c.Labels, labelSelector) {
			continue
		}
		if _, managed := c.Labels["dcsandbox.id"]; len(labelSelector) == 0 && !managed {
			continue
		}
		name := ""
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		out = append(out, ContainerInfo{
			ID:      c.ID,
			Name:    name,
			Running: c.State == "running",
			Status:  c.Status,
			Image:   c.Image,
		})
	}
	return out, nil
}

func matchesLabels(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// PullImage ensures image is present locally, pulling it if ImageInspect
// fails.
func (d *DockerDriver) PullImage(ctx context.Context, image string) error {
	if _, err := d.cli.ImageInspect(ctx, image); err == nil {
		return nil
	}
	reader, err := d.cli.ImagePull(ctx, image, imageTypes.PullOptions{})
	if err != nil {
		return errs.New(errs.CodeBuildFailed, "image pull: %v", err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}
