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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dcsandbox/dcsandbox/internal/errs"
	"github.com/dcsandbox/dcsandbox/internal/template"
	"github.com/dcsandbox/dcsandbox/pkg/env"
)

// synthesizeDockerfile renders a Containerfile from t: base image, one
// "# feature:" comment line per feature, workdir /workspace, copy
// workspace, env, expose ports, default shell (spec §4.1 step 4). Features
// are recorded as comments only; no install commands are emitted for them.
func synthesizeDockerfile(t *template.Template) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", t.BaseImage)

	features, err := t.ParsedFeatures()
	if err != nil {
		return "", err
	}
	for _, f := range features {
		fmt.Fprintf(&b, "# feature: %s\n", f.Raw)
	}

	fmt.Fprintf(&b, "WORKDIR /workspace\n")
	fmt.Fprintf(&b, "COPY workspace/ /workspace/\n")

	envKeys := make([]string, 0, len(t.Env))
	for k := range t.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		fmt.Fprintf(&b, "ENV %s=%s\n", k, t.Env[k])
	}

	for _, p := range t.Ports {
		fmt.Fprintf(&b, "EXPOSE %d\n", p)
	}

	fmt.Fprintf(&b, `SHELL ["/bin/bash", "-c"]`)
	b.WriteString("\n")

	return b.String(), nil
}

// devcontainerDescriptor is the small, spec-defined subset of a
// devcontainer.json this engine writes alongside the Dockerfile — just
// enough to describe the build recipe and forwarded ports, not the full
// devcontainer.json schema.
type devcontainerDescriptor struct {
	Name            string   `json:"name"`
	Build           buildRef `json:"build"`
	WorkspaceFolder string   `json:"workspaceFolder"`
	ForwardPorts    []int    `json:"forwardPorts,omitempty"`
}

type buildRef struct {
	Dockerfile string `json:"dockerfile"`
	Context    string `json:"context"`
}

func synthesizeDevcontainer(sandboxName string, t *template.Template) devcontainerDescriptor {
	return devcontainerDescriptor{
		Name:            sandboxName,
		Build:           buildRef{Dockerfile: "Dockerfile", Context: "."},
		WorkspaceFolder: "/workspace",
		ForwardPorts:    t.Ports,
	}
}

// writeBuildContext materializes the Dockerfile and .devcontainer/devcontainer.json
// atomically (write-to-temp-then-rename, same discipline as the Store).
func writeBuildContext(sandboxDir string, t *template.Template, sandboxName string) error {
	dockerfile, err := synthesizeDockerfile(t)
	if err != nil {
		return err
	}
	if err := writeAtomicFile(filepath.Join(sandboxDir, "Dockerfile"), []byte(dockerfile)); err != nil {
		return err
	}

	devcontainerDir := filepath.Join(sandboxDir, ".devcontainer")
	if err := os.MkdirAll(devcontainerDir, 0o755); err != nil {
		return errs.New(errs.CodeWorkspaceSetupError, "create .devcontainer directory: %v", err)
	}
	descriptor := synthesizeDevcontainer(sandboxName, t)
	bs, err := json.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return errs.New(errs.CodeWorkspaceSetupError, "marshal devcontainer descriptor: %v", err)
	}
	if err := writeAtomicFile(filepath.Join(devcontainerDir, "devcontainer.json"), bs); err != nil {
		return err
	}

	if len(t.Env) > 0 {
		if err := env.Write(filepath.Join(sandboxDir, ".env"), t.Env); err != nil {
			return errs.New(errs.CodeWorkspaceSetupError, "write template env file: %v", err)
		}
	}
	return nil
}

func writeAtomicFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.New(errs.CodeWorkspaceSetupError, "write %s: %v", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.New(errs.CodeWorkspaceSetupError, "rename %s: %v", filepath.Base(path), err)
	}
	return nil
}
