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

// Package record defines the persisted Sandbox Record and its embedded
// value types. See spec §3.
package record

import (
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Status is the mutable lifecycle state of a Sandbox Record.
type Status string

const (
	StatusCreating Status = "creating"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// CapabilityServerSpec describes one in-container capability server.
// Immutable once embedded in a Record.
type CapabilityServerSpec struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Enabled bool              `json:"enabled"`
}

// GitSpec records the optional clone source for a sandbox.
type GitSpec struct {
	URL       string `json:"url"`
	Branch    string `json:"branch"`
	ClonePath string `json:"clonePath"`
}

// MCPSpec records the MCP configuration embedded in a record.
type MCPSpec struct {
	Enabled bool                   `json:"enabled"`
	Servers []CapabilityServerSpec `json:"servers"`
	Port    int                    `json:"port,omitempty"`
}

// Resources records the resource limits and lifetime policy for a sandbox.
type Resources struct {
	MemoryBytes   int64 `json:"memoryBytes"`
	CPUMillicores int64 `json:"cpuMillicores"`
	DiskBytes     int64 `json:"diskBytes,omitempty"`
	TimeoutSecs   int64 `json:"timeoutSeconds"`
	// Persist, when true, exempts the sandbox from the background reaper
	// (§4.1 of SPEC_FULL.md) regardless of TimeoutSecs.
	Persist bool `json:"persist"`
}

// Record is the single persisted entity (spec §3).
type Record struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	Template    string    `json:"template"`
	Git         *GitSpec  `json:"git,omitempty"`
	MCP         MCPSpec   `json:"mcp"`
	Resources   Resources `json:"resources"`
	ContainerID string    `json:"containerId,omitempty"`

	// ImageDigest is the content digest of the synthesized build context,
	// recorded for diagnostics alongside the image tag derived from it.
	ImageDigest string `json:"imageDigest,omitempty"`

	// Platform is the OS/architecture the image was built for, recorded for
	// diagnostics (SPEC_FULL §6). It is set once the image build succeeds
	// and stays set if a later create step fails.
	Platform *ocispec.Platform `json:"platform,omitempty"`

	// Generation is bumped on every atomic rewrite; used only to detect
	// lost-update races in tests (SPEC_FULL §3).
	Generation int64 `json:"generation"`

	// LastObservedAt is the last time inspectContainer succeeded for this
	// record's container, used by startup reconciliation.
	LastObservedAt time.Time `json:"lastObservedAt,omitempty"`
}

// Valid checks the record invariants from spec §3.
func (r *Record) Valid() bool {
	switch r.Status {
	case StatusRunning:
		if r.ContainerID == "" || r.MCP.Port == 0 {
			return false
		}
	case StatusStopped:
		if r.MCP.Port != 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep-enough copy of r suitable for returning from a
// short read lock (spec §5).
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Git != nil {
		g := *r.Git
		cp.Git = &g
	}
	if r.Platform != nil {
		p := *r.Platform
		cp.Platform = &p
	}
	cp.MCP.Servers = append([]CapabilityServerSpec(nil), r.MCP.Servers...)
	return &cp
}
