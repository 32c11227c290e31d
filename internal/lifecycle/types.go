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

// Package lifecycle implements the Lifecycle Engine (spec §4.1): the
// single component that owns the sandbox state machine, coordinating the
// Project Detector, Template Registry, Runtime Driver, Store, and MCP
// Broker.
package lifecycle

// CreateRequest is the input to Engine.Create (spec §4.1, §6 command
// surface).
type CreateRequest struct {
	Name        string
	GitURL      string
	GitBranch   string
	GitToken    string
	Template    string
	AutoDetect  bool
	Memory      string
	CPU         string
	TimeoutMins int
	Persist     bool
}

// CleanupSelector chooses which records Engine.Cleanup targets.
type CleanupSelector string

const (
	CleanupStopped CleanupSelector = "stopped"
	CleanupErrored CleanupSelector = "errored"
	CleanupAll     CleanupSelector = "all"
)

// CleanupResult tallies Engine.Cleanup's outcome (spec §4.1: "count
// removed, count failed").
type CleanupResult struct {
	Removed int
	Failed  int
}

// LogOptions mirrors the CLI's -f/--tail flags (spec §6).
type LogOptions struct {
	Follow bool
	Tail   int
}
