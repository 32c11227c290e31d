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

package record

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dcsandbox/dcsandbox/internal/errs"
	units "github.com/docker/go-units"
)

// memoryGrammar matches spec §4.1: ^\d+[KMGT]?$ (case-insensitive), no unit
// means bytes.
var memoryGrammar = regexp.MustCompile(`^[0-9]+[KMGTkmgt]?$`)

// ParseMemory validates and converts a memory string per spec §4.1's
// grammar. It delegates the actual unit math to docker/go-units, whose
// RAMInBytes superset already implements the K=2^10, M=2^20, G=2^30, T=2^40
// semantics spec.md requires; the grammar check here rejects the forms
// go-units would otherwise accept more liberally (e.g. "1KB", "1 G", "").
func ParseMemory(s string) (int64, error) {
	if !memoryGrammar.MatchString(s) {
		return 0, errs.New(errs.CodeValidation, "invalid memory string %q", s)
	}
	b, err := units.RAMInBytes(s)
	if err != nil {
		return 0, errs.New(errs.CodeValidation, "invalid memory string %q: %v", s, err)
	}
	if b <= 0 {
		return 0, errs.New(errs.CodeValidation, "memory must be positive, got %q", s)
	}
	return b, nil
}

// MaxCPUCores is the configurable upper bound from spec §4.1.
const MaxCPUCores = 32

// ParseCPU validates a CPU core count per spec §4.1: positive, >=1, <=
// MaxCPUCores, fractional values allowed.
func ParseCPU(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errs.New(errs.CodeValidation, "invalid cpu value %q", s)
	}
	if v < 1 || v > MaxCPUCores {
		return 0, errs.New(errs.CodeValidation, "cpu must be in [1, %d], got %v", MaxCPUCores, v)
	}
	return v, nil
}

// CPUMillicores converts a core count to millicores for storage on the
// record; NanoCPUs converts those to the Runtime Driver's unit.
func CPUMillicores(cores float64) int64 {
	return int64(cores * 1000)
}

// NanoCPUs converts stored millicores to the nano-CPU unit the container
// runtime expects (cpuCores * 10^9, per spec §4.1 step 6).
func NanoCPUs(millicores int64) int64 {
	return millicores * 1_000_000
}

// MinTimeoutMinutes and MaxTimeoutMinutes bound spec §4.1's timeout grammar
// (30 <= t <= 3600 minutes).
const (
	MinTimeoutMinutes = 30
	MaxTimeoutMinutes = 3600
)

// ParseTimeoutMinutes validates the --timeout flag per spec §4.1.
func ParseTimeoutMinutes(minutes int) (int64, error) {
	if minutes < MinTimeoutMinutes || minutes > MaxTimeoutMinutes {
		return 0, errs.New(errs.CodeValidation, "timeout must be in [%d, %d] minutes, got %d", MinTimeoutMinutes, MaxTimeoutMinutes, minutes)
	}
	return int64(minutes) * 60, nil
}

// nameGrammar matches human-visible sandbox names: must be non-empty and
// contain only characters safe for use as a container/image name fragment.
var nameGrammar = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidateName checks the human-visible name grammar. Uniqueness across
// active records is checked by the Store/Lifecycle Engine, not here.
func ValidateName(name string) error {
	if !nameGrammar.MatchString(name) {
		return errs.New(errs.CodeValidation, "invalid sandbox name %q", name)
	}
	return nil
}

// DeriveName returns a name from a repository URL's basename, stripping a
// trailing ".git" suffix, for use when no --name flag was given.
func DeriveName(gitURL string) string {
	s := strings.TrimSuffix(gitURL, "/")
	s = strings.TrimSuffix(s, ".git")
	if i := strings.LastIndexAny(s, "/:"); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return "sandbox"
	}
	return s
}

// FormatBytes renders a byte count for display in binary units (e.g.
// "2GiB"), using go-units' human-readable formatter; the result is not in
// the K/M/G/T grammar that ParseMemory accepts.
func FormatBytes(b int64) string {
	return units.BytesSize(float64(b))
}
