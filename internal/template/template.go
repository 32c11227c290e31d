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

// Package template implements the Template Registry (spec §4.4): sandbox
// templates are data, not code, looked up from a custom directory first and
// the built-in go:embed set second.
package template

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/dcsandbox/dcsandbox/internal/errs"
)

// CapabilityServer mirrors record.CapabilityServerSpec in template-file
// form; the Lifecycle Engine converts one to the other when materializing a
// record.
type CapabilityServer struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Enabled *bool             `yaml:"enabled,omitempty"`
}

// IsEnabled defaults to true when the template omits the field.
func (c CapabilityServer) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Feature is a versioned add-on declared as "name@constraint", e.g.
// "node@^20" (spec §4.4, Masterminds/semver constraint syntax).
type Feature struct {
	Name       string
	Constraint *semver.Constraints
	Raw        string
}

// Template is the structured document the registry resolves a template
// name to. Validate requires Name, BaseImage and CapabilityServers; a
// missing or empty Features list is accepted. PostCreate/Env/Ports are
// optional.
type Template struct {
	Name              string              `yaml:"name"`
	BaseImage         string              `yaml:"baseImage"`
	Features          []string            `yaml:"features"`
	CapabilityServers []CapabilityServer  `yaml:"capabilityServers"`
	PostCreate        []string            `yaml:"postCreate,omitempty"`
	Env               map[string]string   `yaml:"env,omitempty"`
	Ports             []int               `yaml:"ports,omitempty"`
}

// Validate enforces the "basic shape validation" spec §4.4 requires before
// a template is admitted to a registry listing.
func (t *Template) Validate() error {
	if t.Name == "" {
		return errs.New(errs.CodeValidation, "template missing required field: name")
	}
	if t.BaseImage == "" {
		return errs.New(errs.CodeValidation, "template %q missing required field: baseImage", t.Name)
	}
	if t.CapabilityServers == nil {
		return errs.New(errs.CodeValidation, "template %q missing required field: capabilityServers", t.Name)
	}
	for _, cs := range t.CapabilityServers {
		if cs.Name == "" || cs.Command == "" {
			return errs.New(errs.CodeValidation, "template %q has a capability server with no name/command", t.Name)
		}
	}
	return nil
}

// ParsedFeatures parses each "name@constraint" entry. A bare name with no
// "@" is treated as an unconstrained feature (any version satisfies it).
func (t *Template) ParsedFeatures() ([]Feature, error) {
	out := make([]Feature, 0, len(t.Features))
	for _, raw := range t.Features {
		name, constraintStr, hasConstraint := splitFeature(raw)
		var c *semver.Constraints
		if hasConstraint {
			parsed, err := semver.NewConstraint(constraintStr)
			if err != nil {
				return nil, errs.New(errs.CodeValidation, "template %q feature %q: invalid version constraint: %v", t.Name, raw, err)
			}
			c = parsed
		}
		out = append(out, Feature{Name: name, Constraint: c, Raw: raw})
	}
	return out, nil
}

func splitFeature(raw string) (name, constraint string, hasConstraint bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '@' {
			return raw[:i], raw[i+1:], true
		}
	}
	return raw, "", false
}

// Satisfies reports whether version satisfies f's constraint (or always
// true if the feature is unconstrained).
func (f Feature) Satisfies(version string) (bool, error) {
	if f.Constraint == nil {
		return true, nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("invalid version %q: %w", version, err)
	}
	return f.Constraint.Check(v), nil
}
