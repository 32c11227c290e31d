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

package template

import (
	"embed"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dcsandbox/dcsandbox/internal/errs"
)

//go:embed builtins/*.yaml
var builtinFS embed.FS

// RequiredBuiltins lists the minimum set spec §4.4 requires ship as data.
var RequiredBuiltins = []string{"base", "node", "python", "go", "rust", "react", "django", "fullstack"}

// Registry resolves template names, preferring a custom directory over the
// built-in set (spec §4.4: "Lookup order: custom templates directory
// first, then built-in").
type Registry struct {
	customDir string
	builtins  map[string]*Template
}

// NewRegistry loads the embedded built-ins and points the registry at
// customDir for user overrides (customDir may not exist; that's fine, it
// just contributes nothing).
func NewRegistry(customDir string) (*Registry, error) {
	builtins, err := loadBuiltins()
	if err != nil {
		return nil, err
	}
	return &Registry{customDir: customDir, builtins: builtins}, nil
}

func loadBuiltins() (map[string]*Template, error) {
	entries, err := builtinFS.ReadDir("builtins")
	if err != nil {
		return nil, errs.New(errs.CodeInternal, "read embedded templates: %v", err)
	}
	out := make(map[string]*Template, len(entries))
	for _, e := range entries {
		bs, err := builtinFS.ReadFile(filepath.Join("builtins", e.Name()))
		if err != nil {
			return nil, errs.New(errs.CodeInternal, "read embedded template %s: %v", e.Name(), err)
		}
		t, err := parseTemplate(bs)
		if err != nil {
			// A broken built-in is a programmer error, not a runtime condition;
			// fail loudly rather than silently degrading the registry.
			return nil, errs.New(errs.CodeInternal, "embedded template %s: %v", e.Name(), err)
		}
		out[t.Name] = t
	}
	return out, nil
}

func parseTemplate(bs []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(bs, &t); err != nil {
		return nil, errs.New(errs.CodeValidation, "parse template: %v", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Lookup resolves name, preferring customDir/<name>.yaml over the built-in
// of the same name. Returns CodeTemplateNotFound if neither exists.
func (r *Registry) Lookup(name string) (*Template, error) {
	if r.customDir != "" {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(r.customDir, name+ext)
			bs, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			t, err := parseTemplate(bs)
			if err != nil {
				log.Printf("template: skipping invalid custom template %s: %v", path, err)
				break
			}
			return t, nil
		}
	}
	if t, ok := r.builtins[name]; ok {
		return t, nil
	}
	return nil, errs.New(errs.CodeTemplateNotFound, "template %q not found", name)
}

// List enumerates all resolvable template names: custom templates shadow
// built-ins of the same name, and invalid custom files are skipped with a
// warning rather than failing the listing (spec §4.4).
func (r *Registry) List() []*Template {
	byName := make(map[string]*Template, len(r.builtins))
	for name, t := range r.builtins {
		byName[name] = t
	}
	if r.customDir != "" {
		entries, err := os.ReadDir(r.customDir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				ext := filepath.Ext(e.Name())
				if ext != ".yaml" && ext != ".yml" {
					continue
				}
				bs, err := os.ReadFile(filepath.Join(r.customDir, e.Name()))
				if err != nil {
					continue
				}
				t, err := parseTemplate(bs)
				if err != nil {
					log.Printf("template: skipping invalid custom template %s: %v", e.Name(), err)
					continue
				}
				byName[t.Name] = t
			}
		}
	}
	out := make([]*Template, 0, len(byName))
	for _, t := range byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].Name, out[j].Name) < 0 })
	return out
}
