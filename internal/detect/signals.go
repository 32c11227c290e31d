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

package detect

import (
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
	"gopkg.in/yaml.v3"
)

// HasComposeFile reports whether root contains a docker-compose.yml (or
// .yaml, or compose.yml) that parses as a structured document with a
// top-level `services` key. When true the caller short-circuits the
// scoring table entirely: language=custom, template=base, confidence=1.0
// (SPEC_FULL §4.3), since a repo that already describes its own service
// topology should not be second-guessed by language heuristics.
func HasComposeFile(root string) bool {
	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"} {
		path := filepath.Join(root, name)
		bs, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if looksLikeCompose(bs) {
			return true
		}
	}
	return false
}

func looksLikeCompose(bs []byte) bool {
	form := struct {
		Services map[string]any `yaml:"services"`
	}{}
	if err := yaml.Unmarshal(bs, &form); err != nil {
		return false
	}
	return form.Services != nil
}

// HasDockerfile reports whether root contains a Dockerfile, the second
// signal (alongside HasComposeFile) that short-circuits detection straight
// to language=custom, template=base.
func HasDockerfile(root string) bool {
	_, err := os.Stat(filepath.Join(root, "Dockerfile"))
	return err == nil
}

// ConfirmTypeScript parses a candidate .ts/.tsx file with esbuild's
// TypeScript loader (the TSX loader for .tsx) to confirm the extension
// match isn't a false positive (SPEC_FULL §4.3: "TypeScript confirmation
// via a real esbuild parse, not just an extension match").
func ConfirmTypeScript(path string) bool {
	bs, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	loader := api.LoaderTS
	if filepath.Ext(path) == ".tsx" {
		loader = api.LoaderTSX
	}
	result := api.Transform(string(bs), api.TransformOptions{Loader: loader})
	return len(result.Errors) == 0
}
