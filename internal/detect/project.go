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

import "path/filepath"

// DetectProject is the entry point the Lifecycle Engine calls for
// --auto-detect: it walks root, applies the compose/Dockerfile
// short-circuit, confirms a TypeScript winner with a real parse, and
// otherwise runs the additive scoring table.
func DetectProject(root string) (Detection, error) {
	if HasComposeFile(root) || HasDockerfile(root) {
		// The repo already describes its own container; there's no detected
		// language template to apply, so resolve to the registry's base
		// template rather than a "custom" name the Registry never ships.
		return Detection{Language: "custom", Template: "base", Confidence: 1.0}, nil
	}

	listing, err := Walk(root)
	if err != nil {
		return Detection{}, err
	}

	d := Detect(listing)

	if d.Language == "javascript" && d.Confidence >= Threshold {
		if !anyTypeScriptConfirmed(root, listing.Names) && hasTSName(listing.Names) {
			// Extension matched but none parsed: withdraw the TypeScript bonus
			// by subtracting it from the already-clamped d.Confidence.
			d.Confidence = clamp01(d.Confidence - 0.1)
		}
	}
	return d, nil
}

func hasTSName(names []string) bool {
	for _, n := range names {
		ext := filepath.Ext(n)
		if ext == ".ts" || ext == ".tsx" {
			return true
		}
	}
	return false
}

func anyTypeScriptConfirmed(root string, names []string) bool {
	for _, n := range names {
		ext := filepath.Ext(n)
		if ext != ".ts" && ext != ".tsx" {
			continue
		}
		if ConfirmTypeScript(filepath.Join(root, n)) {
			return true
		}
	}
	return false
}
