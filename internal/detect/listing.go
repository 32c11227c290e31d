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
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dcsandbox/dcsandbox/internal/errs"
)

// Walk builds a Listing for root: root's entries plus one level of
// subdirectory entries, skipping dotfiles and node_modules (spec §4.3).
func Walk(root string) (*Listing, error) {
	l := &Listing{}
	topEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, errs.New(errs.CodeIO, "read project directory: %v", err)
	}
	for _, e := range topEntries {
		if skipEntry(e.Name()) {
			continue
		}
		l.Names = append(l.Names, e.Name())
		if e.IsDir() {
			subPath := filepath.Join(root, e.Name())
			subEntries, err := os.ReadDir(subPath)
			if err != nil {
				continue // unreadable subdir just contributes no extra signal
			}
			for _, se := range subEntries {
				if skipEntry(se.Name()) {
					continue
				}
				l.Names = append(l.Names, filepath.Join(e.Name(), se.Name()))
			}
		}
	}

	pkgPath := filepath.Join(root, "package.json")
	if bs, err := os.ReadFile(pkgPath); err == nil {
		pkg, perr := parsePackageJSON(bs)
		if perr != nil {
			l.PackageJSONParseError = true
		} else {
			l.PackageJSON = pkg
		}
	}
	return l, nil
}

func skipEntry(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

func parsePackageJSON(bs []byte) (*PackageJSON, error) {
	var raw struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(bs, &raw); err != nil {
		return nil, err
	}
	return &PackageJSON{Dependencies: raw.Dependencies, DevDependencies: raw.DevDependencies}, nil
}
