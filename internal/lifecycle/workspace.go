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
	"io"
	"os"
	"path/filepath"

	"github.com/dcsandbox/dcsandbox/internal/errs"
)

// materializeWorkspace copies srcDir's tree into workspaceDir, or simply
// creates an empty workspaceDir when srcDir is empty (no git clone given),
// per spec §4.1 step 4.
func materializeWorkspace(srcDir, workspaceDir string) error {
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return errs.New(errs.CodeWorkspaceSetupError, "create workspace directory: %v", err)
	}
	if srcDir == "" {
		return nil
	}
	return copyTree(srcDir, workspaceDir)
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errs.New(errs.CodeWorkspaceSetupError, "walk %s: %v", path, err)
		}
		if info.Name() == ".git" && info.IsDir() {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errs.New(errs.CodeWorkspaceSetupError, "relativize %s: %v", path, err)
		}
		target := filepath.Join(dst, rel)
		if rel == "." {
			return nil
		}
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return errs.New(errs.CodeWorkspaceSetupError, "open %s: %v", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errs.New(errs.CodeWorkspaceSetupError, "create parent of %s: %v", dst, err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errs.New(errs.CodeWorkspaceSetupError, "create %s: %v", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errs.New(errs.CodeWorkspaceSetupError, "copy %s: %v", dst, err)
	}
	return nil
}
