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

package targz

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteDirThenReadFile(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "Dockerfile"), []byte("FROM scratch\n"), 0o644); err != nil {
		t.Fatalf("write Dockerfile: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(src, "workspace", "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "workspace", "sub", "file.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteDir(&buf, src); err != nil {
		t.Fatalf("WriteDir: %v", err)
	}

	got := map[string]string{}
	err := ReadFile(&buf, func(hdr *tar.Header, r io.Reader) error {
		if hdr.Typeflag == tar.TypeDir {
			return nil
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		got[hdr.Name] = string(content)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if got["Dockerfile"] != "FROM scratch\n" {
		t.Errorf("Dockerfile content = %q", got["Dockerfile"])
	}
	if got["workspace/sub/file.txt"] != "hello" {
		t.Errorf("workspace/sub/file.txt content = %q", got["workspace/sub/file.txt"])
	}
}

func TestWriteDirEmpty(t *testing.T) {
	src := t.TempDir()
	var buf bytes.Buffer
	if err := WriteDir(&buf, src); err != nil {
		t.Fatalf("WriteDir: %v", err)
	}
	count := 0
	err := ReadFile(&buf, func(hdr *tar.Header, r io.Reader) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no entries for an empty directory, got %d", count)
	}
}
