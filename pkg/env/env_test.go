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

package env

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteSortsKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	vars := map[string]string{"ZETA": "1", "ALPHA": "2", "MID": "3"}
	if err := Write(path, vars); err != nil {
		t.Fatalf("Write: %v", err)
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "ALPHA=2\nMID=3\nZETA=1\n"
	if string(bs) != want {
		t.Fatalf("Write() content = %q, want %q", bs, want)
	}
}

func TestWriteEmptyVars(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := Write(path, map[string]string{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(bs) != 0 {
		t.Fatalf("expected empty file, got %q", bs)
	}
}
