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

package codecutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestCompressToFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "nested", "log.zst")
	data := []byte("sandbox log output\nline two\n")
	if err := CompressToFile(dst, data); err != nil {
		t.Fatalf("CompressToFile: %v", err)
	}

	compressed, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer decoder.Close()
	got, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("decompressed = %q, want %q", got, data)
	}
}

func TestZstdCompressDecompressRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "diagnostic.bin")
	want := []byte("sandbox archived exec output\n")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	compressed := filepath.Join(dir, "diagnostic.bin.zst")
	if err := ZstdCompress(src, compressed); err != nil {
		t.Fatalf("ZstdCompress: %v", err)
	}

	restored := filepath.Join(dir, "diagnostic.restored.bin")
	if err := ZstdDecompress(compressed, restored); err != nil {
		t.Fatalf("ZstdDecompress: %v", err)
	}

	got, err := os.ReadFile(restored)
	if err != nil {
		t.Fatalf("ReadFile restored: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("restored content = %q, want %q", got, want)
	}
}
