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
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
)

type Reader struct {
	z *gzip.Reader
	r *tar.Reader
}

func (r Reader) Read(p []byte) (n int, err error) {
	return r.r.Read(p)
}

func (r Reader) Close() error {
	return r.z.Close()
}

func (r Reader) Next() (*tar.Header, error) {
	return r.r.Next()
}

func New(r io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{z: gz, r: tar.NewReader(gz)}, nil
}

// ReadFile calls f for each entry in the tarball.
func ReadFile(r io.Reader, f func(*tar.Header, io.Reader) error) error {
	t, err := New(r)
	if err != nil {
		return err
	}
	defer t.Close()

	for {
		header, err := t.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := f(header, t); err != nil {
			return err
		}
	}
	return nil
}

// Writer builds a tar+gzip archive, used to stream a Docker build context
// to the daemon (SPEC_FULL §4.6).
type Writer struct {
	z *gzip.Writer
	t *tar.Writer
}

// NewWriter wraps w with a tar writer over a gzip writer.
func NewWriter(w io.Writer) *Writer {
	gz := gzip.NewWriter(w)
	return &Writer{z: gz, t: tar.NewWriter(gz)}
}

// WriteFile adds one entry to the archive, reading its content from r.
func (tw *Writer) WriteFile(hdr *tar.Header, r io.Reader) error {
	if err := tw.t.WriteHeader(hdr); err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	_, err := io.Copy(tw.t, r)
	return err
}

// Close flushes and closes both the tar and gzip layers.
func (tw *Writer) Close() error {
	if err := tw.t.Close(); err != nil {
		return err
	}
	return tw.z.Close()
}

// WriteDir walks dir and writes every entry (relative to dir) into the
// archive.
func WriteDir(w io.Writer, dir string) error {
	tw := NewWriter(w)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			return tw.WriteFile(hdr, nil)
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return tw.WriteFile(hdr, f)
	})
	if err != nil {
		return err
	}
	return tw.Close()
}
