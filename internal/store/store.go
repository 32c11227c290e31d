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

// Package store is the durable on-disk index of sandbox records and their
// workspace directory trees (spec §4.5).
package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/dcsandbox/dcsandbox/internal/errs"
	"github.com/dcsandbox/dcsandbox/internal/record"
)

const configFileName = "config.json"

// Store owns record files under root/<id>/config.json and the sibling
// workspace/ directory tree. The Store never writes to workspace/ after
// initial materialization (spec §4.5); that directory belongs to the
// container through its bind mount.
type Store struct {
	root string
}

// New creates a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.New(errs.CodeIO, "create store root: %v", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// SandboxDir returns the directory for the given sandbox id.
func (s *Store) SandboxDir(id string) string {
	return filepath.Join(s.root, id)
}

// WorkspaceDir returns the bind-mounted workspace directory for id.
func (s *Store) WorkspaceDir(id string) string {
	return filepath.Join(s.SandboxDir(id), "workspace")
}

func (s *Store) configPath(id string) string {
	return filepath.Join(s.SandboxDir(id), configFileName)
}

// Create allocates the on-disk directory for a new sandbox and writes its
// initial record. Fails if the directory already exists.
func (s *Store) Create(r *record.Record) error {
	dir := s.SandboxDir(r.ID)
	if _, err := os.Stat(dir); err == nil {
		return errs.New(errs.CodeIO, "sandbox directory %s already exists", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New(errs.CodeIO, "create sandbox directory: %v", err)
	}
	r.Generation = 1
	return s.writeAtomic(r)
}

// Save performs an atomic (write-temp-then-rename) rewrite of the record,
// bumping its generation counter. Callers must hold the record's
// per-sandbox mutex (spec §5).
func (s *Store) Save(r *record.Record) error {
	if _, err := os.Stat(s.SandboxDir(r.ID)); err != nil {
		return errs.New(errs.CodeNotFound, "sandbox %s not found", r.ID)
	}
	r.Generation++
	return s.writeAtomic(r)
}

func (s *Store) writeAtomic(r *record.Record) error {
	bs, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errs.New(errs.CodeIO, "marshal record: %v", err)
	}
	dst := s.configPath(r.ID)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return errs.New(errs.CodeIO, "write record: %v", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return errs.New(errs.CodeIO, "rename record: %v", err)
	}
	return nil
}

// Get loads the record for id.
func (s *Store) Get(id string) (*record.Record, error) {
	bs, err := os.ReadFile(s.configPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.CodeNotFound, "sandbox %s not found", id)
		}
		return nil, errs.New(errs.CodeIO, "read record: %v", err)
	}
	var r record.Record
	if err := json.Unmarshal(bs, &r); err != nil {
		return nil, errs.New(errs.CodeIO, "unmarshal record %s: %v", id, err)
	}
	return &r, nil
}

// List enumerates all records, newest first, tolerating partial trees: an
// entry missing config.json is skipped with a warning rather than failing
// the whole listing (spec §4.5).
func (s *Store) List() ([]*record.Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New(errs.CodeIO, "list store: %v", err)
	}
	var out []*record.Record
	for _, e := range entries {
		if !e.IsDir() || e.Name() == ".archive" {
			continue
		}
		r, err := s.Get(e.Name())
		if err != nil {
			log.Printf("store: skipping %s: %v", e.Name(), err)
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Remove deletes a sandbox's entire on-disk tree, including workspace/.
func (s *Store) Remove(id string) error {
	dir := s.SandboxDir(id)
	if err := os.RemoveAll(dir); err != nil {
		return errs.New(errs.CodeIO, "remove sandbox directory: %v", err)
	}
	return nil
}

// NameInUse reports whether name is already used by a record other than
// excludeID.
func (s *Store) NameInUse(name, excludeID string) (bool, error) {
	records, err := s.List()
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.ID != excludeID && r.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// ArchiveDir returns the directory used for post-removal diagnostic log
// snapshots (SPEC_FULL §4.5).
func (s *Store) ArchiveDir() string {
	return filepath.Join(s.root, ".archive")
}

// ArchivePath returns the path a compressed log snapshot for id would be
// written to.
func (s *Store) ArchivePath(id string) string {
	return filepath.Join(s.ArchiveDir(), fmt.Sprintf("%s.log.zst", id))
}
