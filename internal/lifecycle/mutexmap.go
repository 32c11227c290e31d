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
	"sync"

	"tailscale.com/util/mak"
)

// idMutexes is a guarded map of per-sandbox mutexes (spec §5: "a
// per-sandbox mutex keyed by id"), built on the mak.Set lazy-map idiom
// with reference counting so entries are freed once a sandbox is
// removed rather than accumulating forever.
type idMutexes struct {
	mu      sync.Mutex
	entries map[string]*mutexEntry
}

type mutexEntry struct {
	mu       sync.Mutex
	refCount int
}

func newIDMutexes() *idMutexes {
	return &idMutexes{}
}

// lock acquires the mutex for id, creating it on first use, and returns an
// unlock function that also releases the entry's reference.
func (m *idMutexes) lock(id string) (unlock func()) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		e = &mutexEntry{}
		mak.Set(&m.entries, id, e)
	}
	e.refCount++
	m.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.mu.Lock()
		e.refCount--
		if e.refCount == 0 {
			delete(m.entries, id)
		}
		m.mu.Unlock()
	}
}
