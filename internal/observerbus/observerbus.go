/*
Copyright © 2025 Benny Powers

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package observerbus dispatches post-commit synchronise results to
// registered observers (§4.8): removedTypeIds, then
// exportedTypeNamesChanged. Both calls happen strictly after commit;
// observers must not call back into the store while being notified.
package observerbus

import (
	"sort"
	"sync"

	"bennypowers.dev/typestore/internal/ids"
)

// ExportedTypeNameChange is one row added to or removed from
// exportedTypeNames by a synchronise.
type ExportedTypeNameChange struct {
	ModuleId     ids.ModuleId
	Name         string
	MajorVersion uint32
	MinorVersion uint32
	TypeId       ids.TypeId
}

// Observer receives the two post-commit callbacks of §4.8.
type Observer interface {
	RemovedTypeIds(ids []ids.TypeId)
	ExportedTypeNamesChanged(added, removed []ExportedTypeNameChange)
}

// Bus holds the registered observer set and fires both callbacks in
// order after a successful commit.
type Bus struct {
	mu        sync.Mutex
	observers []Observer
}

func New() *Bus { return &Bus{} }

func (b *Bus) AddObserver(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

func (b *Bus) RemoveObserver(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.observers {
		if existing == o {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			return
		}
	}
}

// Fire dispatches removedTypeIds (sorted, deduplicated) if non-empty,
// then exportedTypeNamesChanged if exportedTypesChanged is set. Both
// calls happen on the calling goroutine, synchronously, after commit.
func (b *Bus) Fire(deletedTypeIds []ids.TypeId, exportedTypesChanged bool, added, removed []ExportedTypeNameChange) {
	b.mu.Lock()
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.mu.Unlock()

	sortedDeleted := sortedUnique(deletedTypeIds)

	for _, o := range observers {
		if len(sortedDeleted) > 0 {
			o.RemovedTypeIds(sortedDeleted)
		}
	}
	if exportedTypesChanged {
		for _, o := range observers {
			o.ExportedTypeNamesChanged(added, removed)
		}
	}
}

func sortedUnique(in []ids.TypeId) []ids.TypeId {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[ids.TypeId]struct{}, len(in))
	out := make([]ids.TypeId, 0, len(in))
	for _, id := range in {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
