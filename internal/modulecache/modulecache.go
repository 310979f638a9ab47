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

// Package modulecache is the Module Cache (§4.2): a populate-on-start,
// copy-on-read map of (name, kind) and id to ModuleId, backed by the
// modules table. The original (modulesstorage.cpp) scans the table
// fully on first open rather than lazily on first miss; we keep that
// shape (§3 of SPEC_FULL's supplemented features).
package modulecache

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"bennypowers.dev/typestore/internal/ids"
)

const maxPrefixResults = 128

type key struct {
	name string
	kind ids.ModuleKind
}

// Cache is the reader/writer-guarded module table. Concurrent reads do
// not block one another; a miss upgrades to a write via singleflight so
// concurrent callers asking about the same unseen (name, kind) collapse
// into a single INSERT.
type Cache struct {
	db *sql.DB

	mu      sync.RWMutex
	byKey   map[key]ids.ModuleId
	byId    map[ids.ModuleId]key
	group   singleflight.Group
}

// New populates the cache with a single scan of modules, matching the
// original's populate-on-open behaviour rather than populate-on-miss.
func New(ctx context.Context, db *sql.DB) (*Cache, error) {
	c := &Cache{
		db:    db,
		byKey: make(map[key]ids.ModuleId),
		byId:  make(map[ids.ModuleId]key),
	}

	rows, err := db.QueryContext(ctx, `SELECT id, name, kind FROM modules`)
	if err != nil {
		return nil, fmt.Errorf("populate module cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		var kind uint8
		if err := rows.Scan(&id, &name, &kind); err != nil {
			return nil, fmt.Errorf("populate module cache: %w", err)
		}
		k := key{name: name, kind: ids.ModuleKind(kind)}
		c.byKey[k] = ids.ModuleId(id)
		c.byId[ids.ModuleId(id)] = k
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("populate module cache: %w", err)
	}
	return c, nil
}

// Id returns the ModuleId for (name, kind), upserting a new row if this
// is the first time the pair has been seen. Concurrent misses for the
// same pair collapse into one insert via singleflight.
func (c *Cache) Id(ctx context.Context, name string, kind ids.ModuleKind) (ids.ModuleId, error) {
	k := key{name: name, kind: kind}

	c.mu.RLock()
	if id, ok := c.byKey[k]; ok {
		c.mu.RUnlock()
		return id, nil
	}
	c.mu.RUnlock()

	sfKey := fmt.Sprintf("%s\x00%d", name, kind)
	v, err, _ := c.group.Do(sfKey, func() (any, error) {
		c.mu.RLock()
		if id, ok := c.byKey[k]; ok {
			c.mu.RUnlock()
			return id, nil
		}
		c.mu.RUnlock()

		res, err := c.db.ExecContext(ctx,
			`INSERT INTO modules(name, kind) VALUES (?, ?)`, name, uint8(kind))
		if err != nil {
			return nil, fmt.Errorf("insert module %q: %w", name, err)
		}
		newId, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		id := ids.ModuleId(newId)

		c.mu.Lock()
		c.byKey[k] = id
		c.byId[id] = k
		c.mu.Unlock()

		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(ids.ModuleId), nil
}

// Name returns the (name, kind) pair for a known ModuleId.
func (c *Cache) Name(id ids.ModuleId) (name string, kind ids.ModuleKind, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.byId[id]
	if !ok {
		return "", 0, false
	}
	return k.name, k.kind, true
}

// Prefix returns every ModuleId whose name begins with prefix and whose
// kind matches, bounded to maxPrefixResults entries in ascending name
// order (copy-on-read: the result is independent of cache state after
// the call returns).
func (c *Cache) Prefix(prefix string, kind ids.ModuleKind) []ids.ModuleId {
	c.mu.RLock()
	type match struct {
		name string
		id   ids.ModuleId
	}
	var matches []match
	for k, id := range c.byKey {
		if k.kind == kind && strings.HasPrefix(k.name, prefix) {
			matches = append(matches, match{k.name, id})
		}
	}
	c.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].name < matches[j].name })
	if len(matches) > maxPrefixResults {
		matches = matches[:maxPrefixResults]
	}

	out := make([]ids.ModuleId, len(matches))
	for i, m := range matches {
		out[i] = m.id
	}
	return out
}
