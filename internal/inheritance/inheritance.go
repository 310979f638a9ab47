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

// Package inheritance is the Inheritance Cache (§4.5): a lazily
// populated, per-type slot holding every transitive prototype+extension
// id, computed by a recursive SQL walk over bases. Cache slots start
// "not computed" (absent from the map; a computed empty result is kept
// as a present nil slice), are loaded on first
// miss, and are reset wholesale at the end of every synchronise.
package inheritance

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"bennypowers.dev/typestore/internal/ids"
)

// maxArity bounds basedOn's variadic argument list, mirroring the
// source's observed maximum (§9).
const maxArity = 12

type Cache struct {
	db *sql.DB

	mu    sync.RWMutex
	slots map[ids.TypeId][]ids.TypeId // nil entry absent == not computed
}

func New(db *sql.DB) *Cache {
	return &Cache{db: db, slots: make(map[ids.TypeId][]ids.TypeId)}
}

// Reset clears every slot. Called once at the end of every synchronise
// (resetBasesCache, §4.6 step 13); the next read repopulates lazily.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots = make(map[ids.TypeId][]ids.TypeId)
}

// transitiveBases returns every id transitively reachable from typeId
// over bases, loading and caching the slot on a miss.
func (c *Cache) transitiveBases(ctx context.Context, typeId ids.TypeId) ([]ids.TypeId, error) {
	c.mu.RLock()
	if slot, ok := c.slots[typeId]; ok {
		c.mu.RUnlock()
		return slot, nil
	}
	c.mu.RUnlock()

	const walk = `
		WITH RECURSIVE transitive(baseId) AS (
			SELECT baseId FROM bases WHERE typeId = ?
			UNION
			SELECT b.baseId FROM bases b
			JOIN transitive t ON b.typeId = t.baseId
		)
		SELECT baseId FROM transitive`

	rows, err := c.db.QueryContext(ctx, walk, int64(typeId))
	if err != nil {
		return nil, fmt.Errorf("inheritance: load transitive bases of %d: %w", typeId, err)
	}
	defer rows.Close()

	var result []ids.TypeId
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, ids.TypeId(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.slots[typeId] = result
	c.mu.Unlock()

	return result, nil
}

// BasedOn reports, for each of candidateIds (up to maxArity), whether
// typeId transitively derives from it. The result slice is parallel to
// candidateIds.
func (c *Cache) BasedOn(ctx context.Context, typeId ids.TypeId, candidateIds ...ids.TypeId) ([]bool, error) {
	if len(candidateIds) > maxArity {
		return nil, fmt.Errorf("inheritance: basedOn accepts at most %d ids, got %d", maxArity, len(candidateIds))
	}
	bases, err := c.transitiveBases(ctx, typeId)
	if err != nil {
		return nil, err
	}
	set := make(map[ids.TypeId]struct{}, len(bases))
	for _, b := range bases {
		set[b] = struct{}{}
	}
	out := make([]bool, len(candidateIds))
	for i, cand := range candidateIds {
		_, out[i] = set[cand]
	}
	return out, nil
}

// InheritsAll reports whether every id in typeIds transitively derives
// from baseTypeId.
func (c *Cache) InheritsAll(ctx context.Context, typeIds []ids.TypeId, baseTypeId ids.TypeId) (bool, error) {
	for _, t := range typeIds {
		bases, err := c.transitiveBases(ctx, t)
		if err != nil {
			return false, err
		}
		found := false
		for _, b := range bases {
			if b == baseTypeId {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}
