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

// Package commontypecache is the Common Type Cache: a fixed table of
// well-known (module, kind, typeName) slots refreshed after every
// synchronisation so hot lookups avoid the import resolver.
//
// The original (commontypecache.h) hardcodes a QML-specific slot list
// (QtQuick.Item, QtQml.QtObject, ...). This engine is domain-agnostic,
// so the slot list is supplied by the caller at construction time
// instead of compiled in; Refresh re-resolves every slot in one pass
// after each commit (SPEC_FULL §3).
package commontypecache

import (
	"context"
	"database/sql"
	"fmt"

	"bennypowers.dev/typestore/internal/ids"
)

// Slot names one well-known type by its exported-name coordinates.
type Slot struct {
	Name     string
	Module   string
	Kind     ids.ModuleKind
	Optional bool // recorded only; Refresh, Lookup and MustLookup treat every slot alike
}

// Cache resolves each configured Slot to a TypeId once per
// synchronise, caching the result until Refresh is called again.
type Cache struct {
	db    *sql.DB
	slots []Slot

	resolved map[string]ids.TypeId
}

// New builds a cache over the given slot list. The cache starts empty;
// call Refresh before the first lookup (typically once after the
// initial schema creation, then again after every synchronise, §4.6
// step 13).
func New(db *sql.DB, slots []Slot) *Cache {
	return &Cache{db: db, slots: slots, resolved: make(map[string]ids.TypeId)}
}

// Refresh re-resolves every slot against the current exportedTypeNames
// table, taking the highest (major, minor) export per (module, name).
// Slots that fail to resolve are simply absent from the map; Lookup
// reports ok=false for them rather than erroring, unless the caller
// asks for a mandatory slot's error via MustLookup.
func (c *Cache) Refresh(ctx context.Context) error {
	resolved := make(map[string]ids.TypeId, len(c.slots))

	for _, slot := range c.slots {
		row := c.db.QueryRowContext(ctx, `
			SELECT e.typeId
			FROM exportedTypeNames e
			JOIN modules m ON m.id = e.moduleId
			WHERE m.name = ? AND m.kind = ? AND e.name = ?
			ORDER BY e.majorVersion DESC, e.minorVersion DESC
			LIMIT 1`, slot.Module, uint8(slot.Kind), slot.Name)

		var typeId int64
		if err := row.Scan(&typeId); err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return fmt.Errorf("commontypecache: refresh slot %s.%s: %w", slot.Module, slot.Name, err)
		}
		resolved[slotKey(slot.Module, slot.Name)] = ids.TypeId(typeId)
	}

	c.resolved = resolved
	return nil
}

func slotKey(module, name string) string { return module + "\x00" + name }

// Lookup returns the cached TypeId for (module, name), if resolved.
func (c *Cache) Lookup(module, name string) (ids.TypeId, bool) {
	id, ok := c.resolved[slotKey(module, name)]
	return id, ok
}

// MustLookup is Lookup for a slot the caller has declared mandatory; it
// returns an error describing which slot failed to resolve.
func (c *Cache) MustLookup(module, name string) (ids.TypeId, error) {
	id, ok := c.Lookup(module, name)
	if !ok {
		return 0, fmt.Errorf("commontypecache: required slot %s.%s is unresolved", module, name)
	}
	return id, nil
}
