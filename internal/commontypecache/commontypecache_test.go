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

package commontypecache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"bennypowers.dev/typestore/internal/commontypecache"
	"bennypowers.dev/typestore/internal/ids"
	"bennypowers.dev/typestore/internal/store"
)

func openTest(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRefreshResolvesConfiguredSlots(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	db := s.DB()

	_, err := db.ExecContext(ctx, `INSERT INTO modules(id, name, kind) VALUES (1, 'QtQuick', 1)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits) VALUES (1, 1, 'Item', 0)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO exportedTypeNames(moduleId, name, majorVersion, minorVersion, typeId, contextSourceId)
		VALUES (1, 'Item', 2, 0, 1, 1)`)
	require.NoError(t, err)

	c := commontypecache.New(db, []commontypecache.Slot{
		{Name: "Item", Module: "QtQuick", Kind: ids.ModuleKindLibrary},
		{Name: "MissingThing", Module: "QtQuick", Kind: ids.ModuleKindLibrary, Optional: true},
	})
	require.NoError(t, c.Refresh(ctx))

	id, ok := c.Lookup("QtQuick", "Item")
	require.True(t, ok)
	require.Equal(t, ids.TypeId(1), id)

	_, ok = c.Lookup("QtQuick", "MissingThing")
	require.False(t, ok)
}

func TestMustLookupErrorsOnUnresolvedSlot(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	c := commontypecache.New(s.DB(), []commontypecache.Slot{
		{Name: "QtObject", Module: "QtQml", Kind: ids.ModuleKindLibrary},
	})
	require.NoError(t, c.Refresh(ctx))

	_, err := c.MustLookup("QtQml", "QtObject")
	require.Error(t, err)
}

func TestRefreshPicksHighestVersion(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	db := s.DB()

	_, err := db.ExecContext(ctx, `INSERT INTO modules(id, name, kind) VALUES (1, 'QtQuick', 1)`)
	require.NoError(t, err)
	for _, row := range []struct{ typeId, minor int64 }{{1, 0}, {2, 15}} {
		_, err := db.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits) VALUES (?, 1, 'Item', 0)`, row.typeId)
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, `
			INSERT INTO exportedTypeNames(moduleId, name, majorVersion, minorVersion, typeId, contextSourceId)
			VALUES (1, 'Item', 2, ?, ?, 1)`, row.minor, row.typeId)
		require.NoError(t, err)
	}

	c := commontypecache.New(db, []commontypecache.Slot{
		{Name: "Item", Module: "QtQuick", Kind: ids.ModuleKindLibrary},
	})
	require.NoError(t, c.Refresh(ctx))

	id, ok := c.Lookup("QtQuick", "Item")
	require.True(t, ok)
	require.Equal(t, ids.TypeId(2), id)
}
