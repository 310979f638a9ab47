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

package modulecache_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/typestore/internal/ids"
	"bennypowers.dev/typestore/internal/modulecache"
	"bennypowers.dev/typestore/internal/store"
)

func openTest(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIdInsertsOnFirstMiss(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	c, err := modulecache.New(ctx, s.DB())
	require.NoError(t, err)

	id, err := c.Id(ctx, "QtQuick", ids.ModuleKindLibrary)
	require.NoError(t, err)
	assert.True(t, id.Valid())

	again, err := c.Id(ctx, "QtQuick", ids.ModuleKindLibrary)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestIdDistinguishesKind(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	c, err := modulecache.New(ctx, s.DB())
	require.NoError(t, err)

	libId, err := c.Id(ctx, "QtQuick", ids.ModuleKindLibrary)
	require.NoError(t, err)
	pathId, err := c.Id(ctx, "QtQuick", ids.ModuleKindPath)
	require.NoError(t, err)

	assert.NotEqual(t, libId, pathId)
}

func TestNameRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	c, err := modulecache.New(ctx, s.DB())
	require.NoError(t, err)

	id, err := c.Id(ctx, "QtQml", ids.ModuleKindLibrary)
	require.NoError(t, err)

	name, kind, ok := c.Name(id)
	require.True(t, ok)
	assert.Equal(t, "QtQml", name)
	assert.Equal(t, ids.ModuleKindLibrary, kind)
}

func TestPrefixIsBoundedAndSorted(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	c, err := modulecache.New(ctx, s.DB())
	require.NoError(t, err)

	for _, name := range []string{"QtQuick", "QtQuick.Controls", "QtQml", "QtQuick.Layouts"} {
		_, err := c.Id(ctx, name, ids.ModuleKindLibrary)
		require.NoError(t, err)
	}

	matches := c.Prefix("QtQuick", ids.ModuleKindLibrary)
	require.Len(t, matches, 3)

	names := make([]string, len(matches))
	for i, id := range matches {
		n, _, ok := c.Name(id)
		require.True(t, ok)
		names[i] = n
	}
	assert.Equal(t, []string{"QtQuick", "QtQuick.Controls", "QtQuick.Layouts"}, names)
}

func TestIdCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	c, err := modulecache.New(ctx, s.DB())
	require.NoError(t, err)

	const n = 16
	results := make([]ids.ModuleId, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Id(ctx, "QtQuick", ids.ModuleKindLibrary)
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM modules WHERE name='QtQuick'`).Scan(&count))
	assert.Equal(t, 1, count)
}
