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

package importresolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"bennypowers.dev/typestore/internal/ids"
	"bennypowers.dev/typestore/internal/importresolver"
	"bennypowers.dev/typestore/internal/store"
)

func openTest(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResolveExportedPicksHighestMatchingMinor(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	db := s.DB()

	_, err := db.ExecContext(ctx, `INSERT INTO modules(id, name, kind) VALUES (1, 'QtQuick', 1)`)
	require.NoError(t, err)

	// T1 = Item 2.0, T2 = Item 2.15
	for _, row := range []struct {
		typeId, major, minor int64
	}{{1, 2, 0}, {2, 2, 15}} {
		_, err := db.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits) VALUES (?, 1, 'Item', 0)`, row.typeId)
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, `
			INSERT INTO exportedTypeNames(moduleId, name, majorVersion, minorVersion, typeId, contextSourceId)
			VALUES (1, 'Item', ?, ?, ?, 1)`, row.major, row.minor, row.typeId)
		require.NoError(t, err)
	}

	// Import QtQuick 2.10 in source S2=2, non-aliased.
	_, err = db.ExecContext(ctx, `
		INSERT INTO documentImports(sourceId, contextSourceId, moduleId, sourceModuleId, kind, majorVersion, minorVersion)
		VALUES (2, 2, 1, 0, 0, 2, 10)`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO importedTypeNames(kind, importOrSourceId, name) VALUES (0, 2, 'Item')`)
	require.NoError(t, err)

	var itnId int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT importedTypeNameId FROM importedTypeNames WHERE name='Item'`).Scan(&itnId))

	resolver := importresolver.New(db)
	typeId, err := resolver.Resolve(ctx, ids.ImportedTypeNameId(itnId))
	require.NoError(t, err)
	require.Equal(t, ids.TypeId(1), typeId) // Item 2.0: highest minor <= 10
}

func TestResolveExportedWithWildcardMinorPicksHighestVersion(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	db := s.DB()

	_, err := db.ExecContext(ctx, `INSERT INTO modules(id, name, kind) VALUES (1, 'QtQuick', 1)`)
	require.NoError(t, err)

	for _, row := range []struct {
		typeId, major, minor int64
	}{{1, 2, 0}, {2, 2, 15}} {
		_, err := db.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits) VALUES (?, 1, 'Item', 0)`, row.typeId)
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, `
			INSERT INTO exportedTypeNames(moduleId, name, majorVersion, minorVersion, typeId, contextSourceId)
			VALUES (1, 'Item', ?, ?, ?, 1)`, row.major, row.minor, row.typeId)
		require.NoError(t, err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO documentImports(sourceId, contextSourceId, moduleId, sourceModuleId, kind, majorVersion, minorVersion)
		VALUES (2, 2, 1, 0, 0, 2, ?)`, ids.VersionWildcard)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO importedTypeNames(kind, importOrSourceId, name) VALUES (0, 2, 'Item')`)
	require.NoError(t, err)

	var itnId int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT importedTypeNameId FROM importedTypeNames WHERE name='Item'`).Scan(&itnId))

	resolver := importresolver.New(db)
	typeId, err := resolver.Resolve(ctx, ids.ImportedTypeNameId(itnId))
	require.NoError(t, err)
	require.Equal(t, ids.TypeId(2), typeId) // Item 2.15: wildcard minor takes highest
}

func TestResolveReturnsNotFoundWithoutMatch(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	db := s.DB()

	_, err := db.ExecContext(ctx, `INSERT INTO modules(id, name, kind) VALUES (1, 'QtQuick', 1)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO documentImports(sourceId, contextSourceId, moduleId, sourceModuleId, kind, majorVersion, minorVersion)
		VALUES (2, 2, 1, 0, 0, 2, 10)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO importedTypeNames(kind, importOrSourceId, name) VALUES (0, 2, 'Nonexistent')`)
	require.NoError(t, err)

	var itnId int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT importedTypeNameId FROM importedTypeNames WHERE name='Nonexistent'`).Scan(&itnId))

	resolver := importresolver.New(db)
	_, err = resolver.Resolve(ctx, ids.ImportedTypeNameId(itnId))
	require.ErrorIs(t, err, importresolver.ErrNotFound)
}

func TestExpandModuleExportedImportsInsertsIndirectImport(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	db := s.DB()

	_, err := db.ExecContext(ctx, `INSERT INTO modules(id, name, kind) VALUES (1, 'QtQuick', 1), (2, 'QtQml', 1)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO moduleExportedImports(moduleId, exportedModuleId, isAutoVersion, majorVersion, minorVersion)
		VALUES (1, 2, 1, 0, 0)`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO documentImports(sourceId, contextSourceId, moduleId, sourceModuleId, kind, majorVersion, minorVersion)
		VALUES (2, 2, 1, 0, 0, 2, 10)`)
	require.NoError(t, err)
	var parentImportId int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT importId FROM documentImports WHERE moduleId=1`).Scan(&parentImportId))

	resolver := importresolver.New(db)
	err = resolver.ExpandModuleExportedImports(ctx,
		ids.ImportId(parentImportId), ids.SourceId(2), ids.SourceId(2),
		ids.ModuleId(1), 2, 10, ids.DocumentImportKindModuleExportedImport)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documentImports WHERE moduleId=2 AND parentImportId=?`, parentImportId).Scan(&count))
	require.Equal(t, 1, count)

	var major, minor int64
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT majorVersion, minorVersion FROM documentImports WHERE moduleId=2 AND parentImportId=?`, parentImportId).
		Scan(&major, &minor))
	require.Equal(t, int64(2), major)
	require.Equal(t, int64(10), minor)
}
