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

package sync

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"bennypowers.dev/typestore/internal/importresolver"
	"bennypowers.dev/typestore/internal/ids"
	"bennypowers.dev/typestore/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newRun(ctx context.Context, conn *sql.Conn) *run {
	return &run{
		ctx:      ctx,
		conn:     conn,
		resolver: importresolver.New(conn),
	}
}

func TestSynchroniseDocumentImportsInsertsAndExpands(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		for _, m := range []struct {
			id   int64
			name string
		}{{1, "QtQuick"}, {2, "QtQuick.Controls"}} {
			if _, err := conn.ExecContext(ctx, `INSERT INTO modules(id, name, kind) VALUES (?, ?, 1)`, m.id, m.name); err != nil {
				return err
			}
		}
		// QtQuick.Controls re-exports QtQuick at 2.*.
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO moduleExportedImports(moduleId, exportedModuleId, isAutoVersion, majorVersion, minorVersion)
			VALUES (2, 1, 0, 2, 4294967295)`); err != nil {
			return err
		}

		r := newRun(ctx, conn)
		incoming := []Import{{SourceId: 10, ContextSourceId: 10, ModuleId: 2, MajorVersion: 2, MinorVersion: 0}}
		return r.synchroniseDocumentImportsOfKind(incoming, []ids.SourceId{10}, ids.DocumentImportKindImport, false)
	})
	require.NoError(t, err)

	var directCount, indirectCount int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM documentImports WHERE kind = ?`, uint8(ids.DocumentImportKindImport)).Scan(&directCount))
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM documentImports WHERE kind = ?`, uint8(ids.DocumentImportKindModuleExportedImport)).Scan(&indirectCount))
	require.Equal(t, 1, directCount)
	require.Equal(t, 1, indirectCount)

	var indirectModuleId int64
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT moduleId FROM documentImports WHERE kind = ?`, uint8(ids.DocumentImportKindModuleExportedImport)).Scan(&indirectModuleId))
	require.Equal(t, int64(1), indirectModuleId)
}

func TestSynchroniseDocumentImportsRemoveDeletesIndirectAndQueuesRelink(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `INSERT INTO modules(id, name, kind) VALUES (1, 'Base', 1)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits) VALUES (1, 20, 'Widget', 0)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `INSERT INTO bases(typeId, baseId) VALUES (1, 99)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO documentImports(importId, sourceId, contextSourceId, moduleId, sourceModuleId, kind, majorVersion, minorVersion)
			VALUES (5, 20, 20, 1, 0, ?, 1, 0)`, uint8(ids.DocumentImportKindModuleDependency)); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO documentImports(importId, sourceId, contextSourceId, moduleId, sourceModuleId, kind, majorVersion, minorVersion, parentImportId)
			VALUES (6, 20, 20, 1, 0, ?, 1, 0, 5)`, uint8(ids.DocumentImportKindModuleExportedModuleDependency)); err != nil {
			return err
		}

		r := newRun(ctx, conn)
		// Empty incoming, scope includes the persisted source: a removal.
		return r.synchroniseDocumentImportsOfKind(nil, []ids.SourceId{20}, ids.DocumentImportKindModuleDependency, true)
	})
	require.NoError(t, err)

	var remaining int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM documentImports`).Scan(&remaining))
	require.Equal(t, 0, remaining)

	var baseRows int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM bases WHERE typeId = 1`).Scan(&baseRows))
	require.Equal(t, 0, baseRows)
}

func TestSynchroniseModuleExportedImportsMerges(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		for _, m := range []struct {
			id   int64
			name string
		}{{1, "A"}, {2, "B"}, {3, "C"}} {
			if _, err := conn.ExecContext(ctx, `INSERT INTO modules(id, name, kind) VALUES (?, ?, 1)`, m.id, m.name); err != nil {
				return err
			}
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO moduleExportedImports(moduleId, exportedModuleId, isAutoVersion, majorVersion, minorVersion)
			VALUES (1, 2, 0, 1, 0)`); err != nil {
			return err
		}

		r := newRun(ctx, conn)
		pkg := &SynchronisationPackage{
			ModuleExportedImports: []ModuleExportedImport{
				{ModuleId: 1, ExportedModuleId: 3, MajorVersion: 2, MinorVersion: 0},
			},
			UpdatedModuleIds: []ids.ModuleId{1},
		}
		return r.synchroniseImports(nil, pkg)
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM moduleExportedImports WHERE moduleId = 1`).Scan(&count))
	require.Equal(t, 1, count)

	var exportedModuleId int64
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT exportedModuleId FROM moduleExportedImports WHERE moduleId = 1`).Scan(&exportedModuleId))
	require.Equal(t, int64(3), exportedModuleId)
}
