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

package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTest(t)

	rows, err := s.DB().Query(`SELECT name FROM sqlite_master WHERE type='table' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables = append(tables, name)
	}

	for _, want := range []string{
		"modules", "types", "bases", "prototypes", "exportedTypeNames",
		"importedTypeNames", "documentImports", "moduleExportedImports",
		"propertyDeclarations", "functionDeclarations", "signalDeclarations",
		"enumerationDeclarations", "fileStatuses", "projectEntryInfos",
		"propertyEditorPaths", "typeAnnotations",
	} {
		assert.Contains(t, tables, want)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	s := openTest(t)
	assert.NoError(t, s.migrate())
	assert.NoError(t, s.migrate())
}

func TestWithImmediateRollsBackOnError(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	sentinel := assert.AnError

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		if _, execErr := conn.ExecContext(ctx, `INSERT INTO modules(id, name, kind) VALUES (1, 'QtQuick', 1)`); execErr != nil {
			return execErr
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	row := s.DB().QueryRow(`SELECT COUNT(*) FROM modules`)
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithImmediatePersistsOnSuccess(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		_, execErr := conn.ExecContext(ctx, `INSERT INTO modules(id, name, kind) VALUES (1, 'QtQuick', 1)`)
		return execErr
	})
	require.NoError(t, err)

	row := s.DB().QueryRow(`SELECT name FROM modules WHERE id = 1`)
	var name string
	require.NoError(t, row.Scan(&name))
	assert.Equal(t, "QtQuick", name)
}
