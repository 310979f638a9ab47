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

	"bennypowers.dev/typestore/internal/ids"
)

func TestSynchroniseAnnotationsResolvesByModuleAndName(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `INSERT INTO modules(id, name, kind) VALUES (1, 'QtQuick', 1)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits) VALUES (1, 1, 'Rectangle', 0)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO exportedTypeNames(moduleId, name, majorVersion, minorVersion, typeId, contextSourceId)
			VALUES (1, 'Rectangle', 2, 0, 1, 1)`); err != nil {
			return err
		}

		r := newRun(ctx, conn)
		pkg := &SynchronisationPackage{
			TypeAnnotations: []TypeAnnotation{
				{ModuleId: 1, TypeName: "Rectangle", SourceId: 9, DirectoryId: 1, IconPath: "rect.png"},
			},
			UpdatedTypeAnnotationSourceIds: []ids.SourceId{9},
		}
		return r.synchroniseAnnotations(pkg)
	})
	require.NoError(t, err)

	var iconPath string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT iconPath FROM typeAnnotations WHERE typeId = 1`).Scan(&iconPath))
	require.Equal(t, "rect.png", iconPath)
}

func TestSynchroniseAnnotationsReportsUnresolvableName(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var notified bool
	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		r := newRun(ctx, conn)
		r.notifier = newTestNotifier(func() { notified = true })
		pkg := &SynchronisationPackage{
			TypeAnnotations:                []TypeAnnotation{{ModuleId: 1, TypeName: "Ghost", SourceId: 9}},
			UpdatedTypeAnnotationSourceIds: []ids.SourceId{9},
		}
		return r.synchroniseAnnotations(pkg)
	})
	require.NoError(t, err)
	require.True(t, notified)

	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM typeAnnotations`).Scan(&count))
	require.Equal(t, 0, count)
}

func TestUpdateAnnotationsTypeTraitsFromPrototypesUnionsAlongChain(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits, annotationTraits) VALUES (1, 1, 'Base', 0, 1)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits, annotationTraits) VALUES (2, 2, 'Mid', 0, 2)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits, annotationTraits) VALUES (3, 3, 'Leaf', 0, 0)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `INSERT INTO bases(typeId, baseId) VALUES (2, 1)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `INSERT INTO bases(typeId, baseId) VALUES (3, 2)`); err != nil {
			return err
		}

		r := newRun(ctx, conn)
		return r.updateAnnotationsTypeTraitsFromPrototypes()
	})
	require.NoError(t, err)

	var leafTraits int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT annotationTraits FROM types WHERE typeId = 3`).Scan(&leafTraits))
	require.Equal(t, 3, leafTraits) // 1|2 from Base and Mid, unioned down to Leaf
}
