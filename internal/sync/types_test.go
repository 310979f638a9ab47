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

func TestSynchroniseTypesDeclaresAndResolvesPrototype(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `INSERT INTO modules(id, name, kind) VALUES (1, 'QtQuick', 1)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits) VALUES (1, 1, 'Item', 0)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO exportedTypeNames(moduleId, name, majorVersion, minorVersion, typeId, contextSourceId)
			VALUES (1, 'Item', 2, 0, 1, 1)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO documentImports(sourceId, contextSourceId, moduleId, sourceModuleId, kind, majorVersion, minorVersion)
			VALUES (2, 2, 1, 0, 0, 2, 0)`); err != nil {
			return err
		}

		r := newRun(ctx, conn)
		r.updatedTypeIds = make(map[ids.TypeId]struct{})
		r.updatedPrototypeIds = make(map[ids.TypeId]struct{})

		pkg := &SynchronisationPackage{
			Types: []Type{
				{
					SourceId: 2, Name: "Button",
					Prototype: &ImportedTypeNameRef{Kind: ids.ImportedTypeNameKindExported, ImportOrSourceId: 2, Name: "Item"},
				},
			},
			UpdatedTypeSourceIds: []ids.SourceId{2},
		}
		return r.synchroniseTypes(pkg)
	})
	require.NoError(t, err)

	var buttonTypeId, prototypeId int64
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT typeId FROM types WHERE name = 'Button'`).Scan(&buttonTypeId))
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT prototypeId FROM prototypes WHERE typeId = ?`, buttonTypeId).Scan(&prototypeId))
	require.Equal(t, int64(1), prototypeId)

	var baseCount int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM bases WHERE typeId = ? AND baseId = 1`, buttonTypeId).Scan(&baseCount))
	require.Equal(t, 1, baseCount)
}

func TestSynchroniseTypesMissingDefaultPropertyIsNotified(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var notified bool
	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		r := newRun(ctx, conn)
		r.updatedTypeIds = make(map[ids.TypeId]struct{})
		r.updatedPrototypeIds = make(map[ids.TypeId]struct{})
		r.notifier = newTestNotifier(func() { notified = true })

		pkg := &SynchronisationPackage{
			Types: []Type{
				{SourceId: 5, Name: "Row", DefaultPropertyName: "children"},
			},
			UpdatedTypeSourceIds: []ids.SourceId{5},
		}
		return r.synchroniseTypes(pkg)
	})
	require.NoError(t, err)
	require.True(t, notified)
}

func TestSynchroniseTypesSyncsPropertiesFunctionsSignalsEnums(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		r := newRun(ctx, conn)
		r.updatedTypeIds = make(map[ids.TypeId]struct{})
		r.updatedPrototypeIds = make(map[ids.TypeId]struct{})

		pkg := &SynchronisationPackage{
			Types: []Type{
				{
					SourceId: 3, Name: "Widget",
					Properties:   []PropertyDeclaration{{Name: "width", PropertyTraits: 1}},
					Functions:    []FunctionDeclaration{{Name: "resize", Signature: "[]"}},
					Signals:      []SignalDeclaration{{Name: "clicked", Signature: "[]"}},
					Enumerations: []EnumerationDeclaration{{Name: "Mode", EnumeratorDeclarations: "{}"}},
				},
			},
			UpdatedTypeSourceIds: []ids.SourceId{3},
		}
		return r.synchroniseTypes(pkg)
	})
	require.NoError(t, err)

	var typeId int64
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT typeId FROM types WHERE name = 'Widget'`).Scan(&typeId))

	var propCount, fnCount, sigCount, enumCount int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM propertyDeclarations WHERE typeId = ?`, typeId).Scan(&propCount))
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM functionDeclarations WHERE typeId = ?`, typeId).Scan(&fnCount))
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM signalDeclarations WHERE typeId = ?`, typeId).Scan(&sigCount))
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM enumerationDeclarations WHERE typeId = ?`, typeId).Scan(&enumCount))
	require.Equal(t, 1, propCount)
	require.Equal(t, 1, fnCount)
	require.Equal(t, 1, sigCount)
	require.Equal(t, 1, enumCount)
}
