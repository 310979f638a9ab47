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

// TestQueueDependentsOfNameQueuesExistingReferences reproduces the
// insert half of mandatory scenario S3: Item is redeclared as an
// exported type name in a third package after a Button (whose
// prototype is still an unresolved reference to "Item") and a
// property already typed against the same dangling name were
// declared. Both must be queued for relink once "Item" resolves.
func TestQueueDependentsOfNameQueuesExistingReferences(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO documentImports(sourceId, contextSourceId, moduleId, sourceModuleId, kind, majorVersion, minorVersion)
			VALUES (2, 2, 1, 0, 0, 1, 0)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO importedTypeNames(importedTypeNameId, kind, importOrSourceId, name) VALUES (100, 0, 2, 'Item')`); err != nil {
			return err
		}

		// Button's prototype dangles on the unresolved importedTypeNameId.
		if _, err := conn.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits, prototypeNameId) VALUES (2, 2, 'Button', 0, 100)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `INSERT INTO prototypes(typeId, prototypeId) VALUES (2, -1)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `INSERT INTO bases(typeId, baseId) VALUES (2, -1)`); err != nil {
			return err
		}

		// A plain property on some other type also typed itself against the dangling name.
		if _, err := conn.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits) VALUES (3, 2, 'Holder', 0)`); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO propertyDeclarations(propertyDeclarationId, typeId, name, propertyImportedTypeNameId)
			VALUES (1, 3, 'item', 100)`); err != nil {
			return err
		}

		r := newRun(ctx, conn)
		require.NoError(t, r.queueDependentsOfName("Item"))

		require.Contains(t, r.relinkableBases, ids.TypeId(2))
		require.Contains(t, r.relinkablePropertyDeclarations, ids.PropertyDeclarationId(1))
		return nil
	})
	require.NoError(t, err)
}

// TestQueueDependentsOfNameNoOpWhenNoReferencesExist exercises the
// common case: no importedTypeNames row shares the newly-declared
// name, so nothing is queued.
func TestQueueDependentsOfNameNoOpWhenNoReferencesExist(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		r := newRun(ctx, conn)
		require.NoError(t, r.queueDependentsOfName("Nowhere"))
		require.Empty(t, r.relinkableBases)
		require.Empty(t, r.relinkablePropertyDeclarations)
		require.Empty(t, r.relinkableAliasPropertyDeclarations)
		return nil
	})
	require.NoError(t, err)
}
