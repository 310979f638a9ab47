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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"bennypowers.dev/typestore/internal/errs"
	"bennypowers.dev/typestore/internal/ids"
)

// TestCheckBasesCyclesDetectsPrototypeCycle reproduces mandatory
// scenario S5: A's prototype is B, B's prototype is C, C's prototype
// is A. checkBasesCycles must reject this and report PrototypeCycle.
func TestCheckBasesCyclesDetectsPrototypeCycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var notified bool
	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		for _, row := range []struct {
			id   int64
			name string
		}{{1, "A"}, {2, "B"}, {3, "C"}} {
			if _, err := conn.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits) VALUES (?, ?, ?, 0)`, row.id, row.id, row.name); err != nil {
				return err
			}
		}
		for _, edge := range [][2]int64{{1, 2}, {2, 3}, {3, 1}} {
			if _, err := conn.ExecContext(ctx, `INSERT INTO bases(typeId, baseId) VALUES (?, ?)`, edge[0], edge[1]); err != nil {
				return err
			}
			if _, err := conn.ExecContext(ctx, `INSERT INTO prototypes(typeId, prototypeId) VALUES (?, ?)`, edge[0], edge[1]); err != nil {
				return err
			}
		}

		r := newRun(ctx, conn)
		r.notifier = newTestNotifier(func() { notified = true })
		r.updatedPrototypeIds = map[ids.TypeId]struct{}{1: {}, 2: {}, 3: {}}
		return r.checkBasesCycles()
	})

	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrPrototypeChainCycle))
	require.True(t, notified)
}

// TestCheckBasesCyclesAllowsAcyclicChain exercises the non-cyclic path:
// a plain A -> B -> C prototype chain must not be rejected.
func TestCheckBasesCyclesAllowsAcyclicChain(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		for _, row := range []struct {
			id   int64
			name string
		}{{1, "A"}, {2, "B"}, {3, "C"}} {
			if _, err := conn.ExecContext(ctx, `INSERT INTO types(typeId, sourceId, name, traits) VALUES (?, ?, ?, 0)`, row.id, row.id, row.name); err != nil {
				return err
			}
		}
		for _, edge := range [][2]int64{{1, 2}, {2, 3}} {
			if _, err := conn.ExecContext(ctx, `INSERT INTO bases(typeId, baseId) VALUES (?, ?)`, edge[0], edge[1]); err != nil {
				return err
			}
		}

		r := newRun(ctx, conn)
		r.notifier = newTestNotifier(func() {})
		r.updatedPrototypeIds = map[ids.TypeId]struct{}{1: {}, 2: {}, 3: {}}
		return r.checkBasesCycles()
	})
	require.NoError(t, err)
}
