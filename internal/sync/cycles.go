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
	"database/sql"
	"sort"

	"bennypowers.dev/typestore/internal/errs"
	"bennypowers.dev/typestore/internal/ids"
)

// checkBasesCycles is the prototype/extension counterpart of
// alias.Linker.CheckCycles (§4.7.2): every type whose bases edges were
// (re)written this round — by syncPrototypeAndExtension or by relink —
// is walked depth-first over `bases`. Revisiting the walk's own root is
// a prototype/extension cycle (spec.md invariant 3): it is reported to
// the notifier and aborts the transaction via errs.PrototypeChainCycle,
// the same fatal-rollback shape alias cycles already use.
func (r *run) checkBasesCycles() error {
	touched := make(map[ids.TypeId]struct{}, len(r.updatedPrototypeIds)+len(r.relinkableBases))
	for id := range r.updatedPrototypeIds {
		touched[id] = struct{}{}
	}
	for _, id := range r.relinkableBases {
		touched[id] = struct{}{}
	}

	roots := make([]ids.TypeId, 0, len(touched))
	for id := range touched {
		roots = append(roots, id)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	for _, start := range roots {
		if err := r.walkBasesForCycle(start, start, map[ids.TypeId]bool{start: true}, 0); err != nil {
			return err
		}
	}
	return nil
}

// walkBasesForCycle follows every outgoing bases edge of current
// (a type may have both a prototype and an extension edge). A bound of
// 1024 guards against malformed data the same way alias.CheckCycles'
// does; a real cycle is always found long before that.
func (r *run) walkBasesForCycle(start, current ids.TypeId, path map[ids.TypeId]bool, depth int) error {
	if depth > 1024 {
		return nil
	}

	rows, err := r.conn.QueryContext(r.ctx, `SELECT baseId FROM bases WHERE typeId = ?`, int64(current))
	if err != nil {
		return err
	}
	var next []ids.TypeId
	for rows.Next() {
		var id int64
		if serr := rows.Scan(&id); serr != nil {
			rows.Close()
			return serr
		}
		next = append(next, ids.TypeId(id))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, n := range next {
		if !n.Resolved() {
			continue // an unresolved sentinel never participates in a cycle
		}
		if n == start {
			name, sourceId, terr := r.typeNameAndSource(start)
			if terr != nil {
				return terr
			}
			r.notifier.PrototypeCycle(name, sourceId)
			return errs.PrototypeChainCycle(name, sourceId)
		}
		if path[n] {
			continue // a cycle not rooted at start; that root's own walk catches it
		}
		path[n] = true
		if err := r.walkBasesForCycle(start, n, path, depth+1); err != nil {
			return err
		}
		delete(path, n)
	}
	return nil
}

func (r *run) typeNameAndSource(typeId ids.TypeId) (name string, sourceId ids.SourceId, err error) {
	row := r.conn.QueryRowContext(r.ctx, `SELECT name, sourceId FROM types WHERE typeId = ?`, int64(typeId))
	var sid int64
	switch serr := row.Scan(&name, &sid); serr {
	case nil:
		return name, ids.SourceId(sid), nil
	case sql.ErrNoRows:
		return "", 0, nil
	default:
		return "", 0, serr
	}
}
