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

	"bennypowers.dev/typestore/internal/ids"
)

type persistedAnnotation struct {
	typeId      ids.TypeId
	sourceId    ids.SourceId
	directoryId ids.DirectoryPathId
	typeName    string
	iconPath    sql.NullString
	itemLibrary sql.NullString
	hints       sql.NullString
}

type resolvedAnnotation struct {
	typeId ids.TypeId
	ann    TypeAnnotation
}

// synchroniseAnnotations is §4.6 step 10: pkg.TypeAnnotations name
// their type by (moduleId, typeName) rather than typeId, since item
// library metadata is authored against a module's public surface, not
// a specific declaration. Names that no longer resolve are reported
// and dropped rather than aborting the batch.
func (r *run) synchroniseAnnotations(pkg *SynchronisationPackage) error {
	if len(pkg.UpdatedTypeAnnotationSourceIds) == 0 {
		return nil
	}
	scoped := sortedSourceIds(pkg.UpdatedTypeAnnotationSourceIds)

	query, args := inClause(`
		SELECT typeId, sourceId, directoryId, typeName, iconPath, itemLibrary, hints
		FROM typeAnnotations WHERE sourceId IN (%s) ORDER BY typeId`, scoped)
	rows, err := r.conn.QueryContext(r.ctx, query, args...)
	if err != nil {
		return err
	}
	var persisted []persistedAnnotation
	for rows.Next() {
		var p persistedAnnotation
		var tid, sid, did int64
		if err := rows.Scan(&tid, &sid, &did, &p.typeName, &p.iconPath, &p.itemLibrary, &p.hints); err != nil {
			rows.Close()
			return err
		}
		p.typeId, p.sourceId, p.directoryId = ids.TypeId(tid), ids.SourceId(sid), ids.DirectoryPathId(did)
		persisted = append(persisted, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var resolved []resolvedAnnotation
	for _, a := range pkg.TypeAnnotations {
		typeId, ok, err := r.resolveAnnotationTarget(a.ModuleId, a.TypeName)
		if err != nil {
			return err
		}
		if !ok {
			r.notifier.TypeNameCannotBeResolved(a.TypeName, a.SourceId)
			continue
		}
		resolved = append(resolved, resolvedAnnotation{typeId: typeId, ann: a})
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].typeId < resolved[j].typeId })

	return Merge(persisted, resolved,
		func(p persistedAnnotation) ids.TypeId { return p.typeId },
		func(i resolvedAnnotation) ids.TypeId { return i.typeId },
		func(i resolvedAnnotation) error {
			_, err := r.conn.ExecContext(r.ctx, `
				INSERT INTO typeAnnotations(typeId, sourceId, directoryId, typeName, iconPath, itemLibrary, hints)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				int64(i.typeId), int64(i.ann.SourceId), int64(i.ann.DirectoryId), i.ann.TypeName,
				nullableString(i.ann.IconPath), nullableString(i.ann.ItemLibrary), nullableString(i.ann.Hints))
			return err
		},
		func(p persistedAnnotation, i resolvedAnnotation) error {
			_, err := r.conn.ExecContext(r.ctx, `
				UPDATE typeAnnotations SET sourceId = ?, directoryId = ?, typeName = ?, iconPath = ?, itemLibrary = ?, hints = ?
				WHERE typeId = ?`,
				int64(i.ann.SourceId), int64(i.ann.DirectoryId), i.ann.TypeName,
				nullableString(i.ann.IconPath), nullableString(i.ann.ItemLibrary), nullableString(i.ann.Hints), int64(p.typeId))
			return err
		},
		func(p persistedAnnotation) error {
			_, err := r.conn.ExecContext(r.ctx, `DELETE FROM typeAnnotations WHERE typeId = ?`, int64(p.typeId))
			return err
		},
	)
}

func (r *run) resolveAnnotationTarget(moduleId ids.ModuleId, typeName string) (ids.TypeId, bool, error) {
	row := r.conn.QueryRowContext(r.ctx, `
		SELECT typeId FROM exportedTypeNames
		WHERE moduleId = ? AND name = ?
		ORDER BY majorVersion DESC, minorVersion DESC LIMIT 1`, int64(moduleId), typeName)
	var typeId int64
	switch err := row.Scan(&typeId); err {
	case nil:
		return ids.TypeId(typeId), true, nil
	case sql.ErrNoRows:
		return 0, false, nil
	default:
		return 0, false, err
	}
}

// updateAnnotationsTypeTraitsFromPrototypes is §4.6 step 11: recompute
// types.annotationTraits as the bitwise union of a type's own
// annotation traits with every transitively based-on type's, so a
// subclass of a singleton or file-component type inherits that trait
// for item-library purposes without re-declaring it.
func (r *run) updateAnnotationsTypeTraitsFromPrototypes() error {
	ownRows, err := r.conn.QueryContext(r.ctx, `SELECT typeId, COALESCE(annotationTraits, 0) FROM types`)
	if err != nil {
		return err
	}
	own := make(map[ids.TypeId]uint32)
	var order []ids.TypeId
	for ownRows.Next() {
		var tid int64
		var traits uint32
		if err := ownRows.Scan(&tid, &traits); err != nil {
			ownRows.Close()
			return err
		}
		own[ids.TypeId(tid)] = traits
		order = append(order, ids.TypeId(tid))
	}
	ownRows.Close()
	if err := ownRows.Err(); err != nil {
		return err
	}

	edgeRows, err := r.conn.QueryContext(r.ctx, `SELECT typeId, baseId FROM bases`)
	if err != nil {
		return err
	}
	edges := make(map[ids.TypeId][]ids.TypeId)
	for edgeRows.Next() {
		var tid, bid int64
		if err := edgeRows.Scan(&tid, &bid); err != nil {
			edgeRows.Close()
			return err
		}
		edges[ids.TypeId(tid)] = append(edges[ids.TypeId(tid)], ids.TypeId(bid))
	}
	edgeRows.Close()
	if err := edgeRows.Err(); err != nil {
		return err
	}

	memo := make(map[ids.TypeId]uint32, len(own))
	var resolve func(ids.TypeId, map[ids.TypeId]bool) uint32
	resolve = func(typeId ids.TypeId, visiting map[ids.TypeId]bool) uint32 {
		if v, ok := memo[typeId]; ok {
			return v
		}
		if visiting[typeId] {
			return own[typeId] // cycle guard; prototype cycles are rejected elsewhere
		}
		visiting[typeId] = true
		total := own[typeId]
		for _, base := range edges[typeId] {
			total |= resolve(base, visiting)
		}
		visiting[typeId] = false
		memo[typeId] = total
		return total
	}

	for _, typeId := range order {
		total := resolve(typeId, make(map[ids.TypeId]bool))
		if total == own[typeId] {
			continue
		}
		if _, err := r.conn.ExecContext(r.ctx, `UPDATE types SET annotationTraits = ? WHERE typeId = ?`, total, int64(typeId)); err != nil {
			return err
		}
	}
	return nil
}
