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

// synchronisePropertyEditorPaths is §4.6 step 12a: one row per typeId,
// restricted to the directories named in
// UpdatedPropertyEditorQmlPathDirectoryIds.
func (r *run) synchronisePropertyEditorPaths(pkg *SynchronisationPackage) error {
	if len(pkg.UpdatedPropertyEditorQmlPathDirectoryIds) == 0 {
		return nil
	}
	scoped := append([]ids.DirectoryPathId(nil), pkg.UpdatedPropertyEditorQmlPathDirectoryIds...)
	sort.Slice(scoped, func(i, j int) bool { return scoped[i] < scoped[j] })

	query, args := inClause(`SELECT typeId, pathSourceId, directoryId FROM propertyEditorPaths WHERE directoryId IN (%s) ORDER BY typeId`, scoped)
	rows, err := r.conn.QueryContext(r.ctx, query, args...)
	if err != nil {
		return err
	}
	var persisted []PropertyEditorQmlPath
	for rows.Next() {
		var p PropertyEditorQmlPath
		var tid, psid, did int64
		if err := rows.Scan(&tid, &psid, &did); err != nil {
			rows.Close()
			return err
		}
		p.TypeId, p.PathSourceId, p.DirectoryId = ids.TypeId(tid), ids.SourceId(psid), ids.DirectoryPathId(did)
		persisted = append(persisted, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	incoming := append([]PropertyEditorQmlPath(nil), pkg.PropertyEditorQmlPaths...)
	sort.Slice(incoming, func(i, j int) bool { return incoming[i].TypeId < incoming[j].TypeId })

	return Merge(persisted, incoming,
		func(p PropertyEditorQmlPath) ids.TypeId { return p.TypeId },
		func(i PropertyEditorQmlPath) ids.TypeId { return i.TypeId },
		func(i PropertyEditorQmlPath) error {
			_, err := r.conn.ExecContext(r.ctx, `
				INSERT INTO propertyEditorPaths(typeId, pathSourceId, directoryId) VALUES (?, ?, ?)`,
				int64(i.TypeId), int64(i.PathSourceId), int64(i.DirectoryId))
			return err
		},
		func(p PropertyEditorQmlPath, i PropertyEditorQmlPath) error {
			if p.PathSourceId == i.PathSourceId && p.DirectoryId == i.DirectoryId {
				return nil
			}
			_, err := r.conn.ExecContext(r.ctx, `
				UPDATE propertyEditorPaths SET pathSourceId = ?, directoryId = ? WHERE typeId = ?`,
				int64(i.PathSourceId), int64(i.DirectoryId), int64(p.TypeId))
			return err
		},
		func(p PropertyEditorQmlPath) error {
			_, err := r.conn.ExecContext(r.ctx, `DELETE FROM propertyEditorPaths WHERE typeId = ?`, int64(p.TypeId))
			return err
		},
	)
}

type projectEntryKey struct {
	contextSourceId ids.SourceId
	sourceId        ids.SourceId
}

type persistedProjectEntry struct {
	key      projectEntryKey
	moduleId ids.ModuleId
	fileType ids.FileType
}

// synchroniseProjectEntryInfos is §4.6 step 12b: a three-way merge
// keyed by (contextSourceId, sourceId), restricted to
// UpdatedProjectEntryInfoSourceIds.
func (r *run) synchroniseProjectEntryInfos(pkg *SynchronisationPackage) error {
	if len(pkg.UpdatedProjectEntryInfoSourceIds) == 0 {
		return nil
	}
	scoped := sortedSourceIds(pkg.UpdatedProjectEntryInfoSourceIds)

	query, args := inClause(`
		SELECT contextSourceId, sourceId, moduleId, fileType
		FROM projectEntryInfos WHERE sourceId IN (%s) ORDER BY contextSourceId, sourceId`, scoped)
	rows, err := r.conn.QueryContext(r.ctx, query, args...)
	if err != nil {
		return err
	}
	var persisted []persistedProjectEntry
	for rows.Next() {
		var p persistedProjectEntry
		var csid, sid int64
		var mid sql.NullInt64
		var ft uint8
		if err := rows.Scan(&csid, &sid, &mid, &ft); err != nil {
			rows.Close()
			return err
		}
		p.key = projectEntryKey{contextSourceId: ids.SourceId(csid), sourceId: ids.SourceId(sid)}
		p.moduleId = ids.ModuleId(mid.Int64)
		p.fileType = ids.FileType(ft)
		persisted = append(persisted, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	incoming := append([]ProjectEntryInfo(nil), pkg.ProjectEntryInfos...)
	sort.Slice(incoming, func(i, j int) bool {
		a, b := incoming[i], incoming[j]
		if a.ContextSourceId != b.ContextSourceId {
			return a.ContextSourceId < b.ContextSourceId
		}
		return a.SourceId < b.SourceId
	})

	key := func(c, s ids.SourceId) projectEntryKey { return projectEntryKey{contextSourceId: c, sourceId: s} }

	return Merge(persisted, incoming,
		func(p persistedProjectEntry) projectEntryKey { return p.key },
		func(i ProjectEntryInfo) projectEntryKey { return key(i.ContextSourceId, i.SourceId) },
		func(i ProjectEntryInfo) error {
			var moduleId any
			if i.ModuleId.Valid() {
				moduleId = int64(i.ModuleId)
			}
			_, err := r.conn.ExecContext(r.ctx, `
				INSERT INTO projectEntryInfos(contextSourceId, sourceId, moduleId, fileType) VALUES (?, ?, ?, ?)`,
				int64(i.ContextSourceId), int64(i.SourceId), moduleId, uint8(i.FileType))
			return err
		},
		func(p persistedProjectEntry, i ProjectEntryInfo) error {
			if p.moduleId == i.ModuleId && p.fileType == i.FileType {
				return nil
			}
			var moduleId any
			if i.ModuleId.Valid() {
				moduleId = int64(i.ModuleId)
			}
			_, err := r.conn.ExecContext(r.ctx, `
				UPDATE projectEntryInfos SET moduleId = ?, fileType = ? WHERE contextSourceId = ? AND sourceId = ?`,
				moduleId, uint8(i.FileType), int64(p.key.contextSourceId), int64(p.key.sourceId))
			return err
		},
		func(p persistedProjectEntry) error {
			_, err := r.conn.ExecContext(r.ctx, `DELETE FROM projectEntryInfos WHERE contextSourceId = ? AND sourceId = ?`,
				int64(p.key.contextSourceId), int64(p.key.sourceId))
			return err
		},
	)
}
