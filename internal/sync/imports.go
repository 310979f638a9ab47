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
	"fmt"
	"sort"

	"bennypowers.dev/typestore/internal/ids"
	"bennypowers.dev/typestore/internal/modulecache"
)

// synchroniseImports is §4.6 step 3: moduleExportedImports restricted
// to updatedModuleIds, then document imports of kind Import (no
// relink), then kind ModuleDependency (relink on remove).
func (r *run) synchroniseImports(modules *modulecache.Cache, pkg *SynchronisationPackage) error {
	if err := r.synchroniseModuleExportedImports(pkg); err != nil {
		return err
	}
	if err := r.synchroniseDocumentImportsOfKind(pkg.Imports, pkg.UpdatedImportSourceIds, ids.DocumentImportKindImport, false); err != nil {
		return err
	}
	if err := r.synchroniseDocumentImportsOfKind(pkg.ModuleDependencies, pkg.UpdatedModuleDependencySourceIds, ids.DocumentImportKindModuleDependency, true); err != nil {
		return err
	}
	return nil
}

type persistedMEI struct {
	moduleId, exportedModuleId ids.ModuleId
}

func (r *run) synchroniseModuleExportedImports(pkg *SynchronisationPackage) error {
	if len(pkg.UpdatedModuleIds) == 0 {
		return nil
	}
	scoped := make([]ids.ModuleId, len(pkg.UpdatedModuleIds))
	copy(scoped, pkg.UpdatedModuleIds)
	sort.Slice(scoped, func(i, j int) bool { return scoped[i] < scoped[j] })

	query, args := inClause(`SELECT moduleId, exportedModuleId FROM moduleExportedImports WHERE moduleId IN (%s) ORDER BY moduleId, exportedModuleId`, scoped)
	rows, err := r.conn.QueryContext(r.ctx, query, args...)
	if err != nil {
		return err
	}
	var persisted []persistedMEI
	for rows.Next() {
		var m persistedMEI
		var a, b int64
		if err := rows.Scan(&a, &b); err != nil {
			rows.Close()
			return err
		}
		m.moduleId, m.exportedModuleId = ids.ModuleId(a), ids.ModuleId(b)
		persisted = append(persisted, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	incoming := append([]ModuleExportedImport(nil), pkg.ModuleExportedImports...)
	sort.Slice(incoming, func(i, j int) bool {
		if incoming[i].ModuleId != incoming[j].ModuleId {
			return incoming[i].ModuleId < incoming[j].ModuleId
		}
		return incoming[i].ExportedModuleId < incoming[j].ExportedModuleId
	})

	meiKey := func(m ids.ModuleId, e ids.ModuleId) int64 { return int64(m)<<32 | int64(e) }

	return Merge(persisted, incoming,
		func(p persistedMEI) int64 { return meiKey(p.moduleId, p.exportedModuleId) },
		func(i ModuleExportedImport) int64 { return meiKey(i.ModuleId, i.ExportedModuleId) },
		func(i ModuleExportedImport) error {
			_, err := r.conn.ExecContext(r.ctx, `
				INSERT INTO moduleExportedImports(moduleId, exportedModuleId, isAutoVersion, majorVersion, minorVersion)
				VALUES (?, ?, ?, ?, ?)`, int64(i.ModuleId), int64(i.ExportedModuleId), boolToInt(i.IsAutoVersion), i.MajorVersion, i.MinorVersion)
			return err
		},
		func(p persistedMEI, i ModuleExportedImport) error {
			_, err := r.conn.ExecContext(r.ctx, `
				UPDATE moduleExportedImports SET isAutoVersion = ?, majorVersion = ?, minorVersion = ?
				WHERE moduleId = ? AND exportedModuleId = ?`,
				boolToInt(i.IsAutoVersion), i.MajorVersion, i.MinorVersion, int64(p.moduleId), int64(p.exportedModuleId))
			return err
		},
		func(p persistedMEI) error {
			_, err := r.conn.ExecContext(r.ctx, `
				DELETE FROM moduleExportedImports WHERE moduleId = ? AND exportedModuleId = ?`,
				int64(p.moduleId), int64(p.exportedModuleId))
			return err
		},
	)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type persistedImport struct {
	importId        ids.ImportId
	sourceId        ids.SourceId
	contextSourceId ids.SourceId
	moduleId        ids.ModuleId
	majorVersion    uint32
	minorVersion    uint32
}

// synchroniseDocumentImportsOfKind merges one kind of document import,
// restricted to the given source scope. relinkOnRemove=true pushes
// every type in a removed import's source into relinkableBases (after
// clearing its bases), matching ModuleDependency's Relink=Yes.
func (r *run) synchroniseDocumentImportsOfKind(incoming []Import, scopeSourceIds []ids.SourceId, kind ids.DocumentImportKind, relinkOnRemove bool) error {
	if len(scopeSourceIds) == 0 {
		return nil
	}
	scoped := sortedSourceIds(scopeSourceIds)

	query, args := inClause(`
		SELECT importId, sourceId, contextSourceId, moduleId, majorVersion, minorVersion
		FROM documentImports WHERE kind = ? AND sourceId IN (%s) ORDER BY sourceId, moduleId`, scoped)
	args = append([]any{uint8(kind)}, args...)
	rows, err := r.conn.QueryContext(r.ctx, query, args...)
	if err != nil {
		return err
	}
	var persisted []persistedImport
	for rows.Next() {
		var p persistedImport
		var iid, sid, csid, mid int64
		if err := rows.Scan(&iid, &sid, &csid, &mid, &p.majorVersion, &p.minorVersion); err != nil {
			rows.Close()
			return err
		}
		p.importId, p.sourceId, p.contextSourceId, p.moduleId = ids.ImportId(iid), ids.SourceId(sid), ids.SourceId(csid), ids.ModuleId(mid)
		persisted = append(persisted, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	sortedIncoming := append([]Import(nil), incoming...)
	sort.Slice(sortedIncoming, func(i, j int) bool {
		if sortedIncoming[i].SourceId != sortedIncoming[j].SourceId {
			return sortedIncoming[i].SourceId < sortedIncoming[j].SourceId
		}
		return sortedIncoming[i].ModuleId < sortedIncoming[j].ModuleId
	})

	key := func(s ids.SourceId, m ids.ModuleId) int64 { return int64(s)<<32 | int64(m) }

	return Merge(persisted, sortedIncoming,
		func(p persistedImport) int64 { return key(p.sourceId, p.moduleId) },
		func(i Import) int64 { return key(i.SourceId, i.ModuleId) },
		func(i Import) error {
			var alias any
			if i.Alias != "" {
				alias = i.Alias
			}
			res, err := r.conn.ExecContext(r.ctx, `
				INSERT INTO documentImports(sourceId, contextSourceId, moduleId, sourceModuleId, kind, majorVersion, minorVersion, alias)
				VALUES (?, ?, ?, 0, ?, ?, ?, ?)`,
				int64(i.SourceId), int64(i.ContextSourceId), int64(i.ModuleId), uint8(kind), i.MajorVersion, i.MinorVersion, alias)
			if err != nil {
				return fmt.Errorf("insert document import: %w", err)
			}
			if i.Alias != "" {
				return nil // aliased imports are not expanded
			}
			newId, err := res.LastInsertId()
			if err != nil {
				return err
			}

			indirectKind := ids.DocumentImportKindModuleExportedImport
			if kind == ids.DocumentImportKindModuleDependency {
				indirectKind = ids.DocumentImportKindModuleExportedModuleDependency
			}
			return r.resolver.ExpandModuleExportedImports(r.ctx, ids.ImportId(newId),
				i.SourceId, i.ContextSourceId, i.ModuleId, i.MajorVersion, i.MinorVersion, indirectKind)
		},
		func(p persistedImport, i Import) error {
			_, err := r.conn.ExecContext(r.ctx, `
				UPDATE documentImports SET majorVersion = ?, minorVersion = ? WHERE importId = ?`,
				i.MajorVersion, i.MinorVersion, int64(p.importId))
			return err
		},
		func(p persistedImport) error {
			if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM documentImports WHERE parentImportId = ?`, int64(p.importId)); err != nil {
				return err
			}
			if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM documentImports WHERE importId = ?`, int64(p.importId)); err != nil {
				return err
			}
			if relinkOnRemove {
				if err := r.clearAndQueueBasesForSource(p.sourceId); err != nil {
					return err
				}
			}
			return nil
		},
	)
}

// clearAndQueueBasesForSource clears bases for every type in sourceId
// and pushes those types into relinkableBases, used when an import
// whose Relink flag is set disappears.
func (r *run) clearAndQueueBasesForSource(sourceId ids.SourceId) error {
	rows, err := r.conn.QueryContext(r.ctx, `SELECT typeId FROM types WHERE sourceId = ?`, int64(sourceId))
	if err != nil {
		return err
	}
	var typeIds []ids.TypeId
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		typeIds = append(typeIds, ids.TypeId(id))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range typeIds {
		if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM bases WHERE typeId = ?`, int64(t)); err != nil {
			return err
		}
		r.relinkableBases = append(r.relinkableBases, t)
	}
	return nil
}
