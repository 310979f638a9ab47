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

	"bennypowers.dev/typestore/internal/alias"
	"bennypowers.dev/typestore/internal/errs"
	"bennypowers.dev/typestore/internal/ids"
)

type persistedExportedName struct {
	moduleId                  ids.ModuleId
	name                      string
	majorVersion, minorVersion uint32
	typeId                    ids.TypeId
}

type exportedNameKey struct {
	moduleId     ids.ModuleId
	name         string
	majorVersion uint32
	minorVersion uint32
}

// synchroniseExportedTypeNames is §4.6 step 4: a three-way merge of
// pkg.ExportedTypes, restricted to updatedExportedTypeSourceIds, keyed
// by (moduleId, name, majorVersion, minorVersion). Backing types are
// declared on insert if not already present. A typeId change on an
// existing label queues the label's old and new type for relinking;
// a duplicate-key insert within the incoming batch is reported via
// the notifier and dropped rather than aborting the whole batch.
func (r *run) synchroniseExportedTypeNames(pkg *SynchronisationPackage) error {
	if len(pkg.UpdatedExportedTypeSourceIds) == 0 {
		return nil
	}
	scoped := sortedSourceIds(pkg.UpdatedExportedTypeSourceIds)

	query, args := inClause(`
		SELECT e.moduleId, e.name, e.majorVersion, e.minorVersion, e.typeId
		FROM exportedTypeNames e
		JOIN types t ON t.typeId = e.typeId
		WHERE t.sourceId IN (%s)
		ORDER BY e.moduleId, e.name, e.majorVersion, e.minorVersion`, scoped)
	rows, err := r.conn.QueryContext(r.ctx, query, args...)
	if err != nil {
		return err
	}
	var persisted []persistedExportedName
	for rows.Next() {
		var p persistedExportedName
		var mid, tid int64
		if err := rows.Scan(&mid, &p.name, &p.majorVersion, &p.minorVersion, &tid); err != nil {
			rows.Close()
			return err
		}
		p.moduleId, p.typeId = ids.ModuleId(mid), ids.TypeId(tid)
		persisted = append(persisted, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	incoming := dedupeExportedTypes(pkg.ExportedTypes, r.notifier)
	sort.Slice(incoming, func(i, j int) bool {
		a, b := incoming[i], incoming[j]
		if a.ModuleId != b.ModuleId {
			return a.ModuleId < b.ModuleId
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.MajorVersion != b.MajorVersion {
			return a.MajorVersion < b.MajorVersion
		}
		return a.MinorVersion < b.MinorVersion
	})

	key := func(m ids.ModuleId, n string, maj, min uint32) exportedNameKey {
		return exportedNameKey{moduleId: m, name: n, majorVersion: maj, minorVersion: min}
	}

	return Merge(persisted, incoming,
		func(p persistedExportedName) exportedNameKey { return key(p.moduleId, p.name, p.majorVersion, p.minorVersion) },
		func(i ExportedType) exportedNameKey { return key(i.ModuleId, i.Name, i.MajorVersion, i.MinorVersion) },
		func(i ExportedType) error {
			typeId := i.TypeId
			if !typeId.Valid() {
				declared, err := r.declareType(i.Name, i.ContextSourceId)
				if err != nil {
					return err
				}
				typeId = declared
			}
			_, err := r.conn.ExecContext(r.ctx, `
				INSERT INTO exportedTypeNames(moduleId, name, majorVersion, minorVersion, typeId, contextSourceId)
				VALUES (?, ?, ?, ?, ?, ?)`,
				int64(i.ModuleId), i.Name, i.MajorVersion, i.MinorVersion, int64(typeId), int64(i.ContextSourceId))
			if err != nil {
				return err
			}
			if err := r.queueDependentsOfName(i.Name); err != nil {
				return err
			}
			r.added = append(r.added, ExportedTypeNameChange{
				ModuleId: i.ModuleId, Name: i.Name, MajorVersion: i.MajorVersion, MinorVersion: i.MinorVersion, TypeId: typeId,
			})
			r.exportedTypesChanged = true
			return nil
		},
		func(p persistedExportedName, i ExportedType) error {
			typeId := i.TypeId
			if !typeId.Valid() {
				declared, err := r.declareType(i.Name, i.ContextSourceId)
				if err != nil {
					return err
				}
				typeId = declared
			}
			if typeId == p.typeId {
				return nil
			}
			if _, err := r.conn.ExecContext(r.ctx, `
				UPDATE exportedTypeNames SET typeId = ?, contextSourceId = ?
				WHERE moduleId = ? AND name = ? AND majorVersion = ? AND minorVersion = ?`,
				int64(typeId), int64(i.ContextSourceId), int64(p.moduleId), p.name, p.majorVersion, p.minorVersion); err != nil {
				return err
			}
			r.relinkableBases = append(r.relinkableBases, p.typeId, typeId)
			r.removed = append(r.removed, ExportedTypeNameChange{
				ModuleId: p.moduleId, Name: p.name, MajorVersion: p.majorVersion, MinorVersion: p.minorVersion, TypeId: p.typeId,
			})
			r.added = append(r.added, ExportedTypeNameChange{
				ModuleId: p.moduleId, Name: p.name, MajorVersion: p.majorVersion, MinorVersion: p.minorVersion, TypeId: typeId,
			})
			r.exportedTypesChanged = true
			return nil
		},
		func(p persistedExportedName) error {
			if _, err := r.conn.ExecContext(r.ctx, `
				DELETE FROM exportedTypeNames
				WHERE moduleId = ? AND name = ? AND majorVersion = ? AND minorVersion = ?`,
				int64(p.moduleId), p.name, p.majorVersion, p.minorVersion); err != nil {
				return err
			}
			r.relinkableBases = append(r.relinkableBases, p.typeId)
			r.removed = append(r.removed, ExportedTypeNameChange{
				ModuleId: p.moduleId, Name: p.name, MajorVersion: p.majorVersion, MinorVersion: p.minorVersion, TypeId: p.typeId,
			})
			r.exportedTypesChanged = true
			return nil
		},
	)
}

// queueDependentsOfName is §4.6 step 4's closing requirement: once name
// is (re)declared as an exported type, every importedTypeNames row that
// was already recorded against that same name string — a previously
// unresolved or stale reference from some other source — may now
// resolve. Every type, plain property and alias property that points
// at one of those importedTypeNameIds is pushed into the relinkable
// buckets so the relink/repair phases re-resolve it; relinkBases and
// relinkPropertyDeclarations already tolerate a reference that still
// can't resolve, so over-queuing here is harmless.
func (r *run) queueDependentsOfName(name string) error {
	nameRows, err := r.conn.QueryContext(r.ctx, `SELECT importedTypeNameId FROM importedTypeNames WHERE name = ?`, name)
	if err != nil {
		return err
	}
	var nameIds []ids.ImportedTypeNameId
	for nameRows.Next() {
		var id int64
		if err := nameRows.Scan(&id); err != nil {
			nameRows.Close()
			return err
		}
		nameIds = append(nameIds, ids.ImportedTypeNameId(id))
	}
	nameRows.Close()
	if err := nameRows.Err(); err != nil {
		return err
	}
	if len(nameIds) == 0 {
		return nil
	}

	placeholders, placeholderArgs := inClause(`%s`, nameIds)
	baseQuery := fmt.Sprintf(`SELECT typeId FROM types WHERE prototypeNameId IN (%s) OR extensionNameId IN (%s)`, placeholders, placeholders)
	baseRows, err := r.conn.QueryContext(r.ctx, baseQuery, append(append([]any(nil), placeholderArgs...), placeholderArgs...)...)
	if err != nil {
		return err
	}
	for baseRows.Next() {
		var id int64
		if err := baseRows.Scan(&id); err != nil {
			baseRows.Close()
			return err
		}
		r.relinkableBases = append(r.relinkableBases, ids.TypeId(id))
	}
	baseRows.Close()
	if err := baseRows.Err(); err != nil {
		return err
	}

	propQuery, propArgs := inClause(`SELECT propertyDeclarationId FROM propertyDeclarations WHERE propertyImportedTypeNameId IN (%s)`, nameIds)
	propRows, err := r.conn.QueryContext(r.ctx, propQuery, propArgs...)
	if err != nil {
		return err
	}
	for propRows.Next() {
		var id int64
		if err := propRows.Scan(&id); err != nil {
			propRows.Close()
			return err
		}
		r.relinkablePropertyDeclarations = append(r.relinkablePropertyDeclarations, ids.PropertyDeclarationId(id))
	}
	propRows.Close()
	if err := propRows.Err(); err != nil {
		return err
	}

	aliasQuery, aliasArgs := inClause(`SELECT propertyDeclarationId FROM propertyDeclarations WHERE aliasPropertyImportedTypeNameId IN (%s)`, nameIds)
	aliasRows, err := r.conn.QueryContext(r.ctx, aliasQuery, aliasArgs...)
	if err != nil {
		return err
	}
	for aliasRows.Next() {
		var id int64
		if err := aliasRows.Scan(&id); err != nil {
			aliasRows.Close()
			return err
		}
		r.relinkableAliasPropertyDeclarations = append(r.relinkableAliasPropertyDeclarations, alias.ToLink{PropertyDeclarationId: ids.PropertyDeclarationId(id)})
	}
	aliasRows.Close()
	return aliasRows.Err()
}

// dedupeExportedTypes drops every incoming label after the first one
// claiming a given (moduleId, name, majorVersion, minorVersion) key,
// reporting each collision via the notifier rather than aborting.
func dedupeExportedTypes(in []ExportedType, notifier *errs.Notifier) []ExportedType {
	seen := make(map[exportedNameKey]struct{}, len(in))
	out := make([]ExportedType, 0, len(in))
	for _, e := range in {
		k := exportedNameKey{moduleId: e.ModuleId, name: e.Name, majorVersion: e.MajorVersion, minorVersion: e.MinorVersion}
		if _, dup := seen[k]; dup {
			notifier.ExportedTypeNameIsDuplicate(e.ModuleId, e.Name)
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}
