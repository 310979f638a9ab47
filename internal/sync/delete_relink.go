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

	"bennypowers.dev/typestore/internal/alias"
	"bennypowers.dev/typestore/internal/ids"
	"bennypowers.dev/typestore/internal/importresolver"
)

// deleteNotUpdatedTypes is §4.6 step 6: every type previously declared
// by a source in UpdatedTypeSourceIds that was not redeclared this
// round (absent from r.updatedTypeIds) is gone. Deletion cascades to
// the type's own rows and queues dependents for relink/repair.
func (r *run) deleteNotUpdatedTypes(pkg *SynchronisationPackage) error {
	if len(pkg.UpdatedTypeSourceIds) == 0 {
		return nil
	}
	scoped := sortedSourceIds(pkg.UpdatedTypeSourceIds)
	query, args := inClause(`SELECT typeId FROM types WHERE sourceId IN (%s)`, scoped)
	rows, err := r.conn.QueryContext(r.ctx, query, args...)
	if err != nil {
		return err
	}
	var candidates []ids.TypeId
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		candidates = append(candidates, ids.TypeId(id))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, typeId := range candidates {
		if _, ok := r.updatedTypeIds[typeId]; ok {
			continue
		}
		if err := r.deleteType(typeId); err != nil {
			return err
		}
	}
	return nil
}

// deleteType removes every row owned by typeId, queues types that
// based themselves on it for relink, queues properties that typed
// themselves as it for relink, and nulls/queues alias properties that
// pointed at one of its own properties.
func (r *run) deleteType(typeId ids.TypeId) error {
	dependentRows, err := r.conn.QueryContext(r.ctx, `SELECT DISTINCT typeId FROM bases WHERE baseId = ?`, int64(typeId))
	if err != nil {
		return err
	}
	var dependents []ids.TypeId
	for dependentRows.Next() {
		var id int64
		if err := dependentRows.Scan(&id); err != nil {
			dependentRows.Close()
			return err
		}
		dependents = append(dependents, ids.TypeId(id))
	}
	dependentRows.Close()
	if err := dependentRows.Err(); err != nil {
		return err
	}
	for _, dep := range dependents {
		if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM bases WHERE typeId = ? AND baseId = ?`, int64(dep), int64(typeId)); err != nil {
			return err
		}
		if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM prototypes WHERE typeId = ? AND prototypeId = ?`, int64(dep), int64(typeId)); err != nil {
			return err
		}
		r.relinkableBases = append(r.relinkableBases, dep)
	}

	propRows, err := r.conn.QueryContext(r.ctx, `SELECT propertyDeclarationId FROM propertyDeclarations WHERE typeId = ?`, int64(typeId))
	if err != nil {
		return err
	}
	var ownProperties []ids.PropertyDeclarationId
	for propRows.Next() {
		var id int64
		if err := propRows.Scan(&id); err != nil {
			propRows.Close()
			return err
		}
		ownProperties = append(ownProperties, ids.PropertyDeclarationId(id))
	}
	propRows.Close()
	if err := propRows.Err(); err != nil {
		return err
	}

	typedRows, err := r.conn.QueryContext(r.ctx, `SELECT propertyDeclarationId FROM propertyDeclarations WHERE propertyTypeId = ? AND aliasPropertyImportedTypeNameId IS NULL`, int64(typeId))
	if err != nil {
		return err
	}
	for typedRows.Next() {
		var id int64
		if err := typedRows.Scan(&id); err != nil {
			typedRows.Close()
			return err
		}
		r.relinkablePropertyDeclarations = append(r.relinkablePropertyDeclarations, ids.PropertyDeclarationId(id))
	}
	typedRows.Close()
	if err := typedRows.Err(); err != nil {
		return err
	}

	for _, ownId := range ownProperties {
		aliasRows, err := r.conn.QueryContext(r.ctx, `
			SELECT propertyDeclarationId FROM propertyDeclarations
			WHERE aliasPropertyDeclarationId = ? OR aliasPropertyDeclarationTailId = ?`, int64(ownId), int64(ownId))
		if err != nil {
			return err
		}
		var dependentAliases []ids.PropertyDeclarationId
		for aliasRows.Next() {
			var id int64
			if err := aliasRows.Scan(&id); err != nil {
				aliasRows.Close()
				return err
			}
			dependentAliases = append(dependentAliases, ids.PropertyDeclarationId(id))
		}
		aliasRows.Close()
		if err := aliasRows.Err(); err != nil {
			return err
		}
		for _, dep := range dependentAliases {
			if _, err := r.conn.ExecContext(r.ctx, `
				UPDATE propertyDeclarations
				SET propertyTypeId = NULL, aliasPropertyDeclarationId = NULL, aliasPropertyDeclarationTailId = NULL
				WHERE propertyDeclarationId = ?`, int64(dep)); err != nil {
				return err
			}
			r.relinkableAliasPropertyDeclarations = append(r.relinkableAliasPropertyDeclarations, alias.ToLink{PropertyDeclarationId: dep})
		}
	}

	if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM propertyDeclarations WHERE typeId = ?`, int64(typeId)); err != nil {
		return err
	}
	if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM functionDeclarations WHERE typeId = ?`, int64(typeId)); err != nil {
		return err
	}
	if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM signalDeclarations WHERE typeId = ?`, int64(typeId)); err != nil {
		return err
	}
	if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM enumerationDeclarations WHERE typeId = ?`, int64(typeId)); err != nil {
		return err
	}
	if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM exportedTypeNames WHERE typeId = ?`, int64(typeId)); err != nil {
		return err
	}
	if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM typeAnnotations WHERE typeId = ?`, int64(typeId)); err != nil {
		return err
	}
	if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM propertyEditorPaths WHERE typeId = ?`, int64(typeId)); err != nil {
		return err
	}
	if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM bases WHERE typeId = ?`, int64(typeId)); err != nil {
		return err
	}
	if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM prototypes WHERE typeId = ?`, int64(typeId)); err != nil {
		return err
	}
	if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM types WHERE typeId = ?`, int64(typeId)); err != nil {
		return err
	}

	r.deletedTypeIds = append(r.deletedTypeIds, typeId)
	return nil
}

// relink is §4.6 step 7: re-resolve every base edge and plain property
// type queued by earlier steps, now that the rest of this
// synchronise's imports/exports/types have settled. Queued alias
// targets are handled later, by repairBrokenAliasPropertyDeclarations
// and the alias-linking phase.
func (r *run) relink() error {
	if err := r.relinkBases(); err != nil {
		return err
	}
	if err := r.relinkPropertyDeclarations(); err != nil {
		return err
	}
	return nil
}

func (r *run) relinkBases() error {
	seen := make(map[ids.TypeId]bool, len(r.relinkableBases))
	for _, typeId := range r.relinkableBases {
		if seen[typeId] {
			continue
		}
		seen[typeId] = true

		row := r.conn.QueryRowContext(r.ctx, `SELECT prototypeNameId, extensionNameId FROM types WHERE typeId = ?`, int64(typeId))
		var protoNameId, extNameId sql.NullInt64
		switch err := row.Scan(&protoNameId, &extNameId); err {
		case nil:
		case sql.ErrNoRows:
			continue // deleted since being queued
		default:
			return err
		}

		if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM bases WHERE typeId = ?`, int64(typeId)); err != nil {
			return err
		}
		if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM prototypes WHERE typeId = ?`, int64(typeId)); err != nil {
			return err
		}

		if protoNameId.Valid {
			baseId, err := r.resolver.Resolve(r.ctx, ids.ImportedTypeNameId(protoNameId.Int64))
			if err != nil {
				if err != importresolver.ErrNotFound {
					return err
				}
				baseId = ids.UnresolvedTypeId
			}
			if _, err := r.conn.ExecContext(r.ctx, `INSERT INTO prototypes(typeId, prototypeId) VALUES (?, ?)`, int64(typeId), int64(baseId)); err != nil {
				return err
			}
			if _, err := r.conn.ExecContext(r.ctx, `INSERT INTO bases(typeId, baseId) VALUES (?, ?)`, int64(typeId), int64(baseId)); err != nil {
				return err
			}
		}
		if extNameId.Valid {
			extId, err := r.resolver.Resolve(r.ctx, ids.ImportedTypeNameId(extNameId.Int64))
			if err != nil {
				if err != importresolver.ErrNotFound {
					return err
				}
				extId = ids.UnresolvedTypeId
			}
			if _, err := r.conn.ExecContext(r.ctx, `INSERT INTO bases(typeId, baseId) VALUES (?, ?)`, int64(typeId), int64(extId)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) relinkPropertyDeclarations() error {
	seen := make(map[ids.PropertyDeclarationId]bool, len(r.relinkablePropertyDeclarations))
	for _, propId := range r.relinkablePropertyDeclarations {
		if seen[propId] {
			continue
		}
		seen[propId] = true

		row := r.conn.QueryRowContext(r.ctx, `
			SELECT t.sourceId, pd.propertyImportedTypeNameId, pd.name
			FROM propertyDeclarations pd JOIN types t ON t.typeId = pd.typeId
			WHERE pd.propertyDeclarationId = ?`, int64(propId))
		var sourceId int64
		var nameId sql.NullInt64
		var name string
		switch err := row.Scan(&sourceId, &nameId, &name); err {
		case nil:
		case sql.ErrNoRows:
			continue
		default:
			return err
		}
		if !nameId.Valid {
			continue
		}

		typeId, err := r.resolver.Resolve(r.ctx, ids.ImportedTypeNameId(nameId.Int64))
		if err != nil {
			if err != importresolver.ErrNotFound {
				return err
			}
			typeId = ids.UnresolvedTypeId
			r.notifier.TypeNameCannotBeResolved(name, ids.SourceId(sourceId))
		}
		if _, err := r.conn.ExecContext(r.ctx, `UPDATE propertyDeclarations SET propertyTypeId = ? WHERE propertyDeclarationId = ?`, int64(typeId), int64(propId)); err != nil {
			return err
		}
	}
	return nil
}

// repairBrokenAliasPropertyDeclarations is §4.6 step 8: turn the raw
// property ids queued by deletion (relinkableAliasPropertyDeclarations)
// into full alias.ToLink entries and merge them into the set the
// alias-linking phase will process, deduplicated against entries
// already queued while syncing declarations this round.
func (r *run) repairBrokenAliasPropertyDeclarations() error {
	queued := make(map[ids.PropertyDeclarationId]bool, len(r.aliasPropertyDeclarationsToLink))
	for _, entry := range r.aliasPropertyDeclarationsToLink {
		queued[entry.PropertyDeclarationId] = true
	}

	for _, broken := range r.relinkableAliasPropertyDeclarations {
		if queued[broken.PropertyDeclarationId] {
			continue
		}
		row := r.conn.QueryRowContext(r.ctx, `
			SELECT pd.typeId, t.name, t.sourceId
			FROM propertyDeclarations pd JOIN types t ON t.typeId = pd.typeId
			WHERE pd.propertyDeclarationId = ?`, int64(broken.PropertyDeclarationId))
		var typeId int64
		var typeName string
		var sourceId int64
		switch err := row.Scan(&typeId, &typeName, &sourceId); err {
		case nil:
		case sql.ErrNoRows:
			continue // the alias property itself was deleted too
		default:
			return err
		}
		queued[broken.PropertyDeclarationId] = true
		r.aliasPropertyDeclarationsToLink = append(r.aliasPropertyDeclarationsToLink, alias.ToLink{
			PropertyDeclarationId: broken.PropertyDeclarationId,
			TypeId:                ids.TypeId(typeId),
			TypeName:              typeName,
			SourceId:              ids.SourceId(sourceId),
		})
	}
	return nil
}
