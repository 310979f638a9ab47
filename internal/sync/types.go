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

	"bennypowers.dev/typestore/internal/alias"
	"bennypowers.dev/typestore/internal/ids"
	"bennypowers.dev/typestore/internal/importresolver"
)

// synchroniseTypes is §4.6 step 5: declare or update every type named
// in pkg.Types, then reconcile its prototype/extension, declarations
// and default property. Every touched typeId is added to
// r.updatedTypeIds so step 6 knows what survives.
func (r *run) synchroniseTypes(pkg *SynchronisationPackage) error {
	if len(pkg.UpdatedTypeSourceIds) == 0 {
		return nil
	}
	incoming := append([]Type(nil), pkg.Types...)
	sort.Slice(incoming, func(i, j int) bool {
		if incoming[i].SourceId != incoming[j].SourceId {
			return incoming[i].SourceId < incoming[j].SourceId
		}
		return incoming[i].Name < incoming[j].Name
	})

	for _, t := range incoming {
		typeId, err := r.declareType(t.Name, t.SourceId)
		if err != nil {
			return err
		}
		r.updatedTypeIds[typeId] = struct{}{}

		if _, err := r.conn.ExecContext(r.ctx, `UPDATE types SET traits = ? WHERE typeId = ?`, uint32(t.Traits), int64(typeId)); err != nil {
			return err
		}

		if err := r.syncPrototypeAndExtension(typeId, t); err != nil {
			return err
		}
		if err := r.syncDeclarations(typeId, t); err != nil {
			return err
		}
		if err := r.syncDefaultProperty(typeId, t); err != nil {
			return err
		}
	}
	return nil
}

// internImportedTypeName finds or inserts the importedTypeNames row
// backing ref, returning its id.
func (r *run) internImportedTypeName(ref *ImportedTypeNameRef) (ids.ImportedTypeNameId, error) {
	row := r.conn.QueryRowContext(r.ctx, `
		SELECT importedTypeNameId FROM importedTypeNames WHERE kind = ? AND importOrSourceId = ? AND name = ?`,
		uint8(ref.Kind), ref.ImportOrSourceId, ref.Name)
	var existing int64
	switch err := row.Scan(&existing); err {
	case nil:
		return ids.ImportedTypeNameId(existing), nil
	case sql.ErrNoRows:
		res, err := r.conn.ExecContext(r.ctx, `
			INSERT INTO importedTypeNames(kind, importOrSourceId, name) VALUES (?, ?, ?)`,
			uint8(ref.Kind), ref.ImportOrSourceId, ref.Name)
		if err != nil {
			return 0, err
		}
		newId, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		return ids.ImportedTypeNameId(newId), nil
	default:
		return 0, err
	}
}

// resolveRef interns ref and resolves it to a concrete TypeId. An
// unresolvable reference yields ids.UnresolvedTypeId plus a
// TypeNameCannotBeResolved notification, not an error: the caller
// proceeds with the sentinel. syncPrototypeAndExtension then queues
// the type for a later relink attempt; property callers queue nothing.
func (r *run) resolveRef(ref *ImportedTypeNameRef, sourceId ids.SourceId) (ids.ImportedTypeNameId, ids.TypeId, error) {
	nameId, err := r.internImportedTypeName(ref)
	if err != nil {
		return 0, 0, err
	}
	typeId, err := r.resolver.Resolve(r.ctx, nameId)
	if err != nil {
		if err == importresolver.ErrNotFound {
			r.notifier.TypeNameCannotBeResolved(ref.Name, sourceId)
			return nameId, ids.UnresolvedTypeId, nil
		}
		return 0, 0, err
	}
	return nameId, typeId, nil
}

// syncPrototypeAndExtension resolves t.Prototype/t.Extension, writes
// the single-slot prototypes row and the direct bases edges, and
// queues typeId for relink if either leg is unresolved.
func (r *run) syncPrototypeAndExtension(typeId ids.TypeId, t Type) error {
	if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM prototypes WHERE typeId = ?`, int64(typeId)); err != nil {
		return err
	}
	if _, err := r.conn.ExecContext(r.ctx, `DELETE FROM bases WHERE typeId = ?`, int64(typeId)); err != nil {
		return err
	}

	unresolved := false

	if t.Prototype != nil {
		nameId, baseId, err := r.resolveRef(t.Prototype, t.SourceId)
		if err != nil {
			return err
		}
		if _, err := r.conn.ExecContext(r.ctx, `UPDATE types SET prototypeNameId = ? WHERE typeId = ?`, int64(nameId), int64(typeId)); err != nil {
			return err
		}
		if _, err := r.conn.ExecContext(r.ctx, `INSERT INTO prototypes(typeId, prototypeId) VALUES (?, ?)`, int64(typeId), int64(baseId)); err != nil {
			return err
		}
		if _, err := r.conn.ExecContext(r.ctx, `INSERT INTO bases(typeId, baseId) VALUES (?, ?)`, int64(typeId), int64(baseId)); err != nil {
			return err
		}
		if !baseId.Resolved() {
			unresolved = true
		}
	}

	if t.Extension != nil {
		nameId, extId, err := r.resolveRef(t.Extension, t.SourceId)
		if err != nil {
			return err
		}
		if _, err := r.conn.ExecContext(r.ctx, `UPDATE types SET extensionNameId = ? WHERE typeId = ?`, int64(nameId), int64(typeId)); err != nil {
			return err
		}
		if _, err := r.conn.ExecContext(r.ctx, `INSERT INTO bases(typeId, baseId) VALUES (?, ?)`, int64(typeId), int64(extId)); err != nil {
			return err
		}
		if !extId.Resolved() {
			unresolved = true
		}
	}

	if unresolved {
		r.relinkableBases = append(r.relinkableBases, typeId)
	}
	r.updatedPrototypeIds[typeId] = struct{}{}
	return nil
}

// syncDeclarations three-way merges properties, functions, signals and
// enums against what is already persisted for typeId.
func (r *run) syncDeclarations(typeId ids.TypeId, t Type) error {
	if err := r.syncProperties(typeId, t.SourceId, t.Properties); err != nil {
		return err
	}
	if err := r.syncFunctions(typeId, t.Functions); err != nil {
		return err
	}
	if err := r.syncSignals(typeId, t.Signals); err != nil {
		return err
	}
	if err := r.syncEnumerations(typeId, t.Enumerations); err != nil {
		return err
	}
	return nil
}

type persistedProperty struct {
	id   ids.PropertyDeclarationId
	name string
}

func (r *run) syncProperties(typeId ids.TypeId, sourceId ids.SourceId, props []PropertyDeclaration) error {
	rows, err := r.conn.QueryContext(r.ctx, `SELECT propertyDeclarationId, name FROM propertyDeclarations WHERE typeId = ? ORDER BY name`, int64(typeId))
	if err != nil {
		return err
	}
	var persisted []persistedProperty
	for rows.Next() {
		var p persistedProperty
		var id int64
		if err := rows.Scan(&id, &p.name); err != nil {
			rows.Close()
			return err
		}
		p.id = ids.PropertyDeclarationId(id)
		persisted = append(persisted, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	incoming := append([]PropertyDeclaration(nil), props...)
	sort.Slice(incoming, func(i, j int) bool { return incoming[i].Name < incoming[j].Name })

	return Merge(persisted, incoming,
		func(p persistedProperty) string { return p.name },
		func(i PropertyDeclaration) string { return i.Name },
		func(i PropertyDeclaration) error {
			id, err := r.insertProperty(typeId, sourceId, i)
			if err != nil {
				return err
			}
			if i.AliasTargetName != nil {
				r.aliasPropertyDeclarationsToLink = append(r.aliasPropertyDeclarationsToLink, alias.ToLink{
					PropertyDeclarationId: id, TypeId: typeId, SourceId: sourceId,
				})
			}
			return nil
		},
		func(p persistedProperty, i PropertyDeclaration) error {
			if err := r.updateProperty(p.id, typeId, sourceId, i); err != nil {
				return err
			}
			if i.AliasTargetName != nil {
				r.aliasPropertyDeclarationsToLink = append(r.aliasPropertyDeclarationsToLink, alias.ToLink{
					PropertyDeclarationId: p.id, TypeId: typeId, SourceId: sourceId,
				})
			}
			return nil
		},
		func(p persistedProperty) error {
			_, err := r.conn.ExecContext(r.ctx, `DELETE FROM propertyDeclarations WHERE propertyDeclarationId = ?`, int64(p.id))
			return err
		},
	)
}

// TODO: when i shadows a same-named property already inherited from a
// prototype, any alias elsewhere whose aliasPropertyDeclarationId still
// points at the prototype's property should be bumped to this override
// (§4.6 step 5). insertProperty does not look for such aliases today.
func (r *run) insertProperty(typeId ids.TypeId, sourceId ids.SourceId, i PropertyDeclaration) (ids.PropertyDeclarationId, error) {
	if i.AliasTargetName != nil {
		nameId, err := r.internImportedTypeName(i.AliasTargetName)
		if err != nil {
			return 0, err
		}
		res, err := r.conn.ExecContext(r.ctx, `
			INSERT INTO propertyDeclarations(typeId, name, aliasPropertyImportedTypeNameId, aliasPropertyDeclarationName, aliasPropertyDeclarationTailName)
			VALUES (?, ?, ?, ?, ?)`,
			int64(typeId), i.Name, int64(nameId), i.AliasStemName, nullableString(i.AliasTailName))
		if err != nil {
			return 0, err
		}
		newId, err := res.LastInsertId()
		return ids.PropertyDeclarationId(newId), err
	}

	var propTypeId ids.TypeId
	var propNameId ids.ImportedTypeNameId
	if i.ImportedType != nil {
		nid, tid, err := r.resolveRef(i.ImportedType, sourceId)
		if err != nil {
			return 0, err
		}
		propNameId, propTypeId = nid, tid
	}
	res, err := r.conn.ExecContext(r.ctx, `
		INSERT INTO propertyDeclarations(typeId, name, propertyTypeId, propertyTraits, propertyImportedTypeNameId)
		VALUES (?, ?, ?, ?, ?)`,
		int64(typeId), i.Name, nullableTypeId(propTypeId), i.PropertyTraits, nullableImportedTypeNameId(propNameId))
	if err != nil {
		return 0, err
	}
	newId, err := res.LastInsertId()
	return ids.PropertyDeclarationId(newId), err
}

func (r *run) updateProperty(id ids.PropertyDeclarationId, typeId ids.TypeId, sourceId ids.SourceId, i PropertyDeclaration) error {
	if i.AliasTargetName != nil {
		nameId, err := r.internImportedTypeName(i.AliasTargetName)
		if err != nil {
			return err
		}
		_, err = r.conn.ExecContext(r.ctx, `
			UPDATE propertyDeclarations
			SET aliasPropertyImportedTypeNameId = ?, aliasPropertyDeclarationName = ?, aliasPropertyDeclarationTailName = ?,
			    propertyTypeId = NULL, propertyImportedTypeNameId = NULL
			WHERE propertyDeclarationId = ?`,
			int64(nameId), i.AliasStemName, nullableString(i.AliasTailName), int64(id))
		return err
	}

	var propTypeId ids.TypeId
	var propNameId ids.ImportedTypeNameId
	if i.ImportedType != nil {
		nid, tid, err := r.resolveRef(i.ImportedType, sourceId)
		if err != nil {
			return err
		}
		propNameId, propTypeId = nid, tid
	}
	_, err := r.conn.ExecContext(r.ctx, `
		UPDATE propertyDeclarations
		SET propertyTypeId = ?, propertyTraits = ?, propertyImportedTypeNameId = ?,
		    aliasPropertyImportedTypeNameId = NULL, aliasPropertyDeclarationName = NULL, aliasPropertyDeclarationTailName = NULL
		WHERE propertyDeclarationId = ?`,
		nullableTypeId(propTypeId), i.PropertyTraits, nullableImportedTypeNameId(propNameId), int64(id))
	return err
}

func nullableTypeId(id ids.TypeId) any {
	if id == 0 {
		return nil
	}
	return int64(id)
}

func nullableImportedTypeNameId(id ids.ImportedTypeNameId) any {
	if id == 0 {
		return nil
	}
	return int64(id)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type declKey struct{ name, signature string }

type persistedDecl struct {
	id   int64
	key  declKey
}

func (r *run) syncFunctions(typeId ids.TypeId, fns []FunctionDeclaration) error {
	rows, err := r.conn.QueryContext(r.ctx, `SELECT functionDeclarationId, name, signature FROM functionDeclarations WHERE typeId = ? ORDER BY name, signature`, int64(typeId))
	if err != nil {
		return err
	}
	var persisted []persistedDecl
	for rows.Next() {
		var p persistedDecl
		if err := rows.Scan(&p.id, &p.key.name, &p.key.signature); err != nil {
			rows.Close()
			return err
		}
		persisted = append(persisted, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	incoming := append([]FunctionDeclaration(nil), fns...)
	sort.Slice(incoming, func(i, j int) bool {
		if incoming[i].Name != incoming[j].Name {
			return incoming[i].Name < incoming[j].Name
		}
		return incoming[i].Signature < incoming[j].Signature
	})

	return Merge(persisted, incoming,
		func(p persistedDecl) declKey { return p.key },
		func(i FunctionDeclaration) declKey { return declKey{i.Name, i.Signature} },
		func(i FunctionDeclaration) error {
			_, err := r.conn.ExecContext(r.ctx, `
				INSERT INTO functionDeclarations(typeId, name, signature, returnTypeName) VALUES (?, ?, ?, ?)`,
				int64(typeId), i.Name, i.Signature, nullableString(i.ReturnTypeName))
			return err
		},
		func(p persistedDecl, i FunctionDeclaration) error {
			_, err := r.conn.ExecContext(r.ctx, `UPDATE functionDeclarations SET returnTypeName = ? WHERE functionDeclarationId = ?`, nullableString(i.ReturnTypeName), p.id)
			return err
		},
		func(p persistedDecl) error {
			_, err := r.conn.ExecContext(r.ctx, `DELETE FROM functionDeclarations WHERE functionDeclarationId = ?`, p.id)
			return err
		},
	)
}

func (r *run) syncSignals(typeId ids.TypeId, sigs []SignalDeclaration) error {
	rows, err := r.conn.QueryContext(r.ctx, `SELECT signalDeclarationId, name, signature FROM signalDeclarations WHERE typeId = ? ORDER BY name, signature`, int64(typeId))
	if err != nil {
		return err
	}
	var persisted []persistedDecl
	for rows.Next() {
		var p persistedDecl
		if err := rows.Scan(&p.id, &p.key.name, &p.key.signature); err != nil {
			rows.Close()
			return err
		}
		persisted = append(persisted, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	incoming := append([]SignalDeclaration(nil), sigs...)
	sort.Slice(incoming, func(i, j int) bool {
		if incoming[i].Name != incoming[j].Name {
			return incoming[i].Name < incoming[j].Name
		}
		return incoming[i].Signature < incoming[j].Signature
	})

	return Merge(persisted, incoming,
		func(p persistedDecl) declKey { return p.key },
		func(i SignalDeclaration) declKey { return declKey{i.Name, i.Signature} },
		func(i SignalDeclaration) error {
			_, err := r.conn.ExecContext(r.ctx, `INSERT INTO signalDeclarations(typeId, name, signature) VALUES (?, ?, ?)`, int64(typeId), i.Name, i.Signature)
			return err
		},
		func(p persistedDecl, i SignalDeclaration) error { return nil },
		func(p persistedDecl) error {
			_, err := r.conn.ExecContext(r.ctx, `DELETE FROM signalDeclarations WHERE signalDeclarationId = ?`, p.id)
			return err
		},
	)
}

type persistedEnum struct {
	id   int64
	name string
}

func (r *run) syncEnumerations(typeId ids.TypeId, enums []EnumerationDeclaration) error {
	rows, err := r.conn.QueryContext(r.ctx, `SELECT enumerationDeclarationId, name FROM enumerationDeclarations WHERE typeId = ? ORDER BY name`, int64(typeId))
	if err != nil {
		return err
	}
	var persisted []persistedEnum
	for rows.Next() {
		var p persistedEnum
		if err := rows.Scan(&p.id, &p.name); err != nil {
			rows.Close()
			return err
		}
		persisted = append(persisted, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	incoming := append([]EnumerationDeclaration(nil), enums...)
	sort.Slice(incoming, func(i, j int) bool { return incoming[i].Name < incoming[j].Name })

	return Merge(persisted, incoming,
		func(p persistedEnum) string { return p.name },
		func(i EnumerationDeclaration) string { return i.Name },
		func(i EnumerationDeclaration) error {
			_, err := r.conn.ExecContext(r.ctx, `INSERT INTO enumerationDeclarations(typeId, name, enumeratorDeclarations) VALUES (?, ?, ?)`, int64(typeId), i.Name, i.EnumeratorDeclarations)
			return err
		},
		func(p persistedEnum, i EnumerationDeclaration) error {
			_, err := r.conn.ExecContext(r.ctx, `UPDATE enumerationDeclarations SET enumeratorDeclarations = ? WHERE enumerationDeclarationId = ?`, i.EnumeratorDeclarations, p.id)
			return err
		},
		func(p persistedEnum) error {
			_, err := r.conn.ExecContext(r.ctx, `DELETE FROM enumerationDeclarations WHERE enumerationDeclarationId = ?`, p.id)
			return err
		},
	)
}

// syncDefaultProperty resolves t.DefaultPropertyName against the
// declarations just synced and writes types.defaultPropertyId, or
// reports MissingDefaultProperty when the name is set but absent.
func (r *run) syncDefaultProperty(typeId ids.TypeId, t Type) error {
	if t.DefaultPropertyName == "" {
		_, err := r.conn.ExecContext(r.ctx, `UPDATE types SET defaultPropertyId = NULL WHERE typeId = ?`, int64(typeId))
		return err
	}
	row := r.conn.QueryRowContext(r.ctx, `SELECT propertyDeclarationId FROM propertyDeclarations WHERE typeId = ? AND name = ?`, int64(typeId), t.DefaultPropertyName)
	var propId int64
	switch err := row.Scan(&propId); err {
	case nil:
		_, err := r.conn.ExecContext(r.ctx, `UPDATE types SET defaultPropertyId = ? WHERE typeId = ?`, propId, int64(typeId))
		return err
	case sql.ErrNoRows:
		r.notifier.MissingDefaultProperty(t.Name, t.DefaultPropertyName, t.SourceId)
		_, err := r.conn.ExecContext(r.ctx, `UPDATE types SET defaultPropertyId = NULL WHERE typeId = ?`, int64(typeId))
		return err
	default:
		return err
	}
}
