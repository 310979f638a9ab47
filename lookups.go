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

package typestore

import (
	"context"
	"database/sql"
	"fmt"

	"bennypowers.dev/typestore/internal/ids"
)

// the version predicate used by TypeId: a wildcard major accepts
// anything; otherwise major must match exactly and minor is either a
// wildcard or an upper bound on the exported minor. Mirrors the
// predicate importresolver applies against documentImports,
// specialised here to a caller-supplied version rather than an import
// row's.
const versionPredicate = `
    (? = 4294967295
      OR (majorVersion = ?
          AND (? = 4294967295 OR minorVersion <= ?)))`

// TypeInfo is the row shape returned by Type.
type TypeInfo struct {
	TypeId              TypeId
	SourceId            SourceId
	Name                string
	Traits              ids.TypeTraits
	PrototypeId         TypeId
	ExtensionId         TypeId
	DefaultPropertyId   PropertyDeclarationId
}

// PropertyDeclarationInfo is the row shape returned by
// PropertyDeclaration.
type PropertyDeclarationInfo struct {
	Id                               PropertyDeclarationId
	TypeId                           TypeId
	Name                             string
	PropertyTypeId                   TypeId
	PropertyTraits                   uint32
	IsAlias                          bool
	AliasPropertyDeclarationId       PropertyDeclarationId
	AliasPropertyDeclarationTailId   PropertyDeclarationId
}

// ExportedTypeNameInfo is one (module, name, version) binding for a
// type, as returned by ExportedTypeNames.
type ExportedTypeNameInfo struct {
	ModuleId        ModuleId
	Name            string
	MajorVersion    uint32
	MinorVersion    uint32
	ContextSourceId SourceId
}

// ItemLibraryEntry is a type's project-palette entry, as persisted in
// typeAnnotations for one directory scope.
type ItemLibraryEntry struct {
	TypeId      TypeId
	TypeName    string
	ItemLibrary string
}

// TypeId resolves (moduleId, name, version) to a concrete type, taking
// the highest exported minor version that satisfies the caller's
// request (or the caller's own wildcard). Use VersionWildcard for
// "any version".
func (s *Store) TypeId(ctx context.Context, moduleId ModuleId, name string, majorVersion, minorVersion uint32) (TypeId, bool, error) {
	query := fmt.Sprintf(`
		SELECT typeId FROM exportedTypeNames
		WHERE moduleId = ? AND name = ? AND %s
		ORDER BY majorVersion DESC, minorVersion DESC
		LIMIT 1`, versionPredicate)

	row := s.db.DB().QueryRowContext(ctx, query, int64(moduleId), name, majorVersion, majorVersion, minorVersion, minorVersion)
	var typeId int64
	if err := row.Scan(&typeId); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return TypeId(typeId), true, nil
}

// TypeIds returns every type exported from moduleId, deduplicated
// across versions.
func (s *Store) TypeIds(ctx context.Context, moduleId ModuleId) ([]TypeId, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT DISTINCT typeId FROM exportedTypeNames WHERE moduleId = ? ORDER BY typeId`, int64(moduleId))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTypeIds(rows)
}

// TypeIdByName finds the type declared as name within sourceId,
// independent of whether it was ever exported. sourceId+name is the
// types table's natural key (mirrors the synchroniser's own
// declareType lookup).
func (s *Store) TypeIdByName(ctx context.Context, sourceId SourceId, name string) (TypeId, bool, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT typeId FROM types WHERE sourceId = ? AND name = ?`, int64(sourceId), name)
	var typeId int64
	if err := row.Scan(&typeId); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return TypeId(typeId), true, nil
}

// SingletonTypeIds returns every type declared in sourceId with the
// IsSingleton trait set.
func (s *Store) SingletonTypeIds(ctx context.Context, sourceId SourceId) ([]TypeId, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT typeId FROM types WHERE sourceId = ? AND traits & ? != 0 ORDER BY typeId`,
		int64(sourceId), uint32(ids.TraitIsSingleton))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTypeIds(rows)
}

// ExportedTypeNames returns every (module, name, version) label bound
// to typeId, optionally restricted to one contextSourceId (pass 0 to
// not filter).
func (s *Store) ExportedTypeNames(ctx context.Context, typeId TypeId, contextSourceId SourceId) ([]ExportedTypeNameInfo, error) {
	query := `SELECT moduleId, name, majorVersion, minorVersion, contextSourceId FROM exportedTypeNames WHERE typeId = ?`
	args := []any{int64(typeId)}
	if contextSourceId.Valid() {
		query += ` AND contextSourceId = ?`
		args = append(args, int64(contextSourceId))
	}
	query += ` ORDER BY moduleId, majorVersion DESC, minorVersion DESC`

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExportedTypeNameInfo
	for rows.Next() {
		var e ExportedTypeNameInfo
		var moduleId, ctxSrc int64
		if err := rows.Scan(&moduleId, &e.Name, &e.MajorVersion, &e.MinorVersion, &ctxSrc); err != nil {
			return nil, err
		}
		e.ModuleId = ModuleId(moduleId)
		e.ContextSourceId = SourceId(ctxSrc)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ImportId finds the (non-indirect) import of moduleId in sourceId, if
// one was synchronised.
func (s *Store) ImportId(ctx context.Context, sourceId SourceId, moduleId ModuleId) (ImportId, bool, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT importId FROM documentImports
		WHERE sourceId = ? AND moduleId = ? AND parentImportId IS NULL
		LIMIT 1`, int64(sourceId), int64(moduleId))
	var importId int64
	if err := row.Scan(&importId); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return ImportId(importId), true, nil
}

// ImportedTypeNameId finds the interned row for a textual type
// reference, without creating one (contrast with the synchroniser's
// internImportedTypeName, which is find-or-insert).
func (s *Store) ImportedTypeNameId(ctx context.Context, kind ids.ImportedTypeNameKind, importOrSourceId int64, name string) (ImportedTypeNameId, bool, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT importedTypeNameId FROM importedTypeNames
		WHERE kind = ? AND importOrSourceId = ? AND name = ?`,
		uint8(kind), importOrSourceId, name)
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return ImportedTypeNameId(id), true, nil
}

// PropertyDeclarationIds returns every property declared directly on
// typeId, in declaration order.
func (s *Store) PropertyDeclarationIds(ctx context.Context, typeId TypeId) ([]PropertyDeclarationId, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT propertyDeclarationId FROM propertyDeclarations WHERE typeId = ? ORDER BY propertyDeclarationId`,
		int64(typeId))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PropertyDeclarationId
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, PropertyDeclarationId(id))
	}
	return out, rows.Err()
}

// PropertyDeclaration reads one property (plain or alias) by id.
func (s *Store) PropertyDeclaration(ctx context.Context, id PropertyDeclarationId) (PropertyDeclarationInfo, bool, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT propertyDeclarationId, typeId, name, propertyTypeId, propertyTraits,
		       aliasPropertyDeclarationId, aliasPropertyDeclarationTailId
		FROM propertyDeclarations WHERE propertyDeclarationId = ?`, int64(id))

	var info PropertyDeclarationInfo
	var pdId, typeId int64
	var propertyTypeId, aliasId, aliasTailId sql.NullInt64
	if err := row.Scan(&pdId, &typeId, &info.Name, &propertyTypeId, &info.PropertyTraits, &aliasId, &aliasTailId); err != nil {
		if err == sql.ErrNoRows {
			return PropertyDeclarationInfo{}, false, nil
		}
		return PropertyDeclarationInfo{}, false, err
	}
	info.Id = PropertyDeclarationId(pdId)
	info.TypeId = TypeId(typeId)
	if propertyTypeId.Valid {
		info.PropertyTypeId = TypeId(propertyTypeId.Int64)
	}
	if aliasId.Valid {
		info.IsAlias = true
		info.AliasPropertyDeclarationId = PropertyDeclarationId(aliasId.Int64)
	}
	if aliasTailId.Valid {
		info.AliasPropertyDeclarationTailId = PropertyDeclarationId(aliasTailId.Int64)
	}
	return info, true, nil
}

// Type reads one type's own row (not its declarations).
func (s *Store) Type(ctx context.Context, id TypeId) (TypeInfo, bool, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT t.typeId, t.sourceId, t.name, t.traits, p.prototypeId, t.defaultPropertyId
		FROM types t
		LEFT JOIN prototypes p ON p.typeId = t.typeId
		WHERE t.typeId = ?`, int64(id))

	var info TypeInfo
	var typeId, sourceId int64
	var traits uint32
	var prototypeId, defaultPropertyId sql.NullInt64
	if err := row.Scan(&typeId, &sourceId, &info.Name, &traits, &prototypeId, &defaultPropertyId); err != nil {
		if err == sql.ErrNoRows {
			return TypeInfo{}, false, nil
		}
		return TypeInfo{}, false, err
	}
	info.TypeId = TypeId(typeId)
	info.SourceId = SourceId(sourceId)
	info.Traits = ids.TypeTraits(traits)
	if prototypeId.Valid {
		info.PrototypeId = TypeId(prototypeId.Int64)
	}
	if defaultPropertyId.Valid {
		info.DefaultPropertyId = PropertyDeclarationId(defaultPropertyId.Int64)
	}

	// the extension edge lives only in bases (prototypes holds just the
	// prototype leg), as whichever baseId isn't the resolved prototype.
	extRow := s.db.DB().QueryRowContext(ctx, `
		SELECT baseId FROM bases WHERE typeId = ? AND baseId != ? LIMIT 1`,
		int64(id), int64(info.PrototypeId))
	var extId int64
	switch err := extRow.Scan(&extId); err {
	case nil:
		info.ExtensionId = TypeId(extId)
	case sql.ErrNoRows:
	default:
		return TypeInfo{}, false, err
	}

	return info, true, nil
}

// TypeIconPath returns the icon path recorded in a type's annotation,
// if any.
func (s *Store) TypeIconPath(ctx context.Context, id TypeId) (string, bool, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT iconPath FROM typeAnnotations WHERE typeId = ?`, int64(id))
	var iconPath sql.NullString
	if err := row.Scan(&iconPath); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return iconPath.String, iconPath.Valid, nil
}

// TypeHints returns the application-defined hints JSON recorded in a
// type's annotation, if any.
func (s *Store) TypeHints(ctx context.Context, id TypeId) (string, bool, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT hints FROM typeAnnotations WHERE typeId = ?`, int64(id))
	var hints sql.NullString
	if err := row.Scan(&hints); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return hints.String, hints.Valid, nil
}

// ItemLibraryEntries returns every annotated type scoped to
// directoryId that carries a non-null itemLibrary blob, for a project
// palette.
func (s *Store) ItemLibraryEntries(ctx context.Context, directoryId DirectoryPathId) ([]ItemLibraryEntry, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT typeId, typeName, itemLibrary FROM typeAnnotations
		WHERE directoryId = ? AND itemLibrary IS NOT NULL
		ORDER BY typeName`, int64(directoryId))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ItemLibraryEntry
	for rows.Next() {
		var e ItemLibraryEntry
		var typeId int64
		if err := rows.Scan(&typeId, &e.TypeName, &e.ItemLibrary); err != nil {
			return nil, err
		}
		e.TypeId = TypeId(typeId)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SignalDeclarationNames returns the names of every signal declared
// directly on typeId, in declaration order.
func (s *Store) SignalDeclarationNames(ctx context.Context, typeId TypeId) ([]string, error) {
	return queryNames(ctx, s.db.DB(), `SELECT name FROM signalDeclarations WHERE typeId = ? ORDER BY signalDeclarationId`, int64(typeId))
}

// FunctionDeclarationNames returns the names of every function
// declared directly on typeId, in declaration order.
func (s *Store) FunctionDeclarationNames(ctx context.Context, typeId TypeId) ([]string, error) {
	return queryNames(ctx, s.db.DB(), `SELECT name FROM functionDeclarations WHERE typeId = ? ORDER BY functionDeclarationId`, int64(typeId))
}

// PrototypeIds walks the direct prototype chain from typeId upward
// (not including typeId itself), stopping at an unresolved or absent
// link.
func (s *Store) PrototypeIds(ctx context.Context, typeId TypeId) ([]TypeId, error) {
	var out []TypeId
	seen := map[TypeId]bool{typeId: true}
	current := typeId
	for {
		row := s.db.DB().QueryRowContext(ctx, `SELECT prototypeId FROM prototypes WHERE typeId = ?`, int64(current))
		var next int64
		if err := row.Scan(&next); err != nil {
			if err == sql.ErrNoRows {
				return out, nil
			}
			return nil, err
		}
		nextId := TypeId(next)
		if !nextId.Resolved() || seen[nextId] {
			return out, nil
		}
		out = append(out, nextId)
		seen[nextId] = true
		current = nextId
	}
}

// PrototypeAndSelfIds is PrototypeIds with typeId itself prepended.
func (s *Store) PrototypeAndSelfIds(ctx context.Context, typeId TypeId) ([]TypeId, error) {
	chain, err := s.PrototypeIds(ctx, typeId)
	if err != nil {
		return nil, err
	}
	return append([]TypeId{typeId}, chain...), nil
}

// HeirIds returns every type that transitively derives from typeId
// (the reverse of the inheritance cache's transitive-bases walk).
func (s *Store) HeirIds(ctx context.Context, typeId TypeId) ([]TypeId, error) {
	const walk = `
		WITH RECURSIVE heirs(typeId) AS (
			SELECT typeId FROM bases WHERE baseId = ?
			UNION
			SELECT b.typeId FROM bases b
			JOIN heirs h ON b.baseId = h.typeId
		)
		SELECT typeId FROM heirs ORDER BY typeId`

	rows, err := s.db.DB().QueryContext(ctx, walk, int64(typeId))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTypeIds(rows)
}

// PropertyEditorPathId returns the interned source/directory scope a
// type's property-editor QML file was found at.
func (s *Store) PropertyEditorPathId(ctx context.Context, typeId TypeId) (pathSourceId SourceId, directoryId DirectoryPathId, ok bool, err error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT pathSourceId, directoryId FROM propertyEditorPaths WHERE typeId = ?`, int64(typeId))
	var psid, did int64
	if err := row.Scan(&psid, &did); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return SourceId(psid), DirectoryPathId(did), true, nil
}

// FileStatus returns the last-synchronised size/mtime pair for
// sourceId, used to decide whether a document needs reparsing.
func (s *Store) FileStatus(ctx context.Context, sourceId SourceId) (FileStatus, bool, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT sourceId, size, lastModified FROM fileStatuses WHERE sourceId = ?`, int64(sourceId))
	var fs FileStatus
	var sid int64
	if err := row.Scan(&sid, &fs.Size, &fs.LastModified); err != nil {
		if err == sql.ErrNoRows {
			return FileStatus{}, false, nil
		}
		return FileStatus{}, false, err
	}
	fs.SourceId = SourceId(sid)
	return fs, true, nil
}

// ProjectEntryInfo returns the project-membership record for
// (contextSourceId, sourceId), if one was synchronised.
func (s *Store) ProjectEntryInfo(ctx context.Context, contextSourceId, sourceId SourceId) (ProjectEntryInfo, bool, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT contextSourceId, sourceId, moduleId, fileType FROM projectEntryInfos
		WHERE contextSourceId = ? AND sourceId = ?`, int64(contextSourceId), int64(sourceId))

	var info ProjectEntryInfo
	var ctxSrc, src int64
	var moduleId sql.NullInt64
	var fileType uint8
	if err := row.Scan(&ctxSrc, &src, &moduleId, &fileType); err != nil {
		if err == sql.ErrNoRows {
			return ProjectEntryInfo{}, false, nil
		}
		return ProjectEntryInfo{}, false, err
	}
	info.ContextSourceId = SourceId(ctxSrc)
	info.SourceId = SourceId(src)
	if moduleId.Valid {
		info.ModuleId = ModuleId(moduleId.Int64)
	}
	info.FileType = FileType(fileType)
	return info, true, nil
}

func scanTypeIds(rows *sql.Rows) ([]TypeId, error) {
	var out []TypeId
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, TypeId(id))
	}
	return out, rows.Err()
}

func queryNames(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
