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

// Package importresolver resolves a symbolic ImportedTypeName (bare or
// qualified by an import alias) to a concrete TypeId, following the
// version predicate and ordering rules of §4.4. It also performs
// module-exported-import expansion: when a document import is inserted,
// the moduleExportedImports graph is walked with WITH RECURSIVE and
// every reachable module is inserted as an indirect import.
package importresolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bennypowers.dev/typestore/internal/ids"
)

// ErrNotFound is returned when no exported type name satisfies the
// version predicate; callers report typeNameCannotBeResolved and use
// ids.UnresolvedTypeId.
var ErrNotFound = errors.New("importresolver: no matching exported type")

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Resolver struct {
	q Querier
}

func New(q Querier) *Resolver { return &Resolver{q: q} }

// importedTypeName is the persisted row backing an ImportedTypeNameId.
type importedTypeName struct {
	kind             ids.ImportedTypeNameKind
	importOrSourceId int64
	name             string
}

func (r *Resolver) fetchImportedTypeName(ctx context.Context, id ids.ImportedTypeNameId) (*importedTypeName, error) {
	row := r.q.QueryContext
	rows, err := row(ctx, `SELECT kind, importOrSourceId, name FROM importedTypeNames WHERE importedTypeNameId = ?`, int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, fmt.Errorf("importresolver: unknown importedTypeNameId %d", id)
	}
	var itn importedTypeName
	var kind uint8
	if err := rows.Scan(&kind, &itn.importOrSourceId, &itn.name); err != nil {
		return nil, err
	}
	itn.kind = ids.ImportedTypeNameKind(kind)
	return &itn, rows.Err()
}

// Resolve resolves an ImportedTypeNameId to a concrete TypeId per the
// algorithm of §4.4. Returns ErrNotFound (wrapped) if nothing matches.
func (r *Resolver) Resolve(ctx context.Context, id ids.ImportedTypeNameId) (ids.TypeId, error) {
	itn, err := r.fetchImportedTypeName(ctx, id)
	if err != nil {
		return 0, err
	}
	switch itn.kind {
	case ids.ImportedTypeNameKindExported:
		return r.resolveExported(ctx, ids.SourceId(itn.importOrSourceId), itn.name)
	case ids.ImportedTypeNameKindQualifiedExported:
		return r.resolveQualifiedExported(ctx, ids.ImportId(itn.importOrSourceId), itn.name)
	default:
		return 0, fmt.Errorf("importresolver: unknown kind %v", itn.kind)
	}
}

const versionPredicate = `
    (di.majorVersion = 4294967295
      OR (di.majorVersion = e.majorVersion
          AND (di.minorVersion = 4294967295 OR di.minorVersion >= e.minorVersion)))`

// resolveExported implements the kind=Exported branch: join
// importedTypeNames (by name, already known) to exportedTypeNames and
// further to documentImports on moduleId, restricted to the importing
// source and to non-aliased imports.
func (r *Resolver) resolveExported(ctx context.Context, sourceId ids.SourceId, name string) (ids.TypeId, error) {
	query := fmt.Sprintf(`
		SELECT e.typeId
		FROM exportedTypeNames e
		JOIN documentImports di ON di.moduleId = e.moduleId
		WHERE e.name = ?
		  AND di.sourceId = ?
		  AND di.alias IS NULL
		  AND %s
		ORDER BY di.kind ASC, e.majorVersion DESC, e.minorVersion DESC
		LIMIT 1`, versionPredicate)

	return r.queryOne(ctx, query, name, int64(sourceId))
}

// resolveQualifiedExported implements the kind=QualifiedExported
// branch: the alias scope is found via importId, then the target
// exports are reached by joining a second time on
// (sourceId = scope.sourceId AND moduleId = scope.sourceModuleId).
func (r *Resolver) resolveQualifiedExported(ctx context.Context, importId ids.ImportId, name string) (ids.TypeId, error) {
	query := fmt.Sprintf(`
		SELECT e.typeId
		FROM documentImports scope
		JOIN documentImports di
		  ON di.sourceId = scope.sourceId AND di.moduleId = scope.sourceModuleId
		JOIN exportedTypeNames e ON e.moduleId = di.moduleId
		WHERE scope.importId = ?
		  AND e.name = ?
		  AND %s
		ORDER BY di.kind ASC, e.majorVersion DESC, e.minorVersion DESC
		LIMIT 1`, versionPredicate)

	return r.queryOne(ctx, query, int64(importId), name)
}

func (r *Resolver) queryOne(ctx context.Context, query string, args ...any) (ids.TypeId, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, ErrNotFound
	}
	var typeId int64
	if err := rows.Scan(&typeId); err != nil {
		return 0, err
	}
	return ids.TypeId(typeId), rows.Err()
}

// ExpandModuleExportedImports walks moduleExportedImports from moduleId
// with WITH RECURSIVE and inserts one indirect documentImports row per
// reachable (exportedModuleId, version), linked to parentImportId. Auto-
// version edges (isAutoVersion=true) propagate the importer's own
// version; other edges carry their declared version. indirectKind is
// ModuleExportedImport when the original import was an Import, or
// ModuleExportedModuleDependency when it was a ModuleDependency.
func (r *Resolver) ExpandModuleExportedImports(
	ctx context.Context,
	parentImportId ids.ImportId,
	sourceId, contextSourceId ids.SourceId,
	moduleId ids.ModuleId,
	majorVersion, minorVersion uint32,
	indirectKind ids.DocumentImportKind,
) error {
	const walk = `
		WITH RECURSIVE reachable(exportedModuleId, isAutoVersion, majorVersion, minorVersion) AS (
			SELECT exportedModuleId, isAutoVersion, majorVersion, minorVersion
			FROM moduleExportedImports
			WHERE moduleId = ?
			UNION
			SELECT mei.exportedModuleId, mei.isAutoVersion, mei.majorVersion, mei.minorVersion
			FROM moduleExportedImports mei
			JOIN reachable r ON mei.moduleId = r.exportedModuleId
		)
		SELECT exportedModuleId, isAutoVersion, majorVersion, minorVersion FROM reachable`

	rows, err := r.q.QueryContext(ctx, walk, int64(moduleId))
	if err != nil {
		return fmt.Errorf("expand module-exported imports: %w", err)
	}
	defer rows.Close()

	type reachable struct {
		exportedModuleId int64
		isAutoVersion    bool
		major, minor     uint32
	}
	var out []reachable
	for rows.Next() {
		var re reachable
		if err := rows.Scan(&re.exportedModuleId, &re.isAutoVersion, &re.major, &re.minor); err != nil {
			return err
		}
		out = append(out, re)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, re := range out {
		major, minor := re.major, re.minor
		if re.isAutoVersion {
			major, minor = majorVersion, minorVersion
		}
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO documentImports
				(sourceId, contextSourceId, moduleId, sourceModuleId, kind, majorVersion, minorVersion, parentImportId, alias)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
			int64(sourceId), int64(contextSourceId), re.exportedModuleId, int64(moduleId),
			uint8(indirectKind), major, minor, int64(parentImportId),
		); err != nil {
			return fmt.Errorf("insert indirect import: %w", err)
		}
	}
	return nil
}
