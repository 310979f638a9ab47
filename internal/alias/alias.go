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

// Package alias is the Alias Linker (§4.7): it resolves `alias name :
// target.path.tail` properties to the concrete property they point at,
// detects alias cycles, and propagates resolved type/traits down every
// alias chain.
package alias

import (
	"context"
	"database/sql"
	"fmt"

	"bennypowers.dev/typestore/internal/errs"
	"bennypowers.dev/typestore/internal/ids"
	"bennypowers.dev/typestore/internal/importresolver"
)

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ToLink names one alias property declaration awaiting linking.
type ToLink struct {
	PropertyDeclarationId ids.PropertyDeclarationId
	TypeId                ids.TypeId // owning type, for error reporting
	TypeName              string
	SourceId              ids.SourceId
}

type Linker struct {
	q        Querier
	resolver *importresolver.Resolver
	notifier *errs.Notifier
}

func New(q Querier, notifier *errs.Notifier) *Linker {
	return &Linker{q: q, resolver: importresolver.New(q), notifier: notifier}
}

// aliasRow is the subset of propertyDeclarations needed to link one
// alias.
type aliasRow struct {
	aliasImportedTypeNameId sql.NullInt64
	stemName                sql.NullString
	tailName                sql.NullString
}

func (l *Linker) fetchAliasRow(ctx context.Context, id ids.PropertyDeclarationId) (*aliasRow, error) {
	row := l.q.QueryContext
	rows, err := row(ctx, `
		SELECT aliasPropertyImportedTypeNameId, aliasPropertyDeclarationName, aliasPropertyDeclarationTailName
		FROM propertyDeclarations WHERE propertyDeclarationId = ?`, int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, fmt.Errorf("alias: unknown propertyDeclarationId %d", id)
	}
	var r aliasRow
	if err := rows.Scan(&r.aliasImportedTypeNameId, &r.stemName, &r.tailName); err != nil {
		return nil, err
	}
	return &r, rows.Err()
}

// fetchProperty looks up (typeId, name) in propertyDeclarations,
// walking the single-prototype chain (the `prototypes` table, not the
// full `bases` union) when not found directly on typeId.
func (l *Linker) fetchProperty(ctx context.Context, typeId ids.TypeId, name string) (id ids.PropertyDeclarationId, propType ids.TypeId, propTraits uint32, found bool, err error) {
	current := typeId
	for depth := 0; depth < 64; depth++ { // generous bound against malformed data; real cycles are rejected elsewhere
		rows, qerr := l.q.QueryContext(ctx, `
			SELECT propertyDeclarationId, propertyTypeId, propertyTraits
			FROM propertyDeclarations WHERE typeId = ? AND name = ?`, int64(current), name)
		if qerr != nil {
			return 0, 0, 0, false, qerr
		}
		if rows.Next() {
			var pid int64
			var ptype sql.NullInt64
			var ptraits uint32
			if serr := rows.Scan(&pid, &ptype, &ptraits); serr != nil {
				rows.Close()
				return 0, 0, 0, false, serr
			}
			rows.Close()
			return ids.PropertyDeclarationId(pid), ids.TypeId(ptype.Int64), ptraits, true, nil
		}
		rows.Close()

		next, nerr := l.prototypeOf(ctx, current)
		if nerr != nil {
			return 0, 0, 0, false, nerr
		}
		if !next.Valid() {
			return 0, 0, 0, false, nil
		}
		current = next
	}
	return 0, 0, 0, false, fmt.Errorf("alias: prototype walk exceeded bound looking up %q from type %d", name, typeId)
}

func (l *Linker) prototypeOf(ctx context.Context, typeId ids.TypeId) (ids.TypeId, error) {
	row := l.q.QueryContext
	rows, err := row(ctx, `SELECT prototypeId FROM prototypes WHERE typeId = ?`, int64(typeId))
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, nil
	}
	var protoId int64
	if err := rows.Scan(&protoId); err != nil {
		return 0, err
	}
	return ids.TypeId(protoId), rows.Err()
}

// resetAlias nulls the resolved type and stem/tail link columns of one
// alias row and zeroes its traits, then recursively does the same for any alias pointing
// at it via aliasPropertyDeclarationId, propagating the break downward.
func (l *Linker) resetAlias(ctx context.Context, id ids.PropertyDeclarationId) error {
	if _, err := l.q.ExecContext(ctx, `
		UPDATE propertyDeclarations
		SET propertyTypeId = NULL, propertyTraits = 0, aliasPropertyDeclarationId = NULL, aliasPropertyDeclarationTailId = NULL
		WHERE propertyDeclarationId = ?`, int64(id)); err != nil {
		return err
	}

	rows, err := l.q.QueryContext(ctx, `
		SELECT propertyDeclarationId FROM propertyDeclarations WHERE aliasPropertyDeclarationId = ?`, int64(id))
	if err != nil {
		return err
	}
	var dependents []ids.PropertyDeclarationId
	for rows.Next() {
		var dep int64
		if err := rows.Scan(&dep); err != nil {
			rows.Close()
			return err
		}
		dependents = append(dependents, ids.PropertyDeclarationId(dep))
	}
	rows.Close()

	for _, dep := range dependents {
		if err := l.resetAlias(ctx, dep); err != nil {
			return err
		}
	}
	return nil
}

// LinkAliasPropertyDeclarationAliasIds is pass 1 (§4.7.1): resolve the
// target type and stem/tail property ids for every alias in toLink,
// writing aliasPropertyDeclarationId/aliasPropertyDeclarationTailId on
// success, or resetting and reporting on failure.
func (l *Linker) LinkAliasPropertyDeclarationAliasIds(ctx context.Context, toLink []ToLink) error {
	for _, entry := range toLink {
		row, err := l.fetchAliasRow(ctx, entry.PropertyDeclarationId)
		if err != nil {
			return err
		}
		if !row.aliasImportedTypeNameId.Valid || !row.stemName.Valid {
			continue
		}

		aliasTypeId, rerr := l.resolver.Resolve(ctx, ids.ImportedTypeNameId(row.aliasImportedTypeNameId.Int64))
		if rerr != nil {
			if err := l.resetAlias(ctx, entry.PropertyDeclarationId); err != nil {
				return err
			}
			l.notifier.TypeNameCannotBeResolved(row.stemName.String, entry.SourceId)
			continue
		}

		stemId, stemType, stemTraits, found, ferr := l.fetchProperty(ctx, aliasTypeId, row.stemName.String)
		if ferr != nil {
			return ferr
		}
		if !found {
			if err := l.resetAlias(ctx, entry.PropertyDeclarationId); err != nil {
				return err
			}
			l.notifier.PropertyNameDoesNotExist(row.stemName.String, entry.SourceId)
			continue
		}

		finalId := stemId
		finalType := stemType
		finalTraits := stemTraits

		if row.tailName.Valid && row.tailName.String != "" {
			if !stemType.Resolved() {
				if err := l.resetAlias(ctx, entry.PropertyDeclarationId); err != nil {
					return err
				}
				l.notifier.PropertyNameDoesNotExist(row.tailName.String, entry.SourceId)
				continue
			}
			tailId, tailType, tailTraits, tfound, terr := l.fetchProperty(ctx, stemType, row.tailName.String)
			if terr != nil {
				return terr
			}
			if !tfound {
				if err := l.resetAlias(ctx, entry.PropertyDeclarationId); err != nil {
					return err
				}
				l.notifier.PropertyNameDoesNotExist(row.tailName.String, entry.SourceId)
				continue
			}
			finalId = tailId
			finalType = tailType
			finalTraits = tailTraits

			if _, err := l.q.ExecContext(ctx, `
				UPDATE propertyDeclarations
				SET aliasPropertyDeclarationId = ?, aliasPropertyDeclarationTailId = ?
				WHERE propertyDeclarationId = ?`,
				int64(stemId), int64(tailId), int64(entry.PropertyDeclarationId)); err != nil {
				return err
			}
		} else {
			if _, err := l.q.ExecContext(ctx, `
				UPDATE propertyDeclarations
				SET aliasPropertyDeclarationId = ?, aliasPropertyDeclarationTailId = NULL
				WHERE propertyDeclarationId = ?`,
				int64(stemId), int64(entry.PropertyDeclarationId)); err != nil {
				return err
			}
		}

		if _, err := l.q.ExecContext(ctx, `
			UPDATE propertyDeclarations SET propertyTypeId = ?, propertyTraits = ?
			WHERE propertyDeclarationId = ?`,
			int64(finalType), finalTraits, int64(entry.PropertyDeclarationId)); err != nil {
			return err
		}
	}
	return nil
}

// CheckCycles is pass 2 (§4.7.2): walk aliasPropertyDeclarationId from
// each linked id; a revisited starting id is an alias cycle.
func (l *Linker) CheckCycles(ctx context.Context, toLink []ToLink) error {
	for _, entry := range toLink {
		visited := map[ids.PropertyDeclarationId]bool{entry.PropertyDeclarationId: true}
		current := entry.PropertyDeclarationId
		for depth := 0; depth < 1024; depth++ {
			next, ok, err := l.aliasTargetOf(ctx, current)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if next == entry.PropertyDeclarationId {
				l.notifier.AliasCycle(entry.TypeName, "", entry.SourceId)
				return errs.AliasChainCycle(entry.TypeName, "", entry.SourceId)
			}
			if visited[next] {
				break // a cycle not rooted at entry; another entry's walk will catch it
			}
			visited[next] = true
			current = next
		}
	}
	return nil
}

func (l *Linker) aliasTargetOf(ctx context.Context, id ids.PropertyDeclarationId) (ids.PropertyDeclarationId, bool, error) {
	rows, err := l.q.QueryContext(ctx, `
		SELECT aliasPropertyDeclarationId FROM propertyDeclarations
		WHERE propertyDeclarationId = ? AND aliasPropertyDeclarationId IS NOT NULL`, int64(id))
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, false, nil
	}
	var target int64
	if err := rows.Scan(&target); err != nil {
		return 0, false, err
	}
	return ids.PropertyDeclarationId(target), true, rows.Err()
}

// PropagateValues is pass 3 (§4.7.3): recursively copy
// (propertyTypeId, propertyTraits) from each linked alias's ultimate
// target down every alias chain rooted at it.
func (l *Linker) PropagateValues(ctx context.Context, toLink []ToLink) error {
	for _, entry := range toLink {
		if err := l.propagateFrom(ctx, entry.PropertyDeclarationId); err != nil {
			return err
		}
	}
	return nil
}

func (l *Linker) propagateFrom(ctx context.Context, id ids.PropertyDeclarationId) error {
	rows, err := l.q.QueryContext(ctx, `
		SELECT propertyTypeId, propertyTraits FROM propertyDeclarations WHERE propertyDeclarationId = ?`, int64(id))
	if err != nil {
		return err
	}
	var typeId sql.NullInt64
	var traits uint32
	if !rows.Next() {
		rows.Close()
		return nil
	}
	if err := rows.Scan(&typeId, &traits); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	depRows, err := l.q.QueryContext(ctx, `
		SELECT propertyDeclarationId FROM propertyDeclarations WHERE aliasPropertyDeclarationId = ?`, int64(id))
	if err != nil {
		return err
	}
	var dependents []ids.PropertyDeclarationId
	for depRows.Next() {
		var dep int64
		if err := depRows.Scan(&dep); err != nil {
			depRows.Close()
			return err
		}
		dependents = append(dependents, ids.PropertyDeclarationId(dep))
	}
	depRows.Close()

	for _, dep := range dependents {
		if _, err := l.q.ExecContext(ctx, `
			UPDATE propertyDeclarations SET propertyTypeId = ?, propertyTraits = ? WHERE propertyDeclarationId = ?`,
			typeId, traits, int64(dep)); err != nil {
			return err
		}
		if err := l.propagateFrom(ctx, dep); err != nil {
			return err
		}
	}
	return nil
}

// Link runs all three passes in order, matching §4.7's "resolve ->
// cycle-check -> propagate" pipeline.
func (l *Linker) Link(ctx context.Context, toLink []ToLink) error {
	if err := l.LinkAliasPropertyDeclarationAliasIds(ctx, toLink); err != nil {
		return err
	}
	if err := l.CheckCycles(ctx, toLink); err != nil {
		return err
	}
	return l.PropagateValues(ctx, toLink)
}
