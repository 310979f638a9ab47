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

	"bennypowers.dev/typestore/internal/errs"
	"bennypowers.dev/typestore/internal/ids"
)

// synchroniseFileStatuses is §4.6 step 2: a three-way merge of
// package.fileStatuses against the persisted rows restricted to
// updatedFileStatusSourceIds.
func (r *run) synchroniseFileStatuses(pkg *SynchronisationPackage) error {
	if len(pkg.UpdatedFileStatusSourceIds) == 0 {
		return nil
	}

	scoped := sortedSourceIds(pkg.UpdatedFileStatusSourceIds)
	persisted, err := r.loadFileStatuses(scoped)
	if err != nil {
		return err
	}

	incoming := append([]FileStatus(nil), pkg.FileStatuses...)
	sort.Slice(incoming, func(i, j int) bool { return incoming[i].SourceId < incoming[j].SourceId })

	return Merge(persisted, incoming,
		func(p FileStatus) ids.SourceId { return p.SourceId },
		func(i FileStatus) ids.SourceId { return i.SourceId },
		func(i FileStatus) error {
			if !i.SourceId.Valid() {
				return &errs.FatalError{Err: errs.ErrFileStatusHasInvalidSourceId, SourceId: i.SourceId}
			}
			_, err := r.conn.ExecContext(r.ctx, `
				INSERT INTO fileStatuses(sourceId, size, lastModified) VALUES (?, ?, ?)`,
				int64(i.SourceId), i.Size, i.LastModified)
			return err
		},
		func(p FileStatus, i FileStatus) error {
			if p.Size == i.Size && p.LastModified == i.LastModified {
				return nil
			}
			_, err := r.conn.ExecContext(r.ctx, `
				UPDATE fileStatuses SET size = ?, lastModified = ? WHERE sourceId = ?`,
				i.Size, i.LastModified, int64(p.SourceId))
			return err
		},
		func(p FileStatus) error {
			_, err := r.conn.ExecContext(r.ctx, `DELETE FROM fileStatuses WHERE sourceId = ?`, int64(p.SourceId))
			return err
		},
	)
}

func (r *run) loadFileStatuses(sourceIds []ids.SourceId) ([]FileStatus, error) {
	if len(sourceIds) == 0 {
		return nil, nil
	}
	query, args := inClause(`SELECT sourceId, size, lastModified FROM fileStatuses WHERE sourceId IN (%s) ORDER BY sourceId`, sourceIds)
	rows, err := r.conn.QueryContext(r.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileStatus
	for rows.Next() {
		var fs FileStatus
		var sid int64
		if err := rows.Scan(&sid, &fs.Size, &fs.LastModified); err != nil {
			return nil, err
		}
		fs.SourceId = ids.SourceId(sid)
		out = append(out, fs)
	}
	return out, rows.Err()
}

func sortedSourceIds(in []ids.SourceId) []ids.SourceId {
	out := append([]ids.SourceId(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// inClause builds a "col IN (?,?,...)" fragment for a slice of ids,
// returning the formatted query (with %s substituted) and its args.
func inClause[T ~int64](format string, ids []T) (string, []any) {
	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = int64(id)
	}
	return fmt.Sprintf(format, placeholders), args
}
