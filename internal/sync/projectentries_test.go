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
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"bennypowers.dev/typestore/internal/ids"
)

func TestSynchroniseProjectEntryInfosMerges(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO projectEntryInfos(contextSourceId, sourceId, moduleId, fileType) VALUES (1, 2, NULL, 1)`); err != nil {
			return err
		}

		r := newRun(ctx, conn)
		pkg := &SynchronisationPackage{
			ProjectEntryInfos: []ProjectEntryInfo{
				{ContextSourceId: 1, SourceId: 3, FileType: ids.FileTypeSource},
			},
			UpdatedProjectEntryInfoSourceIds: []ids.SourceId{2, 3},
		}
		return r.synchroniseProjectEntryInfos(pkg)
	})
	require.NoError(t, err)

	var total int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM projectEntryInfos`).Scan(&total))
	require.Equal(t, 1, total)

	var fileType int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT fileType FROM projectEntryInfos WHERE sourceId = 3`).Scan(&fileType))
	require.Equal(t, int(ids.FileTypeSource), fileType)
}

func TestSynchronisePropertyEditorPathsMerges(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.WithImmediate(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `INSERT INTO propertyEditorPaths(typeId, pathSourceId, directoryId) VALUES (1, 10, 5)`); err != nil {
			return err
		}

		r := newRun(ctx, conn)
		pkg := &SynchronisationPackage{
			PropertyEditorQmlPaths: []PropertyEditorQmlPath{
				{TypeId: 2, PathSourceId: 20, DirectoryId: 5},
			},
			UpdatedPropertyEditorQmlPathDirectoryIds: []ids.DirectoryPathId{5},
		}
		return r.synchronisePropertyEditorPaths(pkg)
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM propertyEditorPaths`).Scan(&count))
	require.Equal(t, 1, count)

	var pathSourceId int64
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT pathSourceId FROM propertyEditorPaths WHERE typeId = 2`).Scan(&pathSourceId))
	require.Equal(t, int64(20), pathSourceId)
}
