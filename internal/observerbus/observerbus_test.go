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

package observerbus_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/typestore/internal/ids"
	"bennypowers.dev/typestore/internal/observerbus"
)

type recordingObserver struct {
	removedCalls  [][]ids.TypeId
	exportedCalls []struct{ added, removed []observerbus.ExportedTypeNameChange }
}

func (r *recordingObserver) RemovedTypeIds(removed []ids.TypeId) {
	r.removedCalls = append(r.removedCalls, removed)
}

func (r *recordingObserver) ExportedTypeNamesChanged(added, removed []observerbus.ExportedTypeNameChange) {
	r.exportedCalls = append(r.exportedCalls, struct{ added, removed []observerbus.ExportedTypeNameChange }{added, removed})
}

func TestFireOrdersRemovedBeforeExportedChanges(t *testing.T) {
	bus := observerbus.New()
	obs := &recordingObserver{}
	bus.AddObserver(obs)

	bus.Fire([]ids.TypeId{3, 1, 2, 1}, true,
		[]observerbus.ExportedTypeNameChange{{Name: "Item"}}, nil)

	require.Len(t, obs.removedCalls, 1)
	if diff := cmp.Diff([]ids.TypeId{1, 2, 3}, obs.removedCalls[0]); diff != "" {
		t.Errorf("removedTypeIds not sorted/deduplicated (-want +got):\n%s", diff)
	}
	require.Len(t, obs.exportedCalls, 1)
	require.Equal(t, "Item", obs.exportedCalls[0].added[0].Name)
}

func TestFireSkipsRemovedCallWhenEmpty(t *testing.T) {
	bus := observerbus.New()
	obs := &recordingObserver{}
	bus.AddObserver(obs)

	bus.Fire(nil, false, nil, nil)

	require.Empty(t, obs.removedCalls)
	require.Empty(t, obs.exportedCalls)
}

func TestRemoveObserverStopsDelivery(t *testing.T) {
	bus := observerbus.New()
	obs := &recordingObserver{}
	bus.AddObserver(obs)
	bus.RemoveObserver(obs)

	bus.Fire([]ids.TypeId{1}, true, nil, nil)

	require.Empty(t, obs.removedCalls)
	require.Empty(t, obs.exportedCalls)
}
