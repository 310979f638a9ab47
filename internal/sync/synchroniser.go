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

// Package sync is the Type Synchroniser: the batch-synchronisation
// state machine of §4.6. A single Synchronise call runs every step in
// order inside one immediate transaction, then (after commit) resets
// the inheritance cache, refreshes the common-type cache, and fires
// the observer bus.
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"bennypowers.dev/typestore/internal/alias"
	"bennypowers.dev/typestore/internal/commontypecache"
	"bennypowers.dev/typestore/internal/errs"
	"bennypowers.dev/typestore/internal/ids"
	"bennypowers.dev/typestore/internal/importresolver"
	"bennypowers.dev/typestore/internal/inheritance"
	"bennypowers.dev/typestore/internal/logging"
	"bennypowers.dev/typestore/internal/modulecache"
	"bennypowers.dev/typestore/internal/observerbus"
	"bennypowers.dev/typestore/internal/store"
)

// Synchroniser owns the one-immediate-transaction-per-call write path
// and the caches that are invalidated/refreshed at its boundary.
type Synchroniser struct {
	store       *store.Store
	modules     *modulecache.Cache
	inheritance *inheritance.Cache
	commonTypes *commontypecache.Cache
	notifier    *errs.Notifier
	bus         *observerbus.Bus
}

func New(
	st *store.Store,
	modules *modulecache.Cache,
	inh *inheritance.Cache,
	ctc *commontypecache.Cache,
	notifier *errs.Notifier,
	bus *observerbus.Bus,
) *Synchroniser {
	return &Synchroniser{store: st, modules: modules, inheritance: inh, commonTypes: ctc, notifier: notifier, bus: bus}
}

// run carries the scratch sets of §4.6 step 1 across every sub-step of
// one synchronise call.
type run struct {
	ctx      context.Context
	conn     *sql.Conn
	resolver *importresolver.Resolver
	aliasLnk *alias.Linker
	notifier *errs.Notifier

	updatedTypeIds      map[ids.TypeId]struct{}
	updatedPrototypeIds map[ids.TypeId]struct{}
	deletedTypeIds      []ids.TypeId

	relinkableBases                   []ids.TypeId
	relinkablePropertyDeclarations    []ids.PropertyDeclarationId
	relinkableAliasPropertyDeclarations []alias.ToLink
	aliasPropertyDeclarationsToLink   []alias.ToLink

	added, removed       []ExportedTypeNameChange
	exportedTypesChanged bool
}

// Synchronise is the main write entry point (§6). It applies pkg inside
// one immediate transaction, then performs the post-commit cache
// maintenance and observer dispatch of steps 13-14.
func (s *Synchroniser) Synchronise(ctx context.Context, pkg *SynchronisationPackage) (*Result, error) {
	var result Result

	err := s.store.WithImmediate(ctx, func(conn *sql.Conn) error {
		r := &run{
			ctx:                 ctx,
			conn:                conn,
			resolver:            importresolver.New(conn),
			aliasLnk:            alias.New(conn, s.notifier),
			notifier:            s.notifier,
			updatedTypeIds:      make(map[ids.TypeId]struct{}),
			updatedPrototypeIds: make(map[ids.TypeId]struct{}),
		}

		logging.Debug("synchronise: phase=fileStatuses")
		if err := r.synchroniseFileStatuses(pkg); err != nil {
			return err
		}

		logging.Debug("synchronise: phase=imports")
		if err := r.synchroniseImports(s.modules, pkg); err != nil {
			return err
		}

		logging.Debug("synchronise: phase=exportedTypeNames")
		if err := r.synchroniseExportedTypeNames(pkg); err != nil {
			return err
		}

		logging.Debug("synchronise: phase=types")
		if err := r.synchroniseTypes(pkg); err != nil {
			return err
		}

		logging.Debug("synchronise: phase=deleteNotUpdatedTypes")
		if err := r.deleteNotUpdatedTypes(pkg); err != nil {
			return err
		}

		logging.Debug("synchronise: phase=relink")
		sort.Slice(r.deletedTypeIds, func(i, j int) bool { return r.deletedTypeIds[i] < r.deletedTypeIds[j] })
		if err := r.relink(); err != nil {
			return err
		}

		logging.Debug("synchronise: phase=checkBasesCycles")
		if err := r.checkBasesCycles(); err != nil {
			return err
		}

		logging.Debug("synchronise: phase=repairBrokenAliases")
		if err := r.repairBrokenAliasPropertyDeclarations(); err != nil {
			return err
		}

		logging.Debug("synchronise: phase=linkAliases")
		if err := r.aliasLnk.Link(ctx, r.aliasPropertyDeclarationsToLink); err != nil {
			return err
		}

		logging.Debug("synchronise: phase=annotations")
		if err := r.synchroniseAnnotations(pkg); err != nil {
			return err
		}
		if err := r.updateAnnotationsTypeTraitsFromPrototypes(); err != nil {
			return err
		}

		logging.Debug("synchronise: phase=propertyEditorPaths")
		if err := r.synchronisePropertyEditorPaths(pkg); err != nil {
			return err
		}

		logging.Debug("synchronise: phase=projectEntryInfos")
		if err := r.synchroniseProjectEntryInfos(pkg); err != nil {
			return err
		}

		result.DeletedTypeIds = r.deletedTypeIds
		result.ExportedTypesChanged = r.exportedTypesChanged
		result.Added = r.added
		result.Removed = r.removed
		return nil
	})
	if err != nil {
		logging.Error("synchronise aborted: %v", err)
		return nil, err
	}

	s.inheritance.Reset()
	if err := s.commonTypes.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("refresh common type cache: %w", err)
	}

	s.bus.Fire(result.DeletedTypeIds, result.ExportedTypesChanged,
		toBusChanges(result.Added), toBusChanges(result.Removed))

	return &result, nil
}

func toBusChanges(in []ExportedTypeNameChange) []observerbus.ExportedTypeNameChange {
	out := make([]observerbus.ExportedTypeNameChange, len(in))
	for i, c := range in {
		out[i] = observerbus.ExportedTypeNameChange{
			ModuleId: c.ModuleId, Name: c.Name,
			MajorVersion: c.MajorVersion, MinorVersion: c.MinorVersion, TypeId: c.TypeId,
		}
	}
	return out
}

// declareType returns the existing type id for (sourceId, name) or
// inserts a new row and returns its id.
func (r *run) declareType(name string, sourceId ids.SourceId) (ids.TypeId, error) {
	row := r.conn.QueryRowContext(r.ctx, `SELECT typeId FROM types WHERE sourceId = ? AND name = ?`, int64(sourceId), name)
	var existing int64
	switch err := row.Scan(&existing); err {
	case nil:
		return ids.TypeId(existing), nil
	case sql.ErrNoRows:
		res, err := r.conn.ExecContext(r.ctx, `INSERT INTO types(sourceId, name, traits) VALUES (?, ?, 0)`, int64(sourceId), name)
		if err != nil {
			return 0, fmt.Errorf("declareType(%q, %d): %w", name, sourceId, err)
		}
		newId, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		return ids.TypeId(newId), nil
	default:
		return 0, err
	}
}
