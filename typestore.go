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

// Package typestore is the public facade of the type-graph storage
// engine: Open wires up every internal component (schema, module
// cache, import resolver, alias linker, inheritance cache, common
// type cache, observer bus, type synchroniser) against one SQLite
// file, and Store exposes the write entry points and the read-only
// lookup surface of §6 on top of them.
package typestore

import (
	"context"
	"fmt"

	"bennypowers.dev/typestore/internal/commontypecache"
	"bennypowers.dev/typestore/internal/errs"
	"bennypowers.dev/typestore/internal/ids"
	"bennypowers.dev/typestore/internal/inheritance"
	"bennypowers.dev/typestore/internal/modulecache"
	"bennypowers.dev/typestore/internal/observerbus"
	"bennypowers.dev/typestore/internal/store"
	typesync "bennypowers.dev/typestore/internal/sync"
)

// Re-exported so callers never need to import the internal packages
// directly to build a SynchronisationPackage or read back a result.
type (
	SynchronisationPackage = typesync.SynchronisationPackage
	Type                   = typesync.Type
	ImportedTypeNameRef    = typesync.ImportedTypeNameRef
	PropertyDeclaration    = typesync.PropertyDeclaration
	FunctionDeclaration    = typesync.FunctionDeclaration
	SignalDeclaration      = typesync.SignalDeclaration
	EnumerationDeclaration = typesync.EnumerationDeclaration
	ExportedType           = typesync.ExportedType
	Import                 = typesync.Import
	ModuleExportedImport   = typesync.ModuleExportedImport
	FileStatus             = typesync.FileStatus
	ProjectEntryInfo       = typesync.ProjectEntryInfo
	TypeAnnotation         = typesync.TypeAnnotation
	PropertyEditorQmlPath  = typesync.PropertyEditorQmlPath
	Result                 = typesync.Result
	ExportedTypeNameChange = typesync.ExportedTypeNameChange

	Observer         = observerbus.Observer
	Notification     = errs.Notification
	NotificationKind = errs.NotificationKind

	ModuleId                 = ids.ModuleId
	SourceId                 = ids.SourceId
	DirectoryPathId          = ids.DirectoryPathId
	TypeId                   = ids.TypeId
	ImportId                 = ids.ImportId
	ImportedTypeNameId       = ids.ImportedTypeNameId
	PropertyDeclarationId    = ids.PropertyDeclarationId
	FunctionDeclarationId    = ids.FunctionDeclarationId
	SignalDeclarationId      = ids.SignalDeclarationId
	EnumerationDeclarationId = ids.EnumerationDeclarationId
	ModuleKind               = ids.ModuleKind
	FileType                 = ids.FileType
)

const UnresolvedTypeId = ids.UnresolvedTypeId
const VersionWildcard = ids.VersionWildcard

// CommonTypeSlot names a well-known type the caller wants resolved on
// every synchronise, independent of any particular document's imports
// (§2, §9's common type cache note).
type CommonTypeSlot = commontypecache.Slot

// Store is the assembled engine: one SQLite file plus every cache and
// helper component wired against it. The zero value is not usable;
// construct with Open.
type Store struct {
	db          *store.Store
	modules     *modulecache.Cache
	inheritance *inheritance.Cache
	commonTypes *commontypecache.Cache
	bus         *observerbus.Bus
	notifier    *errs.Notifier
	sync        *typesync.Synchroniser
}

// Open opens (creating if absent) the database at path, populates the
// module cache with a single scan, and resolves commonTypeSlots for
// the first time. Passing ":memory:" is useful for tests. The result
// is ready to synchronise and query immediately.
func Open(ctx context.Context, path string, commonTypeSlots []CommonTypeSlot) (*Store, error) {
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}

	modules, err := modulecache.New(ctx, db.DB())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open: populate module cache: %w", err)
	}

	commonTypes := commontypecache.New(db.DB(), commonTypeSlots)
	if err := commonTypes.Refresh(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open: initial common type cache refresh: %w", err)
	}

	s := &Store{
		db:          db,
		modules:     modules,
		inheritance: inheritance.New(db.DB()),
		commonTypes: commonTypes,
		bus:         observerbus.New(),
		notifier:    errs.NewNotifier(nil),
	}
	s.sync = typesync.New(db, modules, s.inheritance, s.commonTypes, s.notifier, s.bus)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// ModuleId returns the id for (name, kind), interning a new row on
// first use of the pair.
func (s *Store) ModuleId(ctx context.Context, name string, kind ModuleKind) (ModuleId, error) {
	return s.modules.Id(ctx, name, kind)
}

// ModuleName returns the (name, kind) pair for a known ModuleId.
func (s *Store) ModuleName(id ModuleId) (name string, kind ModuleKind, ok bool) {
	return s.modules.Name(id)
}

// ModuleIdsWithPrefix returns every ModuleId whose name begins with
// prefix and whose kind matches, as used by editor autocompletion over
// known modules.
func (s *Store) ModuleIdsWithPrefix(prefix string, kind ModuleKind) []ModuleId {
	return s.modules.Prefix(prefix, kind)
}

// Synchronise is the main write entry point (§6): applies pkg inside
// one immediate transaction, then performs post-commit cache
// maintenance and observer dispatch.
func (s *Store) Synchronise(ctx context.Context, pkg *SynchronisationPackage) (*Result, error) {
	return s.sync.Synchronise(ctx, pkg)
}

// SynchroniseDocumentImports is the subset of Synchronise used for a
// single document's import-list edit: only the imports of sourceId are
// touched, everything else in pkg is ignored. It still runs inside its
// own immediate transaction and still triggers the same post-commit
// cache maintenance, since module-exported expansion can alter what is
// resolvable from other documents too.
func (s *Store) SynchroniseDocumentImports(ctx context.Context, sourceId SourceId, imports []Import) (*Result, error) {
	pkg := &SynchronisationPackage{
		Imports:                imports,
		UpdatedImportSourceIds: []SourceId{sourceId},
	}
	return s.sync.Synchronise(ctx, pkg)
}

// AddObserver registers o to receive post-commit callbacks from every
// subsequent Synchronise call.
func (s *Store) AddObserver(o Observer) { s.bus.AddObserver(o) }

// RemoveObserver unregisters a previously added observer.
func (s *Store) RemoveObserver(o Observer) { s.bus.RemoveObserver(o) }

// SetErrorNotifier replaces the sink for non-fatal resolution failures
// (§7). Passing nil silently discards notifications, same as never
// calling SetErrorNotifier at all.
func (s *Store) SetErrorNotifier(fn func(Notification)) {
	*s.notifier = *errs.NewNotifier(fn)
}

// CommonTypeId looks up a slot registered at Open time, refreshed after
// every synchronise.
func (s *Store) CommonTypeId(module, name string) (TypeId, bool) {
	return s.commonTypes.Lookup(module, name)
}

// BasedOn reports, for each of candidateIds (up to 12), whether typeId
// transitively derives from it via the prototype/extension chain.
func (s *Store) BasedOn(ctx context.Context, typeId TypeId, candidateIds ...TypeId) ([]bool, error) {
	return s.inheritance.BasedOn(ctx, typeId, candidateIds...)
}

// InheritsAll reports whether every id in typeIds transitively derives
// from baseTypeId.
func (s *Store) InheritsAll(ctx context.Context, typeIds []TypeId, baseTypeId TypeId) (bool, error) {
	return s.inheritance.InheritsAll(ctx, typeIds, baseTypeId)
}
