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

// Package ids defines the opaque integer id types shared across the
// type-graph storage engine. Every kind of id is a distinct Go type so the
// compiler catches accidental mixing (passing a SourceId where a TypeId is
// expected), the same role the source's per-kind pointer types played.
package ids

import "fmt"

// ModuleId identifies a row in the modules table. Unique by (name, kind).
type ModuleId int64

// SourceId identifies an interned path. A directory-only SourceId (no file
// name component) is a "context id" used to scope imports and exports.
type SourceId int64

// DirectoryPathId identifies an interned directory path, independent of any
// file within it.
type DirectoryPathId int64

// TypeId identifies a declared type. Zero is never valid; see Valid.
type TypeId int64

// ImportId identifies a row in documentImports.
type ImportId int64

// ImportedTypeNameId identifies a textual type reference appearing in a
// document (bare or qualified by import alias).
type ImportedTypeNameId int64

// PropertyDeclarationId identifies a property, alias, or parameter-like
// declaration on a type.
type PropertyDeclarationId int64

// FunctionDeclarationId identifies a function/method declaration on a type.
type FunctionDeclarationId int64

// SignalDeclarationId identifies a signal/event declaration on a type.
type SignalDeclarationId int64

// EnumerationDeclarationId identifies an enumeration declaration on a type.
type EnumerationDeclarationId int64

// ModuleExportedImportId identifies a row in moduleExportedImports.
type ModuleExportedImportId int64

// UnresolvedTypeId is the reserved sentinel distinguishing "a base is
// expected but cannot currently be resolved" from "no base at all" (which is
// represented by the Go zero value / SQL NULL). It is stored in bases and
// prototypes rows and triggers relinking on a later synchronise.
const UnresolvedTypeId TypeId = -1

// VersionWildcard is the constant used for major/minor version fields that
// mean "accept any version".
const VersionWildcard uint32 = 0xFFFFFFFF

// Valid reports whether an id is non-zero, i.e. denotes a real row rather
// than "absent".
func (id ModuleId) Valid() bool               { return id != 0 }
func (id SourceId) Valid() bool               { return id != 0 }
func (id DirectoryPathId) Valid() bool        { return id != 0 }
func (id TypeId) Valid() bool                 { return id != 0 }
func (id ImportId) Valid() bool               { return id != 0 }
func (id ImportedTypeNameId) Valid() bool     { return id != 0 }
func (id PropertyDeclarationId) Valid() bool  { return id != 0 }
func (id FunctionDeclarationId) Valid() bool  { return id != 0 }
func (id SignalDeclarationId) Valid() bool    { return id != 0 }
func (id EnumerationDeclarationId) Valid() bool {
	return id != 0
}

// Resolved reports whether a type id is a concrete, resolved reference: not
// the zero value (absent) and not the UnresolvedTypeId sentinel.
func (id TypeId) Resolved() bool {
	return id != 0 && id != UnresolvedTypeId
}

func (id TypeId) String() string {
	switch id {
	case 0:
		return "<none>"
	case UnresolvedTypeId:
		return "<unresolved>"
	default:
		return fmt.Sprintf("Type(%d)", int64(id))
	}
}

// ModuleKind distinguishes the three ways a module can be imported, mirrored
// from the source's QmlLibrary/CppLibrary/PathLibrary trio so the schema and
// the resolver keep the same shape even outside the QML domain: a "library"
// module resolved by name+version, a "native" module contributed by the host
// runtime, and a bare path/directory import.
type ModuleKind uint8

const (
	ModuleKindUnknown ModuleKind = iota
	// ModuleKindLibrary is a versioned, named module (the QmlLibrary case).
	ModuleKindLibrary
	// ModuleKindNative is a module backed by natively registered types with
	// no on-disk document of its own (the CppLibrary case).
	ModuleKindNative
	// ModuleKindPath is a bare directory/path import with no module name
	// (the PathLibrary case).
	ModuleKindPath
)

func (k ModuleKind) String() string {
	switch k {
	case ModuleKindLibrary:
		return "library"
	case ModuleKindNative:
		return "native"
	case ModuleKindPath:
		return "path"
	default:
		return "unknown"
	}
}

// ImportedTypeNameKind distinguishes a bare reference resolved against the
// imports of its own document from one qualified by an import alias
// ("QQ.Rectangle").
type ImportedTypeNameKind uint8

const (
	// ImportedTypeNameKindExported resolves against every unaliased import
	// of importOrSourceId (a SourceId).
	ImportedTypeNameKindExported ImportedTypeNameKind = iota
	// ImportedTypeNameKindQualifiedExported resolves against the single
	// aliased import identified by importOrSourceId (an ImportId).
	ImportedTypeNameKindQualifiedExported
)

// DocumentImportKind distinguishes the four ways a module dependency enters
// documentImports: a direct import, a module-level dependency declaration,
// and the two kinds of indirect import synthesised by module-exported-import
// expansion.
type DocumentImportKind uint8

const (
	DocumentImportKindImport DocumentImportKind = iota
	DocumentImportKindModuleDependency
	DocumentImportKindModuleExportedImport
	DocumentImportKindModuleExportedModuleDependency
)

func (k DocumentImportKind) String() string {
	switch k {
	case DocumentImportKindImport:
		return "import"
	case DocumentImportKindModuleDependency:
		return "moduleDependency"
	case DocumentImportKindModuleExportedImport:
		return "moduleExportedImport"
	case DocumentImportKindModuleExportedModuleDependency:
		return "moduleExportedModuleDependency"
	default:
		return "unknown"
	}
}

// TypeTraits is the bitset attached to every declared type.
type TypeTraits uint32

const (
	// Kind bits occupy the low two bits; None is the zero value.
	TraitKindMask       TypeTraits = 0b11
	TraitKindNone       TypeTraits = 0
	TraitKindReference  TypeTraits = 1
	TraitKindValue      TypeTraits = 2
	TraitKindSequence   TypeTraits = 3

	TraitIsFileComponent TypeTraits = 1 << 2
	TraitIsSingleton     TypeTraits = 1 << 3
	TraitIsInsideProject TypeTraits = 1 << 4
	TraitUsesCustomParser TypeTraits = 1 << 5
	TraitIsEnum          TypeTraits = 1 << 6
)

// Kind extracts the kind sub-field of the trait bitset.
func (t TypeTraits) Kind() TypeTraits { return t & TraitKindMask }

func (t TypeTraits) Has(flag TypeTraits) bool { return t&flag == flag }

// FileType classifies a ProjectEntryInfo row (a document-to-project mapping).
type FileType uint8

const (
	FileTypeUnknown FileType = iota
	FileTypeSource
	FileTypeResource
	FileTypeDirectory
)
