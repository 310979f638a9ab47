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

import "bennypowers.dev/typestore/internal/ids"

// SynchronisationPackage is the inbound wire format of §6: a batch of
// parser output plus the source-id scopes that bound a three-way merge
// for each sub-table. A SourceId present in one of the "updated*"
// slices but absent from the corresponding entry slice means "this
// source now declares nothing of this kind" — the merge deletes what
// was previously persisted for it.
type SynchronisationPackage struct {
	Types                    []Type
	UpdatedTypeSourceIds     []ids.SourceId
	ExportedTypes            []ExportedType
	UpdatedExportedTypeSourceIds []ids.SourceId
	Imports                  []Import
	UpdatedImportSourceIds   []ids.SourceId
	ModuleDependencies       []Import
	UpdatedModuleDependencySourceIds []ids.SourceId
	ModuleExportedImports    []ModuleExportedImport
	UpdatedModuleIds         []ids.ModuleId
	FileStatuses             []FileStatus
	UpdatedFileStatusSourceIds []ids.SourceId
	ProjectEntryInfos        []ProjectEntryInfo
	UpdatedProjectEntryInfoSourceIds []ids.SourceId
	TypeAnnotations          []TypeAnnotation
	UpdatedTypeAnnotationSourceIds []ids.SourceId
	PropertyEditorQmlPaths   []PropertyEditorQmlPath
	UpdatedPropertyEditorQmlPathDirectoryIds []ids.DirectoryPathId
}

// Type is one incoming type declaration, prior to id assignment.
type Type struct {
	SourceId          ids.SourceId
	Name              string
	Traits            ids.TypeTraits
	Prototype         *ImportedTypeNameRef
	Extension         *ImportedTypeNameRef
	DefaultPropertyName string
	Properties        []PropertyDeclaration
	Functions         []FunctionDeclaration
	Signals           []SignalDeclaration
	Enumerations      []EnumerationDeclaration
}

// ImportedTypeNameRef names a type textually, as it appeared in the
// document: either bare (resolved against the document's own imports)
// or qualified by an import alias.
type ImportedTypeNameRef struct {
	Kind             ids.ImportedTypeNameKind
	ImportOrSourceId int64 // SourceId for Exported, ImportId for QualifiedExported
	Name             string
}

// PropertyDeclaration is either a plain property (ImportedType set) or
// an alias (AliasTargetName set).
type PropertyDeclaration struct {
	Name              string
	ImportedType      *ImportedTypeNameRef
	PropertyTraits    uint32
	AliasTargetName   *ImportedTypeNameRef
	AliasStemName     string
	AliasTailName     string
}

type FunctionDeclaration struct {
	Name           string
	Signature      string // JSON array of {n,tn,tr?}
	ReturnTypeName string
}

type SignalDeclaration struct {
	Name      string
	Signature string
}

type EnumerationDeclaration struct {
	Name                   string
	EnumeratorDeclarations string // JSON object
}

// ExportedType binds a (module, name, version) label to a type.
type ExportedType struct {
	ModuleId        ids.ModuleId
	Name            string
	MajorVersion    uint32
	MinorVersion    uint32
	TypeId          ids.TypeId
	ContextSourceId ids.SourceId
}

// Import is one documentImports row as it arrives in a package, prior
// to module-exported expansion.
type Import struct {
	SourceId        ids.SourceId
	ContextSourceId ids.SourceId
	ModuleId        ids.ModuleId
	Kind            ids.DocumentImportKind
	MajorVersion    uint32
	MinorVersion    uint32
	Alias           string
}

type ModuleExportedImport struct {
	ModuleId         ids.ModuleId
	ExportedModuleId ids.ModuleId
	IsAutoVersion    bool
	MajorVersion     uint32
	MinorVersion     uint32
}

type FileStatus struct {
	SourceId     ids.SourceId
	Size         int64
	LastModified int64
}

type ProjectEntryInfo struct {
	ContextSourceId ids.SourceId
	SourceId        ids.SourceId
	ModuleId        ids.ModuleId
	FileType        ids.FileType
}

type TypeAnnotation struct {
	ModuleId    ids.ModuleId
	TypeName    string
	SourceId    ids.SourceId
	DirectoryId ids.DirectoryPathId
	IconPath    string
	ItemLibrary string // JSON
	Hints       string // JSON
}

type PropertyEditorQmlPath struct {
	TypeId       ids.TypeId
	PathSourceId ids.SourceId
	DirectoryId  ids.DirectoryPathId
}

// Result is the post-commit summary handed to the observer bus.
type Result struct {
	DeletedTypeIds       []ids.TypeId
	ExportedTypesChanged bool
	Added                []ExportedTypeNameChange
	Removed              []ExportedTypeNameChange
}

type ExportedTypeNameChange struct {
	ModuleId     ids.ModuleId
	Name         string
	MajorVersion uint32
	MinorVersion uint32
	TypeId       ids.TypeId
}
