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

package store

// schemaDDL creates every table and secondary index named in the data
// model, idempotently. Integer ids are INTEGER PRIMARY KEY so SQLite
// aliases them to the rowid; UnresolvedTypeId (-1) is a legal value for
// baseId/prototypeId, never a foreign key target.
const schemaDDL = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS modules (
  id    INTEGER PRIMARY KEY,
  name  TEXT NOT NULL,
  kind  INTEGER NOT NULL,
  UNIQUE(name, kind)
);

CREATE TABLE IF NOT EXISTS types (
  typeId            INTEGER PRIMARY KEY,
  sourceId          INTEGER NOT NULL,
  name              TEXT NOT NULL,
  traits            INTEGER NOT NULL DEFAULT 0,
  annotationTraits  INTEGER,
  prototypeNameId   INTEGER,
  extensionNameId   INTEGER,
  defaultPropertyId INTEGER,
  UNIQUE(sourceId, name)
);

CREATE INDEX IF NOT EXISTS idx_types_singleton
  ON types(typeId) WHERE traits & 8 != 0;

CREATE TABLE IF NOT EXISTS bases (
  typeId INTEGER NOT NULL,
  baseId INTEGER NOT NULL,
  PRIMARY KEY(typeId, baseId)
);

CREATE INDEX IF NOT EXISTS idx_bases_baseId ON bases(baseId);

CREATE TABLE IF NOT EXISTS prototypes (
  typeId       INTEGER PRIMARY KEY,
  prototypeId  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prototypes_prototypeId ON prototypes(prototypeId);

CREATE TABLE IF NOT EXISTS exportedTypeNames (
  moduleId        INTEGER NOT NULL,
  name            TEXT NOT NULL,
  majorVersion    INTEGER NOT NULL,
  minorVersion    INTEGER NOT NULL,
  typeId          INTEGER NOT NULL,
  contextSourceId INTEGER NOT NULL,
  PRIMARY KEY(moduleId, name, majorVersion, minorVersion)
);

CREATE INDEX IF NOT EXISTS idx_exportedTypeNames_typeId ON exportedTypeNames(typeId);
CREATE INDEX IF NOT EXISTS idx_exportedTypeNames_name ON exportedTypeNames(name);

CREATE TABLE IF NOT EXISTS importedTypeNames (
  importedTypeNameId INTEGER PRIMARY KEY,
  kind               INTEGER NOT NULL,
  importOrSourceId   INTEGER NOT NULL,
  name               TEXT NOT NULL,
  UNIQUE(kind, importOrSourceId, name)
);

CREATE TABLE IF NOT EXISTS documentImports (
  importId       INTEGER PRIMARY KEY,
  sourceId       INTEGER NOT NULL,
  contextSourceId INTEGER NOT NULL,
  moduleId       INTEGER NOT NULL,
  sourceModuleId INTEGER NOT NULL,
  kind           INTEGER NOT NULL,
  majorVersion   INTEGER NOT NULL,
  minorVersion   INTEGER NOT NULL,
  parentImportId INTEGER,
  alias          TEXT
);

CREATE INDEX IF NOT EXISTS idx_documentImports_sourceId ON documentImports(sourceId);
CREATE INDEX IF NOT EXISTS idx_documentImports_parentImportId ON documentImports(parentImportId);
CREATE UNIQUE INDEX IF NOT EXISTS idx_documentImports_alias
  ON documentImports(sourceId, alias) WHERE alias IS NOT NULL;

CREATE TABLE IF NOT EXISTS moduleExportedImports (
  moduleExportedImportId INTEGER PRIMARY KEY,
  moduleId               INTEGER NOT NULL,
  exportedModuleId       INTEGER NOT NULL,
  isAutoVersion          INTEGER NOT NULL DEFAULT 0,
  majorVersion           INTEGER NOT NULL,
  minorVersion           INTEGER NOT NULL,
  UNIQUE(moduleId, exportedModuleId)
);

CREATE TABLE IF NOT EXISTS propertyDeclarations (
  propertyDeclarationId            INTEGER PRIMARY KEY,
  typeId                           INTEGER NOT NULL,
  name                             TEXT NOT NULL,
  propertyTypeId                   INTEGER,
  propertyTraits                   INTEGER NOT NULL DEFAULT 0,
  propertyImportedTypeNameId       INTEGER,
  aliasPropertyImportedTypeNameId  INTEGER,
  aliasPropertyDeclarationName     TEXT,
  aliasPropertyDeclarationTailName TEXT,
  aliasPropertyDeclarationId       INTEGER,
  aliasPropertyDeclarationTailId   INTEGER,
  UNIQUE(typeId, name)
);

CREATE INDEX IF NOT EXISTS idx_propertyDeclarations_aliasTarget
  ON propertyDeclarations(aliasPropertyDeclarationId);

CREATE TABLE IF NOT EXISTS functionDeclarations (
  functionDeclarationId INTEGER PRIMARY KEY,
  typeId                INTEGER NOT NULL,
  name                  TEXT NOT NULL,
  signature             TEXT NOT NULL,
  returnTypeName        TEXT,
  UNIQUE(typeId, name, signature)
);

CREATE TABLE IF NOT EXISTS signalDeclarations (
  signalDeclarationId INTEGER PRIMARY KEY,
  typeId              INTEGER NOT NULL,
  name                TEXT NOT NULL,
  signature           TEXT NOT NULL,
  UNIQUE(typeId, name, signature)
);

CREATE TABLE IF NOT EXISTS enumerationDeclarations (
  enumerationDeclarationId INTEGER PRIMARY KEY,
  typeId                   INTEGER NOT NULL,
  name                     TEXT NOT NULL,
  enumeratorDeclarations   TEXT NOT NULL,
  UNIQUE(typeId, name)
);

CREATE TABLE IF NOT EXISTS fileStatuses (
  sourceId     INTEGER PRIMARY KEY,
  size         INTEGER NOT NULL,
  lastModified INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS projectEntryInfos (
  contextSourceId INTEGER NOT NULL,
  sourceId        INTEGER NOT NULL,
  moduleId        INTEGER,
  fileType        INTEGER NOT NULL,
  PRIMARY KEY(contextSourceId, sourceId)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_projectEntryInfos_sourceId ON projectEntryInfos(sourceId);
CREATE INDEX IF NOT EXISTS idx_projectEntryInfos_context_type
  ON projectEntryInfos(contextSourceId, fileType);

CREATE TABLE IF NOT EXISTS propertyEditorPaths (
  typeId       INTEGER PRIMARY KEY,
  pathSourceId INTEGER NOT NULL,
  directoryId  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS typeAnnotations (
  typeId      INTEGER PRIMARY KEY,
  sourceId    INTEGER NOT NULL,
  directoryId INTEGER NOT NULL,
  typeName    TEXT NOT NULL,
  iconPath    TEXT,
  itemLibrary TEXT,
  hints       TEXT
);
`
