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

// Package errs carries the two error channels of the synchroniser: fatal
// errors that abort the whole transaction (a Go error returned from
// Synchronise), and the out-of-band Notifier for non-fatal resolution
// failures that the synchronise continues past.
//
// This replaces the source's per-condition exception hierarchy
// (projectstorageexceptions.h) with a closed set of error variants, per the
// redesign note on exceptions for fatal validation: a result-type approach
// works better in Go than an exception-for-every-condition design.
package errs

import (
	"errors"
	"fmt"

	"bennypowers.dev/typestore/internal/ids"
)

// Sentinel errors. Wrap these with fmt.Errorf("...: %w", ErrX) and compare
// with errors.Is.
var (
	ErrTypeHasInvalidSourceId            = errors.New("type has invalid source id")
	ErrFileStatusHasInvalidSourceId       = errors.New("file status has invalid source id")
	ErrTypeAnnotationHasInvalidSourceId   = errors.New("type annotation has invalid source id")
	ErrProjectEntryInfoHasInvalidSourceId = errors.New("project entry info has invalid source id")
	ErrModuleDoesNotExist                 = errors.New("module does not exist")
	ErrPrototypeChainCycle                = errors.New("prototype chain cycle")
	ErrAliasChainCycle                    = errors.New("alias chain cycle")
	ErrExportedTypeCannotBeInserted       = errors.New("exported type cannot be inserted")
)

// FatalError is returned by Synchronise when the whole transaction must be
// rolled back. TypeName/SourceId/PropertyName are populated when relevant so
// callers can render a precise diagnostic without parsing the message.
type FatalError struct {
	Err          error
	TypeName     string
	PropertyName string
	SourceId     ids.SourceId
	ModuleId     ids.ModuleId
}

func (e *FatalError) Error() string {
	switch {
	case e.PropertyName != "":
		return fmt.Sprintf("%s: type=%q property=%q source=%d", e.Err, e.TypeName, e.PropertyName, e.SourceId)
	case e.TypeName != "":
		return fmt.Sprintf("%s: type=%q source=%d", e.Err, e.TypeName, e.SourceId)
	default:
		return e.Err.Error()
	}
}

func (e *FatalError) Unwrap() error { return e.Err }

func PrototypeChainCycle(typeName string, sourceId ids.SourceId) *FatalError {
	return &FatalError{Err: ErrPrototypeChainCycle, TypeName: typeName, SourceId: sourceId}
}

func AliasChainCycle(typeName, propertyName string, sourceId ids.SourceId) *FatalError {
	return &FatalError{Err: ErrAliasChainCycle, TypeName: typeName, PropertyName: propertyName, SourceId: sourceId}
}

func ModuleDoesNotExist(moduleId ids.ModuleId) *FatalError {
	return &FatalError{Err: ErrModuleDoesNotExist, ModuleId: moduleId}
}

func ExportedTypeCannotBeInserted(name string, moduleId ids.ModuleId) *FatalError {
	return &FatalError{Err: ErrExportedTypeCannotBeInserted, TypeName: name, ModuleId: moduleId}
}

// NotificationKind enumerates the non-fatal conditions reported via Notifier.
type NotificationKind uint8

const (
	TypeNameCannotBeResolved NotificationKind = iota
	PropertyNameDoesNotExist
	MissingDefaultProperty
	PrototypeCycle
	AliasCycle
	ExportedTypeNameIsDuplicate
)

func (k NotificationKind) String() string {
	switch k {
	case TypeNameCannotBeResolved:
		return "typeNameCannotBeResolved"
	case PropertyNameDoesNotExist:
		return "propertyNameDoesNotExists"
	case MissingDefaultProperty:
		return "missingDefaultProperty"
	case PrototypeCycle:
		return "prototypeCycle"
	case AliasCycle:
		return "aliasCycle"
	case ExportedTypeNameIsDuplicate:
		return "exportedTypeNameIsDuplicate"
	default:
		return "unknown"
	}
}

// Notification is one out-of-band, non-fatal resolution failure.
type Notification struct {
	Kind         NotificationKind
	Name         string
	PropertyName string
	TypeName     string
	SourceId     ids.SourceId
	ModuleId     ids.ModuleId
}

func (n Notification) String() string {
	switch n.Kind {
	case TypeNameCannotBeResolved:
		return fmt.Sprintf("%s: name=%q source=%d", n.Kind, n.Name, n.SourceId)
	case PropertyNameDoesNotExist:
		return fmt.Sprintf("%s: name=%q source=%d", n.Kind, n.Name, n.SourceId)
	case MissingDefaultProperty:
		return fmt.Sprintf("%s: type=%q property=%q source=%d", n.Kind, n.TypeName, n.PropertyName, n.SourceId)
	case PrototypeCycle, AliasCycle:
		return fmt.Sprintf("%s: type=%q property=%q source=%d", n.Kind, n.TypeName, n.PropertyName, n.SourceId)
	case ExportedTypeNameIsDuplicate:
		return fmt.Sprintf("%s: module=%d name=%q", n.Kind, n.ModuleId, n.Name)
	default:
		return n.Kind.String()
	}
}

// Notifier is the out-of-band reporting sink for non-fatal resolution
// failures. A nil *Notifier silently discards notifications, matching the
// source's "no notifier registered" behaviour.
type Notifier struct {
	fn func(Notification)
}

// NewNotifier wraps a callback. Passing a nil fn yields a Notifier that
// discards every notification.
func NewNotifier(fn func(Notification)) *Notifier {
	return &Notifier{fn: fn}
}

func (n *Notifier) report(note Notification) {
	if n == nil || n.fn == nil {
		return
	}
	n.fn(note)
}

func (n *Notifier) TypeNameCannotBeResolved(name string, sourceId ids.SourceId) {
	n.report(Notification{Kind: TypeNameCannotBeResolved, Name: name, SourceId: sourceId})
}

func (n *Notifier) PropertyNameDoesNotExist(name string, sourceId ids.SourceId) {
	n.report(Notification{Kind: PropertyNameDoesNotExist, Name: name, SourceId: sourceId})
}

func (n *Notifier) MissingDefaultProperty(typeName, propertyName string, sourceId ids.SourceId) {
	n.report(Notification{Kind: MissingDefaultProperty, TypeName: typeName, PropertyName: propertyName, SourceId: sourceId})
}

func (n *Notifier) PrototypeCycle(typeName string, sourceId ids.SourceId) {
	n.report(Notification{Kind: PrototypeCycle, TypeName: typeName, SourceId: sourceId})
}

func (n *Notifier) AliasCycle(typeName, propertyName string, sourceId ids.SourceId) {
	n.report(Notification{Kind: AliasCycle, TypeName: typeName, PropertyName: propertyName, SourceId: sourceId})
}

func (n *Notifier) ExportedTypeNameIsDuplicate(moduleId ids.ModuleId, name string) {
	n.report(Notification{Kind: ExportedTypeNameIsDuplicate, ModuleId: moduleId, Name: name})
}
