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

import "bennypowers.dev/typestore/internal/errs"

// newTestNotifier builds a Notifier that calls fn on every notification,
// for tests that only care whether a report happened.
func newTestNotifier(fn func()) *errs.Notifier {
	return errs.NewNotifier(func(errs.Notification) { fn() })
}
