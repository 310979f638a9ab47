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

import "cmp"

// Merge performs the generic three-way merge used throughout §4.6: a
// sorted-by-key merge-join of the persisted range against the incoming
// range, calling onInsert for keys present only in incoming, onUpdate
// for keys present in both, and onRemove for keys present only in
// persisted. Both slices must already be sorted ascending by their key
// function; incoming entries sharing a key are expected to have been
// deduplicated by the caller. Merge applies no secondary sort of its
// own.
func Merge[P any, I any, K cmp.Ordered](
	persisted []P, incoming []I,
	persistedKey func(P) K, incomingKey func(I) K,
	onInsert func(I) error,
	onUpdate func(P, I) error,
	onRemove func(P) error,
) error {
	pi, ii := 0, 0
	for pi < len(persisted) && ii < len(incoming) {
		pk := persistedKey(persisted[pi])
		ik := incomingKey(incoming[ii])
		switch {
		case pk < ik:
			if err := onRemove(persisted[pi]); err != nil {
				return err
			}
			pi++
		case pk > ik:
			if err := onInsert(incoming[ii]); err != nil {
				return err
			}
			ii++
		default:
			if err := onUpdate(persisted[pi], incoming[ii]); err != nil {
				return err
			}
			pi++
			ii++
		}
	}
	for ; pi < len(persisted); pi++ {
		if err := onRemove(persisted[pi]); err != nil {
			return err
		}
	}
	for ; ii < len(incoming); ii++ {
		if err := onInsert(incoming[ii]); err != nil {
			return err
		}
	}
	return nil
}
