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

package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"bennypowers.dev/typestore"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Read-only lookups through the public API",
}

var inspectTypeCmd = &cobra.Command{
	Use:   "type <id>",
	Short: "Print a type's prototype, extension and default property ids",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspectType,
}

var inspectBasedOnCmd = &cobra.Command{
	Use:   "based-on <id> <candidate-id...>",
	Short: "Report whether id transitively derives from each candidate",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runInspectBasedOn,
}

func init() {
	inspectCmd.AddCommand(inspectTypeCmd, inspectBasedOnCmd)
	rootCmd.AddCommand(inspectCmd)
}

func parseTypeId(s string) (typestore.TypeId, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid type id %q: %w", s, err)
	}
	return typestore.TypeId(n), nil
}

func runInspectType(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id, err := parseTypeId(args[0])
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	info, ok, err := store.Type(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		pterm.Warning.Printf("no type with id %d\n", id)
		return nil
	}

	data := pterm.TableData{
		{"Field", "Value"},
		{"TypeId", fmt.Sprint(info.TypeId)},
		{"SourceId", fmt.Sprint(info.SourceId)},
		{"Name", info.Name},
		{"Traits", fmt.Sprint(info.Traits)},
		{"PrototypeId", fmt.Sprint(info.PrototypeId)},
		{"ExtensionId", fmt.Sprint(info.ExtensionId)},
		{"DefaultPropertyId", fmt.Sprint(info.DefaultPropertyId)},
	}
	out, err := pterm.DefaultTable.WithHasHeader(true).WithData(data).Srender()
	if err != nil {
		return err
	}
	pterm.Println(out)
	return nil
}

func runInspectBasedOn(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id, err := parseTypeId(args[0])
	if err != nil {
		return err
	}
	candidates := make([]typestore.TypeId, 0, len(args)-1)
	for _, a := range args[1:] {
		c, err := parseTypeId(a)
		if err != nil {
			return err
		}
		candidates = append(candidates, c)
	}

	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	results, err := store.BasedOn(ctx, id, candidates...)
	if err != nil {
		return err
	}

	data := pterm.TableData{{"CandidateId", "BasedOn"}}
	for i, c := range candidates {
		data = append(data, []string{fmt.Sprint(c), fmt.Sprint(results[i])})
	}
	out, err := pterm.DefaultTable.WithHasHeader(true).WithData(data).Srender()
	if err != nil {
		return err
	}
	pterm.Println(out)
	return nil
}
