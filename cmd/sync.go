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
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"bennypowers.dev/typestore"
)

var syncCmd = &cobra.Command{
	Use:   "sync <package.json>",
	Short: "Apply a synchronisation package and print the resulting diff",
	Long: `Reads a SynchronisationPackage from a JSON file and applies it in one
immediate transaction, then prints the observer diff: a table of
exported type names added and removed, and a tree of deleted type ids.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	var pkg typestore.SynchronisationPackage
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}

	store, closeStore, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.DatabasePath, err)
	}
	defer closeStore()

	result, err := store.Synchronise(ctx, &pkg)
	if err != nil {
		return fmt.Errorf("synchronise: %w", err)
	}

	printSyncResult(result)
	return nil
}

func printSyncResult(result *typestore.Result) {
	if !result.ExportedTypesChanged && len(result.DeletedTypeIds) == 0 {
		pterm.Success.Println("synchronised, no visible changes")
		return
	}

	if result.ExportedTypesChanged {
		data := pterm.TableData{{"Change", "Module", "Name", "Version", "TypeId"}}
		for _, c := range result.Added {
			data = append(data, []string{"+", fmt.Sprint(c.ModuleId), c.Name, versionString(c.MajorVersion, c.MinorVersion), fmt.Sprint(c.TypeId)})
		}
		for _, c := range result.Removed {
			data = append(data, []string{"-", fmt.Sprint(c.ModuleId), c.Name, versionString(c.MajorVersion, c.MinorVersion), fmt.Sprint(c.TypeId)})
		}
		out, err := pterm.DefaultTable.WithHasHeader(true).WithData(data).Srender()
		if err == nil {
			pterm.DefaultSection.Println("exported type names")
			pterm.Println(out)
		}
	}

	if len(result.DeletedTypeIds) > 0 {
		root := pterm.TreeNode{Text: "removed type ids"}
		for _, id := range result.DeletedTypeIds {
			root.Children = append(root.Children, pterm.TreeNode{Text: fmt.Sprint(id)})
		}
		out, err := pterm.DefaultTree.WithRoot(root).Srender()
		if err == nil {
			pterm.Println(out)
		}
	}
}

func versionString(major, minor uint32) string {
	if major == typestore.VersionWildcard {
		return "*"
	}
	if minor == typestore.VersionWildcard {
		return fmt.Sprintf("%d.*", major)
	}
	return fmt.Sprintf("%d.%d", major, minor)
}
