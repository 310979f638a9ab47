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

// Package cmd is the cobra command tree for the typestore binary, laid
// out the teacher's way: root.go holds persistent flags and config
// discovery, one file per subcommand.
package cmd

import (
	"context"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/typestore"
	"bennypowers.dev/typestore/internal/config"
	"bennypowers.dev/typestore/internal/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "typestore",
	Short: "Incremental type-graph storage engine",
	Long: `typestore persists and incrementally synchronises a type graph for a
declarative UI component language: module/type/import/property tables,
inheritance and alias resolution, and an observer bus for incremental
editor-style updates.`,
}

// Execute runs rootCmd; each subcommand adds itself to rootCmd in its
// own init function. Called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("database", "typestore.db", "path to the typestore SQLite database")
	rootCmd.PersistentFlags().String("config", "", "config file (default is $CWD/.config/typestore.yaml)")
	rootCmd.PersistentFlags().String("project-dir", "", "path to project directory (default: parent directory of .config/typestore.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose synchroniser logging")
	viper.BindPFlag("databasePath", rootCmd.PersistentFlags().Lookup("database"))
	viper.BindPFlag("configFile", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("projectDir", rootCmd.PersistentFlags().Lookup("project-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	loaded, err := config.Load(viper.GetViper(), viper.GetString("projectDir"))
	if err != nil {
		pterm.Fatal.Printf("loading config: %v\n", err)
	}
	cfg = loaded

	if cfg.Verbose {
		pterm.EnableDebugMessages()
		logging.Default().SetDebugEnabled(true)
	}
	if cfg.ConfigFile != "" {
		pterm.Debug.Println("Using config file: ", cfg.ConfigFile)
	}
}

// openStore opens the database named in cfg and returns it alongside a
// close func every subcommand is expected to defer.
func openStore(ctx context.Context) (*typestore.Store, func(), error) {
	s, err := typestore.Open(ctx, cfg.DatabasePath, nil)
	if err != nil {
		return nil, func() {}, err
	}
	return s, func() { s.Close() }, nil
}
