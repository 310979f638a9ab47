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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"bennypowers.dev/typestore"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a directory of package snapshot files and re-synchronise on change",
	Long: `Watches dir for *.json SynchronisationPackage snapshots and re-applies
each one as it changes, debouncing bursts of filesystem events the same
way the status line of a live-reloading dev server would.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 200*time.Millisecond, "quiet period before re-synchronising a changed file")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	dir := args[0]

	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	pterm.Info.Printf("watching %s for package snapshots\n", dir)

	w := &debouncedWatcher{store: store, window: watchDebounce, pending: map[string]time.Time{}}
	return w.run(ctx, watcher)
}

// debouncedWatcher collapses bursts of fsnotify events on the same
// file into a single re-synchronise, the way serve's fileWatcher does
// for live-reload.
type debouncedWatcher struct {
	store   *typestore.Store
	window  time.Duration
	mu      sync.Mutex
	pending map[string]time.Time
	timer   *time.Timer
}

func (w *debouncedWatcher) run(ctx context.Context, watcher *fsnotify.Watcher) error {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			pterm.Error.Printf("watch error: %v\n", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *debouncedWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = time.Now()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, func() { w.flush(ctx) })
}

func (w *debouncedWatcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = map[string]time.Time{}
	w.mu.Unlock()

	for _, path := range paths {
		w.apply(ctx, path)
	}
}

func (w *debouncedWatcher) apply(ctx context.Context, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		pterm.Error.Printf("reading %s: %v\n", path, err)
		return
	}
	var pkg typestore.SynchronisationPackage
	if err := json.Unmarshal(raw, &pkg); err != nil {
		pterm.Error.Printf("parsing %s: %v\n", path, err)
		return
	}
	result, err := w.store.Synchronise(ctx, &pkg)
	if err != nil {
		pterm.Error.Printf("synchronise %s: %v\n", path, err)
		return
	}
	pterm.Info.Printf("%s: ", filepath.Base(path))
	printSyncResult(result)
}
