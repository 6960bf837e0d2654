// Package apps loads the launchable desktop applications: recursive
// .desktop scans over the XDG application directories, an mtime-guarded
// cache so warm starts skip the scan, and fuzzy matching over the result.
package apps

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-ini/ini"
	"golang.org/x/sync/errgroup"
)

// App is one launchable desktop entry.
type App struct {
	// Path is the absolute .desktop path, the app's identity for launch
	// counts.
	Path string `json:"path"`

	Name        string `json:"name"`
	Exec        string `json:"exec"` // field codes already stripped
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Terminal    bool   `json:"terminal"`
}

// Scan walks dirs for .desktop files and parses them, one goroutine per
// directory. Entries that are not displayable applications are dropped.
// The result is sorted by case-folded name.
func Scan(dirs []string) []App {
	var mu sync.Mutex
	var apps []App
	seen := make(map[string]bool)

	var g errgroup.Group
	for _, dir := range dirs {
		g.Go(func() error {
			var found []App
			filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error { //nolint:errcheck
				if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".desktop") {
					return nil
				}
				if app, ok := parseDesktopFile(path); ok {
					found = append(found, app)
				}
				return nil
			})

			mu.Lock()
			for _, app := range found {
				if !seen[app.Path] {
					seen[app.Path] = true
					apps = append(apps, app)
				}
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	sort.Slice(apps, func(i, j int) bool {
		return strings.ToLower(apps[i].Name) < strings.ToLower(apps[j].Name)
	})
	return apps
}

// parseDesktopFile reads one entry. Only displayable applications qualify:
// Type=Application, not Hidden, not NoDisplay, with a name and a command.
func parseDesktopFile(path string) (App, bool) {
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return App{}, false
	}
	sec, err := f.GetSection("Desktop Entry")
	if err != nil {
		return App{}, false
	}

	if sec.Key("Type").String() != "Application" {
		return App{}, false
	}
	if sec.Key("NoDisplay").MustBool(false) || sec.Key("Hidden").MustBool(false) {
		return App{}, false
	}

	name := sec.Key("Name").String()
	exec := cleanExec(sec.Key("Exec").String())
	if name == "" || exec == "" {
		return App{}, false
	}

	return App{
		Path:        path,
		Name:        name,
		Exec:        exec,
		Description: sec.Key("Comment").String(),
		Icon:        sec.Key("Icon").String(),
		Terminal:    sec.Key("Terminal").MustBool(false),
	}, true
}

// cleanExec strips the desktop-entry field codes (%f, %u, %U, ...) that
// stand in for files or URLs the launcher never passes.
func cleanExec(exec string) string {
	fields := strings.Fields(exec)
	kept := fields[:0]
	for _, field := range fields {
		switch field {
		case "%f", "%F", "%u", "%U", "%d", "%D", "%n", "%N", "%i", "%c", "%k", "%v", "%m":
		default:
			kept = append(kept, field)
		}
	}
	return strings.Join(kept, " ")
}
