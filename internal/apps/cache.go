package apps

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// cacheVersion invalidates old cache files when the App shape changes.
const cacheVersion = 1

type cacheFile struct {
	Version int   `json:"version"`
	Apps    []App `json:"apps"`
}

// Load returns the applications under dirs, through the cache at cachePath
// when it is still fresh. A cache older than any application directory is
// rescanned and rewritten; cache trouble of any kind just means a scan.
func Load(dirs []string, cachePath string) []App {
	if apps, ok := loadCache(dirs, cachePath); ok {
		return apps
	}
	apps := Scan(dirs)
	saveCache(cachePath, apps)
	return apps
}

func loadCache(dirs []string, cachePath string) ([]App, bool) {
	info, err := os.Stat(cachePath)
	if err != nil {
		return nil, false
	}
	if latest, ok := dirsMaxMtime(dirs); !ok || latest.After(info.ModTime()) {
		return nil, false
	}

	data, err := os.ReadFile(cachePath)
	if err != nil {
		return nil, false
	}
	var cached cacheFile
	if err := json.Unmarshal(data, &cached); err != nil || cached.Version != cacheVersion {
		return nil, false
	}
	return cached.Apps, true
}

func saveCache(cachePath string, apps []App) {
	data, err := json.Marshal(cacheFile{Version: cacheVersion, Apps: apps})
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(cachePath, data, 0o644)
}

// dirsMaxMtime returns the newest modification time among dirs that exist.
func dirsMaxMtime(dirs []string) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			continue
		}
		if mt := info.ModTime(); !found || mt.After(latest) {
			latest = mt
			found = true
		}
	}
	return latest, found
}
