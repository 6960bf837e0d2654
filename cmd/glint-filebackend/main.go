// glint-filebackend is a search backend for glint that serves filename
// search over the backend protocol. It indexes the tree under a root
// directory and answers queries with entries whose names contain every
// search term. Activating a result opens it with xdg-open.
//
// Point glint at it by writing a descriptor, then start it:
//
//	glint-filebackend -install
//	glint-filebackend -root ~/Documents
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-ini/ini"
	"golang.org/x/sys/execabs"

	"github.com/glint-sh/glint/internal/action"
	"github.com/glint-sh/glint/internal/config"
	"github.com/glint-sh/glint/internal/ipc"
)

const (
	appID      = "sh.glint.FileBackend"
	service    = "/sh/glint/FileBackend"
	socketName = "filebackend.sock"

	// maxIndexEntries caps the in-memory index; trees larger than this are
	// indexed only partially.
	maxIndexEntries = 50000

	// maxResultIDs bounds one answer; the launcher trims further anyway.
	maxResultIDs = 128

	// reindexInterval is how often the tree is walked again so new files
	// become searchable without a restart.
	reindexInterval = 5 * time.Minute
)

// skipDirs are directories whose contents are never worth indexing.
var skipDirs = map[string]bool{
	".git":         true,
	".cache":       true,
	"node_modules": true,
	"__pycache__":  true,
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "glint-filebackend: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		root    = flag.String("root", "", "directory to index (default: your home directory)")
		socket  = flag.String("socket", "", "unix socket path (default: under the runtime directory)")
		install = flag.Bool("install", false, "write the backend descriptor for glint and exit")
		hidden  = flag.Bool("hidden", false, "index hidden files and directories")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	paths := config.DefaultPaths()

	// The descriptor records a relative socket name when the default is
	// used, so glint resolves it against its own runtime directory.
	socketPath := *socket
	descriptorSocket := socketPath
	if socketPath == "" {
		socketPath = filepath.Join(paths.RuntimeDir, socketName)
		descriptorSocket = socketName
	}

	if *install {
		return writeDescriptor(paths, descriptorSocket)
	}

	rootDir := *root
	if rootDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("no home directory, pass -root: %w", err)
		}
		rootDir = home
	}
	rootDir, err := filepath.Abs(rootDir)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	if info, err := os.Stat(rootDir); err != nil {
		return fmt.Errorf("root directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", rootDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	idx := newIndex(rootDir, *hidden)
	idx.rebuild()
	logger.Info("index built", "root", rootDir, "entries", idx.size())

	go func() {
		ticker := time.NewTicker(reindexInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				idx.rebuild()
				logger.Debug("index rebuilt", "entries", idx.size())
			}
		}
	}()

	srv := ipc.NewServer(logger)
	registerHandlers(srv, idx, logger)
	if err := srv.Listen(socketPath); err != nil {
		return err
	}
	logger.Info("backend listening", "socket", socketPath, "app_id", appID)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		_ = srv.Close()
		<-errCh
		return nil
	case err := <-errCh:
		_ = srv.Close()
		return err
	}
}

// writeDescriptor drops the descriptor file into the user backend
// directory so glint discovers this backend on its next start.
func writeDescriptor(paths *config.Paths, socket string) error {
	f := ini.Empty()
	sec, err := f.NewSection("Search Backend")
	if err != nil {
		return err
	}
	sec.Key("AppId").SetValue(appID)
	sec.Key("Version").SetValue("2")
	sec.Key("Socket").SetValue(socket)
	sec.Key("Service").SetValue(service)

	dir := filepath.Join(paths.DataDir, "backends")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backend directory: %w", err)
	}
	path := filepath.Join(dir, "filebackend.ini")
	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	fmt.Printf("Descriptor written to %s\n", path)
	return nil
}

func registerHandlers(srv *ipc.Server, idx *index, logger *slog.Logger) {
	srv.Handle(service, "GetInitialResultSet", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Terms []string `json:"terms"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("bad params: %w", err)
		}
		return idx.search(p.Terms, maxResultIDs), nil
	})

	// Filtering the previous result set saves nothing against an in-memory
	// index, so subsearch ranks against the full index like a fresh query.
	srv.Handle(service, "GetSubsearchResultSet", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Terms []string `json:"terms"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("bad params: %w", err)
		}
		return idx.search(p.Terms, maxResultIDs), nil
	})

	srv.Handle(service, "GetResultMetas", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			IDs []string `json:"ids"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("bad params: %w", err)
		}
		return idx.metas(p.IDs), nil
	})

	srv.Handle(service, "ActivateResult", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("bad params: %w", err)
		}
		e, ok := idx.lookup(p.ID)
		if !ok {
			return nil, fmt.Errorf("unknown result %q", p.ID)
		}
		logger.Info("opening result", "path", e.path)
		if err := action.StartDetached(execabs.Command("xdg-open", e.path)); err != nil {
			return nil, fmt.Errorf("open %s: %w", e.path, err)
		}
		return map[string]any{}, nil
	})
}

// entry is one indexed file or directory.
type entry struct {
	path  string // absolute; doubles as the result id
	name  string
	lower string // lowercased name, matched against
	dir   bool
}

// index holds the searchable tree snapshot. rebuild swaps the snapshot
// wholesale, so searches see either the old tree or the new one.
type index struct {
	root   string
	hidden bool

	mu      sync.RWMutex
	entries []entry
	byID    map[string]entry
}

func newIndex(root string, hidden bool) *index {
	return &index{root: root, hidden: hidden}
}

func (ix *index) rebuild() {
	entries := walkTree(ix.root, ix.hidden)
	byID := make(map[string]entry, len(entries))
	for _, e := range entries {
		byID[e.path] = e
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.byID = byID
	ix.mu.Unlock()
}

func (ix *index) size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func (ix *index) lookup(id string) (entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.byID[id]
	return e, ok
}

// search returns the ids of entries whose names contain every term,
// prefix matches on the first term ahead of plain substring matches.
func (ix *index) search(terms []string, max int) []string {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}
	if len(lowered) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var prefix, rest []string
	for _, e := range ix.entries {
		if !matchesAll(e.lower, lowered) {
			continue
		}
		if strings.HasPrefix(e.lower, lowered[0]) {
			prefix = append(prefix, e.path)
		} else {
			rest = append(rest, e.path)
		}
		if len(prefix) >= max {
			break
		}
	}

	ids := prefix
	if len(ids) < max {
		ids = append(ids, rest[:min(len(rest), max-len(ids))]...)
	}
	return ids
}

func matchesAll(name string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(name, t) {
			return false
		}
	}
	return true
}

// metas returns the display tuples for ids. Ids not in the current
// snapshot are silently dropped; the file may have vanished since the
// query.
func (ix *index) metas(ids []string) []map[string]any {
	metas := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		e, ok := ix.lookup(id)
		if !ok {
			continue
		}
		metas = append(metas, map[string]any{
			"id":          e.path,
			"name":        e.name,
			"description": displayDir(filepath.Dir(e.path)),
			"icon":        []any{"themed-icon", map[string]any{"names": []string{iconFor(e)}}},
		})
	}
	return metas
}

// walkTree collects up to maxIndexEntries entries under root. Unreadable
// subtrees are skipped, not fatal.
func walkTree(root string, hidden bool) []entry {
	var entries []entry
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if skipDirs[name] || (!hidden && strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
		} else if !hidden && strings.HasPrefix(name, ".") {
			return nil
		}
		if len(entries) >= maxIndexEntries {
			return filepath.SkipAll
		}
		entries = append(entries, entry{
			path:  path,
			name:  name,
			lower: strings.ToLower(name),
			dir:   d.IsDir(),
		})
		return nil
	})
	return entries
}

// displayDir abbreviates the home directory to ~ for the description line.
func displayDir(dir string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return dir
	}
	if dir == home {
		return "~"
	}
	if strings.HasPrefix(dir, home+string(filepath.Separator)) {
		return "~" + dir[len(home):]
	}
	return dir
}

// iconFor maps an entry to a freedesktop icon-theme name.
func iconFor(e entry) string {
	if e.dir {
		return "folder"
	}
	switch strings.ToLower(filepath.Ext(e.name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".bmp":
		return "image-x-generic"
	case ".mp4", ".mkv", ".webm", ".avi", ".mov":
		return "video-x-generic"
	case ".mp3", ".flac", ".ogg", ".wav", ".opus":
		return "audio-x-generic"
	case ".pdf":
		return "application-pdf"
	case ".zip", ".tar", ".gz", ".xz", ".zst", ".7z", ".rar":
		return "package-x-generic"
	default:
		return "text-x-generic"
	}
}
