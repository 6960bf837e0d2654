package backend

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-ini/ini"
)

const (
	// descriptorSection is the required group in a backend descriptor file.
	descriptorSection = "Search Backend"

	// protocolVersion is the descriptor version this launcher understands.
	protocolVersion = 2
)

// RegistryConfig configures backend discovery.
type RegistryConfig struct {
	// Dirs are the descriptor directories, scanned in order; a descriptor
	// with an AppId already seen is replaced, so later (user) directories
	// shadow earlier (system) ones.
	Dirs []string

	// RuntimeDir anchors relative Socket= entries.
	RuntimeDir string

	// Exclude lists AppIds never to query.
	Exclude []string

	// AppDirs are the .desktop directories used for fallback-icon lookup.
	AppDirs []string

	Logger *slog.Logger
}

// Registry discovers search backends once per process and caches the
// outcome. Newly installed backends are picked up on the next start; that
// staleness is the price of never rescanning on the hot path.
type Registry struct {
	cfg     RegistryConfig
	exclude map[string]struct{}

	once     sync.Once
	backends []Backend
}

// NewRegistry creates a registry. Discovery happens lazily on first use.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	exclude := make(map[string]struct{}, len(cfg.Exclude))
	for _, id := range cfg.Exclude {
		exclude[id] = struct{}{}
	}
	return &Registry{cfg: cfg, exclude: exclude}
}

// Backends returns the discovered backends, running discovery on the
// first call.
func (r *Registry) Backends() []Backend {
	r.once.Do(func() {
		r.backends = r.discover()
	})
	return r.backends
}

func (r *Registry) discover() []Backend {
	byID := make(map[string]Backend)
	for _, dir := range r.cfg.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			// Missing directories are normal.
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".ini") {
				continue
			}
			b, ok := r.parseDescriptor(filepath.Join(dir, entry.Name()))
			if !ok {
				continue
			}
			if _, excluded := r.exclude[b.AppID]; excluded {
				r.cfg.Logger.Debug("backend excluded", "app_id", b.AppID)
				continue
			}
			byID[b.AppID] = b
		}
	}

	backends := make([]Backend, 0, len(byID))
	for _, b := range byID {
		backends = append(backends, b)
	}
	sort.Slice(backends, func(i, j int) bool { return backends[i].AppID < backends[j].AppID })

	r.cfg.Logger.Info("backend discovery finished", "count", len(backends))
	return backends
}

// parseDescriptor reads one descriptor file. Anything malformed or of the
// wrong version is skipped; one broken file must not hide the others.
func (r *Registry) parseDescriptor(path string) (Backend, bool) {
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		r.cfg.Logger.Debug("unreadable backend descriptor", "path", path, "error", err)
		return Backend{}, false
	}
	sec, err := f.GetSection(descriptorSection)
	if err != nil {
		r.cfg.Logger.Debug("descriptor missing section", "path", path)
		return Backend{}, false
	}

	if v := sec.Key("Version").MustInt(0); v != protocolVersion {
		r.cfg.Logger.Debug("unsupported descriptor version", "path", path, "version", v)
		return Backend{}, false
	}

	appID := sec.Key("AppId").String()
	socket := sec.Key("Socket").String()
	service := sec.Key("Service").String()
	if appID == "" || socket == "" || service == "" {
		r.cfg.Logger.Debug("incomplete backend descriptor", "path", path)
		return Backend{}, false
	}

	if !filepath.IsAbs(socket) {
		socket = filepath.Join(r.cfg.RuntimeDir, socket)
	}

	return Backend{
		AppID:   appID,
		Socket:  socket,
		Service: service,
		AppIcon: r.resolveAppIcon(appID),
	}, true
}

// resolveAppIcon finds the Icon= entry of the backend application's
// .desktop file. Empty when the application has none installed.
func (r *Registry) resolveAppIcon(appID string) string {
	name := appID
	if !strings.HasSuffix(name, ".desktop") {
		name += ".desktop"
	}
	for _, dir := range r.cfg.AppDirs {
		f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, filepath.Join(dir, name))
		if err != nil {
			continue
		}
		sec, err := f.GetSection("Desktop Entry")
		if err != nil {
			continue
		}
		if iconName := sec.Key("Icon").String(); iconName != "" {
			return iconName
		}
	}
	return ""
}
