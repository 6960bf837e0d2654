package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/glint-sh/glint/internal/action"
	"github.com/glint-sh/glint/internal/apps"
	"github.com/glint-sh/glint/internal/backend"
	"github.com/glint-sh/glint/internal/command"
	"github.com/glint-sh/glint/internal/config"
	"github.com/glint-sh/glint/internal/history"
	"github.com/glint-sh/glint/internal/log"
	"github.com/glint-sh/glint/internal/search"
	"github.com/glint-sh/glint/internal/tui"
)

// runLauncher is the default action: open the launcher window.
func runLauncher(cmd *cobra.Command, args []string) error {
	// The TUI owns the terminal; refuse environments where it cannot.
	if err := checkTTY(); err != nil {
		return err
	}
	if err := checkTERM(); err != nil {
		return err
	}
	if err := checkTermWidth(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	paths := config.DefaultPaths()
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	// One launcher window at a time; a second invocation exits quietly so
	// a mashed hotkey does not stack windows.
	lockFd, err := acquireLock(paths.LockFile())
	if err != nil {
		return err
	}
	defer releaseLock(lockFd)

	logger, closeLog := openLogger(cfg, paths)
	defer closeLog()

	var store *history.Store
	var usage map[string]int
	sessionID := ""
	if cfg.History.Enabled {
		dbPath := cfg.History.Path
		if dbPath == "" {
			dbPath = paths.HistoryFile()
		}
		store, err = history.Open(dbPath, logger)
		if err != nil {
			// Degrade to an unranked list rather than refusing to start.
			logger.Warn("history unavailable", "error", err)
		} else {
			defer store.Close()
			sessionID = history.NewSessionID()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			usage, err = store.Counts(ctx, history.KindApp)
			cancel()
			if err != nil {
				logger.Warn("usage counts unavailable", "error", err)
			}
		}
	}

	appDirs := cfg.Apps.Dirs
	if len(appDirs) == 0 {
		appDirs = paths.AppDirs()
	}
	appList := apps.Load(appDirs, paths.AppCacheFile())
	logger.Info("applications indexed", "count", len(appList))

	backendDirs := cfg.Backends.Dirs
	if len(backendDirs) == 0 {
		backendDirs = paths.BackendDirs()
	}
	registry := backend.NewRegistry(backend.RegistryConfig{
		Dirs:       backendDirs,
		RuntimeDir: paths.RuntimeDir,
		Exclude:    cfg.Backends.Exclude,
		AppDirs:    appDirs,
		Logger:     logger,
	})

	searcher := backend.NewSearcher(
		backend.WithCallTimeout(time.Duration(cfg.Search.CallTimeoutMs)*time.Millisecond),
		backend.WithLogger(logger),
	)
	defer searcher.Close()

	session := search.NewSession(
		search.BackendStreamer{Searcher: searcher, Registry: registry},
		search.Config{
			QueryDelay:   time.Duration(cfg.Search.QueryDebounceMs) * time.Millisecond,
			CommandDelay: time.Duration(cfg.Search.CommandDebounceMs) * time.Millisecond,
			ClearDelay:   time.Duration(cfg.Search.ClearDelayMs) * time.Millisecond,
			MaxResults:   cfg.Search.MaxResults,
		},
	)
	defer session.Close()

	opts := []action.Option{
		action.WithSearcher(searcher),
		action.WithLogger(logger),
	}
	if store != nil {
		opts = append(opts, action.WithHistory(store, sessionID))
	}
	launcher, err := action.NewLauncher(opts...)
	if err != nil {
		return err
	}
	// Close blocks until the selected activation has been handed to the
	// OS, so quitting right after Enter does not lose the launch.
	defer launcher.Close()

	model := tui.NewModel(cfg, tui.Deps{
		Apps:     appList,
		Usage:    usage,
		Registry: registry,
		Session:  session,
		Runner:   command.NewRunner(command.Config{Logger: logger}),
		Launcher: launcher,
		Logger:   logger,
	})

	// The launcher may be spawned by a hotkey daemon with stdio pointing
	// anywhere; the TUI talks to the controlling terminal directly.
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("cannot open /dev/tty: %w", err)
	}
	defer tty.Close()

	// Stdout may be a pipe, which would leave lipgloss in Ascii mode.
	// Detect the color profile from the real tty instead; SetColorProfile
	// updates the default renderer the package-level styles render with.
	lipgloss.SetColorProfile(termenv.NewOutput(tty).ColorProfile())

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithInput(tty),
		tea.WithOutput(tty),
	)

	logger.Info("launcher starting", "version", Version, "session_id", sessionID)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	logger.Info("launcher exiting")
	return nil
}

// openLogger opens the configured log file. Logging must never block the
// launcher: on failure everything is discarded.
func openLogger(cfg *config.Config, paths *config.Paths) (*slog.Logger, func()) {
	logPath := cfg.Log.File
	if logPath == "" {
		logPath = paths.LogFile()
	}
	f, err := log.OpenFile(logPath)
	if err != nil {
		return log.Discard(), func() {}
	}
	logger := log.New(&log.Config{
		Output: f,
		Level:  logLevel(cfg.Log.Level),
		Debug:  debugFlag || os.Getenv("GLINT_DEBUG") == "1",
	})
	return logger, func() { _ = f.Close() }
}

// logLevel maps the config string to a slog level.
func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
