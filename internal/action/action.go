// Package action launches whatever the user picked. Activations run on a
// worker pool so the input loop never waits on process spawns or backend
// sockets, and every successful launch lands in history.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sys/execabs"

	"github.com/glint-sh/glint/internal/apps"
	"github.com/glint-sh/glint/internal/backend"
	"github.com/glint-sh/glint/internal/history"
)

const (
	defaultPoolSize = 4
	activateTimeout = 5 * time.Second
	recordTimeout   = time.Second
	closeTimeout    = 3 * time.Second
)

// terminalCandidates is the preference order for Terminal=true apps.
var terminalCandidates = []string{
	"foot",
	"alacritty",
	"kitty",
	"wezterm",
	"ghostty",
	"gnome-terminal",
	"xfce4-terminal",
	"konsole",
	"xterm",
}

// fileLineRe matches grep-style "path:line:" prefixes.
var fileLineRe = regexp.MustCompile(`^(.+):(\d+):`)

// Launcher activates selections.
type Launcher struct {
	pool      *ants.Pool
	poolSize  int
	searcher  *backend.Searcher
	store     *history.Store
	sessionID string
	logger    *slog.Logger

	lookPath func(string) (string, error)
	termOnce sync.Once
	terminal string
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithPoolSize sets how many activations may run at once.
func WithPoolSize(size int) Option {
	return func(l *Launcher) {
		if size > 0 {
			l.poolSize = size
		}
	}
}

// WithSearcher enables backend-result activation.
func WithSearcher(s *backend.Searcher) Option {
	return func(l *Launcher) { l.searcher = s }
}

// WithHistory records launches to store under the given session id.
func WithHistory(store *history.Store, sessionID string) Option {
	return func(l *Launcher) {
		l.store = store
		l.sessionID = sessionID
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLauncher builds a Launcher and its worker pool.
func NewLauncher(opts ...Option) (*Launcher, error) {
	l := &Launcher{
		poolSize: defaultPoolSize,
		logger:   slog.New(slog.DiscardHandler),
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(l)
	}

	pool, err := ants.NewPool(l.poolSize)
	if err != nil {
		return nil, fmt.Errorf("create action pool: %w", err)
	}
	l.pool = pool
	return l, nil
}

// Close waits for queued activations to finish, then releases the worker
// pool. The wait is bounded; the launcher must not hang on a stuck
// activation during shutdown.
func (l *Launcher) Close() {
	_ = l.pool.ReleaseTimeout(closeTimeout)
}

// LaunchApp starts the app's executable detached from the launcher and
// records the launch. Returns once the work is queued.
func (l *Launcher) LaunchApp(app apps.App, query string) error {
	return l.submit(func() {
		if err := l.launchApp(app); err != nil {
			l.logger.Warn("app launch failed", "app", app.Name, "error", err)
			return
		}
		l.record(history.KindApp, app.Path, app.Name, query)
	})
}

// ActivateResult tells the owning backend to activate the result and
// records the launch. Returns once the work is queued.
func (l *Launcher) ActivateResult(res backend.Result, terms []string, query string) error {
	if l.searcher == nil {
		return errors.New("no backend searcher configured")
	}
	return l.submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), activateTimeout)
		defer cancel()
		l.searcher.Activate(ctx, res.Backend, res.ID, terms)
		l.record(history.KindBackend, res.Backend.AppID+":"+res.ID, res.Name, query)
	})
}

// OpenLine opens a command-mode result row. A grep-style "path:line:" prefix
// goes to $EDITOR at that line; an existing path goes to xdg-open. Anything
// else is logged and dropped.
func (l *Launcher) OpenLine(line, query string) error {
	return l.submit(func() {
		target, err := l.openLine(line)
		if err != nil {
			l.logger.Warn("open failed", "line", line, "error", err)
			return
		}
		if target == "" {
			l.logger.Warn("not an openable path", "line", line)
			return
		}
		l.record(history.KindCommand, target, line, query)
	})
}

func (l *Launcher) launchApp(app apps.App) error {
	if app.Exec == "" {
		return errors.New("empty exec line")
	}

	var cmd *exec.Cmd
	if app.Terminal {
		term := l.findTerminal()
		if term == "" {
			return errors.New("no terminal emulator found")
		}
		cmd = execabs.Command(term, terminalArgs(term, app.Exec)...)
	} else {
		argv, err := shlexSplit(app.Exec)
		if err != nil {
			return fmt.Errorf("parse exec line: %w", err)
		}
		cmd = execabs.Command(argv[0], argv[1:]...)
	}
	return StartDetached(cmd)
}

// openLine resolves line to a file and spawns the opener. It returns the
// opened path, or "" when line does not name an existing file.
func (l *Launcher) openLine(line string) (string, error) {
	if m := fileLineRe.FindStringSubmatch(line); m != nil {
		file, lineNum := m[1], m[2]
		if _, err := os.Stat(file); err == nil {
			editor := os.Getenv("EDITOR")
			if editor == "" {
				editor = "xdg-open"
			}
			var cmd *exec.Cmd
			if editor != "xdg-open" {
				cmd = execabs.Command(editor, "+"+lineNum, file)
			} else {
				cmd = execabs.Command(editor, file)
			}
			return file, StartDetached(cmd)
		}
	}

	if _, err := os.Stat(line); err == nil {
		return line, StartDetached(execabs.Command("xdg-open", line))
	}
	return "", nil
}

// terminalArgs builds the run-this-command arguments for a terminal
// emulator; they disagree on the separator.
func terminalArgs(term, execLine string) []string {
	switch term {
	case "gnome-terminal", "xfce4-terminal", "kitty":
		return []string{"--", "sh", "-c", execLine}
	default:
		return []string{"-e", "sh", "-c", execLine}
	}
}

// findTerminal resolves the preferred terminal emulator once.
func (l *Launcher) findTerminal() string {
	l.termOnce.Do(func() {
		for _, candidate := range terminalCandidates {
			if _, err := l.lookPath(candidate); err == nil {
				l.terminal = candidate
				return
			}
		}
	})
	return l.terminal
}

func (l *Launcher) submit(task func()) error {
	if err := l.pool.Submit(task); err != nil {
		return fmt.Errorf("submit activation: %w", err)
	}
	return nil
}

func (l *Launcher) record(kind history.Kind, target, label, query string) {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	err := l.store.RecordLaunch(ctx, &history.Launch{
		SessionID: l.sessionID,
		Kind:      kind,
		Target:    target,
		Label:     label,
		Query:     query,
	})
	if err != nil {
		l.logger.Warn("record launch failed", "error", err)
	}
}
