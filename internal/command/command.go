// Package command executes the configured colon commands. Each command is a
// shell template run as `sh -c <template> -- <arg>`, so the text typed after
// the command name reaches the template as "$1". Stdout becomes result rows.
package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultMaxLines = 64

	// maxOutputBytes bounds what a runaway command can feed the list.
	maxOutputBytes = 1 << 20
)

// ErrTimeout is returned when a command outlives its timeout.
var ErrTimeout = errors.New("command timed out")

// Config configures the runner.
type Config struct {
	Timeout  time.Duration // subprocess deadline
	MaxLines int           // cap on returned stdout lines
	Logger   *slog.Logger
}

// Runner executes command templates and collects their output.
type Runner struct {
	cfg Config
}

// NewRunner returns a runner with unset config fields defaulted.
func NewRunner(cfg Config) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = defaultMaxLines
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{cfg: cfg}
}

// Run executes template under sh with arg bound to "$1" and returns stdout
// split into at most MaxLines non-empty lines. A non-zero exit is not an
// error: matchers like rg and plocate exit 1 when nothing matched.
func (r *Runner) Run(ctx context.Context, template, arg string) ([]string, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", template, "--", arg)
	cmd.Stdin = nil

	stdout := &limitedBuffer{limit: maxOutputBytes}
	stderr := &limitedBuffer{limit: maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()

	if ctx.Err() != nil {
		// The query was superseded; nobody is waiting for this output.
		return nil, ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		r.cfg.Logger.Warn("command timed out",
			"template", template,
			"timeout", r.cfg.Timeout,
		)
		return nil, ErrTimeout
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run command: %w", err)
		}
		r.cfg.Logger.Debug("command exited non-zero",
			"template", template,
			"exit_code", exitErr.ExitCode(),
			"stderr", strings.TrimSpace(stderr.String()),
		)
	}
	if stdout.exceeded {
		r.cfg.Logger.Warn("command output truncated",
			"template", template,
			"limit", maxOutputBytes,
		)
	}

	return splitLines(stdout.Bytes(), r.cfg.MaxLines), nil
}

func splitLines(b []byte, max int) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), maxOutputBytes+1)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) >= max {
			break
		}
	}
	return lines
}

// limitedBuffer keeps at most limit bytes and silently discards the rest,
// claiming full writes so the subprocess copier never errors.
type limitedBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    int64
	exceeded bool
}

func (lb *limitedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.exceeded {
		return len(p), nil
	}

	remaining := lb.limit - int64(lb.buf.Len())
	if remaining <= 0 {
		lb.exceeded = true
		return len(p), nil
	}

	if int64(len(p)) > remaining {
		lb.exceeded = true
		lb.buf.Write(p[:remaining])
		return len(p), nil
	}

	return lb.buf.Write(p)
}

func (lb *limitedBuffer) Bytes() []byte {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Bytes()
}

func (lb *limitedBuffer) String() string {
	return string(lb.Bytes())
}

var _ io.Writer = (*limitedBuffer)(nil)
