package action

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/google/shlex"
)

// shlexSplit turns a desktop Exec line into argv with POSIX quoting rules,
// no shell involved.
func shlexSplit(execLine string) ([]string, error) {
	argv, err := shlex.Split(execLine)
	if err != nil {
		return nil, fmt.Errorf("splitting command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("command produced empty argv")
	}
	return argv, nil
}

// StartDetached starts cmd in its own process group so it survives the
// launcher exiting, and reaps it in the background so it never zombies
// while the launcher stays open.
func StartDetached(cmd *exec.Cmd) error {
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
