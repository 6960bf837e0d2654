//go:build windows

package action

import "os/exec"

// setProcAttr is a no-op on Windows; Start already detaches.
func setProcAttr(_ *exec.Cmd) {}
