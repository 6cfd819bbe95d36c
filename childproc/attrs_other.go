//go:build !linux

package childproc

import "os/exec"

// applyPlatformAttrs is a documented no-op on platforms without a
// parent-death signal: a child may continue running as an orphan if the
// orchestrator is killed without a chance to clean up.
func applyPlatformAttrs(cmd *exec.Cmd) {}
