// Package launch starts the root process of a monitored tree, or attaches
// to one that is already running.
package launch

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mrzor/procwatch/internal/procinfo"
)

// Info describes the root process of a monitoring session.
type Info struct {
	PID          int32
	Name         string
	ExePath      string
	Cmdline      string
	StartedAt    time.Time
	CreateTimeMS int64
}

// Proc is a root process this tool launched. The child is reaped in the
// background so it leaves the process table as soon as it exits; the
// existence poll is what decides the session is over, not Wait.
type Proc struct {
	Info Info

	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// Start launches the command with inherited stdio and begins reaping it.
func Start(path string, args []string) (*Proc, error) {
	//nolint:gosec // launching the target command is the tool's purpose
	cmd := exec.Command(path, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting command: %w", err)
	}

	pid := int32(cmd.Process.Pid)
	info := Info{
		PID:       pid,
		Name:      filepath.Base(cmd.Path),
		ExePath:   cmd.Path,
		Cmdline:   strings.Join(append([]string{path}, args...), " "),
		StartedAt: time.Now(),
	}

	// Best effort: the exact create time guards against PID reuse, and
	// /proc resolves the executable past any symlinks. A root that exits
	// immediately may already be gone.
	if meta, err := procinfo.Describe(pid); err == nil {
		info.CreateTimeMS = meta.CreateTimeMS
		if meta.ExePath != "" {
			info.ExePath = meta.ExePath
		}
	}
	if info.CreateTimeMS == 0 {
		info.CreateTimeMS = info.StartedAt.UnixMilli()
	}

	p := &Proc{Info: info, cmd: cmd, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Attach resolves an already-running process as the session root.
func Attach(pid int32) (Info, error) {
	meta, err := procinfo.Describe(pid)
	if err != nil {
		return Info{}, fmt.Errorf("attaching to pid %d: %w", pid, err)
	}
	info := Info{
		PID:          pid,
		Name:         meta.Name,
		ExePath:      meta.ExePath,
		Cmdline:      meta.Cmdline,
		CreateTimeMS: meta.CreateTimeMS,
	}
	if meta.CreateTimeMS > 0 {
		info.StartedAt = time.UnixMilli(meta.CreateTimeMS)
	}
	return info, nil
}

// Done is closed once the child has been reaped.
func (p *Proc) Done() <-chan struct{} {
	return p.done
}

// ExitCode reports the child's exit code after Done. It is 0 for a clean
// exit and -1 when the child was killed by a signal or its status is
// unknown.
func (p *Proc) ExitCode() int {
	select {
	case <-p.done:
	default:
		return -1
	}
	if p.waitErr == nil {
		return 0
	}
	if exitErr, ok := p.waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// Terminate asks the child to exit with SIGTERM and escalates to SIGKILL
// after the grace period.
func (p *Proc) Terminate(grace time.Duration) {
	_ = p.cmd.Process.Signal(syscall.SIGTERM) //nolint:errcheck // best-effort graceful shutdown; Kill() follows

	select {
	case <-p.done:
		return
	case <-time.After(grace):
	}
	_ = p.cmd.Process.Kill() //nolint:errcheck // best-effort cleanup during shutdown
	<-p.done
}
