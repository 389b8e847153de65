// Package procinfo answers liveness and identity questions about host
// processes. It is the boundary to the OS process table; everything here is
// best effort and side-effect free.
package procinfo

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Meta holds host-reported identity fields for one process. Fields the host
// would not reveal (permissions, process already gone mid-read) are left at
// their zero value.
type Meta struct {
	PID          int32
	ParentPID    int32
	Name         string
	ExePath      string
	Cmdline      string
	CreateTimeMS int64 // Unix milliseconds, 0 when unknown
}

// Describe resolves identity metadata for pid. It returns an error only
// when the process cannot be opened at all (typically: it already exited);
// individual field failures leave the field empty and are not errors.
func Describe(pid int32) (Meta, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return Meta{}, fmt.Errorf("opening process %d: %w", pid, err)
	}

	meta := Meta{PID: pid}
	if name, err := p.Name(); err == nil {
		meta.Name = name
	}
	if exe, err := p.Exe(); err == nil {
		meta.ExePath = exe
	}
	if cmdline, err := p.Cmdline(); err == nil {
		meta.Cmdline = cmdline
	}
	if ppid, err := p.Ppid(); err == nil {
		meta.ParentPID = ppid
	}
	if created, err := p.CreateTime(); err == nil {
		meta.CreateTimeMS = created
	}
	return meta, nil
}

// Prober answers liveness queries against the host process table.
type Prober struct{}

// Alive reports whether pid refers to the same live process that was
// originally recorded. A zombie counts as dead: it has exited and can
// neither run nor spawn. When createTimeMS is non-zero and the host reports
// a different creation time for pid, the PID has been reused by an
// unrelated process and the recorded one is gone.
//
// An error means the check itself failed; callers treat that conservatively
// as not-alive so a failing probe cannot produce an immortal record.
func (Prober) Alive(pid int32, createTimeMS int64) (bool, error) {
	exists, err := process.PidExists(pid)
	if err != nil {
		return false, fmt.Errorf("checking PID %d: %w", pid, err)
	}
	if !exists {
		return false, nil
	}

	p, err := process.NewProcess(pid)
	if err != nil {
		// Gone between the existence check and the open.
		return false, nil
	}

	if statuses, err := p.Status(); err == nil {
		for _, s := range statuses {
			if s == process.Zombie {
				return false, nil
			}
		}
	}

	if createTimeMS > 0 {
		created, err := p.CreateTime()
		if err == nil && created != createTimeMS {
			return false, nil
		}
	}

	return true, nil
}

// Scanner discovers children of monitored processes from the process table.
type Scanner struct{}

// Children returns metadata for every current process whose parent
// satisfies watched and whose own PID does not satisfy known. This is the
// poll-side discovery channel: it catches children whose creation
// notification was dropped or never delivered.
func (Scanner) Children(watched, known func(pid int32) bool) []Meta {
	procs, err := process.Processes()
	if err != nil {
		return nil
	}

	var out []Meta
	for _, p := range procs {
		if known(p.Pid) {
			continue
		}
		ppid, err := p.Ppid()
		if err != nil || !watched(ppid) {
			continue
		}

		meta := Meta{PID: p.Pid, ParentPID: ppid}
		if name, err := p.Name(); err == nil {
			meta.Name = name
		}
		if cmdline, err := p.Cmdline(); err == nil {
			meta.Cmdline = cmdline
		}
		if created, err := p.CreateTime(); err == nil {
			meta.CreateTimeMS = created
		}
		out = append(out, meta)
	}
	return out
}
