package notify

import (
	"bytes"
	"encoding/binary"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Netlink connector identity of the process-events subsystem
// (linux/connector.h).
const (
	cnIdxProc = 0x1
	cnValProc = 0x1
)

// Multicast subscription ops (linux/cn_proc.h).
const (
	procCNMcastListen = 1
	procCNMcastIgnore = 2
)

// proc_event.what values we care about. The connector also reports UID/GID/
// SID/comm changes, ptrace attach, and coredumps; those never create or
// destroy a process and are skipped.
//
//nolint:revive,staticcheck // ALL_CAPS naming matches kernel conventions
const (
	PROC_EVENT_NONE = 0x00000000
	PROC_EVENT_FORK = 0x00000001
	PROC_EVENT_EXEC = 0x00000002
	PROC_EVENT_EXIT = 0x80000000
)

// Kind classifies a delivered process event.
type Kind uint32

const (
	KindFork Kind = iota + 1
	KindExec
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindFork:
		return "fork"
	case KindExec:
		return "exec"
	case KindExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Event is one process lifecycle notification, timestamp already converted
// to wall-clock time. ParentPID is set for forks only; exec and exit name
// just the process itself.
type Event struct {
	Kind      Kind
	PID       int32
	ParentPID int32
	Timestamp time.Time
}

// cnMsg matches struct cn_msg (20 bytes, native endian).
type cnMsg struct {
	IDIdx uint32
	IDVal uint32
	Seq   uint32
	Ack   uint32
	Len   uint16
	Flags uint16
}

// procEventHdr matches the fixed prefix of struct proc_event. TimestampNS
// is nanoseconds since system boot.
type procEventHdr struct {
	What        uint32
	CPU         uint32
	TimestampNS uint64
}

// Union members of proc_event.event_data. The kernel reports thread IDs
// (pid) alongside process IDs (tgid); this system tracks processes only.
type forkEventData struct {
	ParentPid  int32
	ParentTgid int32
	ChildPid   int32
	ChildTgid  int32
}

type execEventData struct {
	ProcessPid  int32
	ProcessTgid int32
}

// rawEvent is a parsed connector event before timestamp conversion.
type rawEvent struct {
	kind      Kind
	pid       int32
	parentPID int32
	bootNS    uint64
}

// parseProcEvents extracts process events from one netlink datagram. It is
// tolerant by design: anything malformed, unknown, or thread-scoped is
// skipped rather than surfaced, because a notification channel hiccup must
// never disturb monitoring.
func parseProcEvents(buf []byte) []rawEvent {
	msgs, err := syscall.ParseNetlinkMessage(buf)
	if err != nil {
		return nil
	}

	var events []rawEvent
	for _, msg := range msgs {
		if msg.Header.Type != unix.NLMSG_DONE {
			continue
		}
		ev, ok := parseConnectorPayload(msg.Data)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events
}

// parseConnectorPayload decodes cn_msg plus the embedded proc_event.
func parseConnectorPayload(data []byte) (rawEvent, bool) {
	r := bytes.NewReader(data)

	var msg cnMsg
	if err := binary.Read(r, binary.NativeEndian, &msg); err != nil {
		return rawEvent{}, false
	}
	if msg.IDIdx != cnIdxProc || msg.IDVal != cnValProc {
		return rawEvent{}, false
	}

	var hdr procEventHdr
	if err := binary.Read(r, binary.NativeEndian, &hdr); err != nil {
		return rawEvent{}, false
	}

	switch hdr.What {
	case PROC_EVENT_FORK:
		var fork forkEventData
		if err := binary.Read(r, binary.NativeEndian, &fork); err != nil {
			return rawEvent{}, false
		}
		if fork.ChildPid != fork.ChildTgid {
			// New thread, not a new process.
			return rawEvent{}, false
		}
		return rawEvent{
			kind:      KindFork,
			pid:       fork.ChildTgid,
			parentPID: fork.ParentTgid,
			bootNS:    hdr.TimestampNS,
		}, true

	case PROC_EVENT_EXEC:
		var exec execEventData
		if err := binary.Read(r, binary.NativeEndian, &exec); err != nil {
			return rawEvent{}, false
		}
		if exec.ProcessPid != exec.ProcessTgid {
			return rawEvent{}, false
		}
		return rawEvent{
			kind:   KindExec,
			pid:    exec.ProcessTgid,
			bootNS: hdr.TimestampNS,
		}, true

	case PROC_EVENT_EXIT:
		var exit struct {
			ProcessPid  int32
			ProcessTgid int32
			ExitCode    uint32
			ExitSignal  uint32
		}
		if err := binary.Read(r, binary.NativeEndian, &exit); err != nil {
			return rawEvent{}, false
		}
		if exit.ProcessPid != exit.ProcessTgid {
			return rawEvent{}, false
		}
		return rawEvent{
			kind:   KindExit,
			pid:    exit.ProcessTgid,
			bootNS: hdr.TimestampNS,
		}, true

	default:
		// PROC_EVENT_NONE (the subscription ack) and everything else.
		return rawEvent{}, false
	}
}
