package notify

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mrzor/procwatch/internal/timesync"
)

// recvTimeout bounds how long the read loop blocks in Recvfrom, so Close
// is honored promptly even when no events arrive.
const recvTimeout = 250 * time.Millisecond

// Subscription is a live netlink proc connector subscription. Events are
// delivered to the handler from a dedicated goroutine until Close.
type Subscription struct {
	id     string
	fd     int
	nlPid  uint32
	conv   *timesync.Converter
	handle func(Event)

	stopCh chan struct{}
	doneCh chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Subscribe opens a netlink connector socket, joins the process-events
// multicast group, and starts delivering fork/exec/exit notifications to
// handle. The id tags log lines so concurrent sessions stay tellable
// apart. Requires CAP_NET_ADMIN; callers should treat failure as a cue to
// fall back to poll-only operation.
func Subscribe(id string, conv *timesync.Converter, handle func(Event)) (*Subscription, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_CONNECTOR)
	if err != nil {
		return nil, fmt.Errorf("opening netlink connector socket: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: cnIdxProc,
	}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("joining process-events multicast group: %w", err)
	}

	// Kernel assigns our netlink port on bind; ops echo it back in the
	// message header.
	sa, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("reading netlink socket address: %w", err)
	}
	nl, ok := sa.(*unix.SockaddrNetlink)
	if !ok {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("unexpected socket address family %T", sa)
	}

	tv := unix.NsecToTimeval(recvTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("setting receive timeout: %w", err)
	}

	s := &Subscription{
		id:     id,
		fd:     fd,
		nlPid:  nl.Pid,
		conv:   conv,
		handle: handle,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if err := s.sendMcastOp(procCNMcastListen); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("subscribing to process events: %w", err)
	}

	go s.readLoop()

	log.Printf("process-events subscription %s active", id)
	return s, nil
}

// Close unsubscribes, stops the read loop, and releases the socket. Safe
// to call more than once.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)

		// Best effort: the kernel also drops us when the socket closes.
		opErr := s.sendMcastOp(procCNMcastIgnore)
		if opErr != nil {
			opErr = fmt.Errorf("unsubscribing from process events: %w", opErr)
		}

		// The loop notices stopCh within one receive timeout. Closing the
		// fd only after it exits keeps Recvfrom away from a stale fd.
		<-s.doneCh

		var closeErr error
		if err := unix.Close(s.fd); err != nil {
			closeErr = fmt.Errorf("closing netlink connector socket: %w", err)
		}

		s.closeErr = errors.Join(opErr, closeErr)
		log.Printf("process-events subscription %s closed", s.id)
	})
	return s.closeErr
}

func (s *Subscription) readLoop() {
	defer close(s.doneCh)

	buf := make([]byte, 8192)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		n, _, err := unix.Recvfrom(s.fd, buf, 0)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.ENOBUFS):
				// Kernel dropped notifications under load. The periodic
				// existence poll picks up anything we missed.
				log.Printf("Warning: process-events subscription %s overrun, some notifications lost", s.id)
				continue
			default:
				select {
				case <-s.stopCh:
					return
				default:
				}
				log.Printf("Warning: process-events subscription %s receive failed: %v", s.id, err)
				time.Sleep(recvTimeout)
				continue
			}
		}

		for _, raw := range parseProcEvents(buf[:n]) {
			s.handle(Event{
				Kind:      raw.kind,
				PID:       raw.pid,
				ParentPID: raw.parentPID,
				Timestamp: s.conv.WallClock(raw.bootNS),
			})
		}
	}
}

// sendMcastOp sends a PROC_CN_MCAST_* op to the kernel connector.
func (s *Subscription) sendMcastOp(op uint32) error {
	const payloadLen = 20 + 4 // cn_msg + op

	var buf bytes.Buffer
	hdr := unix.NlMsghdr{
		Len:  unix.NLMSG_HDRLEN + payloadLen,
		Type: unix.NLMSG_DONE,
		Pid:  s.nlPid,
	}
	msg := cnMsg{
		IDIdx: cnIdxProc,
		IDVal: cnValProc,
		Len:   4,
	}
	if err := binary.Write(&buf, binary.NativeEndian, hdr); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.NativeEndian, msg); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.NativeEndian, op); err != nil {
		return err
	}

	return unix.Sendto(s.fd, buf.Bytes(), 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
}
