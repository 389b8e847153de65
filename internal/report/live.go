package report

import (
	"fmt"
	"io"

	"github.com/mrzor/procwatch/internal/registry"
)

// Live renders per-tick snapshots while the session runs.
//
// In redraw mode every update clears the terminal and reprints the full
// table, like watch(1). Otherwise updates collapse to the one-line counters
// summary, emitted only when the counts change so piped output stays
// readable. Updates arrive from the single poller goroutine.
type Live struct {
	out    io.Writer
	redraw bool
	last   string
}

// NewLive returns a renderer writing to out. With redraw true the full
// table is repainted on every update.
func NewLive(out io.Writer, redraw bool) *Live {
	return &Live{out: out, redraw: redraw}
}

// Update renders one snapshot.
func (l *Live) Update(records []registry.Record) {
	if l.redraw {
		fmt.Fprint(l.out, "\033[H\033[2J")
		_ = Table(l.out, records)
		fmt.Fprintln(l.out)
		fmt.Fprintln(l.out, Summary(records))
		return
	}

	line := Summary(records)
	if line == l.last {
		return
	}
	l.last = line
	fmt.Fprintln(l.out, line)
}
