package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mrzor/procwatch/internal/registry"
)

// Table writes the process table for a snapshot to out.
func Table(out io.Writer, records []registry.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No processes recorded.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "PID\tPPID\tSTATUS\tSTARTED\tSHA256\tNAME\tCOMMAND"); err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := fmt.Fprintf(
			tw,
			"%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.PID,
			pidOrDash(rec.ParentPID),
			rec.Status,
			startedOrDash(rec.StartedAt),
			displayOrDash(rec.SHA256),
			displayOrDash(rec.Name),
			displayOrDash(rec.Cmdline),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// Summary renders the one-line counters view of a snapshot.
func Summary(records []registry.Record) string {
	var active, pending, terminated int
	for _, rec := range records {
		switch rec.Status {
		case registry.StatusActive:
			active++
		case registry.StatusPending:
			pending++
		case registry.StatusTerminated:
			terminated++
		}
	}
	return fmt.Sprintf("%d processes: %d active, %d pending, %d terminated",
		len(records), active, pending, terminated)
}

func displayOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func pidOrDash(pid int32) string {
	if pid <= 0 {
		return "-"
	}
	return strconv.Itoa(int(pid))
}

func startedOrDash(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format(time.RFC3339)
}
