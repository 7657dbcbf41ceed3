package telemetry

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Line renders a record as one console line, sensors in name order.
func Line(r TickRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%-5d %-19s d=%5.2fcm e=%+6.2f u=%+7.2f L=%6.2f R=%6.2f",
		r.Tick, r.Phase, r.Distance, r.Error, r.Correction, r.Left, r.Right)

	names := make([]string, 0, len(r.Bins))
	for s := range r.Bins {
		names = append(names, s)
	}
	sort.Strings(names)
	b.WriteString(" |")
	for _, s := range names {
		fmt.Fprintf(&b, " %s=%s", s, r.Bins[s])
	}

	labels := make([]string, 0, len(r.Belief))
	for l := range r.Belief {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	b.WriteString(" |")
	for _, l := range labels {
		fmt.Fprintf(&b, " %s=%.2f", l, r.Belief[l])
	}
	if r.Reset {
		b.WriteString(" RESET")
	}
	if r.Stale {
		fmt.Fprintf(&b, " STALE(%s)", r.ReadErr)
	}
	return b.String()
}

// Printer writes every Nth record to w.
type Printer struct {
	W     io.Writer
	Every int
}

func (p Printer) Record(r TickRecord) error {
	if p.Every > 1 && r.Tick%p.Every != 0 && r.Phase == "FOLLOWING" {
		return nil
	}
	_, err := fmt.Fprintln(p.W, Line(r))
	return err
}
