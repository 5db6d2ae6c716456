package console

import (
	"context"
	"io"
	"os"

	"github.com/dooshek/murmur/internal/session"
	"github.com/fatih/color"
)

// Printer writes session changes to a terminal: state and status lines, risk
// band transitions and alerts. Meter-only updates are not printed.
type Printer struct {
	out io.Writer

	bold   *color.Color
	green  *color.Color
	yellow *color.Color
	red    *color.Color

	prev    session.Snapshot
	started bool
}

func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{
		out:    out,
		bold:   color.New(color.Bold),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed, color.Bold),
	}
}

// Run prints updates until ctx is done or the channel closes.
func (p *Printer) Run(ctx context.Context, updates <-chan session.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			p.Print(snap)
		}
	}
}

func (p *Printer) Print(snap session.Snapshot) {
	prev, first := p.prev, !p.started
	p.prev, p.started = snap, true

	if first || snap.State != prev.State {
		p.bold.Fprintf(p.out, "● %s\n", snap.State)
	}
	if first || snap.Status != prev.Status {
		p.fprintStatus(snap)
	}
	if snap.State == session.Listening && snap.Band != prev.Band && !first {
		p.colorFor(snap.Band).Fprintf(p.out, "  risk %.1f%% (%s)\n", snap.Risk*100, snap.Band)
	}
	if snap.AlertCount > prev.AlertCount && !first {
		label := snap.LastEvent
		if label == "" {
			label = "unknown"
		}
		p.red.Fprintf(p.out, "  🚨 alert: risk %.1f%% - %s\n", snap.Risk*100, label)
	}
}

func (p *Printer) fprintStatus(snap session.Snapshot) {
	if snap.LastError != "" {
		p.yellow.Fprintf(p.out, "  %s\n", snap.Status)
		return
	}
	p.colorFor(snap.Band).Fprintf(p.out, "  %s\n", snap.Status)
}

func (p *Printer) colorFor(band session.Band) *color.Color {
	switch band {
	case session.BandAlerting:
		return p.red
	case session.BandElevated:
		return p.yellow
	default:
		return p.green
	}
}
