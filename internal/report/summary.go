package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roach88/cuke/internal/result"
	"github.com/roach88/cuke/internal/runtime"
	"github.com/roach88/cuke/internal/stats"
)

// Summary prints the end-of-run summary. It implements
// runtime.SummaryPrinter.
type Summary struct {
	w      io.Writer
	styles styles
}

// NewSummary creates a summary printer writing to w.
func NewSummary(w io.Writer, opts Options) *Summary {
	return &Summary{w: w, styles: newStyles(w, opts)}
}

// PrintSummary implements runtime.SummaryPrinter.
func (s *Summary) PrintSummary(sum runtime.Summary) {
	snap := sum.Stats

	if len(snap.Failed) > 0 {
		fmt.Fprintln(s.w, s.styles.bold.Render("Failed scenarios:"))
		for _, ref := range snap.Failed {
			fmt.Fprintf(s.w, "%s %s\n",
				s.styles.render(ref.Status, fmt.Sprintf("%s:%d", ref.URI, ref.Line)),
				s.styles.comment.Render("# "+ref.Name),
			)
		}
		fmt.Fprintln(s.w)
	}

	fmt.Fprintln(s.w, s.countLine(snap.Scenarios, "Scenarios"))
	fmt.Fprintln(s.w, s.countLine(snap.Steps, "Steps"))
	fmt.Fprintln(s.w, FormatDuration(snap.Duration))

	if len(snap.Failures) > 0 {
		fmt.Fprintln(s.w)
		fmt.Fprintln(s.w, s.styles.bold.Render("Failures:"))
		for _, f := range snap.Failures {
			fmt.Fprintln(s.w, s.styles.render(result.Failed, f.String()))
		}
	}

	if len(sum.Snippets) > 0 {
		fmt.Fprintln(s.w)
		fmt.Fprintln(s.w, "You can implement missing steps with the snippets below:")
		fmt.Fprintln(s.w)
		for _, snippet := range sum.Snippets {
			fmt.Fprintln(s.w, s.styles.render(result.Undefined, strings.TrimRight(snippet, "\n")))
			fmt.Fprintln(s.w)
		}
	}
}

// CountLine formats counts as "3 Steps (1 failed, 2 passed)".
func CountLine(c stats.Counts, noun string) string {
	return NewSummary(io.Discard, Options{}).countLine(c, noun)
}

func (s *Summary) countLine(c stats.Counts, noun string) string {
	line := fmt.Sprintf("%d %s", c.Total(), noun)
	var parts []string
	for _, st := range result.Statuses {
		if n := c[st]; n > 0 {
			parts = append(parts, s.styles.render(st, fmt.Sprintf("%d %s", n, st)))
		}
	}
	if len(parts) > 0 {
		line += " (" + strings.Join(parts, ", ") + ")"
	}
	return line
}

// FormatDuration formats d as minutes and seconds, e.g. "1m2.345s".
func FormatDuration(d time.Duration) string {
	minutes := int(d / time.Minute)
	rest := d - time.Duration(minutes)*time.Minute
	return fmt.Sprintf("%dm%d.%03ds", minutes, int(rest/time.Second), int(rest%time.Second/time.Millisecond))
}
