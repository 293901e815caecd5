package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/cuke/internal/glue"
)

// StepDefinition is one entry of a step definition listing.
type StepDefinition struct {
	Backend  string `json:"backend"`
	Pattern  string `json:"pattern"`
	Location string `json:"location"`
}

// CollectStepDefinitions lists the step definitions of reg in registration
// order.
func CollectStepDefinitions(reg *glue.Registry) []StepDefinition {
	var out []StepDefinition
	reg.Report(glue.ReporterFunc(func(backend string, def glue.StepDefinition) {
		out = append(out, StepDefinition{Backend: backend, Pattern: def.Pattern(), Location: def.Location()})
	}))
	return out
}

// WriteStepDefinitions prints defs as an aligned table.
func WriteStepDefinitions(w io.Writer, defs []StepDefinition, opts Options) error {
	st := newStyles(w, opts)
	width := 0
	for _, d := range defs {
		width = max(width, lipgloss.Width(d.Pattern))
	}
	pad := lipgloss.NewStyle().Width(width)
	for _, d := range defs {
		_, err := fmt.Fprintf(w, "%s  %s\n",
			pad.Render(d.Pattern),
			st.comment.Render(fmt.Sprintf("# %s (%s)", d.Location, d.Backend)),
		)
		if err != nil {
			return err
		}
	}
	return nil
}
