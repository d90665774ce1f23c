package ui

import (
	"fmt"
	"io"
	"sync"

	"cgr/internal/domain"

	"github.com/fatih/color"
)

// Console prints one line per counted report and per warning. It is a
// report.Sink and a report.WarningSink.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

// NewConsole creates a console sink. Passing reports are printed only when
// verbose is set.
func NewConsole(w io.Writer, verbose bool) *Console {
	return &Console{w: w, verbose: verbose}
}

var statusColors = map[domain.Status]*color.Color{
	domain.StatusPassed:  color.New(color.FgGreen),
	domain.StatusFailed:  color.New(color.FgRed),
	domain.StatusError:   color.New(color.FgRed, color.Bold),
	domain.StatusSkipped: color.New(color.FgYellow),
	domain.StatusXFailed: color.New(color.FgYellow),
	domain.StatusXPassed: color.New(color.FgMagenta),
}

func (c *Console) LogStart(caseID string) {}

func (c *Console) LogFinish(caseID string) {}

func (c *Console) LogReport(r domain.Report) {
	st := r.Status()
	if st == "" || (st == domain.StatusPassed && !c.verbose) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	label := statusColors[st].Sprintf("%-8s", string(st))
	line := fmt.Sprintf("%s %s", label, r.CaseID)
	if r.Phase != domain.PhaseCall {
		line += color.HiBlackString(" (%s)", r.Phase)
	}
	switch {
	case r.Message != "":
		line += " - " + firstLine(r.Message)
	case r.WasXFail != "":
		line += " - " + r.WasXFail
	}
	fmt.Fprintln(c.w, line)
}

func (c *Console) Warn(w domain.Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, color.YellowString("WARNING [%s] %s", w.Kind, w.Message))
}
