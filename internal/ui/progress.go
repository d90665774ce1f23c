package ui

import (
	"fmt"
	"io"
	"sync"

	"cgr/internal/domain"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// ProgressBar renders run progress. It is a report.Sink that advances once
// per finished case and keeps passed/failed counts in its description.
type ProgressBar struct {
	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	failed map[string]bool
	passed int
	broken int
}

// NewProgressBar creates a progress bar for count cases writing to w.
func NewProgressBar(w io.Writer, count int) *ProgressBar {
	bar := progressbar.NewOptions(count,
		progressbar.OptionSetDescription(describe(0, 0)),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        color.CyanString("█"),
			SaucerHead:    color.CyanString("█"),
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(w),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)

	return &ProgressBar{bar: bar, failed: make(map[string]bool)}
}

func describe(passed, failed int) string {
	return color.CyanString("Running cases: ") +
		color.GreenString("[passed: %d", passed) +
		" | " +
		color.RedString("failed: %d]", failed)
}

func (p *ProgressBar) LogStart(caseID string) {}

func (p *ProgressBar) LogReport(r domain.Report) {
	switch r.Status() {
	case domain.StatusFailed, domain.StatusError:
		p.mu.Lock()
		p.failed[r.CaseID] = true
		p.mu.Unlock()
	}
}

func (p *ProgressBar) LogFinish(caseID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed[caseID] {
		p.broken++
	} else {
		p.passed++
	}
	_ = p.bar.Add(1)
	p.bar.Describe(describe(p.passed, p.broken))
}

// Counts returns the number of finished cases without and with failures.
func (p *ProgressBar) Counts() (passed, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.passed, p.broken
}

// Finish completes the progress bar
func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
}
