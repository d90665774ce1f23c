package ui

import (
	"fmt"
	"strings"

	"cgr/internal/domain"
	"cgr/internal/storage"

	"github.com/fatih/color"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/sirupsen/logrus"
)

const maxErrorLines = 10

// ErrorViewer displays run failures in an interactive TUI. Toggling a
// failure as resolved is persisted through the storage.
type ErrorViewer struct {
	storage storage.Storage
	log     *logrus.Logger
}

// NewErrorViewer creates a new ErrorViewer
func NewErrorViewer(st storage.Storage, log *logrus.Logger) *ErrorViewer {
	return &ErrorViewer{storage: st, log: log}
}

var _ Viewer = (*ErrorViewer)(nil)

// View displays the failures of out until the user exits.
func (ev *ErrorViewer) View(out *domain.RunOutput) error {
	if len(out.Details) == 0 {
		color.Green("✓ No failures found!")
		return nil
	}

	app := tview.NewApplication()

	list := tview.NewList().
		ShowSecondaryText(false).
		SetHighlightFullLine(true)
	for i, fl := range out.Details {
		list.AddItem(listItemText(fl, i), "", 0, nil)
	}
	list.SetMainTextColor(tview.Styles.PrimaryTextColor).
		SetSelectedTextColor(tcell.ColorWhite).
		SetSelectedBackgroundColor(tcell.ColorDarkCyan).
		SetSecondaryTextColor(tview.Styles.SecondaryTextColor)

	statsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)

	detailsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true)

	detailsContainer := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(detailsView, 0, 1, false).
		AddItem(tview.NewBox(), 2, 0, false)

	rightSide := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(statsView, 3, 0, false).
		AddItem(detailsContainer, 0, 1, false)

	body := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(list, 0, 1, true).
		AddItem(rightSide, 0, 2, false)

	headerView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true)

	updateHeader := func() {
		headerView.SetText(fmt.Sprintf(
			" Failures (%d total, %d unresolved) | ↑↓ navigate, [yellow]R[white] toggle resolved, → details, ← back, Ctrl+C exit ",
			len(out.Details), countUnresolved(out.Details)))
	}

	updateDetails := func() {
		i := list.GetCurrentItem()
		if i < 0 || i >= len(out.Details) {
			return
		}
		statsView.SetText(formatFailureStats(out.Details[i]))
		detailsView.SetText(formatFailureDetails(out.Details[i]))
	}

	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEnter, tcell.KeyRight:
			app.SetFocus(detailsView)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		case tcell.KeyRune:
			if event.Rune() != 'r' && event.Rune() != 'R' {
				return event
			}
			i := list.GetCurrentItem()
			if i < 0 || i >= len(out.Details) {
				return nil
			}
			out.Details[i].Resolved = !out.Details[i].Resolved
			list.SetItemText(i, listItemText(out.Details[i], i), "")
			updateHeader()
			updateDetails()
			if err := ev.storage.Save(out); err != nil {
				ev.log.WithError(err).Warn("save resolved status")
			}
			return nil
		}
		return event
	})

	detailsView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyLeft, tcell.KeyEsc:
			app.SetFocus(list)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		}
		return event
	})

	list.SetChangedFunc(func(int, string, string, rune) {
		updateDetails()
	})

	updateHeader()
	updateDetails()

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(headerView, 1, 0, false).
		AddItem(tview.NewBox(), 1, 0, false).
		AddItem(body, 0, 1, true)

	if err := app.SetRoot(layout, true).SetFocus(list).Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func countUnresolved(failures []domain.Failure) int {
	n := 0
	for _, fl := range failures {
		if !fl.Resolved {
			n++
		}
	}
	return n
}

func listItemText(fl domain.Failure, index int) string {
	name := fl.Name
	if name == "" {
		name = fmt.Sprintf("Case %d", index+1)
	}
	if fl.Resolved {
		return fmt.Sprintf("[gray]✓ [yellow]%d.[gray] %s[white]", index+1, name)
	}
	return fmt.Sprintf("[yellow]%d.[white] %s", index+1, name)
}

// formatFailureDetails renders a failure using tview color tags.
func formatFailureDetails(fl domain.Failure) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[red]✗ %s: %s[white]\n\n", fl.Status, fl.Name)
	fmt.Fprintf(&b, "[cyan]Case: %s[white]\n", fl.CaseID)
	fmt.Fprintf(&b, "[cyan]Phase: %s[white]\n", fl.Phase)
	if fl.Group != "" {
		fmt.Fprintf(&b, "[cyan]Group: %s[white]\n", fl.Group)
	}
	b.WriteString("\n")

	if fl.Message != "" {
		fmt.Fprintf(&b, "[yellow]Message:[white]\n%s\n\n", tview.Escape(fl.Message))
	}

	if len(fl.Errors) > 0 {
		b.WriteString("[yellow]Errors:[white]\n")
		for i, line := range fl.Errors {
			if i == maxErrorLines {
				fmt.Fprintf(&b, "  [gray]... and %d more[white]\n", len(fl.Errors)-maxErrorLines)
				break
			}
			fmt.Fprintf(&b, "  %s\n", tview.Escape(line))
		}
	}
	return b.String()
}

func formatFailureStats(fl domain.Failure) string {
	path := fl.NodePath
	if path == "" {
		path = "unknown"
	}
	return fmt.Sprintf("[cyan]node:[white] [yellow]%s[white]::[yellow]%s[white]\n", path, fl.Name)
}
