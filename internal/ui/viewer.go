package ui

import "cgr/internal/domain"

// Viewer displays run failures in an interactive TUI
type Viewer interface {
	View(out *domain.RunOutput) error
}
