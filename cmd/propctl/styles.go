package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	props "github.com/goliatone/go-props"
)

var styles = struct {
	header   lipgloss.Style
	ok       lipgloss.Style
	muted    lipgloss.Style
	warn     lipgloss.Style
	fail     lipgloss.Style
	resolved lipgloss.Style
}{
	header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
	ok:       lipgloss.NewStyle().Foreground(lipgloss.Color("#2ECC71")),
	muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
	warn:     lipgloss.NewStyle().Foreground(lipgloss.Color("#F1C40F")),
	fail:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	resolved: lipgloss.NewStyle().Foreground(lipgloss.Color("#2ECC71")),
}

// statusCell pads before styling so colour codes never shift the columns
// that precede it.
func statusCell(status props.FieldStatus) string {
	text := fmt.Sprintf("%-9s", status)
	switch status {
	case props.StatusResolved:
		return styles.resolved.Render(text)
	case props.StatusDisabled, props.StatusPending:
		return styles.warn.Render(text)
	case props.StatusFailed:
		return styles.fail.Render(text)
	default:
		return styles.muted.Render(text)
	}
}

func outcomeCell(outcome props.StepOutcome) string {
	text := fmt.Sprintf("%-10s", outcome)
	switch outcome {
	case props.OutcomeResolved, props.OutcomeCached:
		return styles.ok.Render(text)
	case props.OutcomeFailed:
		return styles.fail.Render(text)
	case props.OutcomeSuperseded, props.OutcomeSkipped:
		return styles.warn.Render(text)
	default:
		return text
	}
}
