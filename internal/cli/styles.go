// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatstream/internal/model"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and headers.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// LabelStyle is used for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Light gray

	// SuccessStyle is used for success messages.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	// ErrorStyle is used for errors and failed turns.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// WarningStyle is used for warnings and cancelled turns.
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Yellow/Orange

	// DimStyle is used for secondary information and hints.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")) // Dim gray

	// SeparatorStyle is used for visual separators.
	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // Dark gray

	// PromptStyle is the REPL prompt.
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	// HumanStyle labels the user's turns.
	HumanStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")). // Blue
			Bold(true)

	// AgentStyle labels the agent's turns.
	AgentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")). // Bright green
			Bold(true)
)

// =============================================================================
// HELPERS
// =============================================================================

// RenderSeparator renders a horizontal rule of the given width.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 40
	}
	return SeparatorStyle.Render(strings.Repeat("-", width))
}

// RoleStyle returns the label style for role.
func RoleStyle(role model.Role) lipgloss.Style {
	if role == model.RoleHuman {
		return HumanStyle
	}
	return AgentStyle
}

// OutcomeStyle returns the style an agent turn with outcome is shown in.
func OutcomeStyle(outcome model.Outcome) lipgloss.Style {
	switch outcome {
	case model.OutcomeFailed, model.OutcomeAborted:
		return ErrorStyle
	case model.OutcomeCancelled, model.OutcomePending:
		return WarningStyle
	default:
		return lipgloss.NewStyle()
	}
}

// outcomeTag is the short marker shown after turns that did not complete.
func outcomeTag(outcome model.Outcome) string {
	switch outcome {
	case model.OutcomeFailed:
		return "[failed]"
	case model.OutcomeAborted:
		return "[aborted]"
	case model.OutcomeCancelled:
		return "[cancelled]"
	case model.OutcomePending:
		return "[streaming]"
	default:
		return ""
	}
}
