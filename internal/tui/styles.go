package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/qisumi/qisumi-tui/internal/model"
)

// One Dark Pro color palette
var (
	// Background colors
	ColorBgPrimary   = lipgloss.Color("#282C34")
	ColorBgSecondary = lipgloss.Color("#21252B")
	ColorBgHighlight = lipgloss.Color("#2C313C")

	// Foreground colors
	ColorFgPrimary   = lipgloss.Color("#ABB2BF")
	ColorFgSecondary = lipgloss.Color("#828997")
	ColorFgMuted     = lipgloss.Color("#636B78")
	ColorFgComment   = lipgloss.Color("#5C6370")

	// Syntax colors
	ColorRed     = lipgloss.Color("#E06C75")
	ColorGreen   = lipgloss.Color("#98C379")
	ColorYellow  = lipgloss.Color("#E5C07B")
	ColorBlue    = lipgloss.Color("#61AFEF")
	ColorMagenta = lipgloss.Color("#C678DD")
	ColorCyan    = lipgloss.Color("#56B6C2")
	ColorOrange  = lipgloss.Color("#D19A66")

	// UI colors
	ColorBorder = lipgloss.Color("#3F4451")
)

// Component styles
var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true).
			PaddingLeft(1)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	PanelTitleStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta).
			Bold(true)

	TabActiveStyle = lipgloss.NewStyle().
			Foreground(ColorBgPrimary).
			Background(ColorBlue).
			Bold(true).
			Padding(0, 1)

	TabInactiveStyle = lipgloss.NewStyle().
				Foreground(ColorFgMuted).
				Padding(0, 1)

	// Row styles
	SelectedRowStyle = lipgloss.NewStyle().
				Background(ColorBgHighlight).
				Foreground(ColorFgPrimary).
				Bold(true)

	RowStyle = lipgloss.NewStyle().
			Foreground(ColorFgPrimary)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorFgSecondary).
			Width(10)

	EditingStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(ColorGreen).
			PaddingLeft(1)

	SubmittingStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Italic(true)

	// Chat styles
	AssistantStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(ColorBlue).
			PaddingLeft(1).
			PaddingRight(1)

	SystemStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(ColorMagenta).
			PaddingLeft(1)

	SystemTextStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	UserInputStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(ColorGreen).
			PaddingLeft(1).
			MarginTop(1).
			MarginBottom(1)

	UserTextStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	AuthorStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted).
			Italic(true)

	// Status bar styles
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted).
			PaddingLeft(1).
			PaddingRight(1)

	StatusRunningStyle = lipgloss.NewStyle().
				Foreground(ColorGreen).
				Bold(true)

	StatusIdleStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	// Task item styles
	TaskPendingStyle = lipgloss.NewStyle().
				Foreground(ColorFgMuted)

	TaskInProgressStyle = lipgloss.NewStyle().
				Foreground(ColorYellow)

	TaskCompleteStyle = lipgloss.NewStyle().
				Foreground(ColorGreen)

	TaskBlockedStyle = lipgloss.NewStyle().
				Foreground(ColorRed)

	FocusStyle = lipgloss.NewStyle().
			Foreground(ColorOrange)

	// Input styles
	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	InputFocusedStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorGreen).
				Padding(0, 1)

	InputPromptStyle = lipgloss.NewStyle().
				Foreground(ColorGreen)

	// Help overlay styles
	HelpStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(1, 2)

	HelpTitleStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true)

	// Toast styles
	ToastSuccessStyle = lipgloss.NewStyle().
				Foreground(ColorBgPrimary).
				Background(ColorGreen).
				Padding(0, 1)

	ToastErrorStyle = lipgloss.NewStyle().
			Foreground(ColorBgPrimary).
			Background(ColorRed).
			Padding(0, 1)

	ToastInfoStyle = lipgloss.NewStyle().
			Foreground(ColorBgPrimary).
			Background(ColorBlue).
			Padding(0, 1)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)

	// Dimmed/info style for less important messages
	DimStyle = lipgloss.NewStyle().
			Foreground(ColorFgComment)
)

func taskStatusStyle(s model.TaskStatus) lipgloss.Style {
	switch s {
	case model.TaskStatusInProgress:
		return TaskInProgressStyle
	case model.TaskStatusDone:
		return TaskCompleteStyle
	case model.TaskStatusCancelled:
		return DimStyle
	default:
		return TaskPendingStyle
	}
}

func stepStatusStyle(s model.StepStatus) lipgloss.Style {
	switch s {
	case model.StepStatusInProgress:
		return TaskInProgressStyle
	case model.StepStatusDone:
		return TaskCompleteStyle
	case model.StepStatusBlocked:
		return TaskBlockedStyle
	case model.StepStatusLocked:
		return DimStyle
	default:
		return TaskPendingStyle
	}
}

func priorityStyle(p model.Priority) lipgloss.Style {
	switch p {
	case model.PriorityHigh:
		return ErrorStyle
	case model.PriorityMedium:
		return WarningStyle
	default:
		return DimStyle
	}
}
