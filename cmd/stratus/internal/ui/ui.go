package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/stratus-lite/internal/domain"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Out receives every message. Machine-readable output goes to stdout, so
// this defaults to stderr.
var Out io.Writer = os.Stderr

// PrintHeader prints a section header
func PrintHeader(title string) {
	line := strings.Repeat("=", len(title)+4)
	fmt.Fprintf(Out, "\n%s%s%s\n", colorBold+colorBlue, line, colorReset)
	fmt.Fprintf(Out, "%s  %s  %s\n", colorBold+colorBlue, title, colorReset)
	fmt.Fprintf(Out, "%s%s%s\n\n", colorBold+colorBlue, line, colorReset)
}

// PrintStep prints a step in progress
func PrintStep(message string) {
	fmt.Fprintf(Out, "%s▶%s %s\n", colorCyan, colorReset, message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Fprintf(Out, "%s✓%s %s\n", colorGreen, colorReset, message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(Out, "%s✗%s %s\n", colorRed, colorReset, message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Fprintf(Out, "%s⚠%s %s\n", colorYellow, colorReset, message)
}

// PrintInfo prints an informational message
func PrintInfo(message string) {
	fmt.Fprintf(Out, "  %s\n", message)
}

// StatusColor returns the color used for a status.
func StatusColor(s domain.Status) string {
	switch s {
	case domain.StatusCompleted:
		return colorGreen
	case domain.StatusError:
		return colorRed
	case domain.StatusCanceled:
		return colorYellow
	case domain.StatusExecuting:
		return colorCyan
	default:
		return colorGray
	}
}

// PrintStatus prints a labelled, colored status line.
func PrintStatus(label string, s domain.Status) {
	fmt.Fprintf(Out, "  %-24s %s%s%s\n", label, StatusColor(s), s, colorReset)
}

// PrintUnit prints one distributed unit of a plan: the backend that runs
// it and the ops it carries.
func PrintUnit(index int, clientID string, ops []domain.OpDescriptor) {
	fmt.Fprintf(Out, "  %s%d.%s %s%s%s\n", colorBold, index, colorReset, colorCyan, clientID, colorReset)
	for _, op := range ops {
		line := fmt.Sprintf("%s %s", op.ID, op.Name)
		if len(op.Input) > 0 {
			line += fmt.Sprintf(" %s<- %s%s", colorGray, strings.Join(op.Input, ", "), colorReset)
		}
		if op.Result != "" {
			line += fmt.Sprintf(" %s-> %s%s", colorGray, op.Result, colorReset)
		}
		fmt.Fprintf(Out, "       %s\n", line)
	}
}
