// Package output provides consistent CLI output formatting with colors and progress indicators.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ANSI colors used for outcome labels.
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorDim    = "\033[2m"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New creates a new output Writer. Color is enabled only when out is a
// terminal and NO_COLOR is unset.
func New(out io.Writer) *Writer {
	return &Writer{
		out:      out,
		useColor: IsTTY(out) && !DetectNoColor(),
	}
}

// NewWithColor creates a Writer with color forced on or off.
func NewWithColor(out io.Writer, color bool) *Writer {
	return &Writer{out: out, useColor: color}
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.Status(icon, msg)
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Outcome prints one resolved or failed item: the item, a colored label and
// an optional detail line.
func (w *Writer) Outcome(item, label, detail string) {
	_, _ = fmt.Fprintf(w.out, "%s  %s\n", w.colorize(labelColor(label), padRight(label, 14)), item)
	if detail != "" {
		_, _ = fmt.Fprintf(w.out, "%s  %s\n", strings.Repeat(" ", 14), w.colorize(colorDim, detail))
	}
}

// KeyValue prints an aligned "key: value" line.
func (w *Writer) KeyValue(key string, value any) {
	_, _ = fmt.Fprintf(w.out, "  %-14s %v\n", key+":", value)
}

func labelColor(label string) string {
	switch label {
	case "resolved":
		return colorGreen
	case "NOT_FOUND", "NO_PROVIDERS":
		return colorYellow
	default:
		return colorRed
	}
}

func (w *Writer) colorize(color, s string) string {
	if !w.useColor {
		return s
	}
	return color + s + colorReset
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

// Code prints a code block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress prints a progress bar with message. It draws in place only on a
// terminal; elsewhere only the final state is printed.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}
	if !IsTTY(w.out) && current < total {
		return
	}

	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)

	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)

	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))

	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
