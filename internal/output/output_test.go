package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("🔍", "Checking dictionary...")

	// Then: output contains icon and message
	output := buf.String()
	assert.Contains(t, output, "🔍")
	assert.Contains(t, output, "Checking dictionary...")
}

func TestWriter_Success_PrintsCheckmark(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a success message
	w.Success("Import complete!")

	// Then: output contains checkmark and message
	output := buf.String()
	assert.Contains(t, output, "✅")
	assert.Contains(t, output, "Import complete!")
}

func TestWriter_Warning_PrintsWarningIcon(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a warning message
	w.Warning("Geocoder not configured")

	// Then: output contains warning icon and message
	output := buf.String()
	assert.Contains(t, output, "⚠️")
	assert.Contains(t, output, "Geocoder not configured")
}

func TestWriter_Error_PrintsErrorIcon(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing an error message
	w.Error("Failed to connect")

	// Then: output contains error icon and message
	output := buf.String()
	assert.Contains(t, output, "❌")
	assert.Contains(t, output, "Failed to connect")
}

func TestWriter_Code_PrintsCodeBlock(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a code block
	code := `{"key": "value"}`
	w.Code(code)

	// Then: output contains the code
	output := buf.String()
	assert.Contains(t, output, `{"key": "value"}`)
}

func TestWriter_Progress_NonTTYPrintsOnlyFinalState(t *testing.T) {
	// Given: a writer with a buffer (not a terminal)
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing intermediate progress
	w.Progress(50, 100, "Importing addresses")

	// Then: nothing is drawn
	assert.Empty(t, buf.String())

	// When: progress completes
	w.Progress(100, 100, "Importing addresses")

	// Then: output contains the finished bar and message
	output := buf.String()
	assert.Contains(t, output, "100%")
	assert.Contains(t, output, "Importing addresses")
	assert.True(t, strings.HasSuffix(output, "\n"))
}

func TestWriter_Progress_ZeroTotal_NoOutput(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing progress with zero total
	w.Progress(0, 0, "Processing")

	// Then: no crash, graceful handling
	// (may or may not produce output, just shouldn't crash)
	assert.NotPanics(t, func() {
		w.Progress(0, 0, "Processing")
	})
}

func TestWriter_Statusf_FormatsMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a formatted status message
	w.Statusf("📂", "Loaded %d entries from %s", 42, "/path/to/dictionary.yaml")

	// Then: output contains formatted message
	output := buf.String()
	assert.Contains(t, output, "📂")
	assert.Contains(t, output, "Loaded 42 entries from /path/to/dictionary.yaml")
}

func TestProgressBar_Render(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		total    int
		width    int
		wantFull int // number of filled characters
	}{
		{
			name:     "0 percent",
			current:  0,
			total:    100,
			width:    10,
			wantFull: 0,
		},
		{
			name:     "50 percent",
			current:  50,
			total:    100,
			width:    10,
			wantFull: 5,
		},
		{
			name:     "100 percent",
			current:  100,
			total:    100,
			width:    10,
			wantFull: 10,
		},
		{
			name:     "25 percent",
			current:  25,
			total:    100,
			width:    20,
			wantFull: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := renderProgressBar(tt.current, tt.total, tt.width)

			// Count filled characters (█)
			filled := strings.Count(bar, "█")
			assert.Equal(t, tt.wantFull, filled)

			// Total width should be correct
			assert.Equal(t, tt.width, len([]rune(bar)))
		})
	}
}

func TestWriter_Newline_PrintsEmptyLine(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a newline
	w.Newline()

	// Then: output is just a newline
	assert.Equal(t, "\n", buf.String())
}

func TestNew_NoColorForNonTTY(t *testing.T) {
	// Given/When: creating a writer over a buffer
	w := New(&bytes.Buffer{})

	// Then: color is off
	assert.False(t, w.useColor)
}

func TestIsTTY_NonFile(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestWriter_Outcome(t *testing.T) {
	// Given: a plain writer
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	// When: printing a resolved and a failed item
	w.Outcome("ул. Ленина, д. 5, кв 9", "resolved", "stored: г Москва, ул Ленина, д 5")
	w.Outcome("nowhere", "NOT_FOUND", "")

	// Then: labels are padded and details indented
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"resolved        ул. Ленина, д. 5, кв 9",
		"                stored: г Москва, ул Ленина, д 5",
		"NOT_FOUND       nowhere",
	}, lines)
}

func TestWriter_Outcome_Colored(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, true)

	w.Outcome("x", "PROVIDER_ERROR", "")

	assert.Contains(t, buf.String(), colorRed+"PROVIDER_ERROR")
	assert.Contains(t, buf.String(), colorReset)
}

func TestWriter_KeyValue(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).KeyValue("strategy", "per-item")

	assert.Equal(t, "  strategy:      per-item\n", buf.String())
}
