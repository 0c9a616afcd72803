package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gregriff/lanmic/internal/audio"
	"github.com/gregriff/lanmic/internal/dal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintRuns(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.Local)
	runs := []dal.Run{
		{ID: "a", Listen: ":48750", JitterMode: "stable", StartedAt: start, EndedAt: start.Add(90 * time.Second), Samples: 90, AvgLoss: 1.5, MaxJitter: 6, MaxDelayMs: 240},
		{ID: "b", Listen: ":48750", JitterMode: "low-latency", StartedAt: start.Add(time.Hour)},
	}

	var out bytes.Buffer
	require.NoError(t, printRuns(&out, runs))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "1m30s")
	assert.Contains(t, lines[1], "1.5")
	assert.Contains(t, lines[2], " - ")
}

func TestPrintDevices(t *testing.T) {
	var out bytes.Buffer
	printDevices(&out, "Capture", []audio.Device{{Name: "USB Mic", Default: true}, {Name: "Line In"}})
	printDevices(&out, "Playback", nil)
	assert.Equal(t, "Capture devices:\n* USB Mic\n  Line In\nPlayback devices:\n  (none)\n", out.String())
}
