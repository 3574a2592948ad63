package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512B", 512},
		{"1.00KiB", 1024},
		{"12.34MiB", 12939427}, // 12.34 * 1<<20, truncated
		{"1.50GiB", 1610612736},
		{"N/A", 0},
		{"", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseByteSize(tt.in), "input %q", tt.in)
	}
}

func TestParseByteRate(t *testing.T) {
	assert.Equal(t, float64(2<<20), parseByteRate("2.00MiB/s"))
	assert.Zero(t, parseByteRate("Unknown"))
}

func TestParseClock(t *testing.T) {
	assert.Equal(t, int64(42), parseClock("42"))
	assert.Equal(t, int64(125), parseClock("02:05"))
	assert.Equal(t, int64(3725), parseClock("01:02:05"))
	assert.Zero(t, parseClock("--:--"))
}

func TestConsumeLineProgress(t *testing.T) {
	y := NewYTDLP()
	res := &ExtractResult{}

	var got []ProgressEvent
	hook := func(ev ProgressEvent) { got = append(got, ev) }

	y.consumeLine("[download] Destination: /tmp/dQw4w9WgXcQ.f137.mp4", res, hook)
	y.consumeLine("[download]  42.5% of ~ 10.00MiB at 2.00MiB/s ETA 00:12", res, hook)

	require.Len(t, got, 1)
	ev := got[0]
	assert.Equal(t, StatusDownloading, ev.Status)
	assert.Equal(t, int64(10<<20), ev.TotalBytes)
	assert.Equal(t, int64(float64(10<<20)*0.425), ev.DownloadedBytes)
	assert.Equal(t, float64(2<<20), ev.SpeedBps)
	assert.Equal(t, int64(12), ev.ETASeconds)
	assert.Equal(t, "/tmp/dQw4w9WgXcQ.f137.mp4", ev.Filename)
}

func TestConsumeLineCollectsOutputPaths(t *testing.T) {
	y := NewYTDLP()
	res := &ExtractResult{}
	hook := func(ProgressEvent) {}

	y.consumeLine("[download] Destination: /tmp/abc.f137.mp4", res, hook)
	y.consumeLine("[download] Destination: /tmp/abc.f140.m4a", res, hook)
	y.consumeLine(`[Merger] Merging formats into "/tmp/abc.mp4"`, res, hook)

	// The merged file outranks the per-format intermediates.
	require.Equal(t, []string{"/tmp/abc.mp4", "/tmp/abc.f137.mp4", "/tmp/abc.f140.m4a"}, res.RequestedPaths)
}

func TestConsumeLineExtractAudioDestination(t *testing.T) {
	y := NewYTDLP()
	res := &ExtractResult{}
	hook := func(ProgressEvent) {}

	y.consumeLine("[download] Destination: /tmp/abc.webm", res, hook)
	y.consumeLine("[ExtractAudio] Destination: /tmp/abc.flac", res, hook)

	require.Equal(t, []string{"/tmp/abc.flac", "/tmp/abc.webm"}, res.RequestedPaths)
}

func TestConsumeLineAlreadyDownloaded(t *testing.T) {
	y := NewYTDLP()
	res := &ExtractResult{}
	hook := func(ProgressEvent) {}

	y.consumeLine("[download] /tmp/abc.mp4 has already been downloaded", res, hook)
	require.Equal(t, []string{"/tmp/abc.mp4"}, res.RequestedPaths)
}

func TestFormatArgs(t *testing.T) {
	assert.Contains(t, formatArgs(FormatBestAudio), "--extract-audio")
	assert.Contains(t, formatArgs(FormatBestVideo), "--merge-output-format")
	assert.Equal(t, []string{"-f", "best"}, formatArgs(""))
	assert.Equal(t, []string{"-f", "137+140"}, formatArgs("137+140"))
}

func TestSourceURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", sourceURL("dQw4w9WgXcQ"))
	assert.Equal(t, "https://example.com/v/1", sourceURL("https://example.com/v/1"))
}
