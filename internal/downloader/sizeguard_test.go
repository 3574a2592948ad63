package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeGuardTripsOnDownloadedBytes(t *testing.T) {
	g := NewSizeGuard(1000)

	assert.NoError(t, g.Observe(ProgressEvent{Status: StatusDownloading, DownloadedBytes: 999, Filename: "v.mp4"}))
	assert.False(t, g.Exceeded())

	err := g.Observe(ProgressEvent{Status: StatusDownloading, DownloadedBytes: 1001})
	require.Error(t, err)
	assert.Equal(t, KindSizeExceeded, KindOf(err))
	assert.True(t, g.Exceeded())
	assert.Equal(t, "v.mp4", g.Filename())
}

func TestSizeGuardTripsOnProjectedTotal(t *testing.T) {
	g := NewSizeGuard(1000)

	err := g.Observe(ProgressEvent{Status: StatusDownloading, DownloadedBytes: 10, TotalBytes: 5000})
	require.Error(t, err)
	assert.Equal(t, KindSizeExceeded, KindOf(err))
}

func TestSizeGuardIgnoresNonDownloadingEvents(t *testing.T) {
	g := NewSizeGuard(1000)

	assert.NoError(t, g.Observe(ProgressEvent{Status: StatusExtracting, TotalBytes: 5000}))
	assert.NoError(t, g.Observe(ProgressEvent{Status: StatusUploading, DownloadedBytes: 9999}))
	assert.False(t, g.Exceeded())
}

func TestSizeGuardDisabledWithoutCeiling(t *testing.T) {
	g := NewSizeGuard(0)
	assert.NoError(t, g.Observe(ProgressEvent{Status: StatusDownloading, DownloadedBytes: 1 << 40}))
	assert.False(t, g.Exceeded())
}
