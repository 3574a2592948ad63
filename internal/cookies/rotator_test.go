package cookies

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCookie(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validCookieLine = ".youtube.com\tTRUE\t/\tTRUE\t1999999999\tSID\tabc123\n"

func TestGetReturnsFalseWithoutCookies(t *testing.T) {
	r := NewRotator(t.TempDir(), time.Minute)

	_, ok := r.Get()
	assert.False(t, ok)
}

func TestCooldownRespectedWhileOthersEligible(t *testing.T) {
	dir := t.TempDir()
	writeCookie(t, dir, "a.txt", validCookieLine)
	writeCookie(t, dir, "b.txt", validCookieLine)

	r := NewRotator(dir, time.Hour)

	first, ok := r.Get()
	require.True(t, ok)

	// The other file is still eligible, so the same one must not come back.
	second, ok := r.Get()
	require.True(t, ok)
	assert.NotEqual(t, first, second)
}

func TestAllInCooldownFallsBackToLeastRecentlyUsed(t *testing.T) {
	dir := t.TempDir()
	writeCookie(t, dir, "a.txt", validCookieLine)
	writeCookie(t, dir, "b.txt", validCookieLine)

	r := NewRotator(dir, time.Hour)

	first, _ := r.Get()
	time.Sleep(5 * time.Millisecond)
	second, _ := r.Get()
	require.NotEqual(t, first, second)

	// Both are now cooling down; the oldest use wins.
	third, ok := r.Get()
	require.True(t, ok)
	assert.Equal(t, first, third)
}

func TestRefreshPicksUpNewFilesImmediately(t *testing.T) {
	dir := t.TempDir()
	writeCookie(t, dir, "a.txt", validCookieLine)

	r := NewRotator(dir, time.Hour)
	_, ok := r.Get()
	require.True(t, ok)

	added := writeCookie(t, dir, "b.txt", validCookieLine)
	assert.Equal(t, 2, r.Refresh())

	// The new file has no usage history and must be chosen over the one in
	// cooldown.
	got, ok := r.Get()
	require.True(t, ok)
	assert.Equal(t, added, got)
}

func TestRefreshExcludesEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	writeCookie(t, dir, "empty.txt", "")
	writeCookie(t, dir, "good.txt", validCookieLine)

	r := NewRotator(dir, time.Minute)
	assert.Equal(t, 1, r.Count())
}

func TestRepairNormalizesSpaceSeparatedLines(t *testing.T) {
	dir := t.TempDir()
	content := "# Netscape HTTP Cookie File\n" +
		".youtube.com TRUE / TRUE 1999999999 SID abc 123\n" +
		validCookieLine
	path := writeCookie(t, dir, "broken.txt", content)

	NewRotator(dir, time.Minute)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")

	assert.Equal(t, "# Netscape HTTP Cookie File", lines[0])
	assert.Equal(t, ".youtube.com\tTRUE\t/\tTRUE\t1999999999\tSID\tabc 123", lines[1])
	// Already tab-separated entries pass through untouched.
	assert.Equal(t, strings.TrimSuffix(validCookieLine, "\n"), lines[2])
}

func TestConcurrentGet(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeCookie(t, dir, name, validCookieLine)
	}

	r := NewRotator(dir, time.Millisecond)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				_, ok := r.Get()
				assert.True(t, ok)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
