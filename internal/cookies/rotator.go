// Package cookies manages the pool of Netscape cookie files presented to
// the extractor. Files are rotated under a cooldown so the same account is
// not hammered by consecutive requests.
package cookies

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/quickdl-bot/quickdl/pkg/logger"
)

type Rotator struct {
	dir      string
	cooldown time.Duration

	mu       sync.Mutex
	files    []string
	lastUsed map[string]time.Time
}

func NewRotator(dir string, cooldown time.Duration) *Rotator {
	r := &Rotator{
		dir:      dir,
		cooldown: cooldown,
		lastUsed: make(map[string]time.Time),
	}
	r.Refresh()
	return r
}

// Refresh rescans the cookie directory. Usage history for files that are
// still present is kept; newly discovered files start without history and
// are immediately eligible.
func (r *Rotator) Refresh() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanLocked()
	logger.Info("Cookie files refreshed", "count", len(r.files), "dir", r.dir)
	return len(r.files)
}

// Get hands out the next cookie file under the rotation policy: a random
// pick among files outside their cooldown window, falling back to the least
// recently used file when everything is cooling down. It returns false only
// when no usable cookie file exists at all.
func (r *Rotator) Get() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.files) == 0 {
		// One more scan in case files were dropped in since startup.
		r.scanLocked()
		if len(r.files) == 0 {
			logger.Warn("No cookie files available", "dir", r.dir)
			return "", false
		}
	}

	now := time.Now()

	var eligible []string
	for _, f := range r.files {
		if now.Sub(r.lastUsed[f]) >= r.cooldown {
			eligible = append(eligible, f)
		}
	}

	var chosen string
	if len(eligible) > 0 {
		chosen = eligible[rand.Intn(len(eligible))]
	} else {
		// All files in cooldown: reuse the one that rested longest.
		chosen = r.files[0]
		for _, f := range r.files[1:] {
			if r.lastUsed[f].Before(r.lastUsed[chosen]) {
				chosen = f
			}
		}
		logger.Debug("All cookies in cooldown, using least recently used", "file", filepath.Base(chosen))
	}

	r.lastUsed[chosen] = now
	logger.Debug("Using cookie file", "file", filepath.Base(chosen))
	return chosen, true
}

func (r *Rotator) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

func (r *Rotator) scanLocked() {
	r.files = r.files[:0]

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())

		if err := repairCookieFile(path); err != nil {
			logger.Error("Failed to repair cookie file", "file", path, "error", err)
			continue
		}

		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			continue
		}
		r.files = append(r.files, path)
	}

	// Drop history for files that disappeared.
	present := make(map[string]bool, len(r.files))
	for _, f := range r.files {
		present[f] = true
	}
	for f := range r.lastUsed {
		if !present[f] {
			delete(r.lastUsed, f)
		}
	}
}

// repairCookieFile rewrites whitespace-separated cookie entries with the tab
// separation the Netscape format requires. Comments and blank lines are kept
// as they are; lines with fewer than six fields are preserved untouched.
func repairCookieFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	changed := false

	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}
		if len(strings.Split(line, "\t")) == 7 {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 6 {
			logger.Warn("Invalid cookie line preserved", "file", path, "line", i+1)
			continue
		}

		value := ""
		if len(fields) > 6 {
			value = strings.Join(fields[6:], " ")
		}
		lines[i] = strings.Join(append(fields[:6], value), "\t")
		changed = true
	}

	if !changed {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cookies-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(strings.Join(lines, "\n")); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
