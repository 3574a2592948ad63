package downloader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ytdlpProgressRegex = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%\s+of\s+~?\s*(\S+)\s+at\s+(\S+)\s+ETA\s+(\S+)`)
	ytdlpDestRegex     = regexp.MustCompile(`\[download\] Destination: (.+)`)
	ytdlpMergeRegex    = regexp.MustCompile(`\[Merger\] Merging formats into "(.+)"`)
	ytdlpAudioRegex    = regexp.MustCompile(`\[ExtractAudio\] Destination: (.+)`)
	ytdlpAlreadyRegex  = regexp.MustCompile(`\[download\] (.+) has already been downloaded`)

	youtubeIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

const ytdlpUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// YTDLP drives the yt-dlp binary. Download blocks until the process exits
// and feeds parsed progress lines into the hook; it is safe to run from
// multiple pool workers at once since every call spawns its own process.
type YTDLP struct {
	binary string
}

func NewYTDLP() *YTDLP {
	return &YTDLP{binary: "yt-dlp"}
}

func (y *YTDLP) Probe(sourceID string, opts ExtractOptions) (*MediaInfo, error) {
	args := []string{
		"--dump-json",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		"--socket-timeout", "30",
		"--user-agent", ytdlpUserAgent,
	}
	if opts.CookieFile != "" {
		args = append(args, "--cookies", opts.CookieFile)
	}
	args = append(args, sourceURL(sourceID))

	cmd := exec.Command(y.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp probe failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	var meta struct {
		ID       string  `json:"id"`
		Title    string  `json:"title"`
		Uploader string  `json:"uploader"`
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return nil, fmt.Errorf("decode probe json failed: %w", err)
	}

	return &MediaInfo{
		ID:       meta.ID,
		Title:    meta.Title,
		Uploader: meta.Uploader,
		Duration: time.Duration(meta.Duration) * time.Second,
	}, nil
}

func (y *YTDLP) Download(sourceID string, opts ExtractOptions, hook ProgressFunc) (*ExtractResult, error) {
	args := []string{
		"-o", filepath.Join(opts.OutputDir, "%(id)s.%(ext)s"),
		"--newline",
		"--progress",
		"--no-playlist",
		"--no-warnings",
		"--socket-timeout", "30",
		"--retries", "2",
		"--fragment-retries", "5",
		"--user-agent", ytdlpUserAgent,
	}
	args = append(args, formatArgs(opts.FormatSelector)...)
	if opts.CookieFile != "" {
		args = append(args, "--cookies", opts.CookieFile)
	}
	args = append(args, sourceURL(sourceID))

	cmd := exec.Command(y.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe failed: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	res := &ExtractResult{ID: extractVideoID(sourceID)}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		y.consumeLine(scanner.Text(), res, hook)
	}

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	if len(res.RequestedPaths) > 0 {
		res.Ext = strings.TrimPrefix(filepath.Ext(res.RequestedPaths[len(res.RequestedPaths)-1]), ".")
	}
	return res, nil
}

// consumeLine turns one line of yt-dlp output into either a progress event
// or a recorded output path. Post-processing destinations (merge, audio
// extraction) are prepended since they supersede the raw download paths.
func (y *YTDLP) consumeLine(line string, res *ExtractResult, hook ProgressFunc) {
	if m := ytdlpProgressRegex.FindStringSubmatch(line); len(m) == 5 {
		percent, _ := strconv.ParseFloat(m[1], 64)
		total := parseByteSize(m[2])
		ev := ProgressEvent{
			Status:     StatusDownloading,
			TotalBytes: total,
			SpeedBps:   parseByteRate(m[3]),
			ETASeconds: parseClock(m[4]),
		}
		if total > 0 {
			ev.DownloadedBytes = int64(percent / 100 * float64(total))
		}
		if len(res.RequestedPaths) > 0 {
			ev.Filename = res.RequestedPaths[0]
		}
		hook(ev)
		return
	}

	for _, re := range []*regexp.Regexp{ytdlpMergeRegex, ytdlpAudioRegex} {
		if m := re.FindStringSubmatch(line); len(m) == 2 {
			res.RequestedPaths = append([]string{m[1]}, res.RequestedPaths...)
			return
		}
	}
	for _, re := range []*regexp.Regexp{ytdlpDestRegex, ytdlpAlreadyRegex} {
		if m := re.FindStringSubmatch(line); len(m) == 2 {
			res.RequestedPaths = append(res.RequestedPaths, m[1])
			return
		}
	}
}

func formatArgs(selector string) []string {
	switch selector {
	case FormatBestAudio:
		return []string{"-f", "bestaudio", "--extract-audio", "--audio-format", "flac"}
	case FormatBestVideo:
		return []string{"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best", "--merge-output-format", "mp4"}
	case "", FormatBest:
		return []string{"-f", "best"}
	default:
		return []string{"-f", selector}
	}
}

// sourceURL accepts either a bare YouTube video id or a full URL.
func sourceURL(sourceID string) string {
	if youtubeIDRegex.MatchString(sourceID) {
		return "https://www.youtube.com/watch?v=" + sourceID
	}
	return sourceID
}

func extractVideoID(sourceID string) string {
	if youtubeIDRegex.MatchString(sourceID) {
		return sourceID
	}
	return ""
}

// parseByteSize converts yt-dlp's human sizes ("12.34MiB") into bytes.
func parseByteSize(s string) int64 {
	multipliers := []struct {
		suffix string
		factor float64
	}{
		{"KiB", 1 << 10},
		{"MiB", 1 << 20},
		{"GiB", 1 << 30},
		{"TiB", 1 << 40},
		{"B", 1},
	}
	for _, m := range multipliers {
		if strings.HasSuffix(s, m.suffix) {
			n, err := strconv.ParseFloat(strings.TrimSuffix(s, m.suffix), 64)
			if err != nil {
				return 0
			}
			return int64(n * m.factor)
		}
	}
	return 0
}

func parseByteRate(s string) float64 {
	if !strings.HasSuffix(s, "/s") {
		return 0
	}
	return float64(parseByteSize(strings.TrimSuffix(s, "/s")))
}

// parseClock parses "SS", "MM:SS" or "HH:MM:SS" into seconds.
func parseClock(s string) int64 {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}
	var total int64
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}
