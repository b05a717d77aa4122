// Package audio wraps the yt-dlp binary that searches, downloads and transcodes
// tracks for voice playback.
package audio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edgard/lunabot/internal/config"
)

// ErrNoResults is returned when a search query matches nothing.
var ErrNoResults = errors.New("no results found")

// Track is a downloaded, transcoded audio file. The caller owns Path.
type Track struct {
	Path  string
	Title string
}

// Tool searches for and downloads a single track. It blocks for the whole download.
type Tool interface {
	SearchAndDownload(ctx context.Context, query string) (*Track, error)
}

// YTDLP runs the yt-dlp binary.
type YTDLP struct {
	cfg config.AudioConfig
	dir string
	log *slog.Logger
}

var _ Tool = (*YTDLP)(nil)

// NewYTDLP creates a tool writing downloads into dir.
func NewYTDLP(cfg config.AudioConfig, dir string, log *slog.Logger) *YTDLP {
	if log == nil {
		log = slog.Default()
	}
	return &YTDLP{cfg: cfg, dir: dir, log: log.With("component", "ytdlp")}
}

// SearchAndDownload resolves query (a URL, or search text for the first match),
// downloads it and extracts audio. Partial files are removed on failure.
func (y *YTDLP) SearchAndDownload(ctx context.Context, query string) (*Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	ctx, cancel := context.WithTimeout(ctx, y.cfg.ProcessTimeout)
	defer cancel()

	base := uuid.NewString()
	args := y.args(query, base)
	startTime := time.Now()
	y.log.InfoContext(ctx, "Downloading audio", "query", query)

	cmd := exec.CommandContext(ctx, y.cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		y.removePartials(base)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("download timed out after %s: %w", y.cfg.ProcessTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, lastLine(stderr.String()))
	}

	track := parseOutput(stdout.String())
	if track.Path == "" {
		y.removePartials(base)
		return nil, fmt.Errorf("%w: %s", ErrNoResults, query)
	}
	if _, err := os.Stat(track.Path); err != nil {
		y.removePartials(base)
		return nil, fmt.Errorf("downloaded file missing: %w", err)
	}
	if track.Title == "" {
		track.Title = query
	}

	y.log.InfoContext(ctx, "Audio downloaded", "title", track.Title, "path", track.Path, "duration", time.Since(startTime))
	return track, nil
}

func (y *YTDLP) args(query, base string) []string {
	target := query
	if !isURL(query) {
		target = "ytsearch1:" + query
	}
	return []string{
		"--no-playlist",
		"--no-mtime",
		"--no-progress",
		"--quiet",
		"--format", y.cfg.Format,
		"--extract-audio",
		"--audio-format", y.cfg.AudioFormat,
		"--audio-quality", y.cfg.Quality,
		"--socket-timeout", strconv.Itoa(int(y.cfg.SocketTimeout.Seconds())),
		"--retries", strconv.Itoa(y.cfg.Retries),
		"--http-chunk-size", y.cfg.ChunkSize,
		"--output", filepath.Join(y.dir, base+".%(ext)s"),
		"--print", "before_dl:title:%(title)s",
		"--print", "after_move:path:%(filepath)s",
		"--no-simulate",
		target,
	}
}

func (y *YTDLP) removePartials(base string) {
	matches, err := filepath.Glob(filepath.Join(y.dir, base+".*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			y.log.Warn("Failed to remove partial download", "path", m, "error", err)
		}
	}
}

func parseOutput(out string) *Track {
	track := &Track{}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "title:"):
			track.Title = strings.TrimSpace(strings.TrimPrefix(line, "title:"))
		case strings.HasPrefix(line, "path:"):
			track.Path = strings.TrimSpace(strings.TrimPrefix(line, "path:"))
		}
	}
	return track
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
