package videos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// YTDLPProvider fetches metadata and media using the yt-dlp CLI tool.
type YTDLPProvider struct {
	Binary  string
	Args    []string
	Run     CommandRunner
	Timeout time.Duration
}

// NewYTDLPProvider constructs a Provider that shells out to yt-dlp.
func NewYTDLPProvider(binary string, timeout time.Duration) *YTDLPProvider {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &YTDLPProvider{
		Binary:  binary,
		Args:    []string{"--dump-single-json", "--no-warnings", "--no-playlist", "--skip-download"},
		Run:     defaultCommandRunner,
		Timeout: timeout,
	}
}

// Lookup executes yt-dlp for the provided URL and parses the JSON response.
func (p *YTDLPProvider) Lookup(ctx context.Context, url string) (Metadata, error) {
	if p == nil {
		return Metadata{}, ErrProviderUnavailable
	}
	if p.Run == nil {
		p.Run = defaultCommandRunner
	}

	execCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	args := append([]string{}, p.Args...)
	args = append(args, url)

	out, err := p.Run(execCtx, p.Binary, args...)
	if err != nil {
		return Metadata{}, fmt.Errorf("yt-dlp fetch: %w", err)
	}

	var payload struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Thumbnail   string  `json:"thumbnail"`
		Duration    float64 `json:"duration"`
		Width       int     `json:"width"`
		Height      int     `json:"height"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return Metadata{}, fmt.Errorf("parse yt-dlp response: %w", err)
	}

	if payload.Title == "" && payload.Description == "" && payload.Thumbnail == "" {
		return Metadata{}, errors.New("yt-dlp returned empty metadata")
	}

	return Metadata{
		Title:       payload.Title,
		Description: payload.Description,
		Thumbnail:   payload.Thumbnail,
		Duration:    payload.Duration,
		Width:       payload.Width,
		Height:      payload.Height,
	}, nil
}

// Download stores the video at url as an mp4 inside destDir and returns the
// file path. When end is positive only the [start, end] section is fetched.
// The caller's context bounds the download; Timeout only applies to Lookup.
func (p *YTDLPProvider) Download(ctx context.Context, url, destDir string, start, end float64) (string, error) {
	if p == nil {
		return "", ErrProviderUnavailable
	}
	if p.Run == nil {
		p.Run = defaultCommandRunner
	}

	args := []string{
		"--no-warnings", "--no-playlist",
		"-f", "mp4/bestvideo[ext=mp4]+bestaudio[ext=m4a]/best",
		"--merge-output-format", "mp4",
		"-o", filepath.Join(destDir, "source.%(ext)s"),
	}
	if end > 0 {
		args = append(args, "--download-sections", "*"+formatSeconds(start)+"-"+formatSeconds(end), "--force-keyframes-at-cuts")
	}
	args = append(args, url)

	if _, err := p.Run(ctx, p.Binary, args...); err != nil {
		return "", fmt.Errorf("yt-dlp download: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(destDir, "source.*"))
	if err != nil {
		return "", fmt.Errorf("locate download: %w", err)
	}
	for _, match := range matches {
		if !strings.HasSuffix(match, ".part") {
			return match, nil
		}
	}
	return "", errors.New("yt-dlp did not produce a video file")
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.Output()
}
