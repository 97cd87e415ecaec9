package videos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PlaylistName is the HLS master playlist written by TranscodeHLS.
const PlaylistName = "master.m3u8"

// FFmpeg wraps the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	Run         CommandRunner
}

// NewFFmpeg returns an FFmpeg using the supplied binaries, defaulting to PATH lookups.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, Run: defaultCommandRunner}
}

// ProbeResult describes the first video stream of a media file.
type ProbeResult struct {
	Width    int
	Height   int
	Duration float64
}

// Probe inspects the file at path with ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (ProbeResult, error) {
	out, err := f.run(ctx, f.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe: %w", err)
	}

	var payload struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return ProbeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(payload.Streams) == 0 {
		return ProbeResult{}, fmt.Errorf("%w: no video stream", ErrInvalidVideo)
	}

	duration, err := strconv.ParseFloat(payload.Format.Duration, 64)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: unreadable duration %q", ErrInvalidVideo, payload.Format.Duration)
	}

	return ProbeResult{
		Width:    payload.Streams[0].Width,
		Height:   payload.Streams[0].Height,
		Duration: duration,
	}, nil
}

// Validate probes path and applies the upload rules.
func (f *FFmpeg) Validate(ctx context.Context, path string) (ProbeResult, error) {
	probe, err := f.Probe(ctx, path)
	if err != nil {
		if errors.Is(err, ErrInvalidVideo) {
			return ProbeResult{}, err
		}
		return ProbeResult{}, fmt.Errorf("%w: %v", ErrInvalidVideo, err)
	}
	if err := CheckDimensions(probe.Width, probe.Height, probe.Duration); err != nil {
		return ProbeResult{}, err
	}
	return probe, nil
}

// Clip copies the [start, end] section of in to out without re-encoding.
func (f *FFmpeg) Clip(ctx context.Context, in, out string, start, end float64) error {
	_, err := f.run(ctx, f.FFmpegPath,
		"-y", "-i", in,
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-c:v", "copy", "-c:a", "copy",
		out,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg clip: %w", err)
	}
	return nil
}

// TranscodeHLS converts in to a VOD HLS rendition inside outDir and returns the
// playlist path.
func (f *FFmpeg) TranscodeHLS(ctx context.Context, in, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create hls dir: %w", err)
	}
	playlist := filepath.Join(outDir, PlaylistName)
	_, err := f.run(ctx, f.FFmpegPath,
		"-y", "-i", in,
		"-c:v", "libx264", "-preset", "veryfast", "-profile:v", "main",
		"-c:a", "aac", "-b:a", "128k",
		"-hls_time", "6",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outDir, "segment_%03d.ts"),
		"-f", "hls",
		playlist,
	)
	if err != nil {
		return "", fmt.Errorf("ffmpeg hls: %w", err)
	}
	return playlist, nil
}

// Thumbnail grabs the frame one second into in and writes it to out.
func (f *FFmpeg) Thumbnail(ctx context.Context, in, out string) error {
	if _, err := f.run(ctx, f.FFmpegPath, "-y", "-i", in, "-ss", "00:00:01", "-vframes", "1", out); err != nil {
		return fmt.Errorf("ffmpeg thumbnail: %w", err)
	}
	return nil
}

func (f *FFmpeg) run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	run := f.Run
	if run == nil {
		run = defaultCommandRunner
	}
	return run(ctx, binary, args...)
}
