package videos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mypov/backend/internal/logging"
)

// AssetStorage persists processed media and returns public URLs.
type AssetStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	SaveDir(ctx context.Context, prefix, dir string) (string, error)
}

// StatusUpdater records the outcome of processing on the video record.
type StatusUpdater interface {
	MarkReady(ctx context.Context, id, videoURL, thumbnailURL string, duration int) error
	MarkFailed(ctx context.Context, id string) error
}

// Downloader fetches a remote video into a local directory.
type Downloader interface {
	Download(ctx context.Context, url, destDir string, start, end float64) (string, error)
}

// MediaTool is the subset of FFmpeg the processor relies on.
type MediaTool interface {
	Probe(ctx context.Context, path string) (ProbeResult, error)
	Clip(ctx context.Context, in, out string, start, end float64) error
	TranscodeHLS(ctx context.Context, in, outDir string) (string, error)
	Thumbnail(ctx context.Context, in, out string) error
}

// Job describes one video to process. Uploads set SourcePath, imports set
// SourceURL. WorkDir is owned by the job and removed once it finishes.
type Job struct {
	VideoID       string
	WorkDir       string
	SourcePath    string
	ThumbnailPath string
	SourceURL     string
	Start         float64
	End           float64
}

// ProcessorConfig controls the concurrency characteristics of the processor.
type ProcessorConfig struct {
	QueueSize  int
	Workers    int
	TempDir    string
	JobTimeout time.Duration
}

// Processor transcodes videos to HLS in the background and publishes the
// results to object storage. Jobs are not retried.
type Processor struct {
	downloader Downloader
	media      MediaTool
	storage    AssetStorage
	updater    StatusUpdater
	logger     *slog.Logger
	tempDir    string
	timeout    time.Duration

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewProcessor starts cfg.Workers goroutines consuming queued jobs.
func NewProcessor(downloader Downloader, media MediaTool, storage AssetStorage, updater StatusUpdater, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Processor{
		downloader: downloader,
		media:      media,
		storage:    storage,
		updater:    updater,
		logger:     logger,
		tempDir:    cfg.TempDir,
		timeout:    cfg.JobTimeout,
		jobs:       make(chan Job, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}

	return p
}

// NewWorkDir creates a scratch directory for a job on videoID.
func (p *Processor) NewWorkDir(videoID string) (string, error) {
	dir, err := os.MkdirTemp(p.tempDir, "mypov-"+videoID+"-")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return dir, nil
}

// Enqueue schedules job. It returns once the job is queued, not when it completes.
func (p *Processor) Enqueue(ctx context.Context, job Job) error {
	if strings.TrimSpace(job.VideoID) == "" {
		return errors.New("video processor: job without video id")
	}
	if job.SourcePath == "" && job.SourceURL == "" {
		return errors.New("video processor: job without source")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrProcessorClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrProcessorClosed
	case p.jobs <- job:
		return nil
	}
}

// Shutdown stops accepting jobs and waits for in-flight work to finish.
// Jobs still queued when Shutdown is called are dropped.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.once.Do(p.cancel)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (p *Processor) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.jobs:
			p.handleJob(job)
		}
	}
}

func (p *Processor) handleJob(job Job) {
	if job.WorkDir != "" {
		defer func() {
			if err := os.RemoveAll(job.WorkDir); err != nil {
				p.logger.Warn("remove work dir", "videoId", job.VideoID, "dir", job.WorkDir, "error", err)
			}
		}()
	}

	if p.media == nil || p.storage == nil || p.updater == nil {
		p.logger.Error("video processor missing dependencies", "hasMedia", p.media != nil, "hasStorage", p.storage != nil, "hasUpdater", p.updater != nil)
		if p.updater != nil {
			p.recordFailure(job.VideoID)
		}
		return
	}

	ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), p.logger), p.timeout)
	defer cancel()
	ctx = logging.With(ctx, "videoId", job.VideoID)

	ctx, span := logging.StartSpan(ctx, "video.process")
	defer span.End()

	videoURL, thumbnailURL, duration, err := p.process(ctx, job)
	if err != nil {
		span.RecordError(err)
		p.recordFailure(job.VideoID)
		return
	}

	if err := p.recordSuccess(job.VideoID, videoURL, thumbnailURL, duration); err != nil {
		span.RecordError(fmt.Errorf("mark ready: %w", err))
		p.recordFailure(job.VideoID)
	}
}

func (p *Processor) process(ctx context.Context, job Job) (string, string, int, error) {
	workDir := job.WorkDir
	if workDir == "" {
		dir, err := p.NewWorkDir(job.VideoID)
		if err != nil {
			return "", "", 0, err
		}
		defer os.RemoveAll(dir)
		workDir = dir
	}

	source := job.SourcePath
	if job.SourceURL != "" {
		if p.downloader == nil {
			return "", "", 0, ErrProviderUnavailable
		}
		downloaded, err := p.downloader.Download(ctx, job.SourceURL, workDir, job.Start, job.End)
		if err != nil {
			return "", "", 0, err
		}
		source = downloaded
	}

	probe, err := p.media.Probe(ctx, source)
	if err != nil {
		return "", "", 0, err
	}

	duration := probe.Duration
	if duration > MaxDurationSeconds {
		clipped := filepath.Join(workDir, "clip"+filepath.Ext(source))
		if err := p.media.Clip(ctx, source, clipped, 0, MaxDurationSeconds); err != nil {
			return "", "", 0, err
		}
		source, duration = clipped, MaxDurationSeconds
	}

	playlist, err := p.media.TranscodeHLS(ctx, source, filepath.Join(workDir, "hls"))
	if err != nil {
		return "", "", 0, err
	}

	prefix := path.Join("videos", job.VideoID)
	hlsURL, err := p.storage.SaveDir(ctx, path.Join(prefix, "hls"), filepath.Dir(playlist))
	if err != nil {
		return "", "", 0, fmt.Errorf("upload hls: %w", err)
	}
	logging.FromContext(ctx).Info("hls uploaded", "url", hlsURL)

	thumbnail := job.ThumbnailPath
	if thumbnail == "" {
		thumbnail = filepath.Join(workDir, "thumbnail.jpg")
		if err := p.media.Thumbnail(ctx, source, thumbnail); err != nil {
			return "", "", 0, err
		}
	}
	thumbnailURL, err := p.upload(ctx, path.Join(prefix, "thumbnail"+strings.ToLower(filepath.Ext(thumbnail))), thumbnail)
	if err != nil {
		return "", "", 0, fmt.Errorf("upload thumbnail: %w", err)
	}

	return strings.TrimSuffix(hlsURL, "/") + "/" + filepath.Base(playlist), thumbnailURL, int(math.Round(duration)), nil
}

func (p *Processor) upload(ctx context.Context, key, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return p.storage.Save(ctx, key, f)
}

func (p *Processor) recordFailure(videoID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.updater.MarkFailed(ctx, videoID); err != nil {
		p.logger.Error("record processing failure", "videoId", videoID, "error", err)
	}
}

func (p *Processor) recordSuccess(videoID, videoURL, thumbnailURL string, duration int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return p.updater.MarkReady(ctx, videoID, videoURL, thumbnailURL, duration)
}
