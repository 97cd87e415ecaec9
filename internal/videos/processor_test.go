package videos

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type assetStorageStub struct {
	mu      sync.Mutex
	saved   map[string][]byte
	dirs    map[string][]string
	saveErr error
}

func (s *assetStorageStub) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[name] = data
	return "https://cdn.example.com/" + name, nil
}

func (s *assetStorageStub) SaveDir(ctx context.Context, prefix, dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirs == nil {
		s.dirs = make(map[string][]string)
	}
	for _, entry := range entries {
		s.dirs[prefix] = append(s.dirs[prefix], entry.Name())
	}
	return "https://cdn.example.com/" + prefix, nil
}

func (s *assetStorageStub) snapshot() (map[string][]byte, map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := make(map[string][]byte, len(s.saved))
	for k, v := range s.saved {
		saved[k] = v
	}
	dirs := make(map[string][]string, len(s.dirs))
	for k, v := range s.dirs {
		dirs[k] = v
	}
	return saved, dirs
}

type readyCall struct {
	id, videoURL, thumbnailURL string
	duration                   int
}

type statusUpdaterStub struct {
	mu     sync.Mutex
	ready  []readyCall
	failed []string
}

func (s *statusUpdaterStub) MarkReady(ctx context.Context, id, videoURL, thumbnailURL string, duration int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = append(s.ready, readyCall{id: id, videoURL: videoURL, thumbnailURL: thumbnailURL, duration: duration})
	return nil
}

func (s *statusUpdaterStub) MarkFailed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	return nil
}

func (s *statusUpdaterStub) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready), len(s.failed)
}

type mediaStub struct {
	mu           sync.Mutex
	probe        ProbeResult
	probeErr     error
	transcodeErr error
	clips        [][2]float64
	thumbnails   int
}

func (m *mediaStub) Probe(ctx context.Context, path string) (ProbeResult, error) {
	return m.probe, m.probeErr
}

func (m *mediaStub) Clip(ctx context.Context, in, out string, start, end float64) error {
	m.mu.Lock()
	m.clips = append(m.clips, [2]float64{start, end})
	m.mu.Unlock()
	return os.WriteFile(out, []byte("clip"), 0o600)
}

func (m *mediaStub) TranscodeHLS(ctx context.Context, in, outDir string) (string, error) {
	if m.transcodeErr != nil {
		return "", m.transcodeErr
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	for _, name := range []string{PlaylistName, "segment_000.ts"} {
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(name), 0o600); err != nil {
			return "", err
		}
	}
	return filepath.Join(outDir, PlaylistName), nil
}

func (m *mediaStub) Thumbnail(ctx context.Context, in, out string) error {
	m.mu.Lock()
	m.thumbnails++
	m.mu.Unlock()
	return os.WriteFile(out, []byte("jpeg"), 0o600)
}

type downloaderStub struct {
	calls [][2]float64
}

func (d *downloaderStub) Download(ctx context.Context, url, destDir string, start, end float64) (string, error) {
	d.calls = append(d.calls, [2]float64{start, end})
	file := filepath.Join(destDir, "source.mp4")
	return file, os.WriteFile(file, []byte("video"), 0o600)
}

func newTestProcessor(t *testing.T, downloader Downloader, media MediaTool, storage AssetStorage, updater StatusUpdater) *Processor {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewProcessor(downloader, media, storage, updater, ProcessorConfig{QueueSize: 1, Workers: 1, TempDir: t.TempDir()}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func TestProcessorUploadSuccess(t *testing.T) {
	storage := &assetStorageStub{}
	updater := &statusUpdaterStub{}
	media := &mediaStub{probe: ProbeResult{Width: 1920, Height: 1080, Duration: 12.6}}
	p := newTestProcessor(t, nil, media, storage, updater)

	workDir, err := p.NewWorkDir("vid-1")
	if err != nil {
		t.Fatalf("work dir: %v", err)
	}
	source := filepath.Join(workDir, "upload.mp4")
	thumb := filepath.Join(workDir, "cover.PNG")
	for _, f := range []string{source, thumb} {
		if err := os.WriteFile(f, []byte("data"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if err := p.Enqueue(context.Background(), Job{VideoID: "vid-1", WorkDir: workDir, SourcePath: source, ThumbnailPath: thumb}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForCondition(t, func() bool { ready, _ := updater.counts(); return ready > 0 }, time.Second)

	updater.mu.Lock()
	call := updater.ready[0]
	updater.mu.Unlock()
	if call.videoURL != "https://cdn.example.com/videos/vid-1/hls/master.m3u8" {
		t.Fatalf("unexpected video url %q", call.videoURL)
	}
	if call.thumbnailURL != "https://cdn.example.com/videos/vid-1/thumbnail.png" {
		t.Fatalf("unexpected thumbnail url %q", call.thumbnailURL)
	}
	if call.duration != 13 {
		t.Fatalf("expected rounded duration, got %d", call.duration)
	}

	_, dirs := storage.snapshot()
	if len(dirs["videos/vid-1/hls"]) != 2 {
		t.Fatalf("expected playlist and segment uploaded, got %v", dirs)
	}
	if media.thumbnails != 0 {
		t.Fatalf("expected uploaded thumbnail to be used")
	}

	waitForCondition(t, func() bool {
		_, err := os.Stat(workDir)
		return errors.Is(err, os.ErrNotExist)
	}, time.Second)
}

func TestProcessorImportClipsAndGeneratesThumbnail(t *testing.T) {
	storage := &assetStorageStub{}
	updater := &statusUpdaterStub{}
	media := &mediaStub{probe: ProbeResult{Width: 1280, Height: 720, Duration: 62}}
	downloader := &downloaderStub{}
	p := newTestProcessor(t, downloader, media, storage, updater)

	job := Job{VideoID: "vid-2", SourceURL: "https://youtube.com/watch?v=1", Start: 5, End: 65}
	if err := p.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForCondition(t, func() bool { ready, _ := updater.counts(); return ready > 0 }, time.Second)

	if len(downloader.calls) != 1 || downloader.calls[0] != [2]float64{5, 65} {
		t.Fatalf("unexpected download calls %v", downloader.calls)
	}
	media.mu.Lock()
	defer media.mu.Unlock()
	if len(media.clips) != 1 || media.clips[0] != [2]float64{0, MaxDurationSeconds} {
		t.Fatalf("expected overlong download to be trimmed, got %v", media.clips)
	}
	if media.thumbnails != 1 {
		t.Fatalf("expected generated thumbnail, got %d", media.thumbnails)
	}
	saved, _ := storage.snapshot()
	if _, ok := saved["videos/vid-2/thumbnail.jpg"]; !ok {
		t.Fatalf("expected generated thumbnail uploaded, got %v", saved)
	}
	updater.mu.Lock()
	defer updater.mu.Unlock()
	if updater.ready[0].duration != MaxDurationSeconds {
		t.Fatalf("unexpected duration %d", updater.ready[0].duration)
	}
}

func TestProcessorFailure(t *testing.T) {
	tests := []struct {
		name    string
		media   *mediaStub
		storage *assetStorageStub
		job     Job
	}{
		{
			name:    "transcode error",
			media:   &mediaStub{transcodeErr: errors.New("ffmpeg exited")},
			storage: &assetStorageStub{},
			job:     Job{VideoID: "vid-3", SourcePath: "missing.mp4"},
		},
		{
			name:    "storage error",
			media:   &mediaStub{probe: ProbeResult{Width: 2, Height: 1, Duration: 3}},
			storage: &assetStorageStub{saveErr: errors.New("s3 down")},
			job:     Job{VideoID: "vid-4", SourcePath: "in.mp4"},
		},
		{
			name:    "import without downloader",
			media:   &mediaStub{},
			storage: &assetStorageStub{},
			job:     Job{VideoID: "vid-5", SourceURL: "https://youtube.com/watch?v=2"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			updater := &statusUpdaterStub{}
			p := newTestProcessor(t, nil, tc.media, tc.storage, updater)

			if err := p.Enqueue(context.Background(), tc.job); err != nil {
				t.Fatalf("enqueue: %v", err)
			}

			waitForCondition(t, func() bool { _, failed := updater.counts(); return failed > 0 }, time.Second)
			if ready, _ := updater.counts(); ready != 0 {
				t.Fatalf("expected no ready calls on failure")
			}
		})
	}
}

func TestProcessorEnqueueValidationAndShutdown(t *testing.T) {
	p := newTestProcessor(t, nil, &mediaStub{}, &assetStorageStub{}, &statusUpdaterStub{})

	if err := p.Enqueue(context.Background(), Job{SourcePath: "in.mp4"}); err == nil {
		t.Fatal("expected error for missing video id")
	}
	if err := p.Enqueue(context.Background(), Job{VideoID: "vid"}); err == nil {
		t.Fatal("expected error for missing source")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}

	if err := p.Enqueue(context.Background(), Job{VideoID: "vid", SourcePath: "in.mp4"}); !errors.Is(err, ErrProcessorClosed) {
		t.Fatalf("expected ErrProcessorClosed, got %v", err)
	}
}

func TestProcessorShutdownWithPendingEnqueues(t *testing.T) {
	p := newTestProcessor(t, nil, &mediaStub{}, &assetStorageStub{}, &statusUpdaterStub{})

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < cap(errs); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Enqueue(context.Background(), Job{VideoID: "vid", SourcePath: "in.mp4"})
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil && !errors.Is(err, ErrProcessorClosed) {
			t.Fatalf("unexpected enqueue error %v", err)
		}
	}
}

func waitForCondition(t *testing.T, predicate func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if predicate() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
