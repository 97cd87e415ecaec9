package videos

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestYTDLPProviderLookup(t *testing.T) {
	provider := NewYTDLPProvider("yt-dlp", time.Second)
	provider.Run = func(ctx context.Context, binary string, args ...string) ([]byte, error) {
		wantArgs := []string{"--dump-single-json", "--no-warnings", "--no-playlist", "--skip-download", "https://example.com"}
		if !slices.Equal(args, wantArgs) {
			t.Fatalf("unexpected args: got %v want %v", args, wantArgs)
		}
		return []byte(`{"title":"Example","description":"Desc","thumbnail":"thumb.jpg","duration":95.5,"width":1280,"height":720}`), nil
	}

	meta, err := provider.Lookup(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if meta.Title != "Example" || meta.Description != "Desc" || meta.Thumbnail != "thumb.jpg" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if meta.Duration != 95.5 || meta.Width != 1280 || meta.Height != 720 {
		t.Fatalf("unexpected dimensions: %+v", meta)
	}
}

func TestYTDLPProviderLookupEmptyPayload(t *testing.T) {
	provider := NewYTDLPProvider("yt-dlp", time.Second)
	provider.Run = func(ctx context.Context, binary string, args ...string) ([]byte, error) {
		return []byte(`{"title":"","description":"","thumbnail":""}`), nil
	}

	if _, err := provider.Lookup(context.Background(), "https://example.com"); err == nil {
		t.Fatal("expected error for empty metadata")
	}
}

func TestYTDLPProviderLookupRunnerError(t *testing.T) {
	provider := NewYTDLPProvider("", 0)
	if provider.Binary != "yt-dlp" || provider.Timeout != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", provider)
	}
	runErr := errors.New("exit status 1")
	provider.Run = func(context.Context, string, ...string) ([]byte, error) { return nil, runErr }

	if _, err := provider.Lookup(context.Background(), "https://example.com"); !errors.Is(err, runErr) {
		t.Fatalf("expected wrapped runner error, got %v", err)
	}

	var nilProvider *YTDLPProvider
	if _, err := nilProvider.Lookup(context.Background(), "https://example.com"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestProviderFunc(t *testing.T) {
	calls := 0
	base := ProviderFunc(func(ctx context.Context, url string) (Metadata, error) {
		calls++
		return Metadata{Title: url}, nil
	})

	cache := NewCachingProvider(base, time.Hour)
	for i := 0; i < 2; i++ {
		meta, err := cache.Lookup(context.Background(), "https://example.com")
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if meta.Title != "https://example.com" {
			t.Fatalf("unexpected metadata %+v", meta)
		}
	}
	if calls != 1 {
		t.Fatalf("expected base provider called once, got %d", calls)
	}
}

func TestYTDLPProviderDownloadSection(t *testing.T) {
	provider := NewYTDLPProvider("yt-dlp", time.Second)
	dir := t.TempDir()

	var gotArgs []string
	provider.Run = func(ctx context.Context, binary string, args ...string) ([]byte, error) {
		gotArgs = args
		if err := os.WriteFile(filepath.Join(dir, "source.mp4.part"), []byte("partial"), 0o600); err != nil {
			return nil, err
		}
		return nil, os.WriteFile(filepath.Join(dir, "source.mp4"), []byte("video"), 0o600)
	}

	file, err := provider.Download(context.Background(), "https://youtube.com/watch?v=1", dir, 10, 40.5)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if file != filepath.Join(dir, "source.mp4") {
		t.Fatalf("unexpected file %q", file)
	}

	idx := slices.Index(gotArgs, "--download-sections")
	if idx < 0 || gotArgs[idx+1] != "*10-40.5" {
		t.Fatalf("expected download section in args, got %v", gotArgs)
	}
	if gotArgs[len(gotArgs)-1] != "https://youtube.com/watch?v=1" {
		t.Fatalf("expected url as last arg, got %v", gotArgs)
	}
}

func TestYTDLPProviderDownloadFullVideo(t *testing.T) {
	provider := NewYTDLPProvider("yt-dlp", time.Second)
	dir := t.TempDir()

	provider.Run = func(ctx context.Context, binary string, args ...string) ([]byte, error) {
		if slices.Contains(args, "--download-sections") {
			t.Fatalf("did not expect a section without an end time: %v", args)
		}
		return nil, os.WriteFile(filepath.Join(dir, "source.webm"), []byte("video"), 0o600)
	}

	file, err := provider.Download(context.Background(), "https://youtube.com/watch?v=2", dir, 0, 0)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if filepath.Base(file) != "source.webm" {
		t.Fatalf("unexpected file %q", file)
	}
}

func TestYTDLPProviderDownloadNoOutput(t *testing.T) {
	provider := NewYTDLPProvider("yt-dlp", time.Second)
	provider.Run = func(context.Context, string, ...string) ([]byte, error) { return nil, nil }

	if _, err := provider.Download(context.Background(), "https://youtube.com/watch?v=3", t.TempDir(), 0, 0); err == nil {
		t.Fatal("expected error when nothing was downloaded")
	}
}
