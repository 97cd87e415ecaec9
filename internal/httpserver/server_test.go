package httpserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestServerServeStopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})
	srv := New(Options{}, handler, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String())
	if err != nil {
		cancel()
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Fatalf("unexpected body %q", body)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	srv := New(Options{Port: 8081}, http.NotFoundHandler(), nil)

	if srv.Addr() != ":8081" {
		t.Fatalf("unexpected addr %q", srv.Addr())
	}
	if srv.inner.ReadTimeout != 5*time.Minute || srv.inner.ReadHeaderTimeout != 5*time.Second {
		t.Fatalf("unexpected timeouts read=%v header=%v", srv.inner.ReadTimeout, srv.inner.ReadHeaderTimeout)
	}
}
