package audio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestIsRemote(t *testing.T) {
	tests := map[string]bool{
		"http://example.com/a.mp3":  true,
		"https://example.com/a.wav": true,
		"/tmp/song.wav":             false,
		"file:///tmp/song.wav":      false,
		"song.mp3":                  false,
	}
	for in, want := range tests {
		if got := IsRemote(in); got != want {
			t.Errorf("IsRemote(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOpenLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := os.WriteFile(path, toneBytes(t, 8000, 440, 0.25), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, source := range []string{path, "file://" + path} {
		clip, err := Open(context.Background(), source, FetchOptions{})
		if err != nil {
			t.Fatalf("Open(%q) error: %v", source, err)
		}
		if clip.Name != source {
			t.Errorf("Name = %q, want %q", clip.Name, source)
		}
		if clip.Frames() != 2000 {
			t.Errorf("Frames = %d, want 2000", clip.Frames())
		}
	}
}

func TestOpenRemote(t *testing.T) {
	wav := toneBytes(t, 8000, 440, 0.25)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tone.wav":
			w.Write(wav)
		case "/slow.wav":
			time.Sleep(200 * time.Millisecond)
			w.Write(wav)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	clip, err := Open(context.Background(), srv.URL+"/tone.wav", FetchOptions{Client: srv.Client()})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if clip.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", clip.SampleRate)
	}

	_, err = Open(context.Background(), srv.URL+"/missing.wav", FetchOptions{Client: srv.Client()})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("missing: err = %v, want 404 status error", err)
	}

	_, err = Open(context.Background(), srv.URL+"/slow.wav", FetchOptions{Client: srv.Client(), Timeout: 20 * time.Millisecond})
	if err == nil {
		t.Error("slow: expected timeout error")
	}
}

func TestFetchErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := Fetch(ctx, "  ", FetchOptions{}); err == nil {
		t.Error("empty source: expected error")
	}
	if _, err := Fetch(ctx, filepath.Join(t.TempDir(), "nope.wav"), FetchOptions{}); err == nil {
		t.Error("missing file: expected error")
	}
	if _, err := Fetch(ctx, "http://127.0.0.1:1/unreachable.mp3", FetchOptions{Timeout: time.Second}); err == nil {
		t.Error("unreachable url: expected error")
	}
}
