package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsStreaming(t *testing.T) {
	cases := []struct {
		file string
		want bool
	}{
		{"http://example.com/a.mp3", true},
		{"https://example.com/a.mp3", true},
		{"rtsp://example.com/stream", true},
		{"ftp://example.com/a.mp3", false},
		{"/data/a.wav", false},
		{"a.wav", false},
		{"httpfile.wav", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsStreaming(tc.file); got != tc.want {
			t.Errorf("IsStreaming(%q) = %v, want %v", tc.file, got, tc.want)
		}
	}
}

func TestPlayableAssetPath(t *testing.T) {
	r := Resolver{AssetRoot: "/opt/app/www"}
	got := r.Playable("/assets/sounds/beep.wav")
	want := filepath.Join("/opt/app/www", "sounds/beep.wav")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPlayableAbsolutePassThrough(t *testing.T) {
	r := Resolver{WritableRoot: "/never/used"}
	if got := r.Playable("/data/media/clip.wav"); got != "/data/media/clip.wav" {
		t.Errorf("got %q", got)
	}
}

func TestPlayableRelativeFallsBackToRoot(t *testing.T) {
	root := t.TempDir()
	r := Resolver{WritableRoot: root}
	got := r.Playable("does-not-exist.wav")
	if got != filepath.Join(root, "does-not-exist.wav") {
		t.Errorf("got %q", got)
	}
}

func TestWritableRelativeLandsUnderRoot(t *testing.T) {
	root := t.TempDir()
	r := Resolver{WritableRoot: root}
	if got := r.Writable("take.wav"); got != filepath.Join(root, "take.wav") {
		t.Errorf("got %q", got)
	}
}

func TestWritableAbsolutePassThrough(t *testing.T) {
	r := Resolver{WritableRoot: t.TempDir()}
	if got := r.Writable("/data/out.wav"); got != "/data/out.wav" {
		t.Errorf("got %q", got)
	}
}

func TestWritableRootFallbackChain(t *testing.T) {
	fallback := t.TempDir()

	// Unset primary root: the fallback wins.
	r := Resolver{FallbackRoot: fallback}
	if got := r.Writable("a.wav"); got != filepath.Join(fallback, "a.wav") {
		t.Errorf("got %q, want fallback root", got)
	}

	// Neither root available: the OS temp dir wins.
	r = Resolver{}
	if got := r.Writable("a.wav"); got != filepath.Join(os.TempDir(), "a.wav") {
		t.Errorf("got %q, want OS temp dir", got)
	}
}

func TestWritableRootCreatedOnDemand(t *testing.T) {
	root := filepath.Join(t.TempDir(), "media", "out")
	r := Resolver{WritableRoot: root}

	if got := r.Writable("a.wav"); got != filepath.Join(root, "a.wav") {
		t.Fatalf("got %q", got)
	}
	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("root was not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("root is not a directory")
	}
}

func TestTempDirMatchesWritableRoot(t *testing.T) {
	root := t.TempDir()
	r := Resolver{WritableRoot: root}
	if got := r.TempDir(); got != root {
		t.Errorf("got %q, want %q", got, root)
	}
}
