// Package storage classifies and resolves the file references a channel
// receives: streaming URLs, bundled-asset paths, absolute paths, and paths
// relative to a default writable root.
package storage

import (
	"os"
	"path/filepath"
	"strings"
)

// AssetPrefix marks a path as referring to a bundled, read-only asset.
const AssetPrefix = "/assets/"

var streamingSchemes = []string{"http://", "https://", "rtsp://"}

// IsStreaming reports whether file names a network-streamed source rather
// than a local one.
func IsStreaming(file string) bool {
	for _, scheme := range streamingSchemes {
		if strings.HasPrefix(file, scheme) {
			return true
		}
	}
	return false
}

// Resolver maps abstract file references to concrete filesystem paths.
type Resolver struct {
	// AssetRoot backs AssetPrefix paths.
	AssetRoot string
	// WritableRoot is the default root for relative paths. May be empty or
	// unusable, in which case FallbackRoot takes over.
	WritableRoot string
	// FallbackRoot is the private per-app storage used when WritableRoot is
	// unavailable.
	FallbackRoot string
}

// Playable resolves a local playback reference. Absolute paths pass
// through; asset paths resolve under AssetRoot; a bare relative path is
// used as-is when it exists and otherwise resolved against the writable
// root.
func (r Resolver) Playable(file string) string {
	if strings.HasPrefix(file, AssetPrefix) {
		return filepath.Join(r.AssetRoot, strings.TrimPrefix(file, AssetPrefix))
	}
	if filepath.IsAbs(file) {
		return file
	}
	if _, err := os.Stat(file); err == nil {
		return file
	}
	return filepath.Join(r.writableRoot(), file)
}

// Writable resolves a destination reference for recording output. Absolute
// paths pass through; anything else lands under the writable root.
func (r Resolver) Writable(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(r.writableRoot(), file)
}

// TempDir returns the directory for raw capture segments.
func (r Resolver) TempDir() string {
	return r.writableRoot()
}

// writableRoot picks WritableRoot when it exists or can be created, else
// FallbackRoot, else the OS temp dir.
func (r Resolver) writableRoot() string {
	if r.WritableRoot != "" && usable(r.WritableRoot) {
		return r.WritableRoot
	}
	if r.FallbackRoot != "" && usable(r.FallbackRoot) {
		return r.FallbackRoot
	}
	return os.TempDir()
}

func usable(dir string) bool {
	if info, err := os.Stat(dir); err == nil {
		return info.IsDir()
	}
	return os.MkdirAll(dir, 0o755) == nil
}
