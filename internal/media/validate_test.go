// File: internal/media/validate_test.go
package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes  = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F', 0, 1, 1}
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestDetectImage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		ext  string
		ok   bool
	}{
		{"jpeg", jpegBytes, "jpg", true},
		{"png", pngBytes, "png", true},
		{"gif", []byte("GIF89a\x01\x00\x01\x00\x00\x00"), "gif", true},
		{"webp", []byte("RIFF\x24\x00\x00\x00WEBPVP8 "), "webp", true},
		{"bmp", []byte("BM\x36\x00\x00\x00\x00\x00\x00\x00\x36\x00"), "bmp", true},
		{"riff but not webp", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), "", false},
		{"html", []byte("<!doctype html><html>"), "", false},
		{"too short", []byte{0xff, 0xd8, 0xff}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, ok := DetectImage(tt.data)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://cdn.example.com/a.png"))
	assert.True(t, IsRemote("  HTTP://cdn.example.com/a.png"))
	assert.False(t, IsRemote("/tmp/a.png"))
	assert.False(t, IsRemote("ftp://example.com/a.png"))
	assert.False(t, IsRemote(""))
}

func TestCheckImageFile(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "cover.PNG", pngBytes)
	bad := writeFile(t, dir, "notes.txt", []byte("hello"))

	assert.NoError(t, CheckImageFile(good))

	err := CheckImageFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image format")

	err = CheckImageFile(filepath.Join(dir, "missing.jpg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")

	err = CheckImageFile(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a regular file")
}

func TestCheckVideoFile(t *testing.T) {
	dir := t.TempDir()
	clip := writeFile(t, dir, "clip.mp4", make([]byte, 2048))

	assert.NoError(t, CheckVideoFile(clip, 0))

	err := CheckVideoFile(clip, 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video file too large")

	err = CheckVideoFile(writeFile(t, dir, "clip.gif", pngBytes), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported video format")

	for _, ext := range VideoExtensions {
		assert.NoError(t, CheckVideoFile(writeFile(t, dir, "v."+ext, []byte{1}), 0), ext)
	}
}
