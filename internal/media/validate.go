// File: internal/media/validate.go
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ImageExtensions are the image formats the upload form accepts.
	ImageExtensions = []string{"jpg", "jpeg", "png", "gif", "webp", "bmp"}
	// VideoExtensions are the video formats the upload form accepts.
	VideoExtensions = []string{"mp4", "mov", "avi", "mkv", "webm", "flv", "wmv"}
)

// DefaultMaxVideoBytes is the platform's upload ceiling.
const DefaultMaxVideoBytes int64 = 500 * 1024 * 1024

// minSniffBytes is the shortest buffer DetectImage will classify.
const minSniffBytes = 12

// ErrNotImage is returned when downloaded bytes carry no known image signature.
var ErrNotImage = errors.New("data is not a recognised image")

// IsRemote reports whether path is an http(s) URL rather than a local file.
func IsRemote(path string) bool {
	p := strings.ToLower(strings.TrimSpace(path))
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// Extension returns the lower-cased extension of path without the dot.
func Extension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// CheckImageFile verifies that path is an existing regular file with an
// allowed image extension.
func CheckImageFile(path string) error {
	if _, err := statFile(path); err != nil {
		return err
	}
	if !allowed(Extension(path), ImageExtensions) {
		return fmt.Errorf("unsupported image format: %s (supported: %s)", path, strings.Join(ImageExtensions, ", "))
	}
	return nil
}

// CheckVideoFile verifies that path is an existing video no larger than maxBytes.
func CheckVideoFile(path string, maxBytes int64) error {
	info, err := statFile(path)
	if err != nil {
		return err
	}
	if !allowed(Extension(path), VideoExtensions) {
		return fmt.Errorf("unsupported video format: %s (supported: %s)", path, strings.Join(VideoExtensions, ", "))
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxVideoBytes
	}
	if info.Size() > maxBytes {
		return fmt.Errorf("video file too large: %.1fMB (max %dMB)", float64(info.Size())/(1024*1024), maxBytes/(1024*1024))
	}
	return nil
}

func statFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	return info, nil
}

func allowed(ext string, list []string) bool {
	for _, e := range list {
		if e == ext {
			return true
		}
	}
	return false
}

// DetectImage classifies data by its magic number and returns the canonical
// extension. Buffers shorter than 12 bytes are never classified.
func DetectImage(data []byte) (string, bool) {
	if len(data) < minSniffBytes {
		return "", false
	}
	switch {
	case data[0] == 0xff && data[1] == 0xd8 && data[2] == 0xff:
		return "jpg", true
	case data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G':
		return "png", true
	case data[0] == 'G' && data[1] == 'I' && data[2] == 'F':
		return "gif", true
	case string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "webp", true
	case data[0] == 'B' && data[1] == 'M':
		return "bmp", true
	}
	return "", false
}
