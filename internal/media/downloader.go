// File: internal/media/downloader.go
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/xhs-cli/internal/config"
	"github.com/xkilldash9x/xhs-cli/internal/network"
)

// Result describes one downloaded (or cached) remote image.
type Result struct {
	URL    string `json:"url"`
	Path   string `json:"path"`
	Cached bool   `json:"cached"`
	Size   int64  `json:"size"`
}

// Failure pairs a URL with the reason it could not be fetched.
type Failure struct {
	URL string
	Err error
}

// DownloadError reports every URL of a batch that failed.
type DownloadError struct {
	Total    int
	Failures []Failure
}

func (e *DownloadError) Error() string {
	lines := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		lines = append(lines, fmt.Sprintf("%s: %v", f.URL, f.Err))
	}
	return fmt.Sprintf("failed to download %d of %d images:\n%s", len(e.Failures), e.Total, strings.Join(lines, "\n"))
}

func (e *DownloadError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Downloader fetches remote images into a content-addressed cache directory.
type Downloader struct {
	logger      *zap.Logger
	client      *network.Client
	dir         string
	timeout     time.Duration
	concurrency int
	maxBytes    int64
}

// NewDownloader creates a downloader writing into cfg.DownloadDir. A nil
// client gets network.NewClient defaults.
func NewDownloader(logger *zap.Logger, cfg config.MediaConfig, client *network.Client) (*Downloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir, err := cfg.ResolvedDownloadDir()
	if err != nil {
		return nil, fmt.Errorf("invalid media.download_dir: %w", err)
	}
	if client == nil {
		clientCfg := network.NewDefaultClientConfig()
		clientCfg.Logger = logger
		client = network.NewClient(clientCfg)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Downloader{
		logger:      logger.Named("media"),
		client:      client,
		dir:         dir,
		timeout:     cfg.DownloadTimeout,
		concurrency: concurrency,
		maxBytes:    cfg.MaxImageBytes,
	}, nil
}

// Dir returns the cache directory.
func (d *Downloader) Dir() string { return d.dir }

// cacheKey is the first 16 hex digits of sha256(url).
func cacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:16]
}

func (d *Downloader) cached(key string) (string, int64, bool) {
	matches, err := filepath.Glob(filepath.Join(d.dir, "img_"+key+".*"))
	if err != nil {
		return "", 0, false
	}
	for _, m := range matches {
		if strings.HasSuffix(m, ".tmp") {
			continue
		}
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			return m, info.Size(), true
		}
	}
	return "", 0, false
}

// Download fetches one image. The file is named img_<hash>.<ext> where ext
// comes from the magic number, so a repeat call for the same URL is served
// from disk.
func (d *Downloader) Download(ctx context.Context, rawURL string) (Result, error) {
	if !IsRemote(rawURL) {
		return Result{}, fmt.Errorf("invalid image URL format: %s", rawURL)
	}
	if _, err := url.Parse(rawURL); err != nil {
		return Result{}, fmt.Errorf("invalid image URL %s: %w", rawURL, err)
	}

	key := cacheKey(rawURL)
	if path, size, ok := d.cached(key); ok {
		d.logger.Debug("Using cached image.", zap.String("path", path))
		return Result{URL: rawURL, Path: path, Cached: true, Size: size}, nil
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	data, err := d.fetch(ctx, rawURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("image download timeout after %s: %w", d.timeout, err)
		}
		return Result{}, err
	}

	ext, ok := DetectImage(data)
	if !ok {
		return Result{}, fmt.Errorf("downloaded file is not a valid image: %w", ErrNotImage)
	}

	path := filepath.Join(d.dir, "img_"+key+"."+ext)
	if err := writeFileAtomic(d.dir, path, data); err != nil {
		return Result{}, err
	}
	d.logger.Debug("Image downloaded.", zap.String("path", path), zap.Int("bytes", len(data)))
	return Result{URL: rawURL, Path: path, Size: int64(len(data))}, nil
}

func (d *Downloader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var body io.Reader = resp.Body
	if d.maxBytes > 0 {
		body = io.LimitReader(resp.Body, d.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", d.maxBytes)
	}
	return data, nil
}

func writeFileAtomic(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to store image: %w", err)
	}
	return nil
}

// DownloadAll fetches urls concurrently. Every URL is attempted; if any fail
// the returned error is a *DownloadError listing all of them. Results keep
// the input order.
func (d *Downloader) DownloadAll(ctx context.Context, urls []string) ([]Result, error) {
	results := make([]Result, len(urls))
	errs := make([]error, len(urls))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = d.Download(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	var failures []Failure
	cached := 0
	for i, err := range errs {
		if err != nil {
			failures = append(failures, Failure{URL: urls[i], Err: err})
		} else if results[i].Cached {
			cached++
		}
	}
	if len(failures) > 0 {
		return nil, &DownloadError{Total: len(urls), Failures: failures}
	}

	d.logger.Debug("Images ready.", zap.Int("downloaded", len(results)-cached), zap.Int("cached", cached))
	return results, nil
}

// Resolve turns a mix of local paths and URLs into local paths, in input
// order. Local paths must exist; URLs are downloaded.
func (d *Downloader) Resolve(ctx context.Context, paths []string) ([]string, error) {
	var urls []string
	for _, p := range paths {
		if IsRemote(p) {
			urls = append(urls, p)
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("local image file not found: %s", p)
		}
	}

	downloaded := map[string]string{}
	if len(urls) > 0 {
		results, err := d.DownloadAll(ctx, urls)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			downloaded[r.URL] = r.Path
		}
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if local, ok := downloaded[p]; ok {
			out = append(out, local)
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, errors.New("no valid images found")
	}
	return out, nil
}
