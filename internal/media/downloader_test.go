// File: internal/media/downloader_test.go
package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/xhs-cli/internal/config"
	"github.com/xkilldash9x/xhs-cli/internal/network"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

type imageServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newImageServer(t *testing.T) *imageServer {
	t.Helper()
	s := &imageServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		switch {
		case strings.HasPrefix(r.URL.Path, "/png"):
			_, _ = w.Write(pngBytes)
		case strings.HasPrefix(r.URL.Path, "/jpeg"):
			_, _ = w.Write(jpegBytes)
		case strings.HasPrefix(r.URL.Path, "/html"):
			_, _ = w.Write([]byte("<!doctype html><html><body>nope</body></html>"))
		case strings.HasPrefix(r.URL.Path, "/big"):
			_, _ = w.Write(append(append([]byte{}, pngBytes...), make([]byte, 4096)...))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func newDownloader(t *testing.T, mutate func(*config.MediaConfig)) *Downloader {
	t.Helper()
	cfg := config.MediaConfig{
		DownloadDir:     t.TempDir(),
		DownloadTimeout: 5 * time.Second,
		Concurrency:     2,
		MaxImageBytes:   1024,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	clientCfg := network.NewDefaultClientConfig()
	clientCfg.ForceHTTP2 = false
	client := network.NewClient(clientCfg)
	t.Cleanup(client.CloseIdleConnections)

	d, err := NewDownloader(zaptest.NewLogger(t), cfg, client)
	require.NoError(t, err)
	return d
}

func TestDownload_WritesAndCaches(t *testing.T) {
	srv := newImageServer(t)
	d := newDownloader(t, nil)
	url := srv.URL + "/png/cover"

	first, err := d.Download(context.Background(), url)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, filepath.Join(d.Dir(), "img_"+cacheKey(url)+".png"), first.Path)
	assert.EqualValues(t, len(pngBytes), first.Size)

	data, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	second, err := d.Download(context.Background(), url)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Path, second.Path)
	assert.EqualValues(t, 1, srv.hits.Load())
}

func TestDownload_Rejections(t *testing.T) {
	srv := newImageServer(t)
	d := newDownloader(t, nil)

	_, err := d.Download(context.Background(), srv.URL+"/html/page")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotImage))

	_, err = d.Download(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")

	_, err = d.Download(context.Background(), srv.URL+"/big")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 1024 bytes")

	_, err = d.Download(context.Background(), "/local/file.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid image URL format")

	entries, err := os.ReadDir(d.Dir())
	if err == nil {
		assert.Empty(t, entries, "failed downloads must not leave files behind")
	}
}

func TestDownloadAll_ReportsEveryFailure(t *testing.T) {
	srv := newImageServer(t)
	d := newDownloader(t, nil)

	urls := []string{srv.URL + "/png/1", srv.URL + "/missing/a", srv.URL + "/jpeg/2", srv.URL + "/html/b"}
	_, err := d.DownloadAll(context.Background(), urls)
	require.Error(t, err)

	var dlErr *DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.Equal(t, 4, dlErr.Total)
	require.Len(t, dlErr.Failures, 2)
	assert.Equal(t, urls[1], dlErr.Failures[0].URL)
	assert.Equal(t, urls[3], dlErr.Failures[1].URL)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to download 2 of 4 images"))
	assert.True(t, errors.Is(err, ErrNotImage))
	assert.EqualValues(t, 4, srv.hits.Load(), "every URL is attempted")
}

func TestDownloadAll_KeepsOrder(t *testing.T) {
	srv := newImageServer(t)
	d := newDownloader(t, func(c *config.MediaConfig) { c.Concurrency = 3 })

	urls := []string{srv.URL + "/jpeg/a", srv.URL + "/png/b", srv.URL + "/jpeg/c"}
	results, err := d.DownloadAll(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, urls[i], r.URL)
	}
	assert.True(t, strings.HasSuffix(results[0].Path, ".jpg"))
	assert.True(t, strings.HasSuffix(results[1].Path, ".png"))
}

func TestDownloadAll_CancelledContext(t *testing.T) {
	srv := newImageServer(t)
	d := newDownloader(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.DownloadAll(ctx, []string{srv.URL + "/png/1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestResolve_MixesLocalAndRemote(t *testing.T) {
	srv := newImageServer(t)
	d := newDownloader(t, nil)
	local := writeFile(t, t.TempDir(), "local.png", pngBytes)

	paths, err := d.Resolve(context.Background(), []string{srv.URL + "/jpeg/x", local, srv.URL + "/png/y"})
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.True(t, strings.HasPrefix(paths[0], d.Dir()))
	assert.Equal(t, local, paths[1])
	assert.True(t, strings.HasSuffix(paths[2], ".png"))

	_, err = d.Resolve(context.Background(), []string{"/definitely/missing.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local image file not found")

	_, err = d.Resolve(context.Background(), nil)
	require.Error(t, err)
}
