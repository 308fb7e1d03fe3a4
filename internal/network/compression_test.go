// File: internal/network/compression_test.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = "小红书 note image payload, repeated enough to compress well. " +
	"小红书 note image payload, repeated enough to compress well."

func encode(t *testing.T, encoding string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch encoding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "br":
		w = brotli.NewWriter(&buf)
	case "zlib":
		w = zlib.NewWriter(&buf)
	case "raw":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	default:
		t.Fatalf("unknown encoding %q", encoding)
	}
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func responseWith(body []byte, encodings ...string) *http.Response {
	h := http.Header{}
	for _, e := range encodings {
		h.Add("Content-Encoding", e)
	}
	h.Set("Content-Length", "123")
	return &http.Response{Header: h, Body: io.NopCloser(bytes.NewReader(body)), ContentLength: 123}
}

func TestDecompressResponse(t *testing.T) {
	tests := []struct {
		name     string
		body     func(t *testing.T) []byte
		encoding []string
	}{
		{"gzip", func(t *testing.T) []byte { return encode(t, "gzip", []byte(payload)) }, []string{"gzip"}},
		{"x-gzip", func(t *testing.T) []byte { return encode(t, "gzip", []byte(payload)) }, []string{"x-gzip"}},
		{"brotli", func(t *testing.T) []byte { return encode(t, "br", []byte(payload)) }, []string{"br"}},
		{"zlib deflate", func(t *testing.T) []byte { return encode(t, "zlib", []byte(payload)) }, []string{"deflate"}},
		{"raw deflate", func(t *testing.T) []byte { return encode(t, "raw", []byte(payload)) }, []string{"deflate"}},
		{"identity", func(t *testing.T) []byte { return []byte(payload) }, []string{"identity"}},
		{
			"layered gzip then br",
			func(t *testing.T) []byte { return encode(t, "br", encode(t, "gzip", []byte(payload))) },
			[]string{"gzip, br"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := responseWith(tt.body(t), tt.encoding...)
			require.NoError(t, DecompressResponse(resp))

			got, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.NoError(t, resp.Body.Close())

			assert.Equal(t, payload, string(got))
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
			assert.Empty(t, resp.Header.Get("Content-Length"))
			assert.EqualValues(t, -1, resp.ContentLength)
			assert.True(t, resp.Uncompressed)
		})
	}
}

func TestDecompressResponse_NoEncodingLeavesBody(t *testing.T) {
	resp := responseWith([]byte(payload))
	body := resp.Body
	require.NoError(t, DecompressResponse(resp))
	assert.Equal(t, body, resp.Body, "the original reader is kept")
	assert.EqualValues(t, 123, resp.ContentLength)

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestDecompressResponse_Errors(t *testing.T) {
	err := DecompressResponse(responseWith([]byte(payload), "compress"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported Content-Encoding")

	err = DecompressResponse(responseWith([]byte("not gzip at all"), "gzip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip initialization error")

	assert.NoError(t, DecompressResponse(nil))
}

func TestCompressionMiddleware(t *testing.T) {
	var gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept-Encoding")
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(encode(t, "br", []byte(payload)))
	}))
	defer server.Close()

	transport := &http.Transport{DisableCompression: true}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: NewCompressionMiddleware(transport)}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
	assert.Equal(t, AcceptEncoding, gotAccept)
}

func TestCompressionMiddleware_KeepsCallerEncoding(t *testing.T) {
	var gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept-Encoding")
		_, _ = io.Copy(w, strings.NewReader(payload))
	}))
	defer server.Close()

	transport := &http.Transport{DisableCompression: true}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: NewCompressionMiddleware(transport)}

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	assert.Equal(t, "identity", gotAccept)
}

func TestIsZlibHeader(t *testing.T) {
	assert.True(t, isZlibHeader(0x78, 0x9c))
	assert.True(t, isZlibHeader(0x78, 0x01))
	assert.False(t, isZlibHeader(0x78, 0x00))
	assert.False(t, isZlibHeader(0x1f, 0x8b))
}
