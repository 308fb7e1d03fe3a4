// File: internal/network/compression.go
package network

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// AcceptEncoding is advertised on requests that do not set their own.
const AcceptEncoding = "br, gzip, deflate"

var (
	gzipPool   = sync.Pool{New: func() any { return new(gzip.Reader) }}
	brotliPool = sync.Pool{New: func() any { return brotli.NewReader(nil) }}
	emptyInput = strings.NewReader("")
)

// CompressionMiddleware advertises br/gzip/deflate and transparently decodes
// the response body.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps transport, or http.DefaultTransport when nil.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", AcceptEncoding)
	}
	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := DecompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// decodedBody closes the decoder, returns pooled readers and closes the
// wrapped body.
type decodedBody struct {
	io.Reader
	decoder io.Closer
	inner   io.ReadCloser
	release func()
}

func (b *decodedBody) Close() error {
	var err error
	if b.decoder != nil {
		err = b.decoder.Close()
	}
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return errors.Join(err, b.inner.Close())
}

// DecompressResponse replaces resp.Body with a decoding reader for every
// Content-Encoding layer, outermost first. On error the body may be partly
// consumed and the response should be discarded.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	var layers []string
	for _, v := range encodings {
		for _, part := range strings.Split(v, ",") {
			layers = append(layers, strings.ToLower(strings.TrimSpace(part)))
		}
	}

	for i := len(layers) - 1; i >= 0; i-- {
		body, err := decodeLayer(layers[i], resp.Body)
		if err != nil {
			return err
		}
		if body != nil {
			resp.Body = body
		}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// decodeLayer returns nil for identity layers.
func decodeLayer(encoding string, body io.ReadCloser) (io.ReadCloser, error) {
	switch encoding {
	case "", "identity":
		return nil, nil
	case "gzip", "x-gzip":
		zr := gzipPool.Get().(*gzip.Reader)
		if err := zr.Reset(body); err != nil {
			gzipPool.Put(zr)
			return nil, fmt.Errorf("gzip initialization error: %w", err)
		}
		return &decodedBody{Reader: zr, decoder: zr, inner: body, release: func() {
			_ = zr.Reset(emptyInput)
			gzipPool.Put(zr)
		}}, nil
	case "br":
		br := brotliPool.Get().(*brotli.Reader)
		if err := br.Reset(body); err != nil {
			brotliPool.Put(br)
			return nil, fmt.Errorf("brotli initialization error: %w", err)
		}
		return &decodedBody{Reader: br, inner: body, release: func() {
			_ = br.Reset(emptyInput)
			brotliPool.Put(br)
		}}, nil
	case "deflate":
		r, err := newDeflateReader(body)
		if err != nil {
			return nil, fmt.Errorf("deflate initialization error: %w", err)
		}
		return &decodedBody{Reader: r, decoder: r, inner: body}, nil
	default:
		return nil, fmt.Errorf("unsupported Content-Encoding layer: %s", encoding)
	}
}

// newDeflateReader accepts both zlib-wrapped and raw deflate streams.
// Servers disagree about what "deflate" means.
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(header) == 2 && isZlibHeader(header[0], header[1]) {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

// isZlibHeader checks the RFC 1950 CMF/FLG pair.
func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
