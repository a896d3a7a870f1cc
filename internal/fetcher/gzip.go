package fetcher

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	headerAcceptEncoding  = "Accept-Encoding"
	headerContentEncoding = "Content-Encoding"
	headerContentLength   = "Content-Length"
	encodingGzip          = "gzip"
	encodingXGzip         = "x-gzip"
)

// isGzipEncoded reports whether any Content-Encoding token is gzip.
func isGzipEncoded(header http.Header) bool {
	for _, value := range header.Values(headerContentEncoding) {
		for _, token := range strings.Split(value, ",") {
			token = strings.TrimSpace(token)
			if strings.EqualFold(token, encodingGzip) || strings.EqualFold(token, encodingXGzip) {
				return true
			}
		}
	}

	return false
}

// readBody reads the whole response body, decompressing it when it is gzip-encoded.
// After decompression the encoding and length headers no longer describe the body and are removed.
func readBody(resp *http.Response) ([]byte, error) {
	if !isGzipEncoded(resp.Header) {
		return io.ReadAll(resp.Body)
	}

	reader, err := gzip.NewReader(resp.Body)
	if errors.Is(err, io.EOF) {
		// Gzip header on an empty body, e.g. 202 without payload.
		resp.Header.Del(headerContentEncoding)

		return []byte{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompressFailed, err)
	}

	defer reader.Close() //nolint:errcheck // Close only releases decoder state.

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompressFailed, err)
	}

	resp.Header.Del(headerContentEncoding)
	resp.Header.Del(headerContentLength)

	return body, nil
}
