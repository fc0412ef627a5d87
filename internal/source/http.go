package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"strings"

	"github.com/jchantrell/otadump/internal/errdefs"
)

// HTTP reads a remote file through HTTP range requests. The total length is
// fetched once when the source is created and assumed not to change.
//
// Every Read issues exactly one range request. The client has no timeout: a
// stalled server blocks the read.
type HTTP struct {
	url     string
	client  *nethttp.Client
	headers nethttp.Header
	size    int64 // -1 when unknown
	pos     int64
}

// HTTPOption configures an HTTP source.
type HTTPOption func(*HTTP)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) HTTPOption {
	return func(s *HTTP) {
		s.client = client
	}
}

// WithHeader sets a header on every request.
func WithHeader(key, value string) HTTPOption {
	return func(s *HTTP) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) HTTPOption {
	return WithHeader("User-Agent", ua)
}

// NewHTTP creates a source for url and probes the remote for its length.
func NewHTTP(url string, opts ...HTTPOption) (*HTTP, error) {
	s := &HTTP{
		url:    url,
		client: &nethttp.Client{},
		size:   -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &nethttp.Client{}
	}

	size, err := s.fetchSize()
	if err != nil {
		return nil, errdefs.IO(fmt.Errorf("probing %s: %w", url, err))
	}
	s.size = size

	slog.Debug("Remote source ready", "url", url, "size", size)
	return s, nil
}

// Read fetches bytes [pos, min(pos+len(p)-1, size-1)] with a single range
// request and advances the cursor by the number of bytes requested. When the
// request is clamped to the end of the resource fewer than len(p) bytes are
// returned and the next Read reports io.EOF.
func (s *HTTP) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if s.size >= 0 && s.pos >= s.size {
		return 0, io.EOF
	}

	end := s.pos + int64(len(p)) - 1
	if s.size >= 0 && end >= s.size {
		end = s.size - 1
	}
	expected := int(end - s.pos + 1)

	n, err := s.rangeRead(p[:expected], s.pos, end)
	if err != nil {
		return 0, err
	}
	s.pos += int64(n)
	return n, nil
}

func (s *HTTP) Seek(offset int64, whence int) (int64, error) {
	pos, err := resolveSeek(s.pos, s.size, s.size >= 0, offset, whence)
	if err != nil {
		return 0, err
	}
	s.pos = pos
	return pos, nil
}

func (s *HTTP) Size() (int64, bool) {
	return s.size, s.size >= 0
}

func (s *HTTP) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// rangeRead performs one range request and fills p with exactly its bytes.
func (s *HTTP) rangeRead(p []byte, off, end int64) (int, error) {
	req, err := s.newRequest(nethttp.MethodGet)
	if err != nil {
		return 0, errdefs.IO(err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end))

	slog.Debug("Range request", "url", s.url, "start", off, "end", end)
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, errdefs.IO(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusOK:
		return 0, errdefs.IOf("range request bytes=%d-%d: range requests not supported", off, end)
	default:
		return 0, errdefs.IOf("range request bytes=%d-%d failed: %s", off, end, resp.Status)
	}

	n, err := io.ReadFull(resp.Body, p)
	if err != nil {
		return n, errdefs.IO(fmt.Errorf("range request bytes=%d-%d: got %d of %d bytes: %w", off, end, n, len(p), err))
	}
	return n, nil
}

// fetchSize asks for the content length with a HEAD request and falls back to
// a one byte range probe when the server does not report one.
func (s *HTTP) fetchSize() (int64, error) {
	req, err := s.newRequest(nethttp.MethodHead)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	if resp.StatusCode == nethttp.StatusOK && resp.ContentLength >= 0 {
		return resp.ContentLength, nil
	}
	if resp.StatusCode != nethttp.StatusOK && resp.StatusCode != nethttp.StatusMethodNotAllowed {
		return 0, fmt.Errorf("head request failed: %s", resp.Status)
	}

	return s.rangeProbe()
}

// rangeProbe requests the first byte and reads the total length from Content-Range.
func (s *HTTP) rangeProbe() (int64, error) {
	req, err := s.newRequest(nethttp.MethodGet)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != nethttp.StatusPartialContent {
		if resp.StatusCode == nethttp.StatusOK {
			return 0, errors.New("range requests not supported")
		}
		return 0, fmt.Errorf("range probe failed: %s", resp.Status)
	}

	crange := resp.Header.Get("Content-Range")
	if crange == "" {
		return 0, errors.New("range probe missing Content-Range")
	}
	return parseContentRange(crange)
}

func (s *HTTP) newRequest(method string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(context.Background(), method, s.url, nethttp.NoBody)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	return req, nil
}

// parseContentRange extracts the total size from "bytes start-end/size".
// An unknown size ("*") is reported as -1.
func parseContentRange(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "bytes ") {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	parts := strings.SplitN(strings.TrimPrefix(value, "bytes "), "/", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	if parts[1] == "*" {
		return -1, nil
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return size, nil
}
