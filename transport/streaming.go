package transport

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"time"
)

// StreamingClient consumes newline-delimited JSON streams over HTTP.
// The remote end holds the response open and writes one document per
// line; blank keepalive lines are skipped.
type StreamingClient struct {
	HTTPClient *http.Client
}

// NewStreamingClient creates a client without a request timeout; the
// stream is expected to stay open indefinitely.
func NewStreamingClient() *StreamingClient {
	return &StreamingClient{HTTPClient: &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}}
}

// maxLineSize bounds a single streamed document.
const maxLineSize = 1024 * 1024

// Stream connects to url and feeds each non-empty line to onLine
// until the connection drops, onLine fails or ctx is canceled. The
// returned error describes why the stream ended; a server-side close
// yields a nil-wrapped io error.
func (c *StreamingClient) Stream(ctx context.Context, url string, header http.Header, onLine func([]byte) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream %s: unexpected status %d", url, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer; hand out a copy.
		doc := make([]byte, len(line))
		copy(doc, line)
		if err := onLine(doc); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream %s: connection closed", url)
}
