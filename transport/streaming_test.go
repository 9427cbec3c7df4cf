package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamDeliversLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{\"a\":1}\n\n{\"b\":2}\n")
	}))
	defer srv.Close()

	var lines []string
	err := NewStreamingClient().Stream(context.Background(), srv.URL, nil, func(doc []byte) error {
		lines = append(lines, string(doc))
		return nil
	})

	// The server closing the stream is reported as an error.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
	// Blank keepalive lines are skipped.
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, lines)
}

func TestStreamSendsHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_ = NewStreamingClient().Stream(context.Background(), srv.URL, header, func([]byte) error {
		return nil
	})

	assert.Equal(t, "Basic dXNlcjpwYXNz", gotAuth)
}

func TestStreamStopsOnCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "one\ntwo\nthree\n")
	}))
	defer srv.Close()

	errStop := errors.New("stop")
	var n int
	err := NewStreamingClient().Stream(context.Background(), srv.URL, nil, func([]byte) error {
		n++
		if n == 2 {
			return errStop
		}
		return nil
	})

	require.ErrorIs(t, err, errStop)
	assert.Equal(t, 2, n)
}

func TestStreamRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewStreamingClient().Stream(context.Background(), srv.URL, nil, func([]byte) error {
		t.Fatal("no lines expected")
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestStreamHonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()

	err := NewStreamingClient().Stream(ctx, srv.URL, nil, func([]byte) error {
		return nil
	})
	require.Error(t, err)
}
