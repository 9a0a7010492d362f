package crawler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/tickarchive/internal/faulttolerance"
)

var testDay = time.Date(2015, 9, 25, 0, 0, 0, 0, time.UTC)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func fastRetryer(attempts int) *faulttolerance.Retryer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return faulttolerance.NewRetryer(faulttolerance.RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}, logger)
}

func TestDefaultHTTPConfig(t *testing.T) {
	baseURL := "https://api.example.com/"
	requestsPerSecond := 10.0

	config := DefaultHTTPConfig(baseURL, requestsPerSecond)

	if config.BaseURL != "https://api.example.com" {
		t.Errorf("Expected BaseURL without trailing slash, got '%s'", config.BaseURL)
	}

	if config.RateLimiter == nil {
		t.Error("Expected RateLimiter to be initialized")
	}

	if config.RequestTimeout != 10*time.Minute {
		t.Errorf("Expected RequestTimeout 10m, got %v", config.RequestTimeout)
	}

	if DefaultHTTPConfig("", 1).BaseURL != DefaultBaseURL {
		t.Error("Expected empty base URL to fall back to DefaultBaseURL")
	}
}

func TestArchiveName(t *testing.T) {
	if got := ArchiveName(testDay); got != "20150925.csv.gz" {
		t.Errorf("Expected '20150925.csv.gz', got '%s'", got)
	}
}

func TestHTTPSourceOpen(t *testing.T) {
	payload := gzipBytes(t, "line one\nline two\n")
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/gzip")
		w.Write(payload)
	}))
	defer srv.Close()

	src := NewHTTPSource(DefaultHTTPConfig(srv.URL, 1000), fastRetryer(3), nil)
	stream, err := src.Open(context.Background(), testDay)
	require.NoError(t, err)
	defer stream.Close()

	body, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(body))
	assert.Equal(t, "/20150925.csv.gz", path.Load())

	read, total := stream.Position()
	assert.Equal(t, int64(len(payload)), read)
	assert.Equal(t, int64(len(payload)), total)
	assert.Equal(t, "http", src.Name())
}

func TestHTTPSourceNotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	src := NewHTTPSource(DefaultHTTPConfig(srv.URL, 1000), fastRetryer(5), nil)
	_, err := src.Open(context.Background(), testDay)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPSourceRetriesServerErrors(t *testing.T) {
	payload := gzipBytes(t, "ok\n")
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	src := NewHTTPSource(DefaultHTTPConfig(srv.URL, 1000), fastRetryer(3), nil)
	stream, err := src.Open(context.Background(), testDay)
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPSourceForbiddenIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	src := NewHTTPSource(DefaultHTTPConfig(srv.URL, 1000), fastRetryer(4), nil)
	_, err := src.Open(context.Background(), testDay)

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPSourceCorruptArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not gzip"))
	}))
	defer srv.Close()

	src := NewHTTPSource(DefaultHTTPConfig(srv.URL, 1000), nil, nil)
	_, err := src.Open(context.Background(), testDay)
	assert.ErrorContains(t, err, "open gzip")
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	payload := gzipBytes(t, "a\nb\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ArchiveName(testDay)), payload, 0o644))

	src := NewDirSource(dir)
	stream, err := src.Open(context.Background(), testDay)
	require.NoError(t, err)
	defer stream.Close()

	body, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(body))

	_, total := stream.Position()
	assert.Equal(t, int64(len(payload)), total)

	_, err = src.Open(context.Background(), testDay.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStreamTruncatedArchive(t *testing.T) {
	payload := gzipBytes(t, "some longer content that will be cut short\n")
	stream, err := NewStream(io.NopCloser(bytes.NewReader(payload[:len(payload)-6])), -1)
	require.NoError(t, err)
	defer stream.Close()

	_, err = io.ReadAll(stream)
	assert.ErrorContains(t, err, "decompress")
}
