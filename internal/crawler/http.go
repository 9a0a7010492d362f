package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/navid-fn/tickarchive/internal/faulttolerance"
)

type HTTPConfig struct {
	BaseURL        string
	RateLimiter    *rate.Limiter
	RequestTimeout time.Duration
}

func DefaultHTTPConfig(baseURL string, requestsPerSecond float64) *HTTPConfig {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPConfig{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		RateLimiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		RequestTimeout: 10 * time.Minute,
	}
}

// HTTPSource downloads archives from BaseURL/YYYYMMDD.csv.gz.
type HTTPSource struct {
	config  *HTTPConfig
	client  *resty.Client
	retryer *faulttolerance.Retryer
	logger  *slog.Logger
}

// NewHTTPSource creates an HTTP source. Opening a day is retried by retryer;
// a 404 is never retried.
func NewHTTPSource(config *HTTPConfig, retryer *faulttolerance.Retryer, logger *slog.Logger) *HTTPSource {
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetTimeout(config.RequestTimeout).
		SetHeader("Accept-Encoding", "identity")
	return &HTTPSource{
		config:  config,
		client:  client,
		retryer: retryer,
		logger:  logger,
	}
}

func (s *HTTPSource) Name() string { return "http" }

// URL returns the archive address of day.
func (s *HTTPSource) URL(day time.Time) string {
	return s.config.BaseURL + "/" + ArchiveName(day)
}

func (s *HTTPSource) Open(ctx context.Context, day time.Time) (*Stream, error) {
	url := s.URL(day)
	var stream *Stream

	open := func(ctx context.Context) error {
		if err := s.config.RateLimiter.Wait(ctx); err != nil {
			return faulttolerance.Permanent(err)
		}

		resp, err := s.client.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(url)
		if err != nil {
			return fmt.Errorf("GET %s: %w", url, err)
		}

		body := resp.RawBody()
		switch code := resp.StatusCode(); {
		case code == http.StatusOK:
		case code == http.StatusNotFound:
			body.Close()
			return faulttolerance.Permanent(fmt.Errorf("GET %s: %w", url, ErrNotFound))
		case code == http.StatusTooManyRequests || code >= 500:
			body.Close()
			return fmt.Errorf("GET %s: status %d", url, code)
		default:
			body.Close()
			return faulttolerance.Permanent(fmt.Errorf("GET %s: status %d", url, code))
		}

		size := int64(-1)
		if resp.RawResponse != nil {
			size = resp.RawResponse.ContentLength
		}
		stream, err = NewStream(body, size)
		return err
	}

	s.logger.Debug("Downloading archive", "url", url)
	var err error
	if s.retryer != nil {
		err = s.retryer.Execute(ctx, open)
	} else {
		err = open(ctx)
	}
	if err != nil {
		return nil, err
	}
	return stream, nil
}
