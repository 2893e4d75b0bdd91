// Package collyfetcher retrieves pages with gocolly and extracts the
// structured content the analysis modules consume.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/siteintel/analyzer/internal/analysis"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements analysis.Fetcher using the Colly collector. When a
// detector and renderer are supplied, responses that look client-side
// rendered are refetched through the renderer before extraction.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	detector      analysis.PromotionDetector
	renderer      analysis.Renderer
	logger        *zap.Logger
}

type rawResponse struct {
	url        string
	statusCode int
	body       []byte
	duration   time.Duration
}

// New builds a Fetcher. detector and renderer may be nil, which
// disables headless promotion.
func New(cfg Config, detector analysis.PromotionDetector, renderer analysis.Renderer, logger *zap.Logger) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		detector:      detector,
		renderer:      renderer,
		logger:        logger,
	}
}

// Fetch retrieves url and returns its extracted content.
func (f *Fetcher) Fetch(ctx context.Context, url string) (analysis.PageContent, error) {
	start := time.Now()
	raw, err := f.fetchStatic(ctx, url)
	if err != nil {
		return analysis.PageContent{}, err
	}

	rendered := false
	if f.renderer != nil && f.detector != nil && f.detector.ShouldPromote(raw.statusCode, raw.body) {
		body, status, renderErr := f.renderer.Render(ctx, url)
		if renderErr != nil {
			// The static body is still usable; keep it and note the miss.
			f.logger.Warn("headless render failed, using static body",
				zap.String("url", url),
				zap.Error(renderErr),
			)
		} else {
			raw.body = body
			raw.statusCode = status
			rendered = true
		}
	}

	page, err := Extract(raw.url, raw.statusCode, raw.body)
	if err != nil {
		return analysis.PageContent{}, fmt.Errorf("extract page content: %w", err)
	}
	page.Rendered = rendered
	page.Duration = time.Since(start)
	return page, nil
}

func (f *Fetcher) fetchStatic(ctx context.Context, url string) (rawResponse, error) {
	var (
		result   rawResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return rawResponse{}, err
	}
	if result.url == "" {
		result.url = url
	}
	return result, nil
}

func (f *Fetcher) buildCollector(start time.Time, result *rawResponse, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(newHTTPTransport())

	collector.OnResponse(func(r *colly.Response) {
		*result = rawResponse{
			url:        r.Request.URL.String(),
			statusCode: r.StatusCode,
			body:       append([]byte(nil), r.Body...),
			duration:   time.Since(start),
		}
	})

	collector.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
	return collector
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
