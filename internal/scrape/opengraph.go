package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mediaresolver/internal/resolver"
)

// OpenGraphConfig controls the default scraper.
type OpenGraphConfig struct {
	UserAgent      string
	RequestTimeout time.Duration
	// QPS throttles outbound requests per platform to stay polite.
	QPS float64
	// AcceptsCredentials enables the credentialed retry for this platform.
	AcceptsCredentials bool
	// RequiresAuth skips the anonymous attempt entirely.
	RequiresAuth bool
}

// OpenGraph is the default scraper: it fetches the page via Colly and
// extracts OpenGraph metadata with goquery. Platform-faithful scrapers
// can replace it per platform in the registry.
type OpenGraph struct {
	baseCollector *colly.Collector
	limiter       *rate.Limiter
	cfg           OpenGraphConfig
	logger        *zap.Logger
}

// NewOpenGraph constructs an OpenGraph scraper.
func NewOpenGraph(cfg OpenGraphConfig, logger *zap.Logger) *OpenGraph {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "mediaresolver/1.0"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.QPS > 0 {
		limit = rate.Limit(cfg.QPS)
	}
	base := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	base.AllowURLRevisit = true
	base.SetRequestTimeout(cfg.RequestTimeout)
	base.WithTransport(&http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	})
	return &OpenGraph{
		baseCollector: base,
		limiter:       rate.NewLimiter(limit, 1),
		cfg:           cfg,
		logger:        logger,
	}
}

// AcceptsCredentials reports whether credentialed retries are useful.
func (s *OpenGraph) AcceptsCredentials() bool {
	return s.cfg.AcceptsCredentials
}

// RequiresAuth reports whether the anonymous attempt should be skipped.
func (s *OpenGraph) RequiresAuth() bool {
	return s.cfg.RequiresAuth
}

// Scrape fetches resolvedURL and builds a MediaDescriptor from its
// OpenGraph tags.
func (s *OpenGraph) Scrape(ctx context.Context, resolvedURL string, cred *resolver.Credential) (*resolver.MediaDescriptor, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("politeness wait: %w", err)
	}

	body, err := s.fetch(ctx, resolvedURL, cred)
	if err != nil {
		return nil, err
	}
	desc, err := parseOpenGraph(body)
	if err != nil {
		return nil, err
	}
	desc.UsedCookie = cred != nil
	return desc, nil
}

func (s *OpenGraph) fetch(ctx context.Context, rawURL string, cred *resolver.Credential) ([]byte, error) {
	collector := s.baseCollector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnRequest(func(r *colly.Request) {
		if cred != nil {
			r.Headers.Set("Cookie", cred.Secret)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{body: append([]byte{}, r.Body...)})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		if r != nil && r.StatusCode > 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("visit: %w", err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("fetch: %w", res.err)
		}
		return res.body, nil
	default:
		return nil, errors.New("fetch produced no result")
	}
}

type fetchResult struct {
	body []byte
	err  error
}

func parseOpenGraph(body []byte) (*resolver.MediaDescriptor, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	meta := func(property string) string {
		value, _ := doc.Find(`meta[property="` + property + `"]`).Attr("content")
		if value == "" {
			value, _ = doc.Find(`meta[name="` + property + `"]`).Attr("content")
		}
		return strings.TrimSpace(value)
	}

	title := meta("og:title")
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" || looksLikeLoginWall(title) {
		// A gated page serves a login shell instead of the post.
		return nil, errors.New("login required: content is not publicly visible")
	}

	desc := &resolver.MediaDescriptor{
		Title:     title,
		Thumbnail: meta("og:image"),
		Author:    firstNonEmpty(meta("og:site_name"), meta("author")),
	}

	if video := firstNonEmpty(meta("og:video:secure_url"), meta("og:video:url"), meta("og:video")); video != "" {
		desc.Formats = append(desc.Formats, resolver.MediaFormat{
			Quality: "default",
			Type:    firstNonEmpty(meta("og:video:type"), "video/mp4"),
			URL:     video,
		})
	}
	if image := meta("og:image"); image != "" {
		desc.Formats = append(desc.Formats, resolver.MediaFormat{
			Quality: "thumbnail",
			Type:    "image/jpeg",
			URL:     image,
		})
	}
	if len(desc.Formats) == 0 {
		return nil, errors.New("no downloadable media found on page")
	}
	return desc, nil
}

func looksLikeLoginWall(title string) bool {
	lower := strings.ToLower(title)
	return strings.Contains(lower, "log in") ||
		strings.Contains(lower, "login") ||
		strings.Contains(lower, "sign in")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
