// Package canonical resolves raw social-media URLs to stable content
// identities. Pattern lists are ordered so every URL variant of the same
// post maps to the same ID: numeric IDs win over opaque IDs, opaque IDs
// win over share tokens.
package canonical

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"mediaresolver/internal/resolver"
)

// DefaultRedirectTimeout bounds the optional short-link resolution call.
const DefaultRedirectTimeout = 5 * time.Second

const maxRedirectHops = 5

// Resolution is the outcome of canonicalizing one URL.
type Resolution struct {
	Platform    resolver.Platform
	ResolvedURL string
	Identity    resolver.ContentIdentity
	Valid       bool
	Reason      string
}

// Canonicalizer detects platforms and extracts content identities.
type Canonicalizer struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// Option customizes a Canonicalizer.
type Option func(*Canonicalizer)

// WithHTTPClient overrides the redirect-resolution client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Canonicalizer) {
		c.client = client
	}
}

// WithRedirectTimeout overrides the redirect-resolution timeout.
func WithRedirectTimeout(d time.Duration) Option {
	return func(c *Canonicalizer) {
		c.timeout = d
	}
}

// New constructs a Canonicalizer.
func New(logger *zap.Logger, opts ...Option) *Canonicalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Canonicalizer{
		timeout: DefaultRedirectTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirectHops {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}
	}
	return c
}

// Resolve canonicalizes rawURL. It never panics on malformed input; an
// unparseable or unsupported URL yields Valid=false with a reason.
func (c *Canonicalizer) Resolve(ctx context.Context, rawURL string) Resolution {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Resolution{Reason: "url is empty"}
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Resolution{Reason: "url is not parseable"}
	}
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)

	if isShortLink(u) {
		if resolved, ok := c.followRedirects(ctx, u.String()); ok {
			u = resolved
		}
		// On timeout or network failure extraction proceeds against the
		// original short form; share-token patterns cover that case.
	}

	platform := detectPlatform(u.Host)
	if platform == resolver.PlatformUnknown {
		return Resolution{
			ResolvedURL: u.String(),
			Reason:      "unsupported platform",
		}
	}

	res := Resolution{
		Platform:    platform,
		ResolvedURL: u.String(),
		Valid:       true,
	}
	if contentID, ok := extractContentID(platform, u); ok {
		res.Identity = resolver.ContentIdentity{Platform: platform, ContentID: contentID}
	}
	return res
}

func (c *Canonicalizer) followRedirects(ctx context.Context, shortURL string) (*url.URL, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return nil, false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("short-link resolution failed",
			zap.String("url", shortURL),
			zap.Error(err),
		)
		return nil, false
	}
	defer resp.Body.Close() //nolint:errcheck
	final := resp.Request.URL
	if final == nil || final.Host == "" {
		return nil, false
	}
	final.Host = strings.ToLower(final.Host)
	return final, true
}

// hostPlatforms maps exact hosts and registrable-domain suffixes to
// platforms.
var hostPlatforms = map[string]resolver.Platform{
	"instagram.com":        resolver.PlatformInstagram,
	"tiktok.com":           resolver.PlatformTikTok,
	"youtube.com":          resolver.PlatformYouTube,
	"youtube-nocookie.com": resolver.PlatformYouTube,
	"youtu.be":             resolver.PlatformYouTube,
	"twitter.com":          resolver.PlatformTwitter,
	"x.com":                resolver.PlatformTwitter,
	"t.co":                 resolver.PlatformTwitter,
	"facebook.com":         resolver.PlatformFacebook,
	"fb.com":               resolver.PlatformFacebook,
	"fb.watch":             resolver.PlatformFacebook,
	"pinterest.com":        resolver.PlatformPinterest,
	"pin.it":               resolver.PlatformPinterest,
}

// multiTLDPlatforms maps registrable labels that span country TLDs:
// pinterest.com, pinterest.co.uk and pinterest.fr all serve the same pins.
var multiTLDPlatforms = map[string]resolver.Platform{
	"pinterest": resolver.PlatformPinterest,
}

func detectPlatform(host string) resolver.Platform {
	host = strings.TrimSuffix(host, ".")
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	for candidate := host; candidate != ""; {
		if p, ok := hostPlatforms[candidate]; ok {
			return p
		}
		if label, rest, ok := strings.Cut(candidate, "."); ok && rest != "" {
			if p, ok := multiTLDPlatforms[label]; ok {
				return p
			}
		}
		idx := strings.Index(candidate, ".")
		if idx < 0 {
			break
		}
		candidate = candidate[idx+1:]
	}
	return resolver.PlatformUnknown
}

var shortLinkHosts = map[string]struct{}{
	"vm.tiktok.com": {},
	"vt.tiktok.com": {},
	"t.co":          {},
	"fb.watch":      {},
	"pin.it":        {},
}

func isShortLink(u *url.URL) bool {
	if _, ok := shortLinkHosts[u.Host]; ok {
		return true
	}
	host := u.Host
	path := u.Path
	switch {
	case strings.HasSuffix(host, "tiktok.com") && strings.HasPrefix(path, "/t/"):
		return true
	case strings.HasSuffix(host, "instagram.com") && strings.HasPrefix(path, "/share/"):
		return true
	case strings.HasSuffix(host, "facebook.com") && strings.HasPrefix(path, "/share/"):
		return true
	default:
		return false
	}
}

// pattern extracts a content ID from a URL. Exactly one of re or param is
// set. Patterns run in declaration order; the first match wins.
type pattern struct {
	// re matches against "host/path"; group 1 is the ID.
	re *regexp.Regexp
	// param extracts the ID from a query parameter instead.
	param string
	// validate constrains param-extracted values.
	validate *regexp.Regexp
	// prefix namespaces the extracted token (share links).
	prefix string
}

// Per-platform pattern lists in strict priority order:
// numeric ID > opaque ID > share token. Share tokens stay case-sensitive.
var platformPatterns = map[resolver.Platform][]pattern{
	resolver.PlatformInstagram: {
		{re: regexp.MustCompile(`instagram\.com/stories/[^/]+/(\d+)`)},
		{re: regexp.MustCompile(`instagram\.com/(?:p|reel|reels|tv)/([A-Za-z0-9_-]{5,})`)},
		{re: regexp.MustCompile(`instagram\.com/share/(?:p/|reel/)?([A-Za-z0-9_-]+)`), prefix: "share:"},
	},
	resolver.PlatformTikTok: {
		{re: regexp.MustCompile(`tiktok\.com/@[^/]+/(?:video|photo)/(\d+)`)},
		{re: regexp.MustCompile(`tiktok\.com/v/(\d+)`)},
		{re: regexp.MustCompile(`tiktok\.com/embed/(?:v2/)?(\d+)`)},
		{re: regexp.MustCompile(`(?:vm|vt)\.tiktok\.com/([A-Za-z0-9]+)`), prefix: "share:"},
		{re: regexp.MustCompile(`tiktok\.com/t/([A-Za-z0-9]+)`), prefix: "share:"},
	},
	resolver.PlatformYouTube: {
		{param: "v", validate: regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)},
		{re: regexp.MustCompile(`youtube(?:-nocookie)?\.com/(?:shorts|embed|live)/([A-Za-z0-9_-]{6,})`)},
		{re: regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{6,})`)},
	},
	resolver.PlatformTwitter: {
		{re: regexp.MustCompile(`(?:twitter|x)\.com/[^/]+/status(?:es)?/(\d+)`)},
		{re: regexp.MustCompile(`(?:twitter|x)\.com/i/web/status/(\d+)`)},
	},
	resolver.PlatformFacebook: {
		{param: "v", validate: regexp.MustCompile(`^\d+$`)},
		{re: regexp.MustCompile(`facebook\.com/[^/]+/videos/(?:[^/]+/)?(\d+)`)},
		{re: regexp.MustCompile(`facebook\.com/reel/(\d+)`)},
		{re: regexp.MustCompile(`fb\.watch/([A-Za-z0-9_-]+)`), prefix: "share:"},
		{re: regexp.MustCompile(`facebook\.com/share/(?:v|r)/([A-Za-z0-9]+)`), prefix: "share:"},
	},
	resolver.PlatformPinterest: {
		{re: regexp.MustCompile(`pinterest\.[a-z.]+/pin/(\d+)`)},
		{re: regexp.MustCompile(`pin\.it/([A-Za-z0-9]+)`), prefix: "share:"},
	},
}

func extractContentID(platform resolver.Platform, u *url.URL) (string, bool) {
	subject := u.Host + u.Path
	query := u.Query()
	for _, p := range platformPatterns[platform] {
		if p.param != "" {
			value := query.Get(p.param)
			if value == "" || (p.validate != nil && !p.validate.MatchString(value)) {
				continue
			}
			return p.prefix + value, true
		}
		if m := p.re.FindStringSubmatch(subject); m != nil {
			return p.prefix + m[1], true
		}
	}
	return "", false
}
