// Package admission gates requests before real work begins: maintenance
// mode, input validation, API-key resolution, and anonymous rate
// limiting.
package admission

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"mediaresolver/internal/resolver"
)

// Controller decides whether a request may enter the pipeline.
type Controller struct {
	settings  resolver.Settings
	keys      resolver.KeyStore
	limiter   *FixedWindow
	blocklist *Blocklist
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewController constructs a Controller.
func NewController(
	settings resolver.Settings,
	keys resolver.KeyStore,
	limiter *FixedWindow,
	blocklist *Blocklist,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		settings:  settings,
		keys:      keys,
		limiter:   limiter,
		blocklist: blocklist,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Admit runs the admission steps in order: maintenance gate, structural
// validation, attack-pattern screening, API-key resolution, anonymous
// rate limiting. Keyed callers bypass the anonymous limiter; their
// key-level quota is enforced by the external key store.
func (c *Controller) Admit(ctx context.Context, req resolver.Request) (*resolver.APIKey, error) {
	if c.settings.MaintenanceMode() {
		return nil, resolver.E(resolver.KindMaintenance, "service is temporarily down for maintenance")
	}

	if err := c.validate.Struct(req); err != nil {
		return nil, resolver.Wrap(resolver.KindInvalidInput, "url is required", err)
	}
	if _, err := url.Parse(ensureScheme(req.URL)); err != nil {
		return nil, resolver.Wrap(resolver.KindInvalidInput, "url is not parseable", err)
	}

	cookie, _ := req.Cookie.Normalize()
	if c.blocklist.Matches(req.URL, cookie) {
		c.logger.Warn("request blocked by attack-pattern screen",
			zap.String("client_ip", req.ClientIP),
		)
		return nil, resolver.E(resolver.KindInvalidInput, "request contains disallowed content")
	}

	if req.APIKey != "" {
		key, err := c.keys.Validate(ctx, req.APIKey)
		if err != nil {
			if errors.Is(err, resolver.ErrKeyInvalid) {
				return nil, resolver.Wrap(resolver.KindCredentialRequired, "api key is invalid or disabled", err)
			}
			// Key store unreachable: fail open to the anonymous class
			// rather than rejecting the caller.
			c.logger.Warn("key validation degraded to anonymous", zap.Error(err))
		} else {
			return key, nil
		}
	}

	limit, windowDur := c.settings.GlobalRateLimit()
	allowed, retryAfter := c.limiter.Allow(req.ClientIP, limit, windowDur)
	if !allowed {
		err := resolver.E(resolver.KindRateLimited, "rate limit exceeded")
		err.RetryAfter = retryAfter
		return nil, err
	}
	return nil, nil
}

func ensureScheme(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}
