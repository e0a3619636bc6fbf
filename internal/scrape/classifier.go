package scrape

import (
	"context"
	"errors"
	"strings"

	"mediaresolver/internal/resolver"
)

// authFailurePhrases are response fragments that indicate the platform
// rejected the credential rather than the request. The phrase list is
// policy, not contract; swap the classifier to change it.
var authFailurePhrases = []string{
	"login",
	"log in",
	"sign in",
	"checkpoint",
	"challenge_required",
	"verification required",
	"not authorized",
	"session expired",
}

var rateLimitPhrases = []string{
	"rate limit",
	"too many requests",
	"429",
	"try again later",
	"temporarily blocked",
}

// HeuristicClassifier maps scrape errors to credential outcomes via
// substring matching on the error text.
type HeuristicClassifier struct {
	authPhrases []string
	ratePhrases []string
}

// NewHeuristicClassifier builds a classifier with the default phrase
// lists plus any configured extras.
func NewHeuristicClassifier(extraAuth, extraRate []string) *HeuristicClassifier {
	return &HeuristicClassifier{
		authPhrases: append(append([]string{}, authFailurePhrases...), extraAuth...),
		ratePhrases: append(append([]string{}, rateLimitPhrases...), extraRate...),
	}
}

// Classify maps a scrape error to an outcome. Timeouts and cancellations
// are generic: they say nothing about credential health.
func (c *HeuristicClassifier) Classify(err error) resolver.Outcome {
	if err == nil {
		return resolver.OutcomeSuccess
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return resolver.OutcomeGenericError
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range c.ratePhrases {
		if strings.Contains(msg, phrase) {
			return resolver.OutcomeRateLimited
		}
	}
	for _, phrase := range c.authPhrases {
		if strings.Contains(msg, phrase) {
			return resolver.OutcomeAuthFailure
		}
	}
	return resolver.OutcomeGenericError
}
