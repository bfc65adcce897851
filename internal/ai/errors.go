package ai

import (
	"errors"
	"regexp"
	"strings"
)

// ErrUnavailable is returned by providers that are missing credentials.
var ErrUnavailable = errors.New("ai provider not configured")

var ErrRateLimited = errors.New("rate limited")

// "rate" must start a word so that "generate" or "accurate" do not match.
var rateWord = regexp.MustCompile(`\brate`)

// IsRateLimit reports whether err looks like an upstream throttling response:
// the message mentions 429 or a word starting with "rate".
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || rateWord.MatchString(msg)
}
