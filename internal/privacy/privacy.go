// Package privacy removes credentials from text that leaves the process:
// telemetry events, API error bodies and log fields.
package privacy

import (
	"net/url"
	"regexp"
)

const redacted = "[REDACTED]"

var (
	urlQueryPattern = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	userInfoPattern = regexp.MustCompile(`((?:https?|tcp|ssl|mqtts?|wss?)://)[^/@\s]+@`)
	secretKVPattern = regexp.MustCompile(`(?i)(api[_-]?key|token|password|secret|auth)[=:]\S+`)
	bearerPattern   = regexp.MustCompile(`(?i)bearer\s+\S+`)
)

// ScrubMessage redacts query strings, URL user info, key=value secrets and
// bearer tokens found anywhere in message.
func ScrubMessage(message string) string {
	scrubbed := urlQueryPattern.ReplaceAllString(message, "$1?"+redacted)
	scrubbed = userInfoPattern.ReplaceAllString(scrubbed, "$1"+redacted+"@")
	scrubbed = secretKVPattern.ReplaceAllString(scrubbed, "$1="+redacted)
	return bearerPattern.ReplaceAllString(scrubbed, "Bearer "+redacted)
}

// RedactURL returns rawURL without user info, query string and fragment, for
// logging configured endpoints. Unparseable input is scrubbed as free text.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ScrubMessage(rawURL)
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
