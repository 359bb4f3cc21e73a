package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// Keys that are always safe to log verbatim.
var plainKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"error":     {},
	"reason":    {},
	"component": {},
	"pool":      {},
	"epoch":     {},
	"phase":     {},
	"outcome":   {},
	"tx_hash":   {},
}

// IsAllowlisted reports whether values under key are logged unmasked.
func IsAllowlisted(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField redacts value unless key is allowlisted. Empty values pass
// through so missing settings stay visible.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskURL keeps the scheme and host of an endpoint and redacts credentials,
// path and query, where hosted RPC providers embed API keys.
func MaskURL(key, raw string) slog.Attr {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return MaskField(key, raw)
	}
	masked := parsed.Scheme + "://" + parsed.Host
	if parsed.User != nil || (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" {
		masked += "/" + RedactedValue
	}
	return slog.String(key, masked)
}
