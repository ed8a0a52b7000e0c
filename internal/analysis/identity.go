package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// taskIDLen truncates the hex digest; 16 hex chars (64 bits) is plenty for
// per-deployment uniqueness and keeps IDs readable in logs and URLs.
const taskIDLen = 16

// NormalizeURL canonicalizes a submitted URL so equivalent spellings map to
// the same task identity: scheme defaulted to https, scheme/host/path
// lowercased, query and fragment stripped, trailing slash removed.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Host)
	path := strings.TrimSuffix(strings.ToLower(u.Path), "/")
	return scheme + "://" + host + path, nil
}

// TaskID derives the deterministic task identity for an (email, normalized
// url) pair. It is stable across resubmission: no time salt, so duplicate
// requests collide onto the same ID.
func TaskID(email, normalizedURL string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email)) + ":" + normalizedURL))
	return hex.EncodeToString(sum[:])[:taskIDLen]
}

// Domain extracts the lowercase host from a normalized URL. Scratch rows
// and audit summaries are keyed by it.
func Domain(normalizedURL string) string {
	u, err := url.Parse(normalizedURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
