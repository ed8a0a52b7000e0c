package queue

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

// Retryable decides whether a pipeline failure is transient. Stages that
// classify their own errors are trusted; for untyped errors escaping
// third-party code the check falls back to net.Error inspection and a
// short list of transient-failure markers.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var se *analysis.StageError
	if errors.As(err, &se) {
		return se.Kind.Retryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return matchesTransient(err.Error())
}

var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"network is unreachable",
	"no such host",
	"dns",
}

func matchesTransient(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
