// Package device renders user agents into the short labels presence
// listings show and into fingerprints join logs carry.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
)

// ParseUserAgent renders a user agent as a short human label, for example
// "Chrome on Macintosh" or "Safari on iPhone".
func ParseUserAgent(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "Unknown Device"
	}

	ua := useragent.New(raw)
	name, _ := ua.Browser()
	if name == "" {
		name = "Unknown Browser"
	}
	platform := ua.Platform()
	if platform == "" {
		platform = ua.OS()
	}
	if platform == "" {
		platform = "Unknown OS"
	}
	return strings.TrimSpace(name + " on " + platform)
}

// Service computes device fingerprints for connection logs. Disabled, it
// returns empty fingerprints so callers can log unconditionally.
type Service struct {
	enabled bool
}

func NewService(enabled bool) *Service {
	return &Service{enabled: enabled}
}

// ComputeFingerprint hashes the stable parts of a user agent. Minor browser
// releases keep the fingerprint; a major version or platform change moves
// it.
func (s *Service) ComputeFingerprint(raw string) string {
	if s == nil || !s.enabled {
		return ""
	}

	ua := useragent.New(raw)
	name, version := ua.Browser()
	major, _, _ := strings.Cut(version, ".")

	sum := sha256.Sum256([]byte(name + "|" + major + "|" + ua.OS() + "|" + ua.Platform()))
	return hex.EncodeToString(sum[:])
}
