package dns

import (
	"strings"
)

// ChallengeHost returns the record host relative to the base domain.
// e.g. "" → "_acme-challenge"
// e.g. "www" → "_acme-challenge.www"
func ChallengeHost(subdomain string) string {
	subdomain = strings.Trim(subdomain, ".")
	if subdomain == "" {
		return ChallengeLabel
	}
	if subdomain == ChallengeLabel || strings.HasPrefix(subdomain, ChallengeLabel+".") {
		return subdomain
	}
	return ChallengeLabel + "." + subdomain
}

// StripQuotes removes one pair of surrounding double quotes, which some
// providers add to TXT content.
func StripQuotes(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	return value
}

// normalizeName lowercases a DNS name and drops the root label.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
}
