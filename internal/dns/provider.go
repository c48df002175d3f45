package dns

import "context"

// TypeTXT is the only record type managed by this module.
const TypeTXT = "TXT"

// ChallengeLabel is the leftmost label of every dns-01 validation name.
const ChallengeLabel = "_acme-challenge"

// Record represents a TXT record as stored by a DNS provider.
type Record struct {
	ID    string // opaque, provider assigned
	Type  string // always "TXT"
	Host  string // relative to the base domain, e.g. "_acme-challenge.www"
	Value string
	TTL   int
}

// RecordClient is implemented by providers that can publish and remove
// dns-01 validation records inside a base domain.
type RecordClient interface {
	Present(ctx context.Context, baseDomain, subdomain, value string) error
	CleanUp(ctx context.Context, baseDomain, subdomain, value string) error
}
