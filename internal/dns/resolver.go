package dns

import (
	"strings"

	mdns "github.com/miekg/dns"
)

// Target is the provider-side location of a validation record.
type Target struct {
	BaseDomain string // zone known to the provider account, e.g. "example.com"
	Subdomain  string // labels between "_acme-challenge" and BaseDomain; "" at the apex
}

// Host returns the record host relative to BaseDomain.
func (t Target) Host() string {
	return ChallengeHost(t.Subdomain)
}

// Resolver maps validation names to a Target.
//
// Without a configured base domain or zone list the base domain is assumed to
// be the last two labels of the name. That heuristic is wrong for multi-label
// public suffixes such as "co.uk"; set BaseDomain (or Zones) to handle them.
type Resolver struct {
	// BaseDomain, when it is a label-aligned suffix of the name, is always used.
	BaseDomain string
	// Zones lists zones known to the account. The longest matching zone wins.
	Zones []string
}

// NewResolver returns a Resolver with normalized configuration.
func NewResolver(baseDomain string, zones ...string) *Resolver {
	r := &Resolver{BaseDomain: normalizeName(baseDomain)}
	for _, z := range zones {
		if z = normalizeName(z); z != "" {
			r.Zones = append(r.Zones, z)
		}
	}
	return r
}

// Resolve splits fqdn (e.g. "_acme-challenge.www.example.com.") into a base
// domain and subdomain.
func (r *Resolver) Resolve(fqdn string) (Target, error) {
	name := normalizeName(fqdn)
	if name == "" {
		return Target{}, &ResolutionError{FQDN: fqdn, Reason: "empty name"}
	}
	if _, ok := mdns.IsDomainName(name); !ok {
		return Target{}, &ResolutionError{FQDN: fqdn, Reason: "malformed domain name"}
	}

	labels := mdns.SplitDomainName(name)
	if len(labels) == 0 || labels[0] != ChallengeLabel {
		return Target{}, &ResolutionError{FQDN: fqdn, Reason: "name does not start with " + ChallengeLabel}
	}
	rest := labels[1:]
	if len(rest) < 2 {
		return Target{}, &ResolutionError{FQDN: fqdn, Reason: "fewer than two labels after " + ChallengeLabel}
	}
	for _, l := range rest {
		if strings.Contains(l, "*") {
			return Target{}, &ResolutionError{FQDN: fqdn, Reason: "wildcard label " + l}
		}
	}
	domain := strings.Join(rest, ".")

	if base := normalizeName(r.BaseDomain); base != "" && isLabelSuffix(base, domain) {
		return split(rest, base), nil
	}

	if zone, ok := r.lookupZone(rest); ok {
		return split(rest, zone), nil
	}

	return split(rest, strings.Join(rest[len(rest)-2:], ".")), nil
}

// lookupZone walks up the labels of the name, so the first hit is the
// longest configured zone the name falls under.
func (r *Resolver) lookupZone(labels []string) (string, bool) {
	if len(r.Zones) == 0 {
		return "", false
	}
	known := make(map[string]struct{}, len(r.Zones))
	for _, z := range r.Zones {
		known[normalizeName(z)] = struct{}{}
	}
	for i := range labels {
		candidate := strings.Join(labels[i:], ".")
		if _, ok := known[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

// isLabelSuffix reports whether parent equals child or is a parent zone of
// it on label boundaries ("example.com" is not a suffix of "notexample.com").
func isLabelSuffix(parent, child string) bool {
	return mdns.IsSubDomain(mdns.Fqdn(parent), mdns.Fqdn(child))
}

// split assumes base is a label suffix of labels.
func split(labels []string, base string) Target {
	n := len(labels) - mdns.CountLabel(base)
	if n < 0 {
		n = 0
	}
	return Target{
		BaseDomain: base,
		Subdomain:  strings.Join(labels[:n], "."),
	}
}
