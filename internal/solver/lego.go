package solver

import (
	"context"
	"strings"
	"time"

	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/challenge/dns01"
)

// Default propagation settings reported to lego.
const (
	DefaultPropagationTimeout = 90 * time.Second
	DefaultPollingInterval    = 5 * time.Second
)

// LegoProvider adapts a Solver to lego's dns-01 challenge.Provider.
type LegoProvider struct {
	solver   *Solver
	timeout  time.Duration
	interval time.Duration
}

var (
	_ challenge.Provider        = (*LegoProvider)(nil)
	_ challenge.ProviderTimeout = (*LegoProvider)(nil)
)

// NewLegoProvider wraps s. Zero durations select the defaults.
func NewLegoProvider(s *Solver, timeout, interval time.Duration) *LegoProvider {
	if timeout <= 0 {
		timeout = DefaultPropagationTimeout
	}
	if interval <= 0 {
		interval = DefaultPollingInterval
	}
	return &LegoProvider{solver: s, timeout: timeout, interval: interval}
}

// Present creates the TXT record for domain. The record is written under
// the _acme-challenge name itself; CNAME delegation is not followed. A
// wildcard domain validates at the name it covers, so "*.example.com" and
// "example.com" share a record.
func (p *LegoProvider) Present(domain, token, keyAuth string) error {
	info := dns01.GetChallengeInfo(unwildcard(domain), keyAuth)
	return p.solver.Present(context.Background(), info.FQDN, info.Value)
}

// CleanUp removes the TXT record created by Present.
func (p *LegoProvider) CleanUp(domain, token, keyAuth string) error {
	info := dns01.GetChallengeInfo(unwildcard(domain), keyAuth)
	return p.solver.CleanUp(context.Background(), info.FQDN, info.Value)
}

// Timeout returns how long lego waits for propagation and how often it checks.
func (p *LegoProvider) Timeout() (timeout, interval time.Duration) {
	return p.timeout, p.interval
}

func unwildcard(domain string) string {
	return strings.TrimPrefix(domain, "*.")
}
