// Package solver ties domain resolution to a record client so callers can
// publish and remove dns-01 validation records by full challenge name.
package solver

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns01-cdmon/internal/dns"
)

// Solver resolves a validation name and forwards the record change to a
// RecordClient. It holds no mutable state and is safe for concurrent use.
type Solver struct {
	resolver *dns.Resolver
	client   dns.RecordClient
	log      logr.Logger
}

// New creates a Solver.
func New(log logr.Logger, resolver *dns.Resolver, client dns.RecordClient) *Solver {
	return &Solver{resolver: resolver, client: client, log: log}
}

// Present publishes value at fqdn, which must start with _acme-challenge.
func (s *Solver) Present(ctx context.Context, fqdn, value string) error {
	target, err := s.resolver.Resolve(fqdn)
	if err != nil {
		return err
	}
	log := s.log.WithValues("fqdn", fqdn, "domain", target.BaseDomain, "subdomain", target.Subdomain)
	log.Info("presenting challenge record")

	if err := s.client.Present(ctx, target.BaseDomain, target.Subdomain, value); err != nil {
		return fmt.Errorf("present %s: %w", fqdn, err)
	}
	return nil
}

// CleanUp removes value from fqdn. A record that is already gone is not an
// error.
func (s *Solver) CleanUp(ctx context.Context, fqdn, value string) error {
	target, err := s.resolver.Resolve(fqdn)
	if err != nil {
		return err
	}
	log := s.log.WithValues("fqdn", fqdn, "domain", target.BaseDomain, "subdomain", target.Subdomain)
	log.Info("cleaning up challenge record")

	if err := s.client.CleanUp(ctx, target.BaseDomain, target.Subdomain, value); err != nil {
		return fmt.Errorf("clean up %s: %w", fqdn, err)
	}
	return nil
}
