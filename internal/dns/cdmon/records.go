package cdmon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yuriy-kovalchuk/yk-dns01-cdmon/internal/dns"
)

// ListRecords returns the TXT records of target's base domain whose host is
// the challenge host. Transient failures are retried.
func (c *Client) ListRecords(ctx context.Context, target dns.Target) ([]dns.Record, error) {
	var records []dns.Record
	err := c.retry(ctx, "list", func(int) error {
		var err error
		records, err = c.listOnce(ctx, target)
		return err
	})
	return records, err
}

func (c *Client) listOnce(ctx context.Context, target dns.Target) ([]dns.Record, error) {
	resp, err := c.post(ctx, "list", target, pathList, nil)
	if err != nil {
		return nil, err
	}
	host := target.Host()
	var out []dns.Record
	for _, w := range resp.records() {
		rec := w.record()
		if rec.Type == dns.TypeTXT && rec.Host == host {
			out = append(out, rec)
		}
	}
	c.log.V(1).Info("listed records", "domain", target.BaseDomain, "host", host, "matching", len(out), "total", len(resp.records()))
	return out, nil
}

// Present makes sure exactly one TXT record at the challenge host carries
// value. An existing record at the host is updated in place; otherwise a new
// record is created with DefaultTTL.
func (c *Client) Present(ctx context.Context, baseDomain, subdomain, value string) error {
	target := dns.Target{BaseDomain: baseDomain, Subdomain: subdomain}
	host := target.Host()
	log := c.log.WithValues("domain", baseDomain, "host", host)

	ctx, span := c.tracer.Start(ctx, "cdmon.Present")
	defer span.End()
	span.SetAttributes(attribute.String("dns.domain", baseDomain), attribute.String("dns.host", host))

	records, err := c.ListRecords(ctx, target)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("cdmon: present %s in %s: %w", host, baseDomain, err)
	}

	if same := withValue(records, value); len(same) > 0 {
		log.Info("record already present", "id", same[0].ID)
		c.metrics.change("kept")
		if err := c.collapse(ctx, target, same); err != nil {
			span.RecordError(err)
			return fmt.Errorf("cdmon: present %s in %s: %w", host, baseDomain, err)
		}
		return nil
	}

	if len(records) > 0 {
		rec := records[0]
		log.Info("updating record", "id", rec.ID, "value", value)
		err := c.updateRecord(ctx, target, rec.ID, value)
		if err == nil {
			c.metrics.change("updated")
			log.Info("record updated", "id", rec.ID)
			return nil
		}
		if dns.IsRetryable(err) || !c.gone(ctx, target, rec.ID) {
			span.RecordError(err)
			return fmt.Errorf("cdmon: present %s in %s: %w", host, baseDomain, err)
		}
		log.Info("record removed before it could be updated, creating a new one", "id", rec.ID)
	}

	log.Info("creating record", "value", value, "ttl", DefaultTTL)
	if err := c.createRecord(ctx, target, value); err != nil {
		span.RecordError(err)
		return fmt.Errorf("cdmon: present %s in %s: %w", host, baseDomain, err)
	}
	c.metrics.change("created")
	log.Info("record created")

	// The list-then-create sequence is not atomic. Re-list so a concurrent
	// create for the same value collapses to a single record.
	records, err = c.ListRecords(ctx, target)
	if err != nil {
		log.Info("could not verify record after create, duplicates will be collapsed on the next present", "error", err.Error())
		return nil
	}
	if err := c.collapse(ctx, target, withValue(records, value)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("cdmon: present %s in %s: %w", host, baseDomain, err)
	}
	return nil
}

// CleanUp deletes the TXT records at the challenge host that carry value.
// Records with other values are left alone, and a missing record is not an
// error.
func (c *Client) CleanUp(ctx context.Context, baseDomain, subdomain, value string) error {
	target := dns.Target{BaseDomain: baseDomain, Subdomain: subdomain}
	host := target.Host()
	log := c.log.WithValues("domain", baseDomain, "host", host)

	ctx, span := c.tracer.Start(ctx, "cdmon.CleanUp")
	defer span.End()
	span.SetAttributes(attribute.String("dns.domain", baseDomain), attribute.String("dns.host", host))

	records, err := c.ListRecords(ctx, target)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("cdmon: clean up %s in %s: %w", host, baseDomain, err)
	}

	matches := withValue(records, value)
	if len(matches) == 0 {
		log.Info("no matching record, nothing to clean up", "others", len(records))
		return nil
	}

	var errs []error
	for _, rec := range matches {
		log.Info("deleting record", "id", rec.ID)
		if err := c.deleteRecord(ctx, target, rec.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		c.metrics.change("deleted")
		log.Info("record deleted", "id", rec.ID)
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return fmt.Errorf("cdmon: clean up %s in %s: %w", host, baseDomain, err)
	}
	return nil
}

// createRecord adds a TXT record. A create whose response was lost may still
// have been applied, so retries first check whether the record now exists.
func (c *Client) createRecord(ctx context.Context, target dns.Target, value string) error {
	return c.retry(ctx, "create", func(attempt int) error {
		if attempt > 1 {
			records, err := c.listOnce(ctx, target)
			if err != nil {
				return err
			}
			if len(withValue(records, value)) > 0 {
				c.log.Info("record appeared after a failed create, not creating again", "domain", target.BaseDomain, "host", target.Host())
				return nil
			}
		}
		_, err := c.post(ctx, "create", target, pathAdd, map[string]any{
			"type":    dns.TypeTXT,
			"name":    target.Host(),
			"content": value,
			"ttl":     DefaultTTL,
		})
		return err
	})
}

func (c *Client) updateRecord(ctx context.Context, target dns.Target, id, value string) error {
	return c.retry(ctx, "update", func(int) error {
		_, err := c.post(ctx, "update", target, pathEdit, map[string]any{
			"id":      RecordID(id),
			"type":    dns.TypeTXT,
			"name":    target.Host(),
			"content": value,
			"ttl":     DefaultTTL,
		})
		return err
	})
}

// deleteRecord removes a record by ID. A delete that fails permanently is
// checked against a fresh listing: the record may have been removed by an
// earlier attempt whose response was lost, or by a concurrent caller, and a
// record that is gone counts as deleted.
func (c *Client) deleteRecord(ctx context.Context, target dns.Target, id string) error {
	return c.retry(ctx, "delete", func(attempt int) error {
		_, err := c.post(ctx, "delete", target, pathDelete, map[string]any{
			"id": RecordID(id),
		})
		if err == nil || dns.IsRetryable(err) {
			return err
		}
		if c.gone(ctx, target, id) {
			c.log.Info("record already gone", "domain", target.BaseDomain, "id", id, "attempt", attempt)
			return nil
		}
		return err
	})
}

// gone reports whether a fresh listing shows that record id no longer
// exists. A failed listing reports false.
func (c *Client) gone(ctx context.Context, target dns.Target, id string) bool {
	records, err := c.listOnce(ctx, target)
	return err == nil && !containsID(records, id)
}

// collapse keeps the record with the lowest ID and deletes the others.
func (c *Client) collapse(ctx context.Context, target dns.Target, same []dns.Record) error {
	if len(same) < 2 {
		return nil
	}
	sort.Slice(same, func(i, j int) bool { return lessID(same[i].ID, same[j].ID) })
	for _, dup := range same[1:] {
		c.log.Info("deleting duplicate record", "domain", target.BaseDomain, "host", target.Host(), "id", dup.ID, "kept", same[0].ID)
		if err := c.deleteRecord(ctx, target, dup.ID); err != nil {
			return err
		}
		c.metrics.change("collapsed")
	}
	return nil
}

func withValue(records []dns.Record, value string) []dns.Record {
	var out []dns.Record
	for _, r := range records {
		if r.Value == value {
			out = append(out, r)
		}
	}
	return out
}

func containsID(records []dns.Record, id string) bool {
	for _, r := range records {
		if r.ID == id {
			return true
		}
	}
	return false
}

// lessID orders numeric IDs numerically and everything else lexically.
func lessID(a, b string) bool {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return x < y
	}
	return a < b
}
