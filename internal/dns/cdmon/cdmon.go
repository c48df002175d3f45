// Package cdmon publishes dns-01 validation records through the CDmon
// domains API.
package cdmon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yuriy-kovalchuk/yk-dns01-cdmon/internal/dns"
)

const (
	// DefaultAPIURL is the production CDmon domains API.
	DefaultAPIURL = "https://api-domains.cdmon.services/api-domains"
	// DefaultTTL keeps stale validation records short lived.
	DefaultTTL = 60
	// DefaultTimeout bounds a single HTTP request, not the retry sequence.
	DefaultTimeout = 30 * time.Second

	tracerName = "github.com/yuriy-kovalchuk/yk-dns01-cdmon/internal/dns/cdmon"

	pathList   = "dns/records"
	pathAdd    = "dns/record/add"
	pathEdit   = "dns/record/edit"
	pathDelete = "dns/record/delete"

	maxErrorBody = 512
)

// Config configures a Client. Only APIKey is required.
type Config struct {
	APIKey     string
	APIURL     string
	Timeout    time.Duration
	Retry      RetryPolicy
	HTTPClient *http.Client
	Metrics    *Metrics
}

// Client implements dns.RecordClient for CDmon. It holds no per-call state
// and is safe for concurrent use.
type Client struct {
	apiURL  string
	apiKey  string
	policy  RetryPolicy
	client  *http.Client
	metrics *Metrics
	tracer  trace.Tracer
	log     logr.Logger
}

var _ dns.RecordClient = (*Client)(nil)

// New creates a CDmon client. A zero Retry policy means DefaultRetryPolicy.
func New(log logr.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("cdmon: missing required setting 'api_key'")
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if !strings.HasPrefix(apiURL, "https://") && !strings.HasPrefix(apiURL, "http://") {
		return nil, fmt.Errorf("cdmon: invalid api_url %q", apiURL)
	}

	policy := cfg.Retry
	if policy == (RetryPolicy{}) {
		policy = DefaultRetryPolicy()
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiURL:  strings.TrimRight(apiURL, "/"),
		apiKey:  cfg.APIKey,
		policy:  policy,
		client:  client,
		metrics: cfg.Metrics,
		tracer:  otel.Tracer(tracerName),
		log:     log,
	}, nil
}

// apiResponse is the envelope returned by every CDmon endpoint.
type apiResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Records []wireRecord `json:"records"`
		Result  []wireRecord `json:"result"`
	} `json:"data"`
}

func (r *apiResponse) ok() bool {
	return r.Success || strings.EqualFold(r.Status, "success") || strings.EqualFold(r.Status, "ok")
}

func (r *apiResponse) records() []wireRecord {
	if len(r.Data.Records) > 0 {
		return r.Data.Records
	}
	return r.Data.Result
}

// wireRecord is a DNS record as returned by the list endpoint. Older API
// revisions use host/value instead of name/content.
type wireRecord struct {
	ID      RecordID    `json:"id"`
	Type    string      `json:"type"`
	Name    string      `json:"name"`
	Host    string      `json:"host"`
	Content string      `json:"content"`
	Value   string      `json:"value"`
	TTL     json.Number `json:"ttl"`
}

func (w wireRecord) record() dns.Record {
	host := w.Name
	if host == "" {
		host = w.Host
	}
	value := w.Content
	if value == "" {
		value = w.Value
	}
	ttl, _ := w.TTL.Int64()
	return dns.Record{
		ID:    string(w.ID),
		Type:  strings.ToUpper(w.Type),
		Host:  strings.TrimSuffix(host, "."),
		Value: dns.StripQuotes(value),
		TTL:   int(ttl),
	}
}

// RecordID is an opaque record identifier that the API encodes either as a
// JSON number or a string.
type RecordID string

func (id *RecordID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("record id %s: %w", string(b), err)
	}
	*id = RecordID(n.String())
	return nil
}

func (id RecordID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// post performs a single API call. The domain and token fields are added to
// body. Failures are returned as *dns.APIError.
func (c *Client) post(ctx context.Context, op string, target dns.Target, path string, body map[string]any) (*apiResponse, error) {
	ctx, span := c.tracer.Start(ctx, "cdmon.api."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("cdmon.path", path),
		attribute.String("dns.domain", target.BaseDomain),
		attribute.String("dns.host", target.Host()),
	)

	fail := func(kind error, status int, msg string, err error) (*apiResponse, error) {
		c.metrics.request(op, "error")
		apiErr := &dns.APIError{
			Kind:       kind,
			Op:         op,
			Domain:     target.BaseDomain,
			Host:       target.Host(),
			StatusCode: status,
			Message:    msg,
			Err:        err,
		}
		span.RecordError(apiErr)
		return nil, apiErr
	}

	if body == nil {
		body = map[string]any{}
	}
	body["domain"] = target.BaseDomain
	body["token"] = c.apiKey

	data, err := json.Marshal(body)
	if err != nil {
		return fail(dns.ErrPermanent, 0, "marshal request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+path, bytes.NewReader(data))
	if err != nil {
		return fail(dns.ErrPermanent, 0, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fail(dns.ErrTransient, 0, "", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(dns.ErrTransient, resp.StatusCode, "read response body", err)
	}

	var ar apiResponse
	decodeErr := json.Unmarshal(raw, &ar)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ar.Message
		if msg == "" {
			msg = truncate(strings.TrimSpace(string(raw)), maxErrorBody)
		}
		return fail(classifyStatus(op, resp.StatusCode, msg), resp.StatusCode, msg, nil)
	}
	if decodeErr != nil {
		return fail(dns.ErrPermanent, resp.StatusCode, "decode response", decodeErr)
	}
	if !ar.ok() {
		msg := ar.Message
		if msg == "" {
			msg = "request was not successful"
		}
		return fail(classifyMessage(msg), resp.StatusCode, msg, nil)
	}

	c.metrics.request(op, "ok")
	return &ar, nil
}

// retry runs fn under the client's retry policy. fn receives the 1-based
// attempt number. Only dns.ErrTransient failures are retried.
func (c *Client) retry(ctx context.Context, op string, fn func(attempt int) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn(attempt)
		if err != nil && !dns.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		c.metrics.retry(op)
		c.log.Info("retrying after transient error", "op", op, "attempt", attempt, "backoff", next.String(), "error", err.Error())
	}
	return backoff.RetryNotify(operation, c.policy.backOff(ctx), notify)
}

// classifyStatus maps an HTTP status to a failure class. For update and
// delete a 404 usually means the record is gone, so the message decides.
func classifyStatus(op string, status int, msg string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return dns.ErrAuthentication
	case status == http.StatusNotFound && op != "update" && op != "delete":
		return dns.ErrDomainNotFound
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return dns.ErrTransient
	default:
		return classifyMessage(msg)
	}
}

// classifyMessage inspects a "success": false message. The API reports both
// English and Spanish messages.
func classifyMessage(msg string) error {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, "token", "api key", "apikey", "unauthori", "forbidden", "no autorizado"):
		return dns.ErrAuthentication
	case strings.Contains(m, "domain") || strings.Contains(m, "dominio"):
		if containsAny(m, "not found", "not exist", "unknown", "no existe", "no encontrado") {
			return dns.ErrDomainNotFound
		}
	}
	return dns.ErrPermanent
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
