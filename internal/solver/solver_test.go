package solver

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns01-cdmon/internal/dns"
)

type call struct {
	op, base, sub, value string
}

type recordingClient struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (c *recordingClient) Present(_ context.Context, base, sub, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call{"present", base, sub, value})
	return c.err
}

func (c *recordingClient) CleanUp(_ context.Context, base, sub, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call{"cleanup", base, sub, value})
	return c.err
}

func TestSolverForwardsResolvedTarget(t *testing.T) {
	tests := []struct {
		fqdn       string
		baseDomain string
		wantBase   string
		wantSub    string
	}{
		{"_acme-challenge.example.com", "", "example.com", ""},
		{"_acme-challenge.www.example.com.", "", "example.com", "www"},
		{"_acme-challenge.app.sub.example.com", "sub.example.com", "sub.example.com", "app"},
	}
	for _, tt := range tests {
		t.Run(tt.fqdn, func(t *testing.T) {
			client := &recordingClient{}
			s := New(logr.Discard(), dns.NewResolver(tt.baseDomain), client)
			ctx := context.Background()

			if err := s.Present(ctx, tt.fqdn, "v1"); err != nil {
				t.Fatalf("Present: %v", err)
			}
			if err := s.CleanUp(ctx, tt.fqdn, "v1"); err != nil {
				t.Fatalf("CleanUp: %v", err)
			}

			want := []call{
				{"present", tt.wantBase, tt.wantSub, "v1"},
				{"cleanup", tt.wantBase, tt.wantSub, "v1"},
			}
			if len(client.calls) != len(want) {
				t.Fatalf("expected %d calls, got %+v", len(want), client.calls)
			}
			for i := range want {
				if client.calls[i] != want[i] {
					t.Errorf("call %d: got %+v, want %+v", i, client.calls[i], want[i])
				}
			}
		})
	}
}

func TestSolverResolutionErrorSkipsClient(t *testing.T) {
	client := &recordingClient{}
	s := New(logr.Discard(), dns.NewResolver(""), client)

	for _, fqdn := range []string{"www.example.com", "_acme-challenge.localhost", ""} {
		if err := s.Present(context.Background(), fqdn, "v"); !errors.Is(err, dns.ErrDomainResolution) {
			t.Errorf("Present(%q): expected resolution error, got %v", fqdn, err)
		}
		if err := s.CleanUp(context.Background(), fqdn, "v"); !errors.Is(err, dns.ErrDomainResolution) {
			t.Errorf("CleanUp(%q): expected resolution error, got %v", fqdn, err)
		}
	}
	if len(client.calls) != 0 {
		t.Errorf("expected no client calls, got %+v", client.calls)
	}
}

func TestSolverWrapsClientErrors(t *testing.T) {
	apiErr := &dns.APIError{Kind: dns.ErrAuthentication, Op: "list", Domain: "example.com"}
	client := &recordingClient{err: apiErr}
	s := New(logr.Discard(), dns.NewResolver(""), client)

	err := s.Present(context.Background(), "_acme-challenge.example.com", "v")
	if !errors.Is(err, dns.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	var got *dns.APIError
	if !errors.As(err, &got) || got != apiErr {
		t.Errorf("expected the client's *dns.APIError in the chain, got %v", err)
	}
}

func TestLegoProvider(t *testing.T) {
	t.Setenv("LEGO_DISABLE_CNAME_SUPPORT", "true")

	client := &recordingClient{}
	p := NewLegoProvider(New(logr.Discard(), dns.NewResolver(""), client), 0, 0)

	keyAuth := "token.thumbprint"
	sum := sha256.Sum256([]byte(keyAuth))
	value := base64.RawURLEncoding.EncodeToString(sum[:])

	if err := p.Present("*.example.com", "token", keyAuth); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if err := p.CleanUp("*.example.com", "token", keyAuth); err != nil {
		t.Fatalf("CleanUp: %v", err)
	}

	want := []call{
		{"present", "example.com", "", value},
		{"cleanup", "example.com", "", value},
	}
	if len(client.calls) != len(want) {
		t.Fatalf("expected %d calls, got %+v", len(want), client.calls)
	}
	for i := range want {
		if client.calls[i] != want[i] {
			t.Errorf("call %d: got %+v, want %+v", i, client.calls[i], want[i])
		}
	}

	timeout, interval := p.Timeout()
	if timeout != DefaultPropagationTimeout || interval != DefaultPollingInterval {
		t.Errorf("Timeout(): got (%s, %s), want defaults", timeout, interval)
	}
}

func TestLegoProviderCustomTimeout(t *testing.T) {
	p := NewLegoProvider(nil, 2*time.Minute, 10*time.Second)
	timeout, interval := p.Timeout()
	if timeout != 2*time.Minute || interval != 10*time.Second {
		t.Errorf("Timeout(): got (%s, %s), want (2m0s, 10s)", timeout, interval)
	}
}
