package dns

import (
	"errors"
	"fmt"
	"strings"
)

// Failure classes surfaced to callers. Match them with errors.Is.
var (
	ErrDomainResolution = errors.New("domain resolution failed")
	ErrAuthentication   = errors.New("authentication failed")
	ErrDomainNotFound   = errors.New("domain not found")
	ErrTransient        = errors.New("transient API error")
	ErrPermanent        = errors.New("permanent API error")
)

// ResolutionError reports a validation name that cannot be mapped to a
// base domain.
type ResolutionError struct {
	FQDN   string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %s", e.FQDN, e.Reason)
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrDomainResolution
}

// APIError is returned by provider clients for every failed call. Kind is one
// of ErrAuthentication, ErrDomainNotFound, ErrTransient or ErrPermanent.
type APIError struct {
	Kind       error
	Op         string // list, create, update, delete
	Domain     string
	Host       string
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Op, e.Domain)
	if e.Host != "" {
		fmt.Fprintf(&b, " host=%s", e.Host)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Kind != nil {
		fmt.Fprintf(&b, " (%v)", e.Kind)
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
