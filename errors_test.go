package gridstream

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorIs(t *testing.T) {
	err := &Error{
		Kind:   ErrNotFound,
		Op:     "Fetch",
		Source: "mrms",
		URL:    "https://example.invalid/x",
		Inner:  fmt.Errorf("status 404"),
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("kind comparison failed")
	}
	if errors.Is(err, ErrForbidden) {
		t.Error("matched the wrong kind")
	}

	wrapped := fmt.Errorf("extracting point: %w", err)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("kind lost through fmt.Errorf wrapping")
	}
	var domain *Error
	if !errors.As(wrapped, &domain) || domain.Source != "mrms" {
		t.Errorf("errors.As: %+v", domain)
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{
		Kind:    ErrRateLimited,
		Op:      "Get",
		Source:  "prism",
		Message: "slow down",
		Inner:   fmt.Errorf("status 429"),
	}
	s := err.Error()
	for _, want := range []string{"Get", "rate limited", "prism", "slow down", "status 429"} {
		if !strings.Contains(s, want) {
			t.Errorf("%q missing from %q", want, s)
		}
	}
}

func TestErrorChain(t *testing.T) {
	inner := &Error{Kind: ErrNotFound, Message: "no such object"}
	outer := &Error{Kind: ErrAllProxiesFailed, Inner: inner}
	// Both the outer classification and the innermost cause are visible.
	if !errors.Is(outer, ErrAllProxiesFailed) || !errors.Is(outer, ErrNotFound) {
		t.Errorf("chain lookup failed: %v", outer)
	}
}
