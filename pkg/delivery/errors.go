package delivery

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KiKaraage/eastyles-sub002/pkg/host"
)

// Sentinel errors for delivery operations.
var (
	// ErrNoPrivilegedAPI is returned when the privileged strategy is
	// attempted without a host-mediated inserter.
	ErrNoPrivilegedAPI = errors.New("privileged insertion API unavailable")

	// ErrClosed is returned for operations on a closed engine.
	ErrClosed = errors.New("delivery engine closed")
)

// PolicyViolation is a delivery failure attributable to a security
// restriction of the page, carrying a structured diagnostic and a
// remediation suggestion. It propagates only after every
// remediation-specific fallback strategy has also failed.
type PolicyViolation struct {
	StyleID string

	// Directive is the violated policy rule category.
	Directive string

	// Reason is a human-readable explanation.
	Reason string

	// Remediation suggests what would unblock delivery.
	Remediation Remediation

	// Strategy is the strategy that hit the violation.
	Strategy Strategy

	// Err is the underlying host error.
	Err error
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("style %s: %s delivery blocked by policy (%s): %s; remediation: %s",
		e.StyleID, e.Strategy, e.Directive, e.Reason, e.Remediation)
}

func (e *PolicyViolation) Unwrap() error { return e.Err }

// DeliveryFailure reports that every strategy was exhausted for one
// style. It aggregates every underlying error.
type DeliveryFailure struct {
	StyleID string
	Errs    []error
}

func (e *DeliveryFailure) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("style %s: all %d delivery strategies failed: %s",
		e.StyleID, len(e.Errs), strings.Join(msgs, "; "))
}

func (e *DeliveryFailure) Unwrap() []error { return e.Errs }

// classifyPolicy inspects a strategy failure. When the error carries a
// policy-violation signature it builds the structured diagnostic,
// otherwise it reports false and the universal fallback order applies.
func classifyPolicy(styleID string, s Strategy, err error) (*PolicyViolation, bool) {
	var pe *host.PolicyError
	if !errors.As(err, &pe) {
		return nil, false
	}
	return &PolicyViolation{
		StyleID:     styleID,
		Directive:   pe.Directive,
		Reason:      fmt.Sprintf("page policy blocked %s delivery: %s", s, pe.Reason),
		Remediation: remediationFor(pe.Directive),
		Strategy:    s,
		Err:         err,
	}, true
}

// remediationFor maps a violated directive category to a remediation
// suggestion. Host-permission problems need the host to grant access;
// page-level style restrictions are bypassed by the host-mediated API;
// anything else needs the user.
func remediationFor(directive string) Remediation {
	switch {
	case strings.Contains(directive, "host-permission"):
		return RemediationHostPermission
	case strings.Contains(directive, "style-src"), strings.Contains(directive, "trusted-types"):
		return RemediationPrivilegedAPI
	default:
		return RemediationUserAction
	}
}
