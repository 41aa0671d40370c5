// Package match decides whether a style document applies to a URL.
//
// A style carries an ordered set of domain rules, each either an
// inclusion or an exclusion. Evaluation runs exclusions first: any
// matching exclusion wins outright. Otherwise the style applies when
// any inclusion matches, or when the rule set holds only exclusions
// and none of them matched. An empty rule set never matches anything;
// styles must opt in explicitly.
//
// All matching is case-insensitive against a normalized form of the
// URL (lowercased scheme and host, default port stripped, trailing
// slash stripped).
package match

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/KiKaraage/eastyles-sub002/pkg/style"
)

// Matcher evaluates domain rules against URLs. It caches compiled
// regexp rules; an invalid pattern is cached as never-matching rather
// than surfaced to the caller.
type Matcher struct {
	mu      sync.Mutex
	regexps map[string]*regexp.Regexp // nil value marks an invalid pattern
}

// New creates a Matcher with an empty pattern cache.
func New() *Matcher {
	return &Matcher{regexps: make(map[string]*regexp.Regexp)}
}

// Matches reports whether rawURL satisfies the rule set.
func (m *Matcher) Matches(rawURL string, rules []style.DomainRule) bool {
	if len(rules) == 0 {
		return false
	}
	norm, host := Normalize(rawURL)

	// Exclusions always win over inclusions.
	for _, r := range rules {
		if !r.Include && m.ruleMatches(r, norm, host) {
			return false
		}
	}

	hasInclude := false
	for _, r := range rules {
		if !r.Include {
			continue
		}
		hasInclude = true
		if m.ruleMatches(r, norm, host) {
			return true
		}
	}

	// A purely negative rule set with no matching exclusion allows by
	// default. Inherited policy; keep exactly as is.
	return !hasInclude
}

// Verdict explains how one rule evaluated against a URL.
type Verdict struct {
	Rule    style.DomainRule
	Matched bool
}

// Explain evaluates every rule independently and returns one verdict
// per rule in rule order. Used by diagnostic surfaces; the boolean
// outcome of Matches is not derivable from verdicts alone because of
// the exclusion-first pass ordering.
func (m *Matcher) Explain(rawURL string, rules []style.DomainRule) []Verdict {
	norm, host := Normalize(rawURL)
	out := make([]Verdict, len(rules))
	for i, r := range rules {
		out[i] = Verdict{Rule: r, Matched: m.ruleMatches(r, norm, host)}
	}
	return out
}

func (m *Matcher) ruleMatches(r style.DomainRule, norm, host string) bool {
	pattern := strings.ToLower(r.Pattern)
	switch r.Kind {
	case style.RuleDomain:
		return domainMatches(host, pattern)
	case style.RuleURLPrefix:
		// Patterns go through the same normalization as the URL, so a
		// default port or trailing slash in either side is immaterial.
		pnorm, _ := Normalize(pattern)
		return strings.HasPrefix(strings.ToLower(norm), pnorm)
	case style.RuleURL:
		pnorm, _ := Normalize(pattern)
		return strings.ToLower(norm) == pnorm
	case style.RuleRegexp:
		re := m.compiled(r.Pattern)
		return re != nil && re.MatchString(norm)
	}
	return false
}

// compiled returns the cached case-insensitive regexp for pattern, or
// nil when the pattern does not compile.
func (m *Matcher) compiled(pattern string) *regexp.Regexp {
	m.mu.Lock()
	defer m.mu.Unlock()
	if re, ok := m.regexps[pattern]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
	}
	m.regexps[pattern] = re
	return re
}

// Normalize lowercases the scheme and host of rawURL, strips the
// scheme's default port and any trailing slash, and returns the
// normalized URL alongside the bare host. An unparseable URL falls
// back to lowercasing the raw string with an empty host.
func Normalize(rawURL string) (norm, host string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return strings.TrimSuffix(strings.ToLower(rawURL), "/"), ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host = strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" || isDefaultPort(u.Scheme, port) {
		u.Host = host
	} else {
		u.Host = host + ":" + port
	}
	return strings.TrimSuffix(u.String(), "/"), host
}

func isDefaultPort(scheme, port string) bool {
	switch scheme {
	case "http", "ws":
		return port == "80"
	case "https", "wss":
		return port == "443"
	}
	return false
}

// domainMatches implements the domain rule kind. A "*.base" pattern
// covers base itself and any subdomain. A bare pattern matches
// exact-equal hosts and bidirectional subdomain containment, so a
// parent-domain pattern covers its subdomains and vice versa. A
// leading "www." is equivalent to the bare form in either direction.
func domainMatches(host, pattern string) bool {
	host = strings.TrimPrefix(host, "www.")
	if host == "" || pattern == "" {
		return false
	}
	if base, ok := strings.CutPrefix(pattern, "*."); ok {
		base = strings.TrimPrefix(base, "www.")
		return host == base || strings.HasSuffix(host, "."+base)
	}
	pattern = strings.TrimPrefix(pattern, "www.")
	return host == pattern ||
		strings.HasSuffix(host, "."+pattern) ||
		strings.HasSuffix(pattern, "."+host)
}
