// Package style defines the user style document model shared by the
// matcher, variable resolver, delivery engine, and registry backends.
//
// A [Document] is the unit the registry stores and the page controller
// applies: precompiled style text with embedded variable placeholders,
// an ordered set of domain rules deciding where it applies, and the
// user-adjustable variables referenced by the placeholders.
package style

import (
	"fmt"
	"time"
)

// RuleKind identifies how a domain rule pattern is interpreted.
type RuleKind string

// Supported rule kinds.
const (
	RuleDomain    RuleKind = "domain"
	RuleURL       RuleKind = "url"
	RuleURLPrefix RuleKind = "url-prefix"
	RuleRegexp    RuleKind = "regexp"
)

// ValidRuleKinds is the set of accepted rule kinds.
var ValidRuleKinds = map[RuleKind]bool{
	RuleDomain:    true,
	RuleURL:       true,
	RuleURLPrefix: true,
	RuleRegexp:    true,
}

// DomainRule is one applicability predicate against a URL.
// Include=true is a positive rule; Include=false is an exclusion.
type DomainRule struct {
	Kind    RuleKind `toml:"kind" json:"kind"`
	Pattern string   `toml:"pattern" json:"pattern"`
	Include bool     `toml:"include" json:"include"`
}

// VariableType is the declared type of a user-adjustable variable.
type VariableType string

// Supported variable types. Unrecognized declared types map to VarUnknown.
const (
	VarColor   VariableType = "color"
	VarNumber  VariableType = "number"
	VarText    VariableType = "text"
	VarSelect  VariableType = "select"
	VarUnknown VariableType = "unknown"
)

// ValidVariableTypes is the set of accepted variable types.
var ValidVariableTypes = map[VariableType]bool{
	VarColor:   true,
	VarNumber:  true,
	VarText:    true,
	VarSelect:  true,
	VarUnknown: true,
}

// Variable is a named, typed, user-adjustable parameter with a default.
type Variable struct {
	Name    string       `toml:"name" json:"name"`
	Type    VariableType `toml:"type" json:"type"`
	Default string       `toml:"default" json:"default"`
	Value   string       `toml:"value,omitempty" json:"value,omitempty"`

	// Min and Max bound number variables. Nil means unbounded.
	Min *float64 `toml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `toml:"max,omitempty" json:"max,omitempty"`

	// Options lists the choices of a select variable.
	Options []string `toml:"options,omitempty" json:"options,omitempty"`
}

// EffectiveValue returns the user-supplied value when set and non-empty,
// falling back to the declared default.
func (v Variable) EffectiveValue() string {
	if v.Value != "" {
		return v.Value
	}
	return v.Default
}

// Document is a user style's full record.
type Document struct {
	ID   string `toml:"id" json:"id"`
	Name string `toml:"name" json:"name"`

	// Source is the precompiled style text with embedded variable
	// placeholders. This core never parses it beyond placeholder
	// substitution.
	Source string `toml:"source" json:"source"`

	Rules     []DomainRule `toml:"rule" json:"rules"`
	Variables []Variable   `toml:"variable" json:"variables"`

	Enabled bool `toml:"enabled" json:"enabled"`

	// InstalledAt breaks cascade-order ties between styles applied to
	// the same page: older installations are injected first.
	InstalledAt time.Time `toml:"installed_at" json:"installed_at"`

	// Metadata holds author-declared key/value pairs. Passed through
	// untouched.
	Metadata map[string]string `toml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Values returns the effective value of every variable, keyed by name.
// The map is never nil, so callers can add overrides directly.
func (d *Document) Values() map[string]string {
	out := make(map[string]string, len(d.Variables))
	for _, v := range d.Variables {
		out[v.Name] = v.EffectiveValue()
	}
	return out
}

// Validate checks structural soundness: a non-empty ID, known rule
// kinds, non-empty rule patterns, and known variable types with
// non-empty names.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("style %q: missing id", d.Name)
	}
	for i, r := range d.Rules {
		if !ValidRuleKinds[r.Kind] {
			return fmt.Errorf("style %s: rule %d: unknown kind %q", d.ID, i, r.Kind)
		}
		if r.Pattern == "" {
			return fmt.Errorf("style %s: rule %d: empty pattern", d.ID, i)
		}
	}
	for i, v := range d.Variables {
		if v.Name == "" {
			return fmt.Errorf("style %s: variable %d: missing name", d.ID, i)
		}
		if v.Type != "" && !ValidVariableTypes[v.Type] {
			return fmt.Errorf("style %s: variable %q: unknown type %q", d.ID, v.Name, v.Type)
		}
	}
	return nil
}

// Clone returns a deep copy. Used for the defensive snapshots the page
// controller hands out and the registry backends return.
func (d *Document) Clone() Document {
	out := *d
	if d.Rules != nil {
		out.Rules = make([]DomainRule, len(d.Rules))
		copy(out.Rules, d.Rules)
	}
	if d.Variables != nil {
		out.Variables = make([]Variable, len(d.Variables))
		copy(out.Variables, d.Variables)
		for i, v := range d.Variables {
			if v.Min != nil {
				m := *v.Min
				out.Variables[i].Min = &m
			}
			if v.Max != nil {
				m := *v.Max
				out.Variables[i].Max = &m
			}
			if v.Options != nil {
				out.Variables[i].Options = append([]string(nil), v.Options...)
			}
		}
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
