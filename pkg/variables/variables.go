// Package variables substitutes user values into precompiled style
// text.
//
// The upstream compiler emits placeholder markers of the form
//
//	/*[[name]]*/fallback
//	/*[[name|type]]*/fallback
//	/*[[name|type|default]]*/fallback
//
// where fallback is the literal style token immediately following the
// marker. The marker is a comment, so unresolved text stays
// syntactically valid: the fallback token is what the page sees.
// Resolution replaces marker and fallback together with the chosen
// value; a marker with neither a supplied value nor an embedded
// default is left byte-for-byte untouched. This grammar is the sole
// contract between the engine and the compilation step.
package variables

import (
	"regexp"
	"strings"
)

// marker captures: 1 name, 2 optional declared type, 3 optional
// embedded default, 4 the literal fallback token.
var marker = regexp.MustCompile(`/\*\[\[([A-Za-z0-9_-]+)(?:\|([A-Za-z-]*))?(?:\|([^\]]*?))?\]\]\*/([^\s;{}]*)`)

// Resolver substitutes placeholder markers. The zero value is ready
// to use; New exists for symmetry with the other engine components.
type Resolver struct{}

// New creates a Resolver.
func New() *Resolver {
	return &Resolver{}
}

// Resolve substitutes every placeholder occurrence in source. For each
// marker: a supplied non-empty value wins, then the marker's embedded
// default, and with neither the occurrence is left untouched. Text
// outside recognized markers is never altered, and resolving
// already-resolved text is a no-op because substitution consumes the
// marker.
func (r *Resolver) Resolve(source string, values map[string]string) string {
	if !strings.Contains(source, "/*[[") {
		return source
	}
	return marker.ReplaceAllStringFunc(source, func(occ string) string {
		sub := marker.FindStringSubmatch(occ)
		name, def := sub[1], sub[3]
		if v, ok := values[name]; ok && v != "" {
			return v
		}
		if def != "" {
			return def
		}
		return occ
	})
}
